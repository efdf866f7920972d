// Package signer implements EIP-712 typed-data digest construction and
// ECDSA signing for the two relay intent kinds (spec §4.7), grounded on the
// teacher's ethereum.EthereumSigner/VerifySignature pair (raw ECDSA
// sign + Ecrecover-based verification) generalized from a single payload
// hash to a full EIP-712 domain-separated struct hash.
package signer

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pro123908/pepu-bridge-server/internal/relayerr"
)

var (
	buyTypeHash  = crypto.Keccak256([]byte("ASSETS_BUY(address user,address l2Token,address assetIn,uint256 amount,uint256 nonce,uint256 deadline)"))
	sellTypeHash = crypto.Keccak256([]byte("ASSETS_SOLD(address user,address assetToWithdraw,uint256 nonce,uint256 deadline)"))
)

var structArgTypes = mustArguments("bytes32", "address", "address", "address", "uint256", "uint256", "uint256")
var sellArgTypes = mustArguments("bytes32", "address", "address", "uint256", "uint256")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err) // fixed set of valid ABI type strings, never fails
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// BuyIntent is the field set the Buy type hash commits to. AssetIn is set by
// the caller — the Relayer passes the zero address per spec §4.8/§9's
// documented (and preserved) contract quirk; Signer does not substitute it.
type BuyIntent struct {
	User     common.Address
	L2Token  common.Address
	AssetIn  common.Address
	Amount   *big.Int
	Nonce    *big.Int
	Deadline *big.Int
}

// SellIntent is the field set the Withdraw type hash commits to.
type SellIntent struct {
	User            common.Address
	AssetToWithdraw common.Address
	Nonce           *big.Int
	Deadline        *big.Int
}

// Signer holds the operator's private key and signs EIP-712 digests on its
// behalf, verifying every signature it produces recovers back to its own
// address before returning it.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// New derives the signer's address from privateKey.
func New(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, relayerr.NewConfigError("operator key has no ECDSA public key", nil)
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*pub),
	}, nil
}

// Address returns the address this signer controls.
func (s *Signer) Address() common.Address { return s.address }

// SignBuy computes the Buy EIP-712 digest under domainSeparator and returns
// a 65-byte (R||S||V, V∈{27,28}) signature, verified to recover to s.Address().
func (s *Signer) SignBuy(domainSeparator [32]byte, intent BuyIntent) ([]byte, error) {
	packed, err := structArgTypes.Pack(
		bytesToHash(buyTypeHash),
		intent.User,
		intent.L2Token,
		intent.AssetIn,
		intent.Amount,
		intent.Nonce,
		intent.Deadline,
	)
	if err != nil {
		return nil, relayerr.NewChainError("pack buy struct hash", err)
	}
	return s.signDigest(domainSeparator, crypto.Keccak256(packed))
}

// SignSell computes the Withdraw EIP-712 digest under domainSeparator.
func (s *Signer) SignSell(domainSeparator [32]byte, intent SellIntent) ([]byte, error) {
	packed, err := sellArgTypes.Pack(
		bytesToHash(sellTypeHash),
		intent.User,
		intent.AssetToWithdraw,
		intent.Nonce,
		intent.Deadline,
	)
	if err != nil {
		return nil, relayerr.NewChainError("pack sell struct hash", err)
	}
	return s.signDigest(domainSeparator, crypto.Keccak256(packed))
}

// signDigest computes digest = keccak256(0x19 || 0x01 || domainSeparator ||
// structHash), signs it, and asserts the recovered address equals s.address
// before returning the signature (spec §4.7 "must recover... and assert
// equality").
func (s *Signer) signDigest(domainSeparator [32]byte, structHash []byte) ([]byte, error) {
	preimage := make([]byte, 0, 2+32+32)
	preimage = append(preimage, 0x19, 0x01)
	preimage = append(preimage, domainSeparator[:]...)
	preimage = append(preimage, structHash...)
	digest := crypto.Keccak256(preimage)

	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, relayerr.NewChainError("sign eip-712 digest", err)
	}
	// crypto.Sign returns V ∈ {0,1}; EIP-712 verifiers expect 27/28.
	sig[64] += 27

	recovered, err := recoverAddress(digest, sig)
	if err != nil {
		return nil, relayerr.NewSignatureMismatchError("recover signer from digest", err)
	}
	if recovered != s.address {
		return nil, relayerr.NewSignatureMismatchError(
			"recovered address "+recovered.Hex()+" does not match signer "+s.address.Hex(), nil)
	}
	return sig, nil
}

// recoverAddress recovers the signing address from a 65-byte (R||S||V)
// signature where V is 27 or 28.
func recoverAddress(digest, sig []byte) (common.Address, error) {
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pubKeyBytes, err := crypto.Ecrecover(digest, normalized)
	if err != nil {
		return common.Address{}, err
	}
	pubKey, err := crypto.UnmarshalPubkey(pubKeyBytes)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

func bytesToHash(b []byte) [32]byte {
	var h [32]byte
	copy(h[:], b)
	return h
}
