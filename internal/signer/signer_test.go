package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb1522d741beb41cdbd3d8a78f8e9e74d62aa"

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)
	s, err := New(key)
	require.NoError(t, err)
	return s
}

func TestSignBuy_RecoversToSignerAddress(t *testing.T) {
	s := newTestSigner(t)
	var domainSeparator [32]byte
	copy(domainSeparator[:], crypto.Keccak256([]byte("test-domain")))

	sig, err := s.SignBuy(domainSeparator, BuyIntent{
		User:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		L2Token:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		AssetIn:  common.Address{},
		Amount:   big.NewInt(1_000000000000000000),
		Nonce:    big.NewInt(1),
		Deadline: big.NewInt(9999999999),
	})
	require.NoError(t, err)
	assert.Len(t, sig, 65)
}

func TestSignSell_RecoversToSignerAddress(t *testing.T) {
	s := newTestSigner(t)
	var domainSeparator [32]byte
	copy(domainSeparator[:], crypto.Keccak256([]byte("test-domain-2")))

	sig, err := s.SignSell(domainSeparator, SellIntent{
		User:            common.HexToAddress("0x3333333333333333333333333333333333333333"),
		AssetToWithdraw: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Nonce:           big.NewInt(2),
		Deadline:        big.NewInt(9999999999),
	})
	require.NoError(t, err)

	var domainSeparator2 [32]byte
	copy(domainSeparator2[:], crypto.Keccak256([]byte("test-domain-2")))
	packed, err := sellArgTypes.Pack(
		bytesToHash(sellTypeHash),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		common.HexToAddress("0x4444444444444444444444444444444444444444"),
		big.NewInt(2),
		big.NewInt(9999999999),
	)
	require.NoError(t, err)
	structHash := crypto.Keccak256(packed)
	preimage := append([]byte{0x19, 0x01}, domainSeparator2[:]...)
	preimage = append(preimage, structHash...)
	digest := crypto.Keccak256(preimage)

	recovered, err := recoverAddress(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestSignBuy_DifferentDomainsProduceDifferentSignatures(t *testing.T) {
	s := newTestSigner(t)
	intent := BuyIntent{
		User:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		L2Token:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:   big.NewInt(1),
		Nonce:    big.NewInt(1),
		Deadline: big.NewInt(1),
	}

	var domainA, domainB [32]byte
	copy(domainA[:], crypto.Keccak256([]byte("domain-a")))
	copy(domainB[:], crypto.Keccak256([]byte("domain-b")))

	sigA, err := s.SignBuy(domainA, intent)
	require.NoError(t, err)
	sigB, err := s.SignBuy(domainB, intent)
	require.NoError(t, err)

	assert.NotEqual(t, sigA, sigB)
}
