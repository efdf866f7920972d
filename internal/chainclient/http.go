package chainclient

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/relayerr"
)

// HTTPChainClient is the HTTPS JSON-RPC transport. It serves CallRead,
// SendTx, QueryLogs, and BlockNumber; it never supports Subscribe — a
// WSChainClient embeds it and adds the streaming path (spec §4.4
// step 1: "prefer WebSocket derived by a URL-scheme rewrite").
type HTTPChainClient struct {
	url        string
	eth        *ethclient.Client
	rpc        *gethrpc.Client
	privateKey *ecdsa.PrivateKey
	fromAddr   common.Address
	signer     types.Signer
	health     *healthTracker
	log        *zap.SugaredLogger

	// bridgeContract/bridgeABI/eventName bind this client to the single
	// intent event it ingests (AssetsBuy on L1, ASSETS_SOLD on L2).
	bridgeContract common.Address
	bridgeABI      abi.ABI
	eventName      string
}

// BridgeBinding names the contract and event a ChainClient streams/queries.
type BridgeBinding struct {
	Contract  common.Address
	ABI       abi.ABI
	EventName string
}

// NewHTTPChainClient dials url (an HTTPS JSON-RPC endpoint), binds the
// operator private key that will sign every outbound transaction this
// client submits, and binds the bridge contract/event this client streams.
func NewHTTPChainClient(ctx context.Context, url string, privateKey *ecdsa.PrivateKey, binding BridgeBinding, log *zap.SugaredLogger) (*HTTPChainClient, error) {
	rc, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, relayerr.NewConnectionError("dial http rpc endpoint", err)
	}
	ec := ethclient.NewClient(rc)

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		return nil, relayerr.NewConnectionError("fetch chain id", err)
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, relayerr.NewConfigError("operator key has no ECDSA public key", nil)
	}

	return &HTTPChainClient{
		url:            url,
		eth:            ec,
		rpc:            rc,
		privateKey:     privateKey,
		fromAddr:       crypto.PubkeyToAddress(*pub),
		signer:         types.NewLondonSigner(chainID),
		health:         newHealthTracker(),
		log:            log,
		bridgeContract: binding.Contract,
		bridgeABI:      binding.ABI,
		eventName:      binding.EventName,
	}, nil
}

func (c *HTTPChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		c.health.recordFailure()
		return 0, relayerr.NewConnectionError("eth_blockNumber", err)
	}
	c.health.recordSuccess()
	return n, nil
}

// Healthy reports the circuit-breaker readout from every CallRead/SendTx/
// QueryLogs/BlockNumber outcome recorded so far.
func (c *HTTPChainClient) Healthy() bool {
	return c.health.healthy()
}

// Subscribe is unsupported over HTTP; callers should use WSChainClient for
// the streaming path.
func (c *HTTPChainClient) Subscribe(context.Context, EventHandler) (func(), error) {
	return nil, relayerr.NewChainError("subscribe not supported over http transport", nil)
}

// QueryLogs is the HistoricalBackfiller's pull path (spec §4.6): it queries
// this client's bound bridge event over [fromBlock, toBlock].
func (c *HTTPChainClient) QueryLogs(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error) {
	event, ok := c.bridgeABI.Events[c.eventName]
	if !ok {
		return nil, relayerr.NewChainError("unknown event "+c.eventName, nil)
	}

	query := geth.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.bridgeContract},
		Topics:    [][]common.Hash{{event.ID}},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		c.health.recordFailure()
		return nil, relayerr.NewChainError("eth_getLogs", err)
	}
	c.health.recordSuccess()

	out := make([]Event, 0, len(logs))
	for _, lg := range logs {
		args := map[string]interface{}{}
		if len(lg.Data) > 0 {
			if err := c.bridgeABI.UnpackIntoMap(args, c.eventName, lg.Data); err != nil {
				c.log.Warnw("failed to unpack log data, dropping", "event", c.eventName, "tx", lg.TxHash.Hex(), "err", err)
				continue
			}
		}
		out = append(out, Event{
			Name:            c.eventName,
			Args:            args,
			TransactionHash: lg.TxHash.Hex(),
			Log:             &LogEnvelope{TransactionHash: lg.TxHash.Hex()},
			BlockNumber:     lg.BlockNumber,
			Raw:             lg.TxHash,
		})
	}
	return out, nil
}

func (c *HTTPChainClient) CallRead(ctx context.Context, contract common.Address, abiJSON abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := abiJSON.Pack(method, args...)
	if err != nil {
		return nil, relayerr.NewChainError("pack "+method, err)
	}

	msg := geth.CallMsg{To: &contract, Data: data}
	result, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		c.health.recordFailure()
		return nil, relayerr.NewChainError("call "+method, err)
	}
	c.health.recordSuccess()

	values, err := abiJSON.Unpack(method, result)
	if err != nil {
		return nil, relayerr.NewChainError("unpack "+method, err)
	}
	return values, nil
}

// SendTx ABI-encodes method(args...), signs a dynamic-fee transaction with
// the operator key, and submits it. The fixed gas limit (500000 per spec
// §4.8) is the caller's responsibility via opts.
func (c *HTTPChainClient) SendTx(ctx context.Context, contract common.Address, abiJSON abi.ABI, method string, opts SendOpts, args ...interface{}) (SentTx, error) {
	data, err := abiJSON.Pack(method, args...)
	if err != nil {
		return nil, relayerr.NewChainError("pack "+method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.fromAddr)
	if err != nil {
		c.health.recordFailure()
		return nil, relayerr.NewChainError("fetch nonce for submit", err)
	}

	gasTipCap, gasFeeCap, err := c.suggestFees(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       opts.GasLimit,
		To:        &contract,
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, c.signer, c.privateKey)
	if err != nil {
		return nil, relayerr.NewChainError("sign submitted tx", err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already known") {
			return nil, relayerr.NewTxError(method+": "+err.Error(), err, true)
		}
		c.health.recordFailure()
		return nil, relayerr.NewTxError(method+": "+err.Error(), err, false)
	}
	c.health.recordSuccess()

	return &httpSentTx{eth: c.eth, tx: signedTx}, nil
}

func (c *HTTPChainClient) suggestFees(ctx context.Context) (tip, feeCap *big.Int, err error) {
	tip, err = c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, relayerr.NewChainError("suggest gas tip cap", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, relayerr.NewChainError("fetch latest header", err)
	}
	base := head.BaseFee
	if base == nil {
		base = big.NewInt(0)
	}
	// feeCap = 2*baseFee + tip, the conventional EIP-1559 headroom.
	feeCap = new(big.Int).Add(new(big.Int).Mul(base, big.NewInt(2)), tip)
	return tip, feeCap, nil
}

func (c *HTTPChainClient) Close() error {
	c.rpc.Close()
	return nil
}

var _ ChainClient = (*HTTPChainClient)(nil)

// httpSentTx is the SentTx handle for a transaction submitted over HTTP.
type httpSentTx struct {
	eth *ethclient.Client
	tx  *types.Transaction
}

func (t *httpSentTx) Hash() string { return t.tx.Hash().Hex() }

func (t *httpSentTx) Wait(ctx context.Context) (*Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.eth, t.tx)
	if err != nil {
		return nil, relayerr.NewChainError("wait for receipt", err)
	}
	return &Receipt{
		Status:      receipt.Status,
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}
