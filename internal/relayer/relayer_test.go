package relayer

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/chainclient"
	"github.com/pro123908/pepu-bridge-server/internal/contracts"
	"github.com/pro123908/pepu-bridge-server/internal/dedup"
	"github.com/pro123908/pepu-bridge-server/internal/model"
	"github.com/pro123908/pepu-bridge-server/internal/signer"
	"github.com/pro123908/pepu-bridge-server/internal/txstore"
)

// testPrivateKeyHex is a fixed, throwaway key (never used on any real chain),
// mirroring internal/signer's test convention so the EIP-712 signature this
// test produces is deterministic and recoverable.
const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb1522d741beb41cdbd3d8a78f8e9e74d62aa"

func newTestSigner(t *testing.T) *signer.Signer {
	t.Helper()
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)
	s, err := signer.New(key)
	require.NoError(t, err)
	return s
}

// stubSentTx is the SentTx handle returned by stubChainClient.SendTx.
type stubSentTx struct {
	hash    string
	receipt *chainclient.Receipt
	waitErr error
}

func (t *stubSentTx) Hash() string { return t.hash }

func (t *stubSentTx) Wait(context.Context) (*chainclient.Receipt, error) {
	return t.receipt, t.waitErr
}

// stubChainClient is a hand-rolled ChainClient double: CallRead answers by
// method name from a fixed table, SendTx records the call and returns a
// pre-built stubSentTx. Only the methods RelayBuy/RelaySell actually invoke
// are exercised; the rest are no-ops satisfying the interface.
type stubChainClient struct {
	mu sync.Mutex

	callReadByMethod map[string][]interface{}
	sentTx           *stubSentTx
	sentTxErr        error

	lastSendMethod string
	lastSendOpts   chainclient.SendOpts
	lastSendArgs   []interface{}
}

func (c *stubChainClient) BlockNumber(context.Context) (uint64, error) { return 0, nil }
func (c *stubChainClient) Healthy() bool                               { return true }
func (c *stubChainClient) Subscribe(context.Context, chainclient.EventHandler) (func(), error) {
	return func() {}, nil
}
func (c *stubChainClient) QueryLogs(context.Context, uint64, uint64) ([]chainclient.Event, error) {
	return nil, nil
}
func (c *stubChainClient) Close() error { return nil }

func (c *stubChainClient) CallRead(_ context.Context, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
	values, ok := c.callReadByMethod[method]
	if !ok {
		return nil, assertableErr{"unexpected CallRead method " + method}
	}
	return values, nil
}

func (c *stubChainClient) SendTx(_ context.Context, _ common.Address, _ abi.ABI, method string, opts chainclient.SendOpts, args ...interface{}) (chainclient.SentTx, error) {
	c.mu.Lock()
	c.lastSendMethod = method
	c.lastSendOpts = opts
	c.lastSendArgs = args
	c.mu.Unlock()

	if c.sentTxErr != nil {
		return nil, c.sentTxErr
	}
	return c.sentTx, nil
}

type assertableErr struct{ msg string }

func (e assertableErr) Error() string { return e.msg }

type stubMetrics struct {
	mu        sync.Mutex
	outcomes  []string
	dedupSize int
}

func (m *stubMetrics) RecordRelayOutcome(flow, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, flow+":"+status)
}

func (m *stubMetrics) SetDedupIndexSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dedupSize = size
}

// TestRelayBuy_FullPipeline_NonceReadThroughConfirmedReceipt drives spec §8
// scenario 6 end to end against a stub L2 ChainClient: usedNonces ->
// decimals -> DOMAIN_SEPARATOR -> executeBuy(gasLimit=500000) -> pending
// record -> confirmed status once the receipt resolves.
func TestRelayBuy_FullPipeline_NonceReadThroughConfirmedReceipt(t *testing.T) {
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	assetIn := common.HexToAddress("0x2222222222222222222222222222222222222222")
	l2TargetToken := common.HexToAddress("0x3333333333333333333333333333333333333333")
	deadline := big.NewInt(9_999_999_999)

	l2 := &stubChainClient{
		callReadByMethod: map[string][]interface{}{
			contracts.MethodUsedNonces:      {big.NewInt(0)},
			contracts.MethodDomainSeparator: {[32]byte{0xAB}},
		},
		sentTx: &stubSentTx{
			hash:    "0xdeadbeef",
			receipt: &chainclient.Receipt{Status: 1, TxHash: "0xdeadbeef", BlockNumber: 42},
		},
	}
	l1 := &stubChainClient{
		callReadByMethod: map[string][]interface{}{
			contracts.MethodDecimals: {uint8(6)},
		},
	}

	store := txstore.NewMemoryStore()
	m := &stubMetrics{}

	rel, err := New(Config{
		L1Client:   l1,
		L2Client:   l2,
		L1Bridge:   common.HexToAddress("0xL1Bridge000000000000000000000000000000"),
		L2Bridge:   common.HexToAddress("0xL2Bridge000000000000000000000000000000"),
		Store:      store,
		DedupIndex: dedup.New(),
		Signer:     newTestSigner(t),
		Metrics:    m,
		Log:        zap.NewNop().Sugar(),
	})
	require.NoError(t, err)

	event := chainclient.Event{
		Name: contracts.EventAssetsBuy,
		Args: map[string]interface{}{
			"user":          user,
			"assetIn":       assetIn,
			"amountIn":      big.NewInt(1_000_000), // 1.0 at 6 decimals
			"l2TargetToken": l2TargetToken,
			"deadline":      deadline,
		},
	}

	rel.RelayBuy(context.Background(), "0xeventhash", event)

	// executeBuy was submitted with the fixed gas limit and destination nonce
	// usedNonces(user)+1 = 1.
	assert.Equal(t, contracts.MethodExecuteBuy, l2.lastSendMethod)
	assert.Equal(t, chainclient.SendOpts{GasLimit: submitGasLimit}, l2.lastSendOpts)
	require.Len(t, l2.lastSendArgs, 7)
	assert.Equal(t, 0, l2.lastSendArgs[4].(*big.Int).Cmp(big.NewInt(1)))

	record, err := store.FindByHash(context.Background(), "0xdeadbeef")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.StatusConfirmed, record.Status)
	assert.Equal(t, "1", record.Amount)
	assert.Equal(t, "0xeventhash", record.EventHash)

	assert.Contains(t, m.outcomes, "buy:confirmed")
	assert.Equal(t, 1, m.dedupSize)
}

// TestRelayBuy_FullPipeline_RevertedReceiptMarksFailed covers the same
// pipeline but with a reverted receipt, asserting the terminal status is
// failed rather than confirmed.
func TestRelayBuy_FullPipeline_RevertedReceiptMarksFailed(t *testing.T) {
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	assetIn := common.HexToAddress("0x2222222222222222222222222222222222222222")
	l2TargetToken := common.HexToAddress("0x3333333333333333333333333333333333333333")
	deadline := big.NewInt(9_999_999_999)

	l2 := &stubChainClient{
		callReadByMethod: map[string][]interface{}{
			contracts.MethodUsedNonces:      {big.NewInt(4)},
			contracts.MethodDomainSeparator: {[32]byte{0xCD}},
		},
		sentTx: &stubSentTx{
			hash:    "0xfeedface",
			receipt: &chainclient.Receipt{Status: 0, TxHash: "0xfeedface", BlockNumber: 7},
		},
	}
	l1 := &stubChainClient{
		callReadByMethod: map[string][]interface{}{
			contracts.MethodDecimals: {uint8(18)},
		},
	}

	store := txstore.NewMemoryStore()
	m := &stubMetrics{}

	rel, err := New(Config{
		L1Client:   l1,
		L2Client:   l2,
		L1Bridge:   common.HexToAddress("0xL1Bridge000000000000000000000000000000"),
		L2Bridge:   common.HexToAddress("0xL2Bridge000000000000000000000000000000"),
		Store:      store,
		DedupIndex: dedup.New(),
		Signer:     newTestSigner(t),
		Metrics:    m,
		Log:        zap.NewNop().Sugar(),
	})
	require.NoError(t, err)

	event := chainclient.Event{
		Args: map[string]interface{}{
			"user":          user,
			"assetIn":       assetIn,
			"amountIn":      big.NewInt(5_000_000_000_000_000_000),
			"l2TargetToken": l2TargetToken,
			"deadline":      deadline,
		},
	}

	rel.RelayBuy(context.Background(), "0xeventhash2", event)

	record, err := store.FindByHash(context.Background(), "0xfeedface")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.StatusFailed, record.Status)
	assert.Contains(t, m.outcomes, "buy:failed")
}

func TestNormalizeAmountLossy_SixDecimalsToEighteen(t *testing.T) {
	// spec §8 scenario 6: amountIn=1_000_000 at 6 decimals -> 1e18 at 18 decimals.
	amountIn := big.NewInt(1_000_000)
	normalized := normalizeAmountLossy(amountIn, 6)

	expected := new(big.Int)
	expected.SetString("1000000000000000000", 10)
	assert.Equal(t, 0, normalized.Cmp(expected))
}

func TestHumanReadableAmount_MatchesExpectedScenarioString(t *testing.T) {
	amountIn := big.NewInt(1_000_000)
	assert.Equal(t, "1", humanReadableAmount(amountIn, 6))
}

func TestHumanReadableAmount_FractionalValue(t *testing.T) {
	amountIn := big.NewInt(1_500_000)
	assert.Equal(t, "1.5", humanReadableAmount(amountIn, 6))
}

func TestNormalizeAmountLossy_ZeroDecimalsScalesFullEighteen(t *testing.T) {
	amountIn := big.NewInt(7)
	normalized := normalizeAmountLossy(amountIn, 0)

	expected := new(big.Int)
	expected.SetString("7000000000000000000", 10)
	assert.Equal(t, 0, normalized.Cmp(expected))
}
