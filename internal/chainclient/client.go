// Package chainclient abstracts a single chain endpoint per spec §4.1:
// block-number probing, event subscription, historical log queries, raw
// transaction submission, and contract reads. Two instances are constructed
// per process, one for L1 and one for L2.
package chainclient

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Event is the envelope an EventIngestor receives for a single emitted log.
// It intentionally carries the transaction hash in several places, mirroring
// the several shapes the upstream node/library may populate, so the
// ingestor's hash-probing logic (spec §4.5 step 1) has somewhere to look
// regardless of which field was actually filled in by the transport.
type Event struct {
	Name string
	Args map[string]interface{}

	// TransactionHash is the field probed first.
	TransactionHash string
	// Log, when non-nil, supplies log.transactionHash (probed second).
	Log *LogEnvelope
	// Receipt, when non-nil, supplies receipt.transactionHash (probed third).
	Receipt *ReceiptEnvelope
	// Transaction, when non-nil, supplies transaction.hash (probed fourth).
	Transaction *TransactionEnvelope

	BlockNumber uint64
	Raw         common.Hash // the emitting transaction's hash, set by both transports
}

type LogEnvelope struct{ TransactionHash string }
type ReceiptEnvelope struct{ TransactionHash string }
type TransactionEnvelope struct{ Hash string }

// SentTx is the handle returned by SendTx. Wait blocks until the submitted
// transaction is mined, suspension point per spec §5.
type SentTx interface {
	Hash() string
	Wait(ctx context.Context) (*Receipt, error)
}

// Receipt reports whether a mined transaction succeeded.
type Receipt struct {
	Status      uint64 // 1 = success, 0 = reverted, per go-ethereum convention
	TxHash      string
	BlockNumber uint64
}

func (r *Receipt) Reverted() bool { return r.Status == 0 }

// SendOpts carries submission parameters the Relayer controls explicitly
// (spec §4.8 uses a fixed gas limit of 500000 for every outbound call).
type SendOpts struct {
	GasLimit uint64
}

// EventHandler is invoked once per streamed Event. Subscriptions may
// silently drop events; the HistoricalBackfiller is the recovery path
// (spec §4.1).
type EventHandler func(Event)

// ChainClient is the abstraction Supervisor, EventIngestor,
// HistoricalBackfiller, Signer, and Relayer are built against. One instance
// is bound, at construction, to a single chain endpoint and a single bridge
// contract + intent event (AssetsBuy on L1, ASSETS_SOLD on L2) — that
// binding is what Subscribe and QueryLogs stream/query. CallRead and SendTx
// remain generic over an explicit contract address + ABI, since a relay
// also needs reads against ERC-20 token contracts and the *opposite*
// chain's bridge contract (e.g. reading usedNonces on the destination
// chain from the source-chain ingestion path feeds the Relayer, which runs
// against the destination ChainClient instead).
//
// Every method may suspend on chain I/O and may fail with a
// *relayerr.RelayError classified ConnectionError, ChainError, or TxError.
type ChainClient interface {
	// BlockNumber is the Supervisor's health-tick probe.
	BlockNumber(ctx context.Context) (uint64, error)

	// Healthy reports the client's circuit-breaker state without making any
	// network call: false only while three consecutive RPC failures have
	// opened the circuit and the open window has not yet elapsed. The
	// Supervisor polls this between health ticks so a circuit that opens
	// from Relayer/Ingestor traffic triggers reconnect before the next
	// scheduled BlockNumber probe.
	Healthy() bool

	// Subscribe opens a push subscription for this client's bound bridge
	// event, invoking handler for every notification until the returned
	// cancel func is called or the client is closed.
	Subscribe(ctx context.Context, handler EventHandler) (cancel func(), err error)

	// QueryLogs performs the pull-path historical query HistoricalBackfiller
	// uses to recover events the subscription path dropped, over this
	// client's bound bridge event.
	QueryLogs(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error)

	// CallRead performs a read-only contract call and ABI-unpacks the
	// return values of method against abiJSON.
	CallRead(ctx context.Context, contract common.Address, abiJSON abi.ABI, method string, args ...interface{}) ([]interface{}, error)

	// SendTx ABI-encodes a call to method and submits it as a transaction
	// signed by the operator key. "already known" responses are recognized
	// as the soft-warning condition of spec §4.1/§7 and returned as a
	// relayerr.RelayError classified SoftWarning, not a hard failure.
	SendTx(ctx context.Context, contract common.Address, abiJSON abi.ABI, method string, opts SendOpts, args ...interface{}) (SentTx, error)

	// Close tears down the underlying transport. Idempotent.
	Close() error
}
