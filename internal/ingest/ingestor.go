// Package ingest implements EventIngestor (spec §4.5): extracting a usable
// event hash by probing several candidate fields, deduplicating via
// DedupIndex then TxStore, and dispatching surviving intents onward.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/chainclient"
	"github.com/pro123908/pepu-bridge-server/internal/dedup"
	"github.com/pro123908/pepu-bridge-server/internal/relayerr"
	"github.com/pro123908/pepu-bridge-server/internal/txstore"
)

// Dispatcher receives a deduplicated intent for relay. It carries no chain
// tag, so each ingestor is given the Dispatcher for its own flow.
type Dispatcher func(ctx context.Context, eventHash string, event chainclient.Event)

// dedupSizeRecorder is the minimal surface internal/metrics.Metrics exposes
// to this package, named locally so ingest doesn't need to import the
// concrete metrics type.
type dedupSizeRecorder interface {
	SetDedupIndexSize(size int)
}

// Ingestor composes a DedupIndex and TxStore to turn raw ChainClient events
// into deduplicated relay intents (spec §4.5).
type Ingestor struct {
	chain    string
	dedup    *dedup.Index
	store    txstore.TxStore
	dispatch Dispatcher
	metrics  dedupSizeRecorder
	log      *zap.SugaredLogger
}

// New constructs an Ingestor for one chain. dedup and store are shared
// across the L1 and L2 ingestors (one DedupIndex, one TxStore process-wide).
func New(chain string, idx *dedup.Index, store txstore.TxStore, dispatch Dispatcher, metrics dedupSizeRecorder, log *zap.SugaredLogger) *Ingestor {
	return &Ingestor{chain: chain, dedup: idx, store: store, dispatch: dispatch, metrics: metrics, log: log}
}

// Handle is called from the chainclient.EventHandler wired into a
// Supervisor's Subscribe call and is also reused by the HistoricalBackfiller's pull path,
// so both paths run identical dedup rules (spec §4.6). Every surviving
// intent is relayed as its own task (spec §5: "one relay task per accepted
// intent… each relay is an independent task") so a transaction that never
// confirms blocks only its own goroutine, never subsequent ingestion.
func (i *Ingestor) Handle(ctx context.Context, event chainclient.Event) {
	eventHash, err := extractHash(event)
	if err != nil {
		i.log.Warnw("dropping event with no usable transaction hash", "chain", i.chain, "err", err)
		return
	}

	if i.dedup.ContainsOrAdd(eventHash) {
		i.log.Debugw("duplicate suppressed by in-memory index", "chain", i.chain, "eventHash", eventHash)
		return
	}
	i.metrics.SetDedupIndexSize(i.dedup.Size())

	exists, err := i.store.HashExists(ctx, eventHash)
	if err != nil {
		i.log.Errorw("dedup store check failed, abandoning for this pass", "chain", i.chain, "eventHash", eventHash, "err", err)
		return
	}
	if exists {
		i.log.Debugw("duplicate suppressed by durable store (dedup rehydration lag)", "chain", i.chain, "eventHash", eventHash)
		return
	}

	go i.dispatch(ctx, eventHash, event)
}

// extractHash probes, in order, transactionHash, log.transactionHash,
// receipt.transactionHash, transaction.hash (spec §4.5 step 1).
func extractHash(event chainclient.Event) (string, error) {
	if event.TransactionHash != "" {
		return event.TransactionHash, nil
	}
	if event.Log != nil && event.Log.TransactionHash != "" {
		return event.Log.TransactionHash, nil
	}
	if event.Receipt != nil && event.Receipt.TransactionHash != "" {
		return event.Receipt.TransactionHash, nil
	}
	if event.Transaction != nil && event.Transaction.Hash != "" {
		return event.Transaction.Hash, nil
	}
	return "", relayerr.NewMissingHashError("event carries no transactionHash/log/receipt/transaction hash field")
}
