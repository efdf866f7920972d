// Package backfill implements HistoricalBackfiller (spec §4.6): a periodic
// pull-path sweep over the last N blocks that recovers events the streaming
// subscription path silently dropped, feeding them through the same dedup
// rules as EventIngestor.
package backfill

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/chainclient"
)

const (
	sweepInterval  = 5 * time.Minute
	lookbackBlocks = 1000
)

// Handler processes one recovered event through the same dedup path an
// EventIngestor uses; in practice this is Ingestor.Handle.
type Handler func(ctx context.Context, event chainclient.Event)

// Backfiller periodically re-queries a ChainClient's bound bridge event over
// the trailing lookbackBlocks and replays every result through handler.
// Intentionally overlapping and idempotent with the streaming path (spec
// §4.6): dedup, not coordination, is what makes repeated delivery safe.
type Backfiller struct {
	chain   string
	client  chainclient.ChainClient
	handler Handler
	log     *zap.SugaredLogger
}

// New constructs a Backfiller for one chain's ChainClient.
func New(chain string, client chainclient.ChainClient, handler Handler, log *zap.SugaredLogger) *Backfiller {
	return &Backfiller{chain: chain, client: client, handler: handler, log: log}
}

// Run blocks, sweeping every sweepInterval until ctx is cancelled.
func (b *Backfiller) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepOnce(ctx)
		}
	}
}

func (b *Backfiller) sweepOnce(ctx context.Context) {
	current, err := b.client.BlockNumber(ctx)
	if err != nil {
		b.log.Warnw("backfill sweep could not read current block, will retry next tick", "chain", b.chain, "err", err)
		return
	}

	from := uint64(0)
	if current > lookbackBlocks {
		from = current - lookbackBlocks
	}

	events, err := b.client.QueryLogs(ctx, from, current)
	if err != nil {
		b.log.Warnw("backfill sweep query failed, will retry next tick", "chain", b.chain, "from", from, "to", current, "err", err)
		return
	}

	for _, event := range events {
		b.handler(ctx, event)
	}
}
