// Package txstore provides durable persistence for RelayRecord (spec §4.3).
// TxStore is the truth the in-memory DedupIndex is a fast path over; every
// implementation must tolerate the index's loss across restart.
package txstore

import (
	"context"

	"github.com/pro123908/pepu-bridge-server/internal/model"
)

// TxStore is the interface the Relayer, EventIngestor, and administrative
// tooling consume. Implementations MUST be safe for concurrent use; no
// cross-record transactions are required.
type TxStore interface {
	// UpsertByID inserts or updates a record by id, returning the stored copy.
	UpsertByID(ctx context.Context, record *model.RelayRecord) (*model.RelayRecord, error)

	// HashExists reports whether any record has eventHash == h or
	// relayHash == h.
	HashExists(ctx context.Context, h string) (bool, error)

	// FindByHash returns the first record matching eventHash or relayHash,
	// or nil if none match.
	FindByHash(ctx context.Context, h string) (*model.RelayRecord, error)

	// UpdateStatusByHash sets status on the record matching h. It must not
	// downgrade a terminal status (Confirmed/Failed); returns whether a row
	// was actually changed.
	UpdateStatusByHash(ctx context.Context, h string, status model.Status) (bool, error)

	// ListAll returns up to limit records ordered by createdAt descending.
	// limit <= 0 defaults to 1000.
	ListAll(ctx context.Context, limit int) ([]*model.RelayRecord, error)

	// ListPendingByUser returns PENDING records for the given user address,
	// which is lowercased before matching.
	ListPendingByUser(ctx context.Context, user string) ([]*model.RelayRecord, error)

	// ListPendingByChain returns PENDING records for the given destination chain.
	ListPendingByChain(ctx context.Context, chain model.Chain) ([]*model.RelayRecord, error)

	// ClearAll deletes every record. Administrative operation only.
	ClearAll(ctx context.Context) error

	// AllHashes returns every non-empty eventHash and relayHash across all
	// records, used to seed the DedupIndex at startup.
	AllHashes(ctx context.Context) ([]string, error)

	// Close releases any underlying connection.
	Close(ctx context.Context) error
}

const defaultListLimit = 1000
