// Package model defines the persisted shape of a relay, shared by TxStore
// implementations, the dedup index, and the relayer.
package model

import "time"

// Chain is the destination chain tag for a RelayRecord.
type Chain string

const (
	ChainL1 Chain = "L1"
	ChainL2 Chain = "L2"
)

// Kind identifies which bridge flow a record belongs to.
type Kind string

const (
	KindBuy  Kind = "BUY"  // L1 -> L2
	KindSell Kind = "SELL" // L2 -> L1
)

// Status is the lifecycle state of a RelayRecord. Transitions are monotonic:
// Pending -> Confirmed or Pending -> Failed. Terminal states are absorbing.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether s can never be overwritten by a further
// status transition.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// RelayRecord is the persisted unit described in spec §3. A record is
// created the moment the destination-chain transaction is submitted, never
// earlier, so that signing failures never strand a record with no relayHash.
type RelayRecord struct {
	ID          string    `bson:"id" json:"id"`
	Chain       Chain     `bson:"chain" json:"chain"`
	Kind        Kind      `bson:"kind" json:"kind"`
	User        string    `bson:"user" json:"user"` // always lowercased
	Amount      string    `bson:"amount" json:"amount"`
	SourceToken string    `bson:"sourceToken" json:"sourceToken"`
	DestToken   string    `bson:"destToken" json:"destToken"`
	EventHash   string    `bson:"eventHash,omitempty" json:"eventHash,omitempty"`
	RelayHash   string    `bson:"relayHash,omitempty" json:"relayHash,omitempty"`
	Status      Status    `bson:"status" json:"status"`
	Timestamp   int64     `bson:"timestamp" json:"timestamp"` // unix millis at creation
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// MatchesHash reports whether h equals either of the record's hashes. This
// is the predicate TxStore.findByHash / hashExists / updateStatusByHash use.
func (r *RelayRecord) MatchesHash(h string) bool {
	return r.EventHash == h || r.RelayHash == h
}
