package txstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pro123908/pepu-bridge-server/internal/model"
)

// MemoryStore implements TxStore with a mutex-guarded map. Suitable for
// tests and for running the relayer without a Mongo deployment.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.RelayRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*model.RelayRecord)}
}

func (m *MemoryStore) UpsertByID(_ context.Context, record *model.RelayRecord) (*model.RelayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	record.User = strings.ToLower(record.User)
	if existing, ok := m.records[record.ID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	stored := copyRecord(record)
	m.records[record.ID] = stored
	return copyRecord(stored), nil
}

func (m *MemoryStore) HashExists(_ context.Context, h string) (bool, error) {
	if h == "" {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.MatchesHash(h) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) FindByHash(_ context.Context, h string) (*model.RelayRecord, error) {
	if h == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.MatchesHash(h) {
			return copyRecord(r), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) UpdateStatusByHash(_ context.Context, h string, status model.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if !r.MatchesHash(h) {
			continue
		}
		if r.Status.IsTerminal() {
			return false, nil
		}
		r.Status = status
		r.UpdatedAt = time.Now()
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) ListAll(_ context.Context, limit int) ([]*model.RelayRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.sortedDescending()
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) ListPendingByUser(_ context.Context, user string) ([]*model.RelayRecord, error) {
	user = strings.ToLower(user)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.RelayRecord
	for _, r := range m.sortedDescending() {
		if r.User == user && r.Status == model.StatusPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListPendingByChain(_ context.Context, chain model.Chain) ([]*model.RelayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.RelayRecord
	for _, r := range m.sortedDescending() {
		if r.Chain == chain && r.Status == model.StatusPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*model.RelayRecord)
	return nil
}

func (m *MemoryStore) AllHashes(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hashes []string
	for _, r := range m.records {
		if r.EventHash != "" {
			hashes = append(hashes, r.EventHash)
		}
		if r.RelayHash != "" {
			hashes = append(hashes, r.RelayHash)
		}
	}
	return hashes, nil
}

func (m *MemoryStore) Close(_ context.Context) error { return nil }

// sortedDescending returns copies of every record ordered by createdAt
// descending. Caller must hold at least a read lock.
func (m *MemoryStore) sortedDescending() []*model.RelayRecord {
	out := make([]*model.RelayRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, copyRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func copyRecord(r *model.RelayRecord) *model.RelayRecord {
	cp := *r
	return &cp
}

var _ TxStore = (*MemoryStore)(nil)
