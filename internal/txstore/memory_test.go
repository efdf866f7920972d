package txstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pro123908/pepu-bridge-server/internal/model"
)

func TestUpsertByID_InsertsThenUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec, err := store.UpsertByID(ctx, &model.RelayRecord{ID: "x", EventHash: "0xaa", Status: model.StatusPending})
	require.NoError(t, err)
	created := rec.CreatedAt

	rec2, err := store.UpsertByID(ctx, &model.RelayRecord{ID: "x", EventHash: "0xaa", RelayHash: "0xbb", Status: model.StatusPending})
	require.NoError(t, err)

	assert.Equal(t, created, rec2.CreatedAt, "createdAt must not change on update")
	assert.Equal(t, "0xbb", rec2.RelayHash)

	all, err := store.ListAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateStatusByHash_TerminalStatusNeverDowngrades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.UpsertByID(ctx, &model.RelayRecord{ID: "x", RelayHash: "0xbb", Status: model.StatusPending})
	require.NoError(t, err)

	changed, err := store.UpdateStatusByHash(ctx, "0xbb", model.StatusConfirmed)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.UpdateStatusByHash(ctx, "0xbb", model.StatusFailed)
	require.NoError(t, err)
	assert.False(t, changed, "terminal status must not downgrade")

	rec, err := store.FindByHash(ctx, "0xbb")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, rec.Status)
}

func TestHashExists_MatchesEitherEventOrRelayHash(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.UpsertByID(ctx, &model.RelayRecord{ID: "x", EventHash: "0xaa", RelayHash: "0xbb"})
	require.NoError(t, err)

	exists, err := store.HashExists(ctx, "0xaa")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.HashExists(ctx, "0xbb")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.HashExists(ctx, "0xcc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListPendingByUser_FiltersByLowercasedUserAndStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.UpsertByID(ctx, &model.RelayRecord{ID: "a", User: "0xABC", Status: model.StatusPending})
	require.NoError(t, err)
	_, err = store.UpsertByID(ctx, &model.RelayRecord{ID: "b", User: "0xabc", Status: model.StatusConfirmed})
	require.NoError(t, err)

	pending, err := store.ListPendingByUser(ctx, "0xAbC")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)
}

func TestAllHashes_CollectsBothEventAndRelayHashes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.UpsertByID(ctx, &model.RelayRecord{ID: "a", EventHash: "0xaa", RelayHash: "0xbb"})
	require.NoError(t, err)

	hashes, err := store.AllHashes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0xaa", "0xbb"}, hashes)
}
