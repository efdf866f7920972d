package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pro123908/pepu-bridge-server/internal/chainclient"
	"github.com/pro123908/pepu-bridge-server/internal/dedup"
	"github.com/pro123908/pepu-bridge-server/internal/model"
	"github.com/pro123908/pepu-bridge-server/internal/txstore"
)

// fakeMetrics is a no-op dedupSizeRecorder for tests that don't assert on it.
type fakeMetrics struct{}

func (fakeMetrics) SetDedupIndexSize(int) {}

// waitForDispatch drains ch for want items or fails after a short timeout,
// since Handle now dispatches asynchronously (one goroutine per intent).
func waitForDispatch(t *testing.T, ch <-chan string, want int) []string {
	t.Helper()
	got := make([]string, 0, want)
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case h := <-ch:
			got = append(got, h)
		case <-timeout:
			t.Fatalf("timed out waiting for %d dispatch(es), got %d: %v", want, len(got), got)
		}
	}
	return got
}

func newTestIngestor(t *testing.T) (*Ingestor, *txstore.MemoryStore, chan string) {
	t.Helper()
	store := txstore.NewMemoryStore()
	idx := dedup.New()
	dispatched := make(chan string, 16)

	ing := New("L1", idx, store, func(_ context.Context, eventHash string, _ chainclient.Event) {
		dispatched <- eventHash
	}, fakeMetrics{}, zap.NewNop().Sugar())

	return ing, store, dispatched
}

func TestHandle_ExtractsHashFromTransactionHashField(t *testing.T) {
	ing, _, dispatched := newTestIngestor(t)
	ing.Handle(context.Background(), chainclient.Event{TransactionHash: "0xaa"})
	assert.Equal(t, []string{"0xaa"}, waitForDispatch(t, dispatched, 1))
}

func TestHandle_ExtractsHashFromLogField(t *testing.T) {
	ing, _, dispatched := newTestIngestor(t)
	ing.Handle(context.Background(), chainclient.Event{
		Log: &chainclient.LogEnvelope{TransactionHash: "0xbb"},
	})
	assert.Equal(t, []string{"0xbb"}, waitForDispatch(t, dispatched, 1))
}

func TestHandle_DropsEventWithNoHashAnywhere(t *testing.T) {
	ing, _, dispatched := newTestIngestor(t)
	ing.Handle(context.Background(), chainclient.Event{})

	select {
	case h := <-dispatched:
		t.Fatalf("expected no dispatch, got %q", h)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandle_DuplicateAcrossStreamAndBackfillSuppressedAfterFirst(t *testing.T) {
	ing, _, dispatched := newTestIngestor(t)

	ing.Handle(context.Background(), chainclient.Event{TransactionHash: "0xaa"})
	ing.Handle(context.Background(), chainclient.Event{TransactionHash: "0xaa"})

	assert.Equal(t, []string{"0xaa"}, waitForDispatch(t, dispatched, 1))

	select {
	case h := <-dispatched:
		t.Fatalf("expected the duplicate to be suppressed, got a second dispatch %q", h)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandle_CrashRecovery_AlreadyPersistedHashNeverDispatchedAgain(t *testing.T) {
	store := txstore.NewMemoryStore()
	idx := dedup.New() // fresh process: in-memory index is empty
	dispatched := make(chan string, 16)

	ctx := context.Background()
	_, err := store.UpsertByID(ctx, &model.RelayRecord{
		ID:        "x",
		EventHash: "0xbb",
		Status:    model.StatusConfirmed,
	})
	require.NoError(t, err)

	ing := New("L1", idx, store, func(_ context.Context, eventHash string, _ chainclient.Event) {
		dispatched <- eventHash
	}, fakeMetrics{}, zap.NewNop().Sugar())

	ing.Handle(ctx, chainclient.Event{TransactionHash: "0xbb"})

	select {
	case h := <-dispatched:
		t.Fatalf("expected no dispatch, got %q", h)
	case <-time.After(100 * time.Millisecond):
	}
}
