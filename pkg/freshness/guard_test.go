package freshness

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeSnapshotStore struct {
	lastFetched *time.Time
	err         error
	appended    []json.RawMessage
}

func (f *fakeSnapshotStore) GetLatestFetchedAt(ctx context.Context, ticker string, kind models.SnapshotKind) (*time.Time, error) {
	return f.lastFetched, f.err
}

func (f *fakeSnapshotStore) Append(ctx context.Context, ticker string, kind models.SnapshotKind, payload json.RawMessage) (*models.DataSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.appended = append(f.appended, payload)
	return &models.DataSnapshot{Ticker: ticker, Kind: kind}, nil
}

func newTestGuard(store SnapshotStore, ttl time.Duration, now time.Time) *Guard {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	g := NewGuard(store, nil, ttl, logger)
	g.now = func() time.Time { return now }
	return g
}

func TestShouldRefresh_NoSnapshot(t *testing.T) {
	g := newTestGuard(&fakeSnapshotStore{}, 24*time.Hour, time.Now())

	refresh, err := g.ShouldRefresh(context.Background(), "AAPL", false)
	assert.NoError(t, err)
	assert.True(t, refresh)
}

func TestShouldRefresh_FreshSnapshot(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fetched := now.Add(-1 * time.Hour)
	g := newTestGuard(&fakeSnapshotStore{lastFetched: &fetched}, 24*time.Hour, now)

	refresh, err := g.ShouldRefresh(context.Background(), "AAPL", false)
	assert.NoError(t, err)
	assert.False(t, refresh)
}

func TestShouldRefresh_StaleSnapshot(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fetched := now.Add(-25 * time.Hour)
	g := newTestGuard(&fakeSnapshotStore{lastFetched: &fetched}, 24*time.Hour, now)

	refresh, err := g.ShouldRefresh(context.Background(), "AAPL", false)
	assert.NoError(t, err)
	assert.True(t, refresh)
}

func TestShouldRefresh_ExactlyAtTTL(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fetched := now.Add(-24 * time.Hour)
	g := newTestGuard(&fakeSnapshotStore{lastFetched: &fetched}, 24*time.Hour, now)

	// age == ttl is stale
	refresh, err := g.ShouldRefresh(context.Background(), "AAPL", false)
	assert.NoError(t, err)
	assert.True(t, refresh)
}

func TestShouldRefresh_ForceBypassesFreshness(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fetched := now.Add(-1 * time.Minute)
	g := newTestGuard(&fakeSnapshotStore{lastFetched: &fetched}, 24*time.Hour, now)

	refresh, err := g.ShouldRefresh(context.Background(), "AAPL", true)
	assert.NoError(t, err)
	assert.True(t, refresh)
}

func TestMarkRefreshed_AppendsSnapshot(t *testing.T) {
	store := &fakeSnapshotStore{}
	g := newTestGuard(store, 24*time.Hour, time.Now())

	err := g.MarkRefreshed(context.Background(), "AAPL", json.RawMessage(`{"cik":"0000320193"}`))
	assert.NoError(t, err)
	assert.Len(t, store.appended, 1)
}

func TestAcquireRefreshLock_NilLockerNeverBlocks(t *testing.T) {
	g := newTestGuard(&fakeSnapshotStore{}, 24*time.Hour, time.Now())

	lock, heldElsewhere := g.AcquireRefreshLock(context.Background(), "AAPL")
	assert.Nil(t, lock)
	assert.False(t, heldElsewhere)
}
