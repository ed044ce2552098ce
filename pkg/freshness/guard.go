package freshness

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SnapshotStore provides the snapshot reads and writes the guard needs.
type SnapshotStore interface {
	GetLatestFetchedAt(ctx context.Context, ticker string, kind models.SnapshotKind) (*time.Time, error)
	Append(ctx context.Context, ticker string, kind models.SnapshotKind, payload json.RawMessage) (*models.DataSnapshot, error)
}

// AdvisoryLock is a held per-key refresh lock.
type AdvisoryLock interface {
	Release(ctx context.Context) error
}

// AdvisoryLocker serializes refreshers per key. It is strictly an
// optimization to avoid duplicate external calls: database uniqueness on
// the refreshed rows is what keeps concurrent refreshes correct.
type AdvisoryLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (AdvisoryLock, error)
}

type redisLocker struct {
	locker *redis.Locker
}

// NewRedisLocker adapts a redis locker to the AdvisoryLocker interface.
// Returns nil when locker is nil so a disabled redis stays a nil locker.
func NewRedisLocker(locker *redis.Locker) AdvisoryLocker {
	if locker == nil {
		return nil
	}
	return redisLocker{locker: locker}
}

func (r redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (AdvisoryLock, error) {
	lock, err := r.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Guard decides whether a ticker's data is stale enough to re-fetch.
// Staleness is judged from the latest stored snapshot; the optional
// distributed lock only suppresses concurrent duplicate refreshes,
// database uniqueness keeps duplicates harmless either way.
type Guard struct {
	snapshots SnapshotStore
	locker    AdvisoryLocker // may be nil when redis is disabled
	ttl       time.Duration
	logger    ectologger.Logger
	now       func() time.Time
}

// NewGuard creates a new Guard. locker may be nil.
func NewGuard(snapshots SnapshotStore, locker AdvisoryLocker, ttl time.Duration, logger ectologger.Logger) *Guard {
	return &Guard{
		snapshots: snapshots,
		locker:    locker,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// ShouldRefresh reports whether the ticker's data should be re-fetched.
// Returns false when a snapshot newer than the TTL exists, unless force
// is set.
func (g *Guard) ShouldRefresh(ctx context.Context, ticker string, force bool) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "Guard.ShouldRefresh")
	defer span.End()

	if force {
		metrics.RecordFreshnessCheck("forced")
		return true, nil
	}

	lastFetched, err := g.snapshots.GetLatestFetchedAt(ctx, ticker, models.SnapshotKindSubmissions)
	if err != nil {
		return false, err
	}

	if lastFetched == nil {
		metrics.RecordFreshnessCheck("missing")
		return true, nil
	}

	age := g.now().Sub(*lastFetched)
	if age < g.ttl {
		g.logger.WithContext(ctx).WithFields(map[string]any{
			"ticker": ticker,
			"age":    age.String(),
		}).Debugf("Snapshot still fresh, skipping refresh")
		metrics.RecordFreshnessCheck("fresh")
		return false, nil
	}

	metrics.RecordFreshnessCheck("stale")
	return true, nil
}

// MarkRefreshed records a successful fetch by storing the fetched payload
// as the period's snapshot row (concurrent refreshers converge on the row
// that won). The snapshot's fetched_at is the freshness cursor
// ShouldRefresh reads, so the cursor only ever advances together with the
// data it guards.
func (g *Guard) MarkRefreshed(ctx context.Context, ticker string, payload json.RawMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Guard.MarkRefreshed")
	defer span.End()

	_, err := g.snapshots.Append(ctx, ticker, models.SnapshotKindSubmissions, payload)
	return err
}

// AcquireRefreshLock takes a short-lived distributed lock for the ticker.
// Returns nil lock when locking is disabled or the lock is unavailable
// elsewhere in the cluster; callers proceed regardless since refreshes
// are idempotent. Only ErrLockNotAcquired is reported as notAcquired.
func (g *Guard) AcquireRefreshLock(ctx context.Context, ticker string) (AdvisoryLock, bool) {
	if g.locker == nil {
		return nil, false
	}

	lock, err := g.locker.Acquire(ctx, "refresh:"+ticker, g.ttl/2)
	if err != nil {
		if err == redis.ErrLockNotAcquired {
			return nil, true
		}
		// lock backend trouble never blocks a refresh
		g.logger.WithContext(ctx).WithError(err).Warnf("Failed to acquire refresh lock for %s", ticker)
		return nil, false
	}

	return lock, false
}
