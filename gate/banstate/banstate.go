// Process-wide cache of banned subjects, kept consistent with durable storage.
//
// Writes go to storage first and only then to the cache. Reads from the cache never touch storage. The cache starts empty (cold) at process start and is backfilled lazily: until a subject has been observed once, a cache miss is not authoritative and storage must be consulted via Reconcile.
//
// Concurrent reconciles of the same subject may query storage twice and backfill twice; both writes are idempotent.
package banstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/moskvenov/replyer/models"
	"github.com/moskvenov/replyer/store"
)

type BanState struct {
	Store  store.Store
	Logger *slog.Logger

	banned *xsync.MapOf[int64, struct{}]
}

func NewBanState(st store.Store, logger *slog.Logger) *BanState {
	if logger == nil {
		logger = slog.Default()
	}
	return &BanState{
		Store:  st,
		Logger: logger,
		banned: xsync.NewMapOf[int64, struct{}](),
	}
}

// Persists the ban, then caches it. The cache is untouched if the storage write fails.
func (b *BanState) MarkBanned(ctx context.Context, subjectID int64) error {
	if err := b.Store.UpsertBan(ctx, subjectID, true); err != nil {
		return fmt.Errorf("banning subject %d: %w", subjectID, err)
	}
	b.banned.Store(subjectID, struct{}{})
	banCacheSize.Set(float64(b.banned.Size()))
	b.Logger.Info("subject banned", "subject", subjectID)
	return nil
}

// Clears the ban in storage, then drops it from the cache.
func (b *BanState) MarkUnbanned(ctx context.Context, subjectID int64) error {
	if err := b.Store.UpsertBan(ctx, subjectID, false); err != nil {
		return fmt.Errorf("unbanning subject %d: %w", subjectID, err)
	}
	b.banned.Delete(subjectID)
	banCacheSize.Set(float64(b.banned.Size()))
	b.Logger.Info("subject unbanned", "subject", subjectID)
	return nil
}

func (b *BanState) IsBannedCached(subjectID int64) bool {
	_, ok := b.banned.Load(subjectID)
	return ok
}

// Looks the subject up in storage and backfills the cache if banned there.
func (b *BanState) Reconcile(ctx context.Context, subjectID int64) (bool, error) {
	rec, err := b.ReconcileRecord(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.IsBanned, nil
}

// Same as Reconcile, but hands back the stored record (nil if the subject is unknown) so callers can check other moderation fields without a second query.
func (b *BanState) ReconcileRecord(ctx context.Context, subjectID int64) (*models.ModerationRecord, error) {
	banCacheReconciles.Inc()
	rec, err := b.Store.GetRecord(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconciling ban state for subject %d: %w", subjectID, err)
	}
	if rec.IsBanned {
		if _, loaded := b.banned.LoadOrStore(subjectID, struct{}{}); !loaded {
			banCacheBackfills.Inc()
			banCacheSize.Set(float64(b.banned.Size()))
			b.Logger.Debug("backfilled ban cache from storage", "subject", subjectID)
		}
	}
	return rec, nil
}

// Number of subjects currently cached as banned.
func (b *BanState) Len() int {
	return b.banned.Size()
}
