package store

import (
	"context"
	"errors"
	"time"

	"github.com/moskvenov/replyer/models"
)

var ErrNotFound = errors.New("moderation record not found")

// Durable moderation state. Each method is one short storage operation; implementations must be safe for concurrent use.
type Store interface {
	// Returns ErrNotFound if the subject has never been recorded.
	GetRecord(ctx context.Context, subjectID int64) (*models.ModerationRecord, error)
	// Creates the record on first interaction, refreshing display fields otherwise. Moderation fields are never touched.
	EnsureRecord(ctx context.Context, subjectID int64, firstName string, username *string) (*models.ModerationRecord, error)
	// Creates the record if missing.
	UpsertBan(ctx context.Context, subjectID int64, banned bool) error
	// Creates the record if missing. A nil until clears the mute.
	UpsertMute(ctx context.Context, subjectID int64, until *time.Time) error
	// Records with a mute_until strictly before now.
	ListExpiredMutes(ctx context.Context, now time.Time) ([]models.ModerationRecord, error)
	// Clears mute_until for the given subjects in a single write, skipping any whose mute is no longer expired at now. Returns the number of rows changed.
	ClearMutes(ctx context.Context, subjectIDs []int64, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (*models.ModerationStats, error)
}
