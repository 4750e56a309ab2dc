package models

import (
	"time"
)

// Durable moderation state for a single subject (end user). One row per subject, created on first interaction and never deleted.
type ModerationRecord struct {
	SubjectID int64 `gorm:"primaryKey;autoIncrement:false"`
	FirstName string
	Username  *string
	IsBanned  bool       `gorm:"not null;default:false;index"`
	MuteUntil *time.Time `gorm:"index"`
	JoinedAt  time.Time  `gorm:"not null;index"`
	UpdatedAt time.Time
}

// A mute is active iff MuteUntil is set and strictly after now.
func (r *ModerationRecord) MuteActive(now time.Time) bool {
	return r.MuteUntil != nil && r.MuteUntil.After(now)
}

// Remaining mute time at now; zero if the mute is not active.
func (r *ModerationRecord) MuteRemaining(now time.Time) time.Duration {
	if !r.MuteActive(now) {
		return 0
	}
	return r.MuteUntil.Sub(now)
}

// Status summarizes the record for administrator views. Ban takes precedence over mute.
func (r *ModerationRecord) Status(now time.Time) string {
	switch {
	case r.IsBanned:
		return "banned"
	case r.MuteActive(now):
		return "muted"
	default:
		return "active"
	}
}

// Aggregate counts over all moderation records.
type ModerationStats struct {
	Total     int64
	Banned    int64
	Muted     int64
	NewDay    int64
	NewWeek   int64
	Generated time.Time
}
