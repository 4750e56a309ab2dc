package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/moskvenov/replyer/models"
)

// Store backed by a SQL database (sqlite or postgres) through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// Wraps db and migrates the moderation_records table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.ModerationRecord{}); err != nil {
		return nil, fmt.Errorf("migrating moderation records: %w", err)
	}
	return &GormStore{db: db}, nil
}

// timestamps are always written and compared in UTC, so that sqlite text comparison orders correctly
func normTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (s *GormStore) GetRecord(ctx context.Context, subjectID int64) (*models.ModerationRecord, error) {
	var rec models.ModerationRecord
	err := s.db.WithContext(ctx).Where("subject_id = ?", subjectID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading moderation record: %w", err)
	}
	return &rec, nil
}

func (s *GormStore) EnsureRecord(ctx context.Context, subjectID int64, firstName string, username *string) (*models.ModerationRecord, error) {
	now := normTime(time.Now())
	var rec models.ModerationRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		create := models.ModerationRecord{
			SubjectID: subjectID,
			FirstName: firstName,
			Username:  username,
			JoinedAt:  now,
			UpdatedAt: now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"first_name": firstName,
				"username":   username,
				"updated_at": now,
			}),
		}).Create(&create).Error
		if err != nil {
			return err
		}
		return tx.Where("subject_id = ?", subjectID).Take(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring moderation record: %w", err)
	}
	return &rec, nil
}

func (s *GormStore) UpsertBan(ctx context.Context, subjectID int64, banned bool) error {
	now := normTime(time.Now())
	create := models.ModerationRecord{
		SubjectID: subjectID,
		IsBanned:  banned,
		JoinedAt:  now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subject_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_banned":  banned,
			"updated_at": now,
		}),
	}).Create(&create).Error
	if err != nil {
		return fmt.Errorf("persisting ban flag: %w", err)
	}
	return nil
}

func (s *GormStore) UpsertMute(ctx context.Context, subjectID int64, until *time.Time) error {
	now := normTime(time.Now())
	create := models.ModerationRecord{
		SubjectID: subjectID,
		JoinedAt:  now,
		UpdatedAt: now,
	}
	var muteVal interface{} = gorm.Expr("NULL")
	if until != nil {
		u := normTime(*until)
		create.MuteUntil = &u
		muteVal = u
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subject_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"mute_until": muteVal,
			"updated_at": now,
		}),
	}).Create(&create).Error
	if err != nil {
		return fmt.Errorf("persisting mute: %w", err)
	}
	return nil
}

func (s *GormStore) ListExpiredMutes(ctx context.Context, now time.Time) ([]models.ModerationRecord, error) {
	var recs []models.ModerationRecord
	err := s.db.WithContext(ctx).
		Where("mute_until IS NOT NULL AND mute_until < ?", normTime(now)).
		Order("subject_id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing expired mutes: %w", err)
	}
	return recs, nil
}

func (s *GormStore) ClearMutes(ctx context.Context, subjectIDs []int64, now time.Time) (int64, error) {
	if len(subjectIDs) == 0 {
		return 0, nil
	}
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ModerationRecord{}).
			Where("subject_id IN ? AND mute_until < ?", subjectIDs, normTime(now)).
			Updates(map[string]interface{}{
				"mute_until": gorm.Expr("NULL"),
				"updated_at": normTime(time.Now()),
			})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clearing expired mutes: %w", err)
	}
	return affected, nil
}

func (s *GormStore) Stats(ctx context.Context, now time.Time) (*models.ModerationStats, error) {
	now = normTime(now)
	st := &models.ModerationStats{Generated: now}
	db := s.db.WithContext(ctx).Model(&models.ModerationRecord{})
	counts := []struct {
		dst   *int64
		query string
		args  []interface{}
	}{
		{&st.Total, "1 = 1", nil},
		{&st.Banned, "is_banned = ?", []interface{}{true}},
		{&st.Muted, "mute_until IS NOT NULL AND mute_until > ?", []interface{}{now}},
		{&st.NewDay, "joined_at >= ?", []interface{}{now.Add(-24 * time.Hour)}},
		{&st.NewWeek, "joined_at >= ?", []interface{}{now.Add(-7 * 24 * time.Hour)}},
	}
	for _, c := range counts {
		if err := db.Session(&gorm.Session{}).Where(c.query, c.args...).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("counting moderation records: %w", err)
		}
	}
	return st, nil
}
