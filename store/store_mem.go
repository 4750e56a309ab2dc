package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/moskvenov/replyer/models"
)

// In-process Store, for tests and throwaway deployments. Counts storage round-trips so callers can assert on cache behavior.
type MemStore struct {
	mu      sync.Mutex
	records map[int64]models.ModerationRecord
	now     func() time.Time

	Reads  int
	Writes int
	// When set, every method returns this error.
	FailWith error
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[int64]models.ModerationRecord),
		now:     time.Now,
	}
}

func (s *MemStore) ReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Reads
}

func (s *MemStore) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Writes
}

func (s *MemStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailWith = err
}

func (s *MemStore) GetRecord(ctx context.Context, subjectID int64) (*models.ModerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.Reads++
	rec, ok := s.records[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemStore) EnsureRecord(ctx context.Context, subjectID int64, firstName string, username *string) (*models.ModerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.Writes++
	rec := s.getOrInit(subjectID)
	rec.FirstName = firstName
	rec.Username = copyString(username)
	s.records[subjectID] = rec
	return copyRecord(rec), nil
}

func (s *MemStore) UpsertBan(ctx context.Context, subjectID int64, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.Writes++
	rec := s.getOrInit(subjectID)
	rec.IsBanned = banned
	s.records[subjectID] = rec
	return nil
}

func (s *MemStore) UpsertMute(ctx context.Context, subjectID int64, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.Writes++
	rec := s.getOrInit(subjectID)
	rec.MuteUntil = copyTime(until)
	s.records[subjectID] = rec
	return nil
}

func (s *MemStore) ListExpiredMutes(ctx context.Context, now time.Time) ([]models.ModerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.Reads++
	out := []models.ModerationRecord{}
	for _, rec := range s.records {
		if rec.MuteUntil != nil && rec.MuteUntil.Before(now) {
			out = append(out, *copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

func (s *MemStore) ClearMutes(ctx context.Context, subjectIDs []int64, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	if len(subjectIDs) == 0 {
		return 0, nil
	}
	s.Writes++
	var n int64
	for _, id := range subjectIDs {
		rec, ok := s.records[id]
		if !ok || rec.MuteUntil == nil || !rec.MuteUntil.Before(now) {
			continue
		}
		rec.MuteUntil = nil
		rec.UpdatedAt = s.now()
		s.records[id] = rec
		n++
	}
	return n, nil
}

func (s *MemStore) Stats(ctx context.Context, now time.Time) (*models.ModerationStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.Reads++
	st := &models.ModerationStats{Generated: now}
	for _, rec := range s.records {
		st.Total++
		if rec.IsBanned {
			st.Banned++
		}
		if rec.MuteActive(now) {
			st.Muted++
		}
		if !rec.JoinedAt.Before(now.Add(-24 * time.Hour)) {
			st.NewDay++
		}
		if !rec.JoinedAt.Before(now.Add(-7 * 24 * time.Hour)) {
			st.NewWeek++
		}
	}
	return st, nil
}

// caller must hold the lock
func (s *MemStore) getOrInit(subjectID int64) models.ModerationRecord {
	now := s.now()
	rec, ok := s.records[subjectID]
	if !ok {
		rec = models.ModerationRecord{
			SubjectID: subjectID,
			JoinedAt:  now,
		}
	}
	rec.UpdatedAt = now
	return rec
}

func copyRecord(rec models.ModerationRecord) *models.ModerationRecord {
	out := rec
	out.Username = copyString(rec.Username)
	out.MuteUntil = copyTime(rec.MuteUntil)
	return &out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
