package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
)

// SampleStore persists emotion samples. Samples are immutable once written;
// the only reads the aggregator needs are trailing-window scans per meeting.
type SampleStore interface {
	Insert(ctx context.Context, sample *model.EmotionSample) error
	ListSince(ctx context.Context, meetingID string, since time.Time) ([]model.EmotionSample, error)
}

// GormSampleStore is the Postgres-backed SampleStore.
type GormSampleStore struct {
	db *gorm.DB
}

// NewSampleStore creates a Postgres-backed sample store.
func NewSampleStore(db *gorm.DB) *GormSampleStore {
	return &GormSampleStore{db: db}
}

// Insert appends one sample.
func (s *GormSampleStore) Insert(ctx context.Context, sample *model.EmotionSample) error {
	return s.db.WithContext(ctx).Create(sample).Error
}

// ListSince returns all samples for a meeting recorded at or after since,
// oldest first.
func (s *GormSampleStore) ListSince(ctx context.Context, meetingID string, since time.Time) ([]model.EmotionSample, error) {
	var samples []model.EmotionSample
	err := s.db.WithContext(ctx).
		Where("meeting_id = ? AND recorded_at >= ?", meetingID, since).
		Order("recorded_at ASC").
		Find(&samples).Error
	return samples, err
}
