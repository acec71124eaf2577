package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
)

// AttendanceStore persists per-(meeting, student) attendance records.
//
// Mutate is the only write path: load-or-create the record, apply the
// transition function, write the result back. The whole cycle is serialized
// per key, so callers never observe a partially applied transition.
type AttendanceStore interface {
	Mutate(ctx context.Context, meetingID, studentID string, fn func(*model.MeetingAttendance) error) (*model.MeetingAttendance, error)
	Get(ctx context.Context, meetingID, studentID string) (*model.MeetingAttendance, error)
	ListByMeeting(ctx context.Context, meetingID string) ([]model.MeetingAttendance, error)
}

// GormAttendanceStore is the Postgres-backed AttendanceStore.
type GormAttendanceStore struct {
	db    *gorm.DB
	locks keyLocks
}

// NewAttendanceStore creates a Postgres-backed attendance store.
func NewAttendanceStore(db *gorm.DB) *GormAttendanceStore {
	return &GormAttendanceStore{db: db}
}

// Mutate implements AttendanceStore.
func (s *GormAttendanceStore) Mutate(ctx context.Context, meetingID, studentID string, fn func(*model.MeetingAttendance) error) (*model.MeetingAttendance, error) {
	mu := s.locks.lock(meetingID, studentID)
	defer mu.Unlock()

	var rec model.MeetingAttendance
	err := s.db.WithContext(ctx).
		Where("meeting_id = ? AND student_id = ?", meetingID, studentID).
		First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = model.MeetingAttendance{
			ID:        uuid.New().String(),
			MeetingID: meetingID,
			StudentID: studentID,
			Sessions:  model.SessionList{},
			Status:    string(model.AttendanceAbsent),
		}
	case err != nil:
		return nil, fmt.Errorf("load attendance: %w", err)
	}

	if err := fn(&rec); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return nil, fmt.Errorf("save attendance: %w", err)
	}
	return &rec, nil
}

// Get returns the record for one (meeting, student) pair.
func (s *GormAttendanceStore) Get(ctx context.Context, meetingID, studentID string) (*model.MeetingAttendance, error) {
	var rec model.MeetingAttendance
	err := s.db.WithContext(ctx).
		Where("meeting_id = ? AND student_id = ?", meetingID, studentID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByMeeting returns all attendance records for a meeting.
func (s *GormAttendanceStore) ListByMeeting(ctx context.Context, meetingID string) ([]model.MeetingAttendance, error) {
	var recs []model.MeetingAttendance
	err := s.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("student_id ASC").
		Find(&recs).Error
	return recs, err
}
