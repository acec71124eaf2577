package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
)

// MeetingTimes carries the timing fields the attendance engine needs.
type MeetingTimes struct {
	ScheduledStart time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
}

// Started reports whether the meeting has a recorded start time.
func (t MeetingTimes) Started() bool { return t.StartedAt != nil }

// Elapsed returns meeting elapsed duration at now (or up to the recorded
// end). Zero when the meeting has not started.
func (t MeetingTimes) Elapsed(now time.Time) time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := now
	if t.EndedAt != nil {
		end = *t.EndedAt
	}
	if end.Before(*t.StartedAt) {
		return 0
	}
	return end.Sub(*t.StartedAt)
}

// MeetingInfo resolves meeting timing for the attendance engine.
type MeetingInfo interface {
	Times(ctx context.Context, meetingID string) (MeetingTimes, error)
}

// AttendanceFinalizer closes open sessions and recomputes percentages when a
// meeting ends. Implemented by AttendanceService; set after construction to
// keep the wiring acyclic.
type AttendanceFinalizer interface {
	FinalizeMeeting(ctx context.Context, meetingID string, endedAt time.Time) error
}

// MeetingService manages the live-session lifecycle. The wider LMS owns the
// full meeting record; this service owns only the scheduled/started/ended
// transitions the presence pipeline depends on.
type MeetingService struct {
	db        *gorm.DB
	hub       *MeetingHub
	log       *zap.Logger
	finalizer AttendanceFinalizer
}

// NewMeetingService creates a meeting service.
func NewMeetingService(db *gorm.DB, hub *MeetingHub, log *zap.Logger) *MeetingService {
	return &MeetingService{db: db, hub: hub, log: log}
}

// SetFinalizer sets the attendance finalizer invoked on End.
func (s *MeetingService) SetFinalizer(f AttendanceFinalizer) { s.finalizer = f }

// Create creates a scheduled meeting.
func (s *MeetingService) Create(ctx context.Context, title string, scheduledStart time.Time) (*model.Meeting, error) {
	ent := &model.Meeting{
		ID:             uuid.New().String(),
		Title:          title,
		ScheduledStart: scheduledStart.UTC(),
		Status:         string(model.MeetingStatusScheduled),
	}
	if err := s.db.WithContext(ctx).Create(ent).Error; err != nil {
		return nil, err
	}
	return ent, nil
}

// Get returns a meeting by ID.
func (s *MeetingService) Get(ctx context.Context, meetingID string) (*model.Meeting, error) {
	var ent model.Meeting
	if err := s.db.WithContext(ctx).Where("id = ?", meetingID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrMeetingNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// Start marks the meeting live and records the start time. Starting an
// already-live meeting is a no-op.
func (s *MeetingService) Start(ctx context.Context, meetingID string) (*model.Meeting, error) {
	ent, err := s.Get(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if ent.EndedAt != nil {
		return nil, errs.ErrMeetingEnded
	}
	if ent.StartedAt != nil {
		return ent, nil
	}
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(ent).Updates(map[string]interface{}{
		"started_at": now,
		"status":     string(model.MeetingStatusLive),
	}).Error; err != nil {
		return nil, err
	}
	ent.StartedAt = &now
	ent.Status = string(model.MeetingStatusLive)
	s.log.Info("meeting started", zap.String("meeting_id", meetingID))
	return ent, nil
}

// End marks the meeting ended, finalizes attendance records and closes the
// meeting room on the hub.
func (s *MeetingService) End(ctx context.Context, meetingID string) (*model.Meeting, error) {
	ent, err := s.Get(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if ent.EndedAt != nil {
		return nil, errs.ErrMeetingEnded
	}
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(ent).Updates(map[string]interface{}{
		"ended_at": now,
		"status":   string(model.MeetingStatusEnded),
	}).Error; err != nil {
		return nil, err
	}
	ent.EndedAt = &now
	ent.Status = string(model.MeetingStatusEnded)

	if s.finalizer != nil {
		if err := s.finalizer.FinalizeMeeting(ctx, meetingID, now); err != nil {
			s.log.Error("finalize attendance failed",
				zap.String("meeting_id", meetingID), zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.CloseMeetingRoom(meetingID)
	}
	s.log.Info("meeting ended", zap.String("meeting_id", meetingID))
	return ent, nil
}

// Times implements MeetingInfo.
func (s *MeetingService) Times(ctx context.Context, meetingID string) (MeetingTimes, error) {
	ent, err := s.Get(ctx, meetingID)
	if err != nil {
		return MeetingTimes{}, err
	}
	return MeetingTimes{
		ScheduledStart: ent.ScheduledStart,
		StartedAt:      ent.StartedAt,
		EndedAt:        ent.EndedAt,
	}, nil
}

// View converts a meeting entity to its API view.
func View(ent *model.Meeting) model.MeetingView {
	return model.MeetingView{
		ID:             ent.ID,
		Title:          ent.Title,
		ScheduledStart: ent.ScheduledStart,
		StartedAt:      ent.StartedAt,
		EndedAt:        ent.EndedAt,
		Status:         ent.Status,
	}
}
