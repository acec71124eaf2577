package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
)

// MemoryAttendanceStore is a map-backed AttendanceStore for dev and tests.
type MemoryAttendanceStore struct {
	mu    sync.Mutex
	locks keyLocks
	recs  map[string]*model.MeetingAttendance // meetingID + "\x00" + studentID
}

// NewMemoryAttendanceStore creates an in-memory attendance store.
func NewMemoryAttendanceStore() *MemoryAttendanceStore {
	return &MemoryAttendanceStore{recs: make(map[string]*model.MeetingAttendance)}
}

func memKey(meetingID, studentID string) string {
	return meetingID + "\x00" + studentID
}

// Mutate implements AttendanceStore with the same per-key serialization as
// the Postgres store.
func (s *MemoryAttendanceStore) Mutate(ctx context.Context, meetingID, studentID string, fn func(*model.MeetingAttendance) error) (*model.MeetingAttendance, error) {
	mu := s.locks.lock(meetingID, studentID)
	defer mu.Unlock()

	key := memKey(meetingID, studentID)
	s.mu.Lock()
	stored, ok := s.recs[key]
	var rec model.MeetingAttendance
	if ok {
		rec = cloneRecord(stored)
	} else {
		rec = model.MeetingAttendance{
			ID:        uuid.New().String(),
			MeetingID: meetingID,
			StudentID: studentID,
			Sessions:  model.SessionList{},
			Status:    string(model.AttendanceAbsent),
		}
	}
	s.mu.Unlock()

	if err := fn(&rec); err != nil {
		return nil, err
	}

	saved := cloneRecord(&rec)
	s.mu.Lock()
	s.recs[key] = &saved
	s.mu.Unlock()

	out := cloneRecord(&saved)
	return &out, nil
}

// Get implements AttendanceStore.
func (s *MemoryAttendanceStore) Get(ctx context.Context, meetingID, studentID string) (*model.MeetingAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[memKey(meetingID, studentID)]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

// ListByMeeting implements AttendanceStore.
func (s *MemoryAttendanceStore) ListByMeeting(ctx context.Context, meetingID string) ([]model.MeetingAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MeetingAttendance
	for _, rec := range s.recs {
		if rec.MeetingID == meetingID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func cloneRecord(rec *model.MeetingAttendance) model.MeetingAttendance {
	out := *rec
	out.Sessions = make(model.SessionList, len(rec.Sessions))
	copy(out.Sessions, rec.Sessions)
	for i := range out.Sessions {
		if lt := rec.Sessions[i].LeaveTime; lt != nil {
			t := *lt
			out.Sessions[i].LeaveTime = &t
		}
	}
	return out
}

// MemorySampleStore is a slice-backed SampleStore for dev and tests.
type MemorySampleStore struct {
	mu      sync.RWMutex
	samples []model.EmotionSample
}

// NewMemorySampleStore creates an in-memory sample store.
func NewMemorySampleStore() *MemorySampleStore {
	return &MemorySampleStore{}
}

// Insert implements SampleStore.
func (s *MemorySampleStore) Insert(ctx context.Context, sample *model.EmotionSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	s.samples = append(s.samples, *sample)
	return nil
}

// ListSince implements SampleStore; returns samples oldest first.
func (s *MemorySampleStore) ListSince(ctx context.Context, meetingID string, since time.Time) ([]model.EmotionSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.EmotionSample
	for _, sm := range s.samples {
		if sm.MeetingID == meetingID && !sm.RecordedAt.Before(since) {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}
