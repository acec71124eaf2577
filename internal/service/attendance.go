package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/amhar4u/Smart-LMS-sub001/internal/config"
	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
	"github.com/amhar4u/Smart-LMS-sub001/internal/store"
)

// AttendanceService is the attendance session engine: it consumes join/leave
// signals, maintains the per-(meeting, student) session state machine and
// persists through the attendance store. Every mutation is a single atomic
// read-modify-write, so a storage failure never leaves a record half-updated.
type AttendanceService struct {
	store    store.AttendanceStore
	meetings MeetingInfo
	cfg      *config.Config
	log      *zap.Logger
	now      func() time.Time
}

// NewAttendanceService creates the attendance engine.
func NewAttendanceService(st store.AttendanceStore, meetings MeetingInfo, cfg *config.Config, log *zap.Logger) *AttendanceService {
	return &AttendanceService{store: st, meetings: meetings, cfg: cfg, log: log, now: time.Now}
}

// RecordJoin handles a join signal. The first join freezes lateness against
// the scheduled start plus grace period; every later join appends a new
// session. A join received while a session is still open closes that session
// at the new join time first, so at most one interval is ever open and the
// session count still equals the number of joins received.
func (s *AttendanceService) RecordJoin(ctx context.Context, meetingID, studentID, studentName string) (*model.MeetingAttendance, error) {
	times, err := s.meetings.Times(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if times.EndedAt != nil {
		return nil, errs.ErrMeetingEnded
	}
	now := s.now().UTC()

	rec, err := s.store.Mutate(ctx, meetingID, studentID, func(rec *model.MeetingAttendance) error {
		if studentName != "" {
			rec.StudentName = studentName
		}
		if open := rec.Sessions.Open(); open >= 0 {
			t := now
			rec.Sessions[open].LeaveTime = &t
			rec.LastLeaveTime = &t
		}
		rec.Sessions = append(rec.Sessions, model.SessionInterval{JoinTime: now})
		if rec.FirstJoinTime == nil {
			t := now
			rec.FirstJoinTime = &t
			if !times.ScheduledStart.IsZero() {
				rec.IsLate = now.After(times.ScheduledStart.Add(s.cfg.LateGracePeriod))
			}
		}
		rec.RejoinCount = len(rec.Sessions) - 1
		rec.IsPresent = true
		rec.TotalDuration = closedDuration(rec.Sessions)
		rec.Status = s.deriveStatus(rec, times, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("student joined",
		zap.String("meeting_id", meetingID),
		zap.String("student_id", studentID),
		zap.Int("session_count", len(rec.Sessions)),
		zap.Bool("is_late", rec.IsLate))
	return rec, nil
}

// RecordLeave handles a leave signal. A leave with no open session returns
// ErrNoOpenSession; callers treat it as a no-op since network drops can
// duplicate leave signals.
func (s *AttendanceService) RecordLeave(ctx context.Context, meetingID, studentID string) (*model.MeetingAttendance, error) {
	times, err := s.meetings.Times(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	rec, err := s.store.Mutate(ctx, meetingID, studentID, func(rec *model.MeetingAttendance) error {
		open := rec.Sessions.Open()
		if open < 0 {
			return errs.ErrNoOpenSession
		}
		t := now
		rec.Sessions[open].LeaveTime = &t
		rec.LastLeaveTime = &t
		rec.IsPresent = false
		rec.TotalDuration = closedDuration(rec.Sessions)
		if times.Started() {
			rec.AttendancePct = percentage(rec.TotalDuration, times.Elapsed(now))
		}
		rec.Status = s.deriveStatus(rec, times, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("student left",
		zap.String("meeting_id", meetingID),
		zap.String("student_id", studentID),
		zap.Float64("total_duration_sec", rec.TotalDuration),
		zap.Float64("attendance_pct", rec.AttendancePct))
	return rec, nil
}

// FinalizeMeeting closes every still-open session at the meeting end time and
// recomputes percentages and statuses against the final elapsed duration.
// Invoked by MeetingService.End; also the path that unsticks records whose
// clients vanished without a leave.
func (s *AttendanceService) FinalizeMeeting(ctx context.Context, meetingID string, endedAt time.Time) error {
	times, err := s.meetings.Times(ctx, meetingID)
	if err != nil {
		return err
	}
	recs, err := s.store.ListByMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	for i := range recs {
		studentID := recs[i].StudentID
		_, err := s.store.Mutate(ctx, meetingID, studentID, func(rec *model.MeetingAttendance) error {
			if open := rec.Sessions.Open(); open >= 0 {
				t := endedAt
				rec.Sessions[open].LeaveTime = &t
				rec.LastLeaveTime = &t
				rec.IsPresent = false
			}
			rec.TotalDuration = closedDuration(rec.Sessions)
			if times.Started() {
				rec.AttendancePct = percentage(rec.TotalDuration, times.Elapsed(endedAt))
			}
			rec.Status = s.deriveStatus(rec, times, endedAt)
			return nil
		})
		if err != nil {
			s.log.Error("finalize record failed",
				zap.String("meeting_id", meetingID),
				zap.String("student_id", studentID),
				zap.Error(err))
		}
	}
	return nil
}

// Report builds the attendance-data reply: per-student views with live
// totals (open sessions measured up to now) plus meeting statistics.
func (s *AttendanceService) Report(ctx context.Context, meetingID string) (*model.AttendanceData, error) {
	times, err := s.meetings.Times(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.ListByMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	data := &model.AttendanceData{MeetingID: meetingID, Timestamp: now}
	var pctSum float64
	for i := range recs {
		view := s.view(&recs[i], times, now)
		data.Attendances = append(data.Attendances, view)
		data.Statistics.TotalStudents++
		if view.IsCurrentlyPresent {
			data.Statistics.CurrentlyPresent++
		}
		if view.IsLate {
			data.Statistics.LateCount++
		}
		if view.Status == string(model.AttendancePartial) {
			data.Statistics.PartialCount++
		}
		pctSum += view.AttendancePercentage
	}
	if data.Statistics.TotalStudents > 0 {
		data.Statistics.AveragePercentage = pctSum / float64(data.Statistics.TotalStudents)
	}
	return data, nil
}

// view builds the live API view of a record; open sessions contribute elapsed
// time up to now.
func (s *AttendanceService) view(rec *model.MeetingAttendance, times MeetingTimes, now time.Time) model.AttendanceView {
	total := liveDuration(rec.Sessions, now)
	pct := rec.AttendancePct
	if times.Started() {
		pct = percentage(total, times.Elapsed(now))
	}
	return model.AttendanceView{
		StudentID:            rec.StudentID,
		StudentName:          rec.StudentName,
		Sessions:             rec.Sessions,
		FirstJoinTime:        rec.FirstJoinTime,
		LastLeaveTime:        rec.LastLeaveTime,
		RejoinCount:          rec.RejoinCount,
		IsCurrentlyPresent:   rec.IsPresent,
		IsLate:               rec.IsLate,
		TotalDuration:        total,
		AttendancePercentage: pct,
		Status:               rec.Status,
	}
}

// deriveStatus derives the record status. Order matters: absent until first
// join, lateness is frozen and wins, partial only once a percentage against a
// started meeting is known.
func (s *AttendanceService) deriveStatus(rec *model.MeetingAttendance, times MeetingTimes, now time.Time) string {
	if rec.FirstJoinTime == nil {
		return string(model.AttendanceAbsent)
	}
	if rec.IsLate {
		return string(model.AttendanceLate)
	}
	if times.Started() && !rec.IsPresent && rec.AttendancePct < s.cfg.PartialAttendanceCutoff {
		return string(model.AttendancePartial)
	}
	return string(model.AttendancePresent)
}

// closedDuration sums closed intervals, in seconds.
func closedDuration(sessions model.SessionList) float64 {
	var total time.Duration
	for _, sess := range sessions {
		if sess.Closed() {
			total += sess.LeaveTime.Sub(sess.JoinTime)
		}
	}
	return total.Seconds()
}

// liveDuration sums all intervals, measuring an open interval up to now.
func liveDuration(sessions model.SessionList, now time.Time) float64 {
	var total time.Duration
	for _, sess := range sessions {
		total += sess.Duration(now)
	}
	return total.Seconds()
}

// percentage returns attended/elapsed as a percent clamped to [0,100].
func percentage(attendedSec float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	pct := attendedSec / elapsed.Seconds() * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
