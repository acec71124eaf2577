package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amhar4u/Smart-LMS-sub001/internal/config"
	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/store"
)

type fakeMeetingInfo struct {
	times MeetingTimes
	err   error
}

func (f *fakeMeetingInfo) Times(ctx context.Context, meetingID string) (MeetingTimes, error) {
	return f.times, f.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() *config.Config {
	return &config.Config{
		LateGracePeriod:         5 * time.Minute,
		EngagementWindow:        2 * time.Minute,
		AlertWindow:             5 * time.Minute,
		EngagedThreshold:        0.7,
		NegativeThreshold:       0.5,
		NegativeHighThreshold:   0.7,
		LowAttentivenessCeiling: 0.5,
		AlertMinOccurrences:     2,
		PartialAttendanceCutoff: 50,
	}
}

var baseTime = time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)

// newAttendanceFixture builds the engine over the in-memory store with a
// meeting scheduled and started at baseTime.
func newAttendanceFixture(t *testing.T) (*AttendanceService, *fakeMeetingInfo, *fakeClock) {
	t.Helper()
	started := baseTime
	info := &fakeMeetingInfo{times: MeetingTimes{
		ScheduledStart: baseTime,
		StartedAt:      &started,
	}}
	svc := NewAttendanceService(store.NewMemoryAttendanceStore(), info, testConfig(), zap.NewNop())
	clock := &fakeClock{t: baseTime}
	svc.now = clock.Now
	return svc, info, clock
}

func TestRecordJoinFirstJoinOnTime(t *testing.T) {
	svc, _, _ := newAttendanceFixture(t)

	rec, err := svc.RecordJoin(context.Background(), "m1", "s1", "Asha")
	require.NoError(t, err)
	require.False(t, rec.IsLate)
	require.True(t, rec.IsPresent)
	require.Equal(t, 1, len(rec.Sessions))
	require.Equal(t, 0, rec.RejoinCount)
	require.Equal(t, "present", rec.Status)
	require.NotNil(t, rec.FirstJoinTime)
	require.Equal(t, baseTime, *rec.FirstJoinTime)
}

func TestRecordJoinLateAfterGrace(t *testing.T) {
	svc, _, clock := newAttendanceFixture(t)
	clock.Advance(400 * time.Second) // grace is 300s

	rec, err := svc.RecordJoin(context.Background(), "m1", "s1", "Asha")
	require.NoError(t, err)
	require.True(t, rec.IsLate)
	require.Equal(t, "late", rec.Status)
}

func TestLatenessFrozenAcrossRejoins(t *testing.T) {
	svc, _, clock := newAttendanceFixture(t)
	ctx := context.Background()
	clock.Advance(400 * time.Second)

	rec, err := svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)
	require.True(t, rec.IsLate)

	clock.Advance(time.Minute)
	_, err = svc.RecordLeave(ctx, "m1", "s1")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	rec, err = svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)
	require.True(t, rec.IsLate, "lateness must never change after first join")
	require.Equal(t, 1, rec.RejoinCount)
}

func TestFullSessionScenario(t *testing.T) {
	// Join at t=0, leave at t=600s with meeting elapsed 600s: full marks.
	svc, _, clock := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)

	clock.Advance(600 * time.Second)
	rec, err := svc.RecordLeave(ctx, "m1", "s1")
	require.NoError(t, err)
	require.False(t, rec.IsPresent)
	require.InDelta(t, 600, rec.TotalDuration, 0.001)
	require.InDelta(t, 100, rec.AttendancePct, 0.001)
	require.Equal(t, "present", rec.Status)
	require.NotNil(t, rec.LastLeaveTime)
}

func TestPartialDowngradeOnLeave(t *testing.T) {
	svc, _, clock := newAttendanceFixture(t)
	ctx := context.Background()

	// Joins 100s in (within grace), attends 50s of 150s elapsed: ~33%.
	clock.Advance(100 * time.Second)
	_, err := svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)

	clock.Advance(50 * time.Second)
	rec, err := svc.RecordLeave(ctx, "m1", "s1")
	require.NoError(t, err)
	require.Less(t, rec.AttendancePct, 50.0)
	require.Equal(t, "partial", rec.Status)
}

func TestLeaveWithoutOpenSessionIsSentinel(t *testing.T) {
	svc, _, _ := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := svc.RecordLeave(ctx, "m1", "s1")
	require.ErrorIs(t, err, errs.ErrNoOpenSession)

	_, err = svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)
	_, err = svc.RecordLeave(ctx, "m1", "s1")
	require.NoError(t, err)

	// duplicate leave after close
	_, err = svc.RecordLeave(ctx, "m1", "s1")
	require.ErrorIs(t, err, errs.ErrNoOpenSession)
}

func TestSessionCountMatchesJoins(t *testing.T) {
	// For any join/leave sequence: closed sessions + (1 if present) == joins,
	// and rejoinCount == joins-1.
	svc, _, clock := newAttendanceFixture(t)
	ctx := context.Background()

	sequences := []struct {
		name  string
		steps string // j = join, l = leave
		joins int
	}{
		{name: "single join", steps: "j", joins: 1},
		{name: "join leave", steps: "jl", joins: 1},
		{name: "rejoin twice", steps: "jljlj", joins: 3},
		{name: "duplicate joins", steps: "jjj", joins: 3},
		{name: "leave noise", steps: "jllj", joins: 2},
	}
	for _, tt := range sequences {
		t.Run(tt.name, func(t *testing.T) {
			studentID := "student-" + tt.name
			for _, step := range tt.steps {
				clock.Advance(time.Second)
				switch step {
				case 'j':
					_, err := svc.RecordJoin(ctx, "m1", studentID, "")
					require.NoError(t, err)
				case 'l':
					_, err := svc.RecordLeave(ctx, "m1", studentID)
					if err != nil {
						require.ErrorIs(t, err, errs.ErrNoOpenSession)
					}
				}
			}
			rec, err := svc.store.Get(ctx, "m1", studentID)
			require.NoError(t, err)

			closed := 0
			open := 0
			for _, sess := range rec.Sessions {
				if sess.Closed() {
					closed++
				} else {
					open++
				}
			}
			require.LessOrEqual(t, open, 1, "at most one open session")
			require.Equal(t, tt.joins, closed+open)
			require.Equal(t, tt.joins-1, rec.RejoinCount)
			require.Equal(t, open == 1, rec.IsPresent)
		})
	}
}

func TestDuplicateJoinClosesStaleSession(t *testing.T) {
	// A second join while a session is still open (dead socket) closes the
	// stale interval at the new join time; LastLeaveTime tracks that close so
	// it always matches the latest closed interval.
	svc, _, clock := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)

	clock.Advance(120 * time.Second)
	rejoin := clock.Now()
	rec, err := svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)

	require.Len(t, rec.Sessions, 2)
	require.True(t, rec.Sessions[0].Closed())
	require.Equal(t, rejoin, *rec.Sessions[0].LeaveTime)
	require.NotNil(t, rec.LastLeaveTime)
	require.Equal(t, rejoin, *rec.LastLeaveTime)
	require.True(t, rec.IsPresent)
}

func TestTotalDurationMonotonic(t *testing.T) {
	svc, _, clock := newAttendanceFixture(t)
	ctx := context.Background()

	var last float64
	for i := 0; i < 4; i++ {
		clock.Advance(10 * time.Second)
		_, err := svc.RecordJoin(ctx, "m1", "s1", "")
		require.NoError(t, err)
		clock.Advance(time.Duration(i*7+3) * time.Second)
		rec, err := svc.RecordLeave(ctx, "m1", "s1")
		require.NoError(t, err)
		require.GreaterOrEqual(t, rec.TotalDuration, last)
		last = rec.TotalDuration
	}
}

func TestJoinRejectedAfterMeetingEnded(t *testing.T) {
	svc, info, clock := newAttendanceFixture(t)
	ended := baseTime.Add(time.Hour)
	info.times.EndedAt = &ended
	clock.Advance(2 * time.Hour)

	_, err := svc.RecordJoin(context.Background(), "m1", "s1", "Asha")
	require.ErrorIs(t, err, errs.ErrMeetingEnded)
}

func TestJoinUnknownMeeting(t *testing.T) {
	svc, info, _ := newAttendanceFixture(t)
	info.err = errs.ErrMeetingNotFound

	_, err := svc.RecordJoin(context.Background(), "missing", "s1", "Asha")
	require.ErrorIs(t, err, errs.ErrMeetingNotFound)
}

func TestLatenessUnknownWithoutSchedule(t *testing.T) {
	svc, info, clock := newAttendanceFixture(t)
	info.times.ScheduledStart = time.Time{}
	clock.Advance(time.Hour)

	rec, err := svc.RecordJoin(context.Background(), "m1", "s1", "Asha")
	require.NoError(t, err)
	require.False(t, rec.IsLate, "no schedule means lateness cannot be derived")
}

func TestFinalizeMeetingClosesOpenSessions(t *testing.T) {
	svc, info, clock := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)
	clock.Advance(300 * time.Second)
	_, err = svc.RecordJoin(ctx, "m1", "s2", "Ben")
	require.NoError(t, err)

	endedAt := baseTime.Add(600 * time.Second)
	info.times.EndedAt = &endedAt
	require.NoError(t, svc.FinalizeMeeting(ctx, "m1", endedAt))

	s1, err := svc.store.Get(ctx, "m1", "s1")
	require.NoError(t, err)
	require.False(t, s1.IsPresent)
	require.InDelta(t, 600, s1.TotalDuration, 0.001)
	require.InDelta(t, 100, s1.AttendancePct, 0.001)
	require.Equal(t, "present", s1.Status)

	s2, err := svc.store.Get(ctx, "m1", "s2")
	require.NoError(t, err)
	require.False(t, s2.IsPresent)
	require.InDelta(t, 300, s2.TotalDuration, 0.001)
	require.InDelta(t, 50, s2.AttendancePct, 0.001)
	require.Equal(t, "present", s2.Status, "exactly the cutoff stays present")
}

func TestReportStatistics(t *testing.T) {
	svc, _, clock := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := svc.RecordJoin(ctx, "m1", "s1", "Asha")
	require.NoError(t, err)

	clock.Advance(400 * time.Second)
	_, err = svc.RecordJoin(ctx, "m1", "s2", "Ben") // late
	require.NoError(t, err)

	clock.Advance(200 * time.Second)
	report, err := svc.Report(ctx, "m1")
	require.NoError(t, err)

	require.Equal(t, 2, report.Statistics.TotalStudents)
	require.Equal(t, 2, report.Statistics.CurrentlyPresent)
	require.Equal(t, 1, report.Statistics.LateCount)
	require.Len(t, report.Attendances, 2)

	// Views include open-session elapsed time.
	byID := map[string]float64{}
	for _, v := range report.Attendances {
		byID[v.StudentID] = v.TotalDuration
	}
	require.InDelta(t, 600, byID["s1"], 0.001)
	require.InDelta(t, 200, byID["s2"], 0.001)
}
