package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
)

func TestMutateCreatesRecordOnFirstUse(t *testing.T) {
	st := NewMemoryAttendanceStore()
	ctx := context.Background()

	_, err := st.Get(ctx, "m1", "s1")
	require.ErrorIs(t, err, errs.ErrRecordNotFound)

	rec, err := st.Mutate(ctx, "m1", "s1", func(rec *model.MeetingAttendance) error {
		rec.StudentName = "Asha"
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, string(model.AttendanceAbsent), rec.Status)

	got, err := st.Get(ctx, "m1", "s1")
	require.NoError(t, err)
	require.Equal(t, "Asha", got.StudentName)
}

func TestMutateErrorLeavesRecordUntouched(t *testing.T) {
	st := NewMemoryAttendanceStore()
	ctx := context.Background()
	boom := errors.New("transition rejected")

	_, err := st.Mutate(ctx, "m1", "s1", func(rec *model.MeetingAttendance) error {
		rec.StudentName = "Asha"
		return nil
	})
	require.NoError(t, err)

	_, err = st.Mutate(ctx, "m1", "s1", func(rec *model.MeetingAttendance) error {
		rec.StudentName = "partial write"
		rec.RejoinCount = 99
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := st.Get(ctx, "m1", "s1")
	require.NoError(t, err)
	require.Equal(t, "Asha", got.StudentName)
	require.Zero(t, got.RejoinCount)
}

func TestMutateSerializesPerKey(t *testing.T) {
	st := NewMemoryAttendanceStore()
	ctx := context.Background()
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Mutate(ctx, "m1", "s1", func(rec *model.MeetingAttendance) error {
				rec.RejoinCount++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := st.Get(ctx, "m1", "s1")
	require.NoError(t, err)
	require.Equal(t, n, got.RejoinCount, "increments must not be lost")
}

func TestMutateReturnsDetachedCopy(t *testing.T) {
	st := NewMemoryAttendanceStore()
	ctx := context.Background()
	now := time.Now().UTC()

	rec, err := st.Mutate(ctx, "m1", "s1", func(rec *model.MeetingAttendance) error {
		rec.Sessions = append(rec.Sessions, model.SessionInterval{JoinTime: now})
		return nil
	})
	require.NoError(t, err)

	// mutating the returned value must not leak into the store
	rec.Sessions[0].JoinTime = now.Add(time.Hour)
	rec.StudentName = "tampered"

	got, err := st.Get(ctx, "m1", "s1")
	require.NoError(t, err)
	require.Equal(t, now, got.Sessions[0].JoinTime)
	require.Empty(t, got.StudentName)
}

func TestSampleStoreWindowScan(t *testing.T) {
	st := NewMemorySampleStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, age := range []time.Duration{10 * time.Minute, 4 * time.Minute, time.Minute} {
		require.NoError(t, st.Insert(ctx, &model.EmotionSample{
			MeetingID:  "m1",
			StudentID:  "s1",
			RecordedAt: now.Add(-age),
		}))
	}
	require.NoError(t, st.Insert(ctx, &model.EmotionSample{
		MeetingID:  "m2",
		StudentID:  "s1",
		RecordedAt: now,
	}))

	samples, err := st.ListSince(ctx, "m1", now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.True(t, samples[0].RecordedAt.Before(samples[1].RecordedAt), "oldest first")
}
