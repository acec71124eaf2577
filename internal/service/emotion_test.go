package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
	"github.com/amhar4u/Smart-LMS-sub001/internal/store"
)

func newEmotionFixture() (*EmotionService, *store.MemorySampleStore) {
	st := store.NewMemorySampleStore()
	svc := NewEmotionService(st, zap.NewNop())
	clock := &fakeClock{t: baseTime}
	svc.now = clock.Now
	return svc, st
}

func validEmotionPayload() model.EmotionUpdatePayload {
	return model.EmotionUpdatePayload{
		MeetingID:   "m1",
		StudentID:   "s1",
		StudentName: "Asha",
		SessionID:   "track-1",
		Emotions: model.EmotionVector{
			Happy:   0.1,
			Sad:     0.7,
			Neutral: 0.4,
		},
		FaceDetected: true,
		Confidence:   0.85,
	}
}

func TestIngestDerivesFields(t *testing.T) {
	svc, _ := newEmotionFixture()

	sample, err := svc.Ingest(context.Background(), validEmotionPayload())
	require.NoError(t, err)
	require.Equal(t, "sad", sample.DominantEmotion, "dominant is recomputed server-side")
	require.InDelta(t, 0.85, sample.Attentiveness, 0.001)
	require.InDelta(t, 0.85, sample.DetectionConfidence, 0.001)
	require.Equal(t, "track-1", sample.TrackingID)
	require.Equal(t, baseTime, sample.RecordedAt)
}

func TestIngestNoFaceZeroesAttentiveness(t *testing.T) {
	svc, _ := newEmotionFixture()

	p := validEmotionPayload()
	p.FaceDetected = false
	sample, err := svc.Ingest(context.Background(), p)
	require.NoError(t, err)
	require.Zero(t, sample.Attentiveness)
	require.Equal(t, model.EmotionUnknown, sample.DominantEmotion)
	// the raw vector is still persisted for later reporting
	require.InDelta(t, 0.7, sample.Sad, 0.001)
}

func TestIngestRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.EmotionUpdatePayload)
	}{
		{name: "missing meeting", mutate: func(p *model.EmotionUpdatePayload) { p.MeetingID = "" }},
		{name: "missing student", mutate: func(p *model.EmotionUpdatePayload) { p.StudentID = "" }},
		{name: "missing session", mutate: func(p *model.EmotionUpdatePayload) { p.SessionID = "" }},
		{name: "confidence above one", mutate: func(p *model.EmotionUpdatePayload) { p.Confidence = 1.2 }},
		{name: "emotion below zero", mutate: func(p *model.EmotionUpdatePayload) { p.Emotions.Angry = -0.1 }},
		{name: "emotion above one", mutate: func(p *model.EmotionUpdatePayload) { p.Emotions.Happy = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newEmotionFixture()
			p := validEmotionPayload()
			tt.mutate(&p)

			_, err := svc.Ingest(context.Background(), p)
			require.ErrorIs(t, err, errs.ErrInvalidEmotionData)

			// rejected payloads are never persisted
			samples, err := st.ListSince(context.Background(), "m1", baseTime.Add(-time.Hour))
			require.NoError(t, err)
			require.Empty(t, samples)
		})
	}
}

func TestDominantLabelTieBreak(t *testing.T) {
	v := model.EmotionVector{Happy: 0.5, Sad: 0.5}
	require.Equal(t, "happy", v.Dominant(), "first label wins ties")

	v = model.EmotionVector{}
	require.Equal(t, "happy", v.Dominant(), "all-zero vector falls back to first label")
}
