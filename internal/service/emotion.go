package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
	"github.com/amhar4u/Smart-LMS-sub001/internal/store"
)

// EmotionService ingests per-student emotion samples: validates the vector,
// derives attentiveness and the dominant label, and appends one immutable
// sample. The client's own dominant-emotion claim is ignored; the label is
// recomputed server-side as the arg-max of the vector.
type EmotionService struct {
	samples  store.SampleStore
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

// NewEmotionService creates the emotion ingest service.
func NewEmotionService(samples store.SampleStore, log *zap.Logger) *EmotionService {
	return &EmotionService{
		samples:  samples,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// Ingest validates and persists one emotion sample. Malformed payloads are
// rejected without being persisted.
func (s *EmotionService) Ingest(ctx context.Context, p model.EmotionUpdatePayload) (*model.EmotionSample, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidEmotionData, err)
	}
	vec := p.Emotions
	for _, v := range []float64{vec.Happy, vec.Sad, vec.Angry, vec.Surprised, vec.Fearful, vec.Disgusted, vec.Neutral} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite confidence", errs.ErrInvalidEmotionData)
		}
	}

	attentiveness := 0.0
	dominant := model.EmotionUnknown
	if p.FaceDetected {
		attentiveness = p.Confidence
		dominant = vec.Dominant()
	}

	sample := &model.EmotionSample{
		ID:                  uuid.New().String(),
		MeetingID:           p.MeetingID,
		StudentID:           p.StudentID,
		StudentName:         p.StudentName,
		TrackingID:          p.SessionID,
		RecordedAt:          s.now().UTC(),
		Happy:               vec.Happy,
		Sad:                 vec.Sad,
		Angry:               vec.Angry,
		Surprised:           vec.Surprised,
		Fearful:             vec.Fearful,
		Disgusted:           vec.Disgusted,
		Neutral:             vec.Neutral,
		DominantEmotion:     dominant,
		FaceDetected:        p.FaceDetected,
		DetectionConfidence: p.Confidence,
		Attentiveness:       attentiveness,
	}
	if err := s.samples.Insert(ctx, sample); err != nil {
		return nil, fmt.Errorf("insert sample: %w", err)
	}

	s.log.Debug("emotion sample ingested",
		zap.String("meeting_id", p.MeetingID),
		zap.String("student_id", p.StudentID),
		zap.String("dominant", dominant),
		zap.Float64("attentiveness", attentiveness))
	return sample, nil
}
