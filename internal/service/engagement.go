package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/amhar4u/Smart-LMS-sub001/internal/config"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
	"github.com/amhar4u/Smart-LMS-sub001/internal/store"
)

// EngagementService computes the two windowed read-side views over persisted
// emotion samples: the current-engagement snapshot and the alert set. Both
// are pure functions of sample history; the service holds no mutable state
// and may be called concurrently.
type EngagementService struct {
	samples store.SampleStore
	cfg     *config.Config
	now     func() time.Time
}

// NewEngagementService creates the windowed aggregator.
func NewEngagementService(samples store.SampleStore, cfg *config.Config) *EngagementService {
	return &EngagementService{samples: samples, cfg: cfg, now: time.Now}
}

// Snapshot returns the current-engagement view over the short window: for
// each student the most recent sample; engaged means attentiveness at or
// above the engaged threshold.
func (s *EngagementService) Snapshot(ctx context.Context, meetingID string) (*model.EngagementSnapshot, error) {
	now := s.now().UTC()
	samples, err := s.samples.ListSince(ctx, meetingID, now.Add(-s.cfg.EngagementWindow))
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*model.EmotionSample)
	for i := range samples {
		sm := &samples[i]
		if prev, ok := latest[sm.StudentID]; !ok || sm.RecordedAt.After(prev.RecordedAt) {
			latest[sm.StudentID] = sm
		}
	}

	snap := &model.EngagementSnapshot{
		MeetingID:     meetingID,
		WindowSeconds: int(s.cfg.EngagementWindow.Seconds()),
		Timestamp:     now,
	}
	var sum float64
	for _, sm := range latest {
		snap.Students = append(snap.Students, model.StudentEngagement{
			StudentID:       sm.StudentID,
			StudentName:     sm.StudentName,
			Attentiveness:   sm.Attentiveness,
			DominantEmotion: sm.DominantEmotion,
			FaceDetected:    sm.FaceDetected,
			SampledAt:       sm.RecordedAt,
		})
		sum += sm.Attentiveness
		if sm.Attentiveness >= s.cfg.EngagedThreshold {
			snap.Engaged++
		}
	}
	snap.TotalStudents = len(latest)
	snap.Disengaged = snap.TotalStudents - snap.Engaged
	if snap.TotalStudents > 0 {
		snap.AvgEngagement = sum / float64(snap.TotalStudents) * 100
	}
	sort.Slice(snap.Students, func(i, j int) bool {
		return snap.Students[i].StudentID < snap.Students[j].StudentID
	})
	return snap, nil
}

// Alerts evaluates both alert rules per student over the long window. Each
// rule needs a minimum number of qualifying samples so a single bad frame
// from the face detector cannot fire an alert. The result is sorted by
// student then rule, so it is independent of sample insertion order.
func (s *EngagementService) Alerts(ctx context.Context, meetingID string) (*model.AlertsData, error) {
	now := s.now().UTC()
	samples, err := s.samples.ListSince(ctx, meetingID, now.Add(-s.cfg.AlertWindow))
	if err != nil {
		return nil, err
	}

	type studentAgg struct {
		name          string
		negativeCount int
		negativePeak  float64
		inattentive   int
	}
	agg := make(map[string]*studentAgg)
	for i := range samples {
		sm := &samples[i]
		a, ok := agg[sm.StudentID]
		if !ok {
			a = &studentAgg{}
			agg[sm.StudentID] = a
		}
		if sm.StudentName != "" {
			a.name = sm.StudentName
		}
		if peak := maxNegative(sm); peak >= s.cfg.NegativeThreshold {
			a.negativeCount++
			if peak > a.negativePeak {
				a.negativePeak = peak
			}
		}
		if sm.Attentiveness <= s.cfg.LowAttentivenessCeiling {
			a.inattentive++
		}
	}

	data := &model.AlertsData{
		MeetingID:     meetingID,
		WindowSeconds: int(s.cfg.AlertWindow.Seconds()),
		Timestamp:     now,
	}
	students := make([]string, 0, len(agg))
	for id := range agg {
		students = append(students, id)
	}
	sort.Strings(students)

	windowMin := int(s.cfg.AlertWindow.Minutes())
	for _, id := range students {
		a := agg[id]
		if a.negativeCount >= s.cfg.AlertMinOccurrences {
			severity := model.SeverityMedium
			if a.negativePeak >= s.cfg.NegativeHighThreshold {
				severity = model.SeverityHigh
			}
			data.Alerts = append(data.Alerts, model.EmotionAlertEvent{
				Type:        model.AlertNegativeEmotion,
				StudentID:   id,
				StudentName: a.name,
				Severity:    severity,
				Message: fmt.Sprintf("%d samples with strong negative emotions in the last %d min",
					a.negativeCount, windowMin),
				Timestamp: now,
			})
		}
		if a.inattentive >= s.cfg.AlertMinOccurrences {
			data.Alerts = append(data.Alerts, model.EmotionAlertEvent{
				Type:        model.AlertLowAttentiveness,
				StudentID:   id,
				StudentName: a.name,
				Severity:    model.SeverityLow,
				Message: fmt.Sprintf("%d low-attentiveness samples in the last %d min",
					a.inattentive, windowMin),
				Timestamp: now,
			})
		}
	}
	return data, nil
}

func maxNegative(sm *model.EmotionSample) float64 {
	peak := sm.Sad
	if sm.Angry > peak {
		peak = sm.Angry
	}
	if sm.Fearful > peak {
		peak = sm.Fearful
	}
	return peak
}
