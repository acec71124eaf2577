package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
)

// LiveBroadcaster periodically pushes the windowed engagement snapshot and
// any active alerts to every meeting room with subscribers. The aggregations
// are pure reads, so a slow tick never blocks event processing.
type LiveBroadcaster struct {
	hub        *MeetingHub
	engagement *EngagementService
	interval   time.Duration
	log        *zap.Logger
}

// NewLiveBroadcaster creates the periodic broadcaster; interval 0 disables
// it.
func NewLiveBroadcaster(hub *MeetingHub, engagement *EngagementService, interval time.Duration, log *zap.Logger) *LiveBroadcaster {
	return &LiveBroadcaster{hub: hub, engagement: engagement, interval: interval, log: log}
}

// Run ticks until ctx is cancelled.
func (b *LiveBroadcaster) Run(ctx context.Context) {
	if b.interval <= 0 {
		return
	}
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *LiveBroadcaster) tick(ctx context.Context) {
	for _, meetingID := range b.hub.ActiveMeetings() {
		snap, err := b.engagement.Snapshot(ctx, meetingID)
		if err != nil {
			b.log.Warn("engagement tick failed",
				zap.String("meeting_id", meetingID), zap.Error(err))
			continue
		}
		if snap.TotalStudents > 0 {
			b.hub.BroadcastMeeting(meetingID, model.EventEngagementData, snap)
		}

		alerts, err := b.engagement.Alerts(ctx, meetingID)
		if err != nil {
			b.log.Warn("alerts tick failed",
				zap.String("meeting_id", meetingID), zap.Error(err))
			continue
		}
		for _, alert := range alerts.Alerts {
			b.hub.BroadcastMeeting(meetingID, model.EventEmotionAlert, alert)
		}
	}
}
