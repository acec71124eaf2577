package model

import "time"

// MeetingView is the API view of a meeting (not GORM entity).
type MeetingView struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Status         string     `json:"status"`
}

// CreateMeetingRequest is the request body for POST /meetings.
type CreateMeetingRequest struct {
	Title          string    `json:"title" binding:"required"`
	ScheduledStart time.Time `json:"scheduled_start" binding:"required"`
}

// CreateMeetingResponse is the response for POST /meetings.
type CreateMeetingResponse struct {
	MeetingID string `json:"meeting_id"`
	WSURL     string `json:"ws_url"`
	Status    string `json:"status"`
}
