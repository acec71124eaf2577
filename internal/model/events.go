package model

import (
	"encoding/json"
	"time"
)

// Envelope is the socket wire format in both directions:
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names (client → server).
const (
	EventJoinMeeting       = "join-meeting"
	EventLeaveMeeting      = "leave-meeting"
	EventEmotionUpdate     = "emotion-update"
	EventRequestEngagement = "request-engagement"
	EventRequestAlerts     = "request-alerts"
	EventRequestAttendance = "request-attendance"
)

// Outbound event names (server → subscribers or direct reply).
const (
	EventStudentJoined      = "student-joined"
	EventStudentLeft        = "student-left"
	EventStudentEmotionLive = "student-emotion-live"
	EventEmotionAlert       = "emotion-alert"
	EventAttendanceRecorded = "attendance-recorded"
	EventAttendanceError    = "attendance-error"
	EventEngagementData     = "engagement-data"
	EventAlertsData         = "alerts-data"
	EventAttendanceData     = "attendance-data"
	EventMeetingEnded       = "meeting-ended"
	EventError              = "error"
)

// JoinLeavePayload is the body of join-meeting and leave-meeting.
type JoinLeavePayload struct {
	MeetingID   string `json:"meetingId" validate:"required"`
	StudentID   string `json:"studentId" validate:"required"`
	StudentName string `json:"studentName"`
}

// EmotionVector carries seven independent confidences in [0,1]; they are not
// required to sum to 1.
type EmotionVector struct {
	Happy     float64 `json:"happy" validate:"gte=0,lte=1"`
	Sad       float64 `json:"sad" validate:"gte=0,lte=1"`
	Angry     float64 `json:"angry" validate:"gte=0,lte=1"`
	Surprised float64 `json:"surprised" validate:"gte=0,lte=1"`
	Fearful   float64 `json:"fearful" validate:"gte=0,lte=1"`
	Disgusted float64 `json:"disgusted" validate:"gte=0,lte=1"`
	Neutral   float64 `json:"neutral" validate:"gte=0,lte=1"`
}

// EmotionUnknown is the dominant label when no face was detected.
const EmotionUnknown = "unknown"

// Dominant returns the arg-max label of the vector. Label order breaks ties,
// matching the order the detector reports them in.
func (v EmotionVector) Dominant() string {
	labels := []string{"happy", "sad", "angry", "surprised", "fearful", "disgusted", "neutral"}
	values := []float64{v.Happy, v.Sad, v.Angry, v.Surprised, v.Fearful, v.Disgusted, v.Neutral}
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return labels[best]
}

// EmotionUpdatePayload is the body of emotion-update.
type EmotionUpdatePayload struct {
	MeetingID    string        `json:"meetingId" validate:"required"`
	StudentID    string        `json:"studentId" validate:"required"`
	StudentName  string        `json:"studentName"`
	SessionID    string        `json:"sessionId" validate:"required"`
	Emotions     EmotionVector `json:"emotions"`
	FaceDetected bool          `json:"faceDetected"`
	Confidence   float64       `json:"confidence" validate:"gte=0,lte=1"`
}

// RequestPayload is the body of request-engagement / request-alerts /
// request-attendance.
type RequestPayload struct {
	MeetingID string `json:"meetingId" validate:"required"`
}

// StudentJoined is broadcast to the meeting room after a join is recorded.
type StudentJoined struct {
	StudentID    string    `json:"studentId"`
	StudentName  string    `json:"studentName"`
	JoinTime     time.Time `json:"joinTime"`
	SessionCount int       `json:"sessionCount"`
	IsLate       bool      `json:"isLate"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// StudentLeft is broadcast to the meeting room after a leave is recorded.
type StudentLeft struct {
	StudentID            string    `json:"studentId"`
	StudentName          string    `json:"studentName"`
	LeaveTime            time.Time `json:"leaveTime"`
	TotalDuration        float64   `json:"totalDuration"` // seconds
	AttendancePercentage float64   `json:"attendancePercentage"`
	Status               string    `json:"status"`
	Timestamp            time.Time `json:"timestamp"`
}

// StudentEmotionLive is broadcast to the meeting room for each ingested sample.
type StudentEmotionLive struct {
	StudentID       string        `json:"studentId"`
	StudentName     string        `json:"studentName"`
	Emotions        EmotionVector `json:"emotions"`
	DominantEmotion string        `json:"dominantEmotion"`
	FaceDetected    bool          `json:"faceDetected"`
	Attentiveness   float64       `json:"attentiveness"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Alert rule identifiers and severities.
const (
	AlertNegativeEmotion  = "negative-emotion"
	AlertLowAttentiveness = "low-attentiveness"

	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// EmotionAlertEvent is a derived alert; it has no persisted lifecycle.
type EmotionAlertEvent struct {
	Type        string    `json:"type"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// AttendanceRecorded is the direct acknowledgment for a join or leave.
type AttendanceRecorded struct {
	Type                 string    `json:"type"` // join | leave
	MeetingID            string    `json:"meetingId"`
	StudentID            string    `json:"studentId"`
	SessionCount         int       `json:"sessionCount"`
	IsLate               bool      `json:"isLate"`
	TotalDuration        float64   `json:"totalDuration"`
	AttendancePercentage float64   `json:"attendancePercentage"`
	Status               string    `json:"status"`
	Timestamp            time.Time `json:"timestamp"`
}

// ErrorReply is the body of attendance-error / error direct replies.
type ErrorReply struct {
	Message string `json:"message"`
}

// StudentEngagement is one student's latest state inside the engagement window.
type StudentEngagement struct {
	StudentID       string    `json:"studentId"`
	StudentName     string    `json:"studentName"`
	Attentiveness   float64   `json:"attentiveness"`
	DominantEmotion string    `json:"dominantEmotion"`
	FaceDetected    bool      `json:"faceDetected"`
	SampledAt       time.Time `json:"sampledAt"`
}

// EngagementSnapshot is the derived current-engagement view (2-minute window).
type EngagementSnapshot struct {
	MeetingID     string              `json:"meetingId"`
	TotalStudents int                 `json:"totalStudents"`
	Engaged       int                 `json:"engaged"`
	Disengaged    int                 `json:"disengaged"`
	AvgEngagement float64             `json:"avgEngagement"` // percent
	Students      []StudentEngagement `json:"students"`
	WindowSeconds int                 `json:"windowSeconds"`
	Timestamp     time.Time           `json:"timestamp"`
}

// AlertsData is the derived alert view (5-minute window).
type AlertsData struct {
	MeetingID     string              `json:"meetingId"`
	Alerts        []EmotionAlertEvent `json:"alerts"`
	WindowSeconds int                 `json:"windowSeconds"`
	Timestamp     time.Time           `json:"timestamp"`
}

// AttendanceView is the API view of one attendance record (not GORM entity).
type AttendanceView struct {
	StudentID            string            `json:"studentId"`
	StudentName          string            `json:"studentName"`
	Sessions             []SessionInterval `json:"sessions"`
	FirstJoinTime        *time.Time        `json:"firstJoinTime,omitempty"`
	LastLeaveTime        *time.Time        `json:"lastLeaveTime,omitempty"`
	RejoinCount          int               `json:"rejoinCount"`
	IsCurrentlyPresent   bool              `json:"isCurrentlyPresent"`
	IsLate               bool              `json:"isLate"`
	TotalDuration        float64           `json:"totalDuration"`
	AttendancePercentage float64           `json:"attendancePercentage"`
	Status               string            `json:"status"`
}

// AttendanceStatistics summarizes one meeting's attendance records.
type AttendanceStatistics struct {
	TotalStudents     int     `json:"totalStudents"`
	CurrentlyPresent  int     `json:"currentlyPresent"`
	LateCount         int     `json:"lateCount"`
	PartialCount      int     `json:"partialCount"`
	AveragePercentage float64 `json:"averagePercentage"`
}

// AttendanceData is the direct reply to request-attendance.
type AttendanceData struct {
	MeetingID   string               `json:"meetingId"`
	Statistics  AttendanceStatistics `json:"statistics"`
	Attendances []AttendanceView     `json:"attendances"`
	Timestamp   time.Time            `json:"timestamp"`
}
