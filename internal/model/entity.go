package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MeetingStatus represents meeting lifecycle state.
type MeetingStatus string

const (
	MeetingStatusScheduled MeetingStatus = "scheduled"
	MeetingStatusLive      MeetingStatus = "live"
	MeetingStatusEnded     MeetingStatus = "ended"
)

// Meeting is the live-session entity (GORM). The wider LMS owns the full
// meeting record; this service only needs the timing fields.
type Meeting struct {
	ID             string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title          string     `gorm:"size:255;not null"`
	ScheduledStart time.Time  `gorm:"not null"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	EndedAt        *time.Time `gorm:"column:ended_at"`
	Status         string     `gorm:"size:20;not null;default:scheduled"` // scheduled, live, ended
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

func (Meeting) TableName() string { return "meetings" }

// SessionInterval is one contiguous join→leave interval. LeaveTime is nil
// while the student is still present.
type SessionInterval struct {
	JoinTime  time.Time  `json:"join_time"`
	LeaveTime *time.Time `json:"leave_time,omitempty"`
}

// Closed reports whether the interval has a leave time.
func (s SessionInterval) Closed() bool { return s.LeaveTime != nil }

// Duration returns the interval length; open intervals are measured up to now.
func (s SessionInterval) Duration(now time.Time) time.Duration {
	if s.LeaveTime != nil {
		return s.LeaveTime.Sub(s.JoinTime)
	}
	return now.Sub(s.JoinTime)
}

// SessionList is stored as a single jsonb column: the list is only ever
// rewritten as part of the whole record's atomic read-modify-write.
type SessionList []SessionInterval

// Value implements driver.Valuer (jsonb encode).
func (l SessionList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner (jsonb decode).
func (l *SessionList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("sessions: unsupported scan source")
	}
}

// Open returns the index of the open interval, or -1. The engine maintains
// the invariant that at most one interval is open.
func (l SessionList) Open() int {
	if n := len(l); n > 0 && !l[n-1].Closed() {
		return n - 1
	}
	return -1
}

// AttendanceStatus is derived, never set directly by clients.
type AttendanceStatus string

const (
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendancePartial AttendanceStatus = "partial"
)

// MeetingAttendance is the per-(meeting, student) attendance record (GORM).
// One row per pair; all mutations go through the store's per-key
// read-modify-write.
type MeetingAttendance struct {
	ID            string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MeetingID     string      `gorm:"type:uuid;not null;uniqueIndex:idx_attendance_meeting_student"`
	StudentID     string      `gorm:"size:64;not null;uniqueIndex:idx_attendance_meeting_student"`
	StudentName   string      `gorm:"size:255"`
	Sessions      SessionList `gorm:"type:jsonb;not null;default:'[]'"`
	FirstJoinTime *time.Time  `gorm:"column:first_join_time"`
	LastLeaveTime *time.Time  `gorm:"column:last_leave_time"`
	RejoinCount   int         `gorm:"not null;default:0"`
	IsPresent     bool        `gorm:"column:is_present;not null;default:false"`
	IsLate        bool        `gorm:"column:is_late;not null;default:false"`
	TotalDuration float64     `gorm:"column:total_duration_sec;not null;default:0"` // closed intervals, seconds
	AttendancePct float64     `gorm:"column:attendance_pct;not null;default:0"`
	Status        string      `gorm:"size:20;not null;default:absent"`
	CreatedAt     time.Time   `gorm:"autoCreateTime"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime"`
}

func (MeetingAttendance) TableName() string { return "meeting_attendances" }

// EmotionSample is one immutable facial-emotion observation (GORM).
// Append-only; no update path exists.
type EmotionSample struct {
	ID                  string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MeetingID           string    `gorm:"type:uuid;not null;index:idx_samples_meeting_time,priority:1"`
	StudentID           string    `gorm:"size:64;not null;index"`
	StudentName         string    `gorm:"size:255"`
	TrackingID          string    `gorm:"size:64"` // client correlation id for one continuous tracking run
	RecordedAt          time.Time `gorm:"not null;index:idx_samples_meeting_time,priority:2"`
	Happy               float64   `gorm:"not null;default:0"`
	Sad                 float64   `gorm:"not null;default:0"`
	Angry               float64   `gorm:"not null;default:0"`
	Surprised           float64   `gorm:"not null;default:0"`
	Fearful             float64   `gorm:"not null;default:0"`
	Disgusted           float64   `gorm:"not null;default:0"`
	Neutral             float64   `gorm:"not null;default:0"`
	DominantEmotion     string    `gorm:"size:20;not null;default:unknown"`
	FaceDetected        bool      `gorm:"not null;default:false"`
	DetectionConfidence float64   `gorm:"not null;default:0"`
	Attentiveness       float64   `gorm:"not null;default:0"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

func (EmotionSample) TableName() string { return "emotion_samples" }

// Emotions returns the sample's vector in wire shape.
func (s *EmotionSample) Emotions() EmotionVector {
	return EmotionVector{
		Happy:     s.Happy,
		Sad:       s.Sad,
		Angry:     s.Angry,
		Surprised: s.Surprised,
		Fearful:   s.Fearful,
		Disgusted: s.Disgusted,
		Neutral:   s.Neutral,
	}
}
