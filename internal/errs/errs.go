package errs

import "errors"

// Domain sentinel errors, mapped to HTTP codes / socket error events in handlers.
var (
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrMeetingEnded       = errors.New("meeting already ended")
	ErrRecordNotFound     = errors.New("attendance record not found")
	ErrNoOpenSession      = errors.New("no open attendance session")
	ErrInvalidEmotionData = errors.New("invalid emotion payload")
)
