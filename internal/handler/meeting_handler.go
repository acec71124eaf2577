package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
	"github.com/amhar4u/Smart-LMS-sub001/internal/service"
)

// MeetingHandler handles the REST lifecycle API for meetings plus the
// read-side queries for polling clients and dashboards.
type MeetingHandler struct {
	meetings   *service.MeetingService
	attendance *service.AttendanceService
	engagement *service.EngagementService
	wsBaseURL  string
}

// NewMeetingHandler creates the meeting handler.
func NewMeetingHandler(meetings *service.MeetingService, attendance *service.AttendanceService, engagement *service.EngagementService, wsBaseURL string) *MeetingHandler {
	return &MeetingHandler{
		meetings:   meetings,
		attendance: attendance,
		engagement: engagement,
		wsBaseURL:  wsBaseURL,
	}
}

// CreateMeeting godoc
// POST /meetings
func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	var req model.CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	meeting, err := h.meetings.Create(c.Request.Context(), req.Title, req.ScheduledStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create meeting"})
		return
	}
	c.JSON(http.StatusCreated, model.CreateMeetingResponse{
		MeetingID: meeting.ID,
		WSURL:     h.wsURL(meeting.ID),
		Status:    meeting.Status,
	})
}

// GetMeeting godoc
// GET /meetings/:id
func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	meeting, ok := h.loadMeeting(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, service.View(meeting))
}

// StartMeeting godoc
// POST /meetings/:id/start
func (h *MeetingHandler) StartMeeting(c *gin.Context) {
	meetingID := c.Param("id")
	meeting, err := h.meetings.Start(c.Request.Context(), meetingID)
	if err != nil {
		h.writeError(c, err, "failed to start meeting")
		return
	}
	c.JSON(http.StatusOK, service.View(meeting))
}

// EndMeeting godoc
// POST /meetings/:id/end
func (h *MeetingHandler) EndMeeting(c *gin.Context) {
	meetingID := c.Param("id")
	meeting, err := h.meetings.End(c.Request.Context(), meetingID)
	if err != nil {
		h.writeError(c, err, "failed to end meeting")
		return
	}
	c.JSON(http.StatusOK, service.View(meeting))
}

// GetAttendance godoc
// GET /meetings/:id/attendance
func (h *MeetingHandler) GetAttendance(c *gin.Context) {
	meeting, ok := h.loadMeeting(c)
	if !ok {
		return
	}
	report, err := h.attendance.Report(c.Request.Context(), meeting.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attendance"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetEngagement godoc
// GET /meetings/:id/engagement
func (h *MeetingHandler) GetEngagement(c *gin.Context) {
	meeting, ok := h.loadMeeting(c)
	if !ok {
		return
	}
	snap, err := h.engagement.Snapshot(c.Request.Context(), meeting.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute engagement"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetAlerts godoc
// GET /meetings/:id/alerts
func (h *MeetingHandler) GetAlerts(c *gin.Context) {
	meeting, ok := h.loadMeeting(c)
	if !ok {
		return
	}
	alerts, err := h.engagement.Alerts(c.Request.Context(), meeting.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute alerts"})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *MeetingHandler) loadMeeting(c *gin.Context) (*model.Meeting, bool) {
	meetingID := c.Param("id")
	if meetingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meeting_id required"})
		return nil, false
	}
	meeting, err := h.meetings.Get(c.Request.Context(), meetingID)
	if err != nil {
		h.writeError(c, err, "failed to load meeting")
		return nil, false
	}
	return meeting, true
}

func (h *MeetingHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, errs.ErrMeetingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
	case errors.Is(err, errs.ErrMeetingEnded):
		c.JSON(http.StatusConflict, gin.H{"error": "meeting already ended"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func (h *MeetingHandler) wsURL(meetingID string) string {
	if h.wsBaseURL == "" {
		return fmt.Sprintf("/ws/meetings/%s/:user_id", meetingID)
	}
	base := h.wsBaseURL
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return fmt.Sprintf("%s/ws/meetings/%s/:user_id", base, meetingID)
}
