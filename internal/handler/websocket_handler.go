package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/amhar4u/Smart-LMS-sub001/internal/errs"
	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
	"github.com/amhar4u/Smart-LMS-sub001/internal/service"
	"github.com/amhar4u/Smart-LMS-sub001/internal/telemetry"
)

// MeetingWSHandler handles WebSocket connections for
// /ws/meetings/:meeting_id/:user_id and routes inbound events to the
// attendance engine, the emotion ingest and the read-side queries.
type MeetingWSHandler struct {
	hub        *service.MeetingHub
	meetings   *service.MeetingService
	attendance *service.AttendanceService
	emotions   *service.EmotionService
	engagement *service.EngagementService
	counters   *telemetry.Counters
	logger     *zap.Logger
}

// NewMeetingWSHandler creates the WebSocket handler.
func NewMeetingWSHandler(
	hub *service.MeetingHub,
	meetings *service.MeetingService,
	attendance *service.AttendanceService,
	emotions *service.EmotionService,
	engagement *service.EngagementService,
	counters *telemetry.Counters,
	logger *zap.Logger,
) *MeetingWSHandler {
	return &MeetingWSHandler{
		hub:        hub,
		meetings:   meetings,
		attendance: attendance,
		emotions:   emotions,
		engagement: engagement,
		counters:   counters,
		logger:     logger,
	}
}

// wsSession is the per-connection dispatch state. joined tracks which
// (meeting, student) pairs this connection has joined and not yet left, so a
// dropped connection can be turned into implicit leaves.
type wsSession struct {
	client *service.Client
	joined map[string]model.JoinLeavePayload
}

func joinKey(meetingID, studentID string) string {
	return meetingID + "\x00" + studentID
}

// ServeWS upgrades the request and runs the event loop.
// Path: /ws/meetings/:meeting_id/:user_id
func (h *MeetingWSHandler) ServeWS(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	userID := c.Param("user_id")
	if meetingID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meeting_id and user_id required"})
		return
	}

	meeting, err := h.meetings.Get(c.Request.Context(), meetingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return
	}
	if meeting.EndedAt != nil {
		c.JSON(http.StatusGone, gin.H{"error": "meeting already ended"})
		return
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client, cleanup := h.hub.Register(uuid.New().String(), userID, conn)
	// Every connection subscribes to the meeting room it connected for; a
	// presenter never sends join-meeting but still receives the fan-out.
	h.hub.JoinRoom(service.MeetingRoom(meetingID), client)

	sess := &wsSession{
		client: client,
		joined: make(map[string]model.JoinLeavePayload),
	}

	go h.writePump(client)
	h.readPump(sess)

	// Implicit leave: the connection dropped without explicit leave-meeting
	// for these pairs; close their open sessions so records cannot stay
	// present forever.
	h.applyImplicitLeaves(sess)
	cleanup()
}

func (h *MeetingWSHandler) readPump(sess *wsSession) {
	for {
		_, data, err := sess.client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.Error(err))
			}
			return
		}
		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			h.counters.IncRejected()
			h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "malformed message"})
			continue
		}
		h.dispatch(sess, env)
	}
}

func (h *MeetingWSHandler) writePump(c *service.Client) {
	defer func() {
		_ = c.Conn.Close()
	}()
	for data := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// dispatch runs one inbound event. Events from one connection run in order
// on the read loop; concurrency comes from different connections.
func (h *MeetingWSHandler) dispatch(sess *wsSession, env model.Envelope) {
	ctx := context.Background()
	switch env.Event {
	case model.EventJoinMeeting:
		h.handleJoin(ctx, sess, env.Data)
	case model.EventLeaveMeeting:
		h.handleLeave(ctx, sess, env.Data)
	case model.EventEmotionUpdate:
		h.handleEmotion(ctx, sess, env.Data)
	case model.EventRequestEngagement:
		h.handleRequestEngagement(ctx, sess, env.Data)
	case model.EventRequestAlerts:
		h.handleRequestAlerts(ctx, sess, env.Data)
	case model.EventRequestAttendance:
		h.handleRequestAttendance(ctx, sess, env.Data)
	default:
		h.counters.IncRejected()
		h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "unknown event: " + env.Event})
	}
}

func (h *MeetingWSHandler) handleJoin(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p model.JoinLeavePayload
	if err := json.Unmarshal(data, &p); err != nil || p.MeetingID == "" || p.StudentID == "" {
		h.counters.IncRejected()
		h.hub.SendEvent(sess.client, model.EventAttendanceError, model.ErrorReply{Message: "meetingId and studentId required"})
		return
	}
	rec, err := h.attendance.RecordJoin(ctx, p.MeetingID, p.StudentID, p.StudentName)
	if err != nil {
		// Do not touch room membership: a rejected join (ended or unknown
		// meeting) must not re-create a closed room.
		h.replyAttendanceError(sess, err)
		return
	}
	h.hub.JoinRoom(service.MeetingRoom(p.MeetingID), sess.client)
	sess.joined[joinKey(p.MeetingID, p.StudentID)] = p
	h.counters.IncJoin()

	now := time.Now().UTC()
	h.hub.BroadcastMeeting(p.MeetingID, model.EventStudentJoined, model.StudentJoined{
		StudentID:    rec.StudentID,
		StudentName:  rec.StudentName,
		JoinTime:     rec.Sessions[len(rec.Sessions)-1].JoinTime,
		SessionCount: len(rec.Sessions),
		IsLate:       rec.IsLate,
		Status:       rec.Status,
		Timestamp:    now,
	})
	h.counters.IncBroadcast()

	h.hub.SendEvent(sess.client, model.EventAttendanceRecorded, model.AttendanceRecorded{
		Type:         "join",
		MeetingID:    rec.MeetingID,
		StudentID:    rec.StudentID,
		SessionCount: len(rec.Sessions),
		IsLate:       rec.IsLate,
		Status:       rec.Status,
		Timestamp:    now,
	})
}

func (h *MeetingWSHandler) handleLeave(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p model.JoinLeavePayload
	if err := json.Unmarshal(data, &p); err != nil || p.MeetingID == "" || p.StudentID == "" {
		h.counters.IncRejected()
		h.hub.SendEvent(sess.client, model.EventAttendanceError, model.ErrorReply{Message: "meetingId and studentId required"})
		return
	}
	delete(sess.joined, joinKey(p.MeetingID, p.StudentID))

	rec, err := h.attendance.RecordLeave(ctx, p.MeetingID, p.StudentID)
	if errors.Is(err, errs.ErrNoOpenSession) {
		// Duplicate leave; network drops can resend it. Not an error.
		return
	}
	if err != nil {
		h.replyAttendanceError(sess, err)
		return
	}
	h.counters.IncLeave()

	now := time.Now().UTC()
	h.hub.BroadcastMeeting(p.MeetingID, model.EventStudentLeft, model.StudentLeft{
		StudentID:            rec.StudentID,
		StudentName:          rec.StudentName,
		LeaveTime:            *rec.LastLeaveTime,
		TotalDuration:        rec.TotalDuration,
		AttendancePercentage: rec.AttendancePct,
		Status:               rec.Status,
		Timestamp:            now,
	})
	h.counters.IncBroadcast()

	h.hub.SendEvent(sess.client, model.EventAttendanceRecorded, model.AttendanceRecorded{
		Type:                 "leave",
		MeetingID:            rec.MeetingID,
		StudentID:            rec.StudentID,
		SessionCount:         len(rec.Sessions),
		IsLate:               rec.IsLate,
		TotalDuration:        rec.TotalDuration,
		AttendancePercentage: rec.AttendancePct,
		Status:               rec.Status,
		Timestamp:            now,
	})
}

func (h *MeetingWSHandler) handleEmotion(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p model.EmotionUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.counters.IncRejected()
		h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "malformed emotion payload"})
		return
	}
	sample, err := h.emotions.Ingest(ctx, p)
	if err != nil {
		h.counters.IncRejected()
		if errors.Is(err, errs.ErrInvalidEmotionData) {
			h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "invalid emotion payload"})
		} else {
			h.logger.Error("emotion ingest failed", zap.Error(err))
			h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "could not record emotion sample"})
		}
		return
	}
	h.counters.IncSample()

	h.hub.JoinRoom(service.MeetingRoom(p.MeetingID), sess.client)
	h.hub.BroadcastMeeting(p.MeetingID, model.EventStudentEmotionLive, model.StudentEmotionLive{
		StudentID:       sample.StudentID,
		StudentName:     sample.StudentName,
		Emotions:        sample.Emotions(),
		DominantEmotion: sample.DominantEmotion,
		FaceDetected:    sample.FaceDetected,
		Attentiveness:   sample.Attentiveness,
		Timestamp:       sample.RecordedAt,
	})
	h.counters.IncBroadcast()
}

func (h *MeetingWSHandler) handleRequestEngagement(ctx context.Context, sess *wsSession, data json.RawMessage) {
	meetingID, ok := h.parseRequest(sess, data)
	if !ok {
		return
	}
	snap, err := h.engagement.Snapshot(ctx, meetingID)
	if err != nil {
		h.logger.Error("engagement query failed", zap.Error(err))
		h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "engagement query failed"})
		return
	}
	h.hub.SendEvent(sess.client, model.EventEngagementData, snap)
}

func (h *MeetingWSHandler) handleRequestAlerts(ctx context.Context, sess *wsSession, data json.RawMessage) {
	meetingID, ok := h.parseRequest(sess, data)
	if !ok {
		return
	}
	alerts, err := h.engagement.Alerts(ctx, meetingID)
	if err != nil {
		h.logger.Error("alerts query failed", zap.Error(err))
		h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "alerts query failed"})
		return
	}
	h.hub.SendEvent(sess.client, model.EventAlertsData, alerts)
}

func (h *MeetingWSHandler) handleRequestAttendance(ctx context.Context, sess *wsSession, data json.RawMessage) {
	meetingID, ok := h.parseRequest(sess, data)
	if !ok {
		return
	}
	report, err := h.attendance.Report(ctx, meetingID)
	if err != nil {
		h.logger.Error("attendance query failed", zap.Error(err))
		h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "attendance query failed"})
		return
	}
	h.hub.SendEvent(sess.client, model.EventAttendanceData, report)
}

func (h *MeetingWSHandler) parseRequest(sess *wsSession, data json.RawMessage) (string, bool) {
	var p model.RequestPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MeetingID == "" {
		h.counters.IncRejected()
		h.hub.SendEvent(sess.client, model.EventError, model.ErrorReply{Message: "meetingId required"})
		return "", false
	}
	return p.MeetingID, true
}

func (h *MeetingWSHandler) applyImplicitLeaves(sess *wsSession) {
	for _, p := range sess.joined {
		rec, err := h.attendance.RecordLeave(context.Background(), p.MeetingID, p.StudentID)
		if err != nil {
			if !errors.Is(err, errs.ErrNoOpenSession) {
				h.logger.Error("implicit leave failed",
					zap.String("meeting_id", p.MeetingID),
					zap.String("student_id", p.StudentID),
					zap.Error(err))
			}
			continue
		}
		h.counters.IncLeave()
		h.hub.BroadcastMeeting(p.MeetingID, model.EventStudentLeft, model.StudentLeft{
			StudentID:            rec.StudentID,
			StudentName:          rec.StudentName,
			LeaveTime:            *rec.LastLeaveTime,
			TotalDuration:        rec.TotalDuration,
			AttendancePercentage: rec.AttendancePct,
			Status:               rec.Status,
			Timestamp:            time.Now().UTC(),
		})
		h.counters.IncBroadcast()
		h.logger.Info("implicit leave on disconnect",
			zap.String("meeting_id", p.MeetingID),
			zap.String("student_id", p.StudentID))
	}
}

func (h *MeetingWSHandler) replyAttendanceError(sess *wsSession, err error) {
	h.counters.IncRejected()
	msg := "could not record attendance"
	switch {
	case errors.Is(err, errs.ErrMeetingNotFound):
		msg = "meeting not found"
	case errors.Is(err, errs.ErrMeetingEnded):
		msg = "meeting already ended"
	default:
		h.logger.Error("attendance update failed", zap.Error(err))
	}
	h.hub.SendEvent(sess.client, model.EventAttendanceError, model.ErrorReply{Message: msg})
}
