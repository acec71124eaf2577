package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amhar4u/Smart-LMS-sub001/internal/handler"
	"github.com/amhar4u/Smart-LMS-sub001/pkg/constants"
)

// New builds the HTTP router.
func New(
	meetingHandler *handler.MeetingHandler,
	meetingWS *handler.MeetingWSHandler,
	health *handler.HealthHandler,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)
	r.GET(constants.PathMetrics, gin.WrapH(promhttp.Handler()))

	// REST meetings
	meetings := r.Group("/meetings")
	{
		meetings.POST("", meetingHandler.CreateMeeting)
		meetings.GET("/:id", meetingHandler.GetMeeting)
		meetings.POST("/:id/start", meetingHandler.StartMeeting)
		meetings.POST("/:id/end", meetingHandler.EndMeeting)
		meetings.GET("/:id/attendance", meetingHandler.GetAttendance)
		meetings.GET("/:id/engagement", meetingHandler.GetEngagement)
		meetings.GET("/:id/alerts", meetingHandler.GetAlerts)
	}

	// WebSocket: /ws/meetings/:meeting_id/:user_id
	r.GET("/ws/meetings/:meeting_id/:user_id", meetingWS.ServeWS)

	return r
}
