package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amhar4u/Smart-LMS-sub001/internal/config"
	"github.com/amhar4u/Smart-LMS-sub001/internal/database"
	"github.com/amhar4u/Smart-LMS-sub001/internal/handler"
	"github.com/amhar4u/Smart-LMS-sub001/internal/router"
	"github.com/amhar4u/Smart-LMS-sub001/internal/service"
	"github.com/amhar4u/Smart-LMS-sub001/internal/store"
	"github.com/amhar4u/Smart-LMS-sub001/internal/telemetry"
)

// API is the HTTP + WebSocket API application.
type API struct {
	cfg         *config.Config
	srv         *http.Server
	db          *gorm.DB
	hub         *service.MeetingHub
	counters    *telemetry.Counters
	broadcaster *service.LiveBroadcaster
}

// NewAPI creates the API application: validates config, runs migrations,
// opens the DB, wires services and builds the router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	hub := service.NewMeetingHub(cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSMaxMessageSize, logger)
	counters := telemetry.NewCounters(logger, prometheus.DefaultRegisterer)

	attendanceStore := store.NewAttendanceStore(db)
	sampleStore := store.NewSampleStore(db)

	meetingSvc := service.NewMeetingService(db, hub, logger)
	attendanceSvc := service.NewAttendanceService(attendanceStore, meetingSvc, cfg, logger)
	meetingSvc.SetFinalizer(attendanceSvc)
	emotionSvc := service.NewEmotionService(sampleStore, logger)
	engagementSvc := service.NewEngagementService(sampleStore, cfg)
	broadcaster := service.NewLiveBroadcaster(hub, engagementSvc, cfg.EngagementBroadcastEvery, logger)

	meetingHandler := handler.NewMeetingHandler(meetingSvc, attendanceSvc, engagementSvc, cfg.WSBaseURL)
	meetingWS := handler.NewMeetingWSHandler(hub, meetingSvc, attendanceSvc, emotionSvc, engagementSvc, counters, logger)
	health := handler.NewHealthHandler()

	r := router.New(meetingHandler, meetingWS, health)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:         cfg,
		srv:         srv,
		db:          db,
		hub:         hub,
		counters:    counters,
		broadcaster: broadcaster,
	}, nil
}

// Run starts the HTTP server and the timers, blocks until ctx is cancelled,
// then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.srv.Addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Metrics:       %s/metrics", base)
	log.Printf("  Meetings:      %s/meetings", base)
	log.Printf("  WebSocket:     ws://%s:%s/ws/meetings/:meeting_id/:user_id", host, a.cfg.HTTPPort)

	go a.counters.Run(ctx)
	go a.broadcaster.Run(ctx)

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
