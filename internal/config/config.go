package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds presence-service configuration.
type Config struct {
	AppEnv   string // APP_ENV
	AppHost  string // APP_HOST
	HTTPPort string // APP_PORT or HTTP_PORT
	LogLevel string // LOG_LEVEL

	// PostgreSQL
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// WebSocket
	WSReadBufferSize  int
	WSWriteBufferSize int
	WSMaxMessageSize  int64

	// WebSocket URL returned in CreateMeeting (e.g. wss://live.example.com)
	WSBaseURL string

	// Engagement thresholds. These are business thresholds inherited from the
	// classroom product, not derived constants; keep them overridable.
	LateGracePeriod          time.Duration // after scheduled start
	EngagementWindow         time.Duration // current-engagement snapshot
	AlertWindow              time.Duration // alert detection
	EngagedThreshold         float64       // attentiveness >= this counts as engaged
	NegativeThreshold        float64       // sad/angry/fearful >= this qualifies a sample
	NegativeHighThreshold    float64       // any qualifying value >= this raises severity to high
	LowAttentivenessCeiling  float64       // attentiveness <= this qualifies a sample
	AlertMinOccurrences      int           // qualifying samples needed before an alert fires
	PartialAttendanceCutoff  float64       // percentage below which status downgrades to partial
	EngagementBroadcastEvery time.Duration // periodic engagement push to meeting rooms; 0 disables
}

// Load loads config from environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	readBuf, _ := strconv.Atoi(getEnv("WS_READ_BUFFER_SIZE", "4096"))
	writeBuf, _ := strconv.Atoi(getEnv("WS_WRITE_BUFFER_SIZE", "4096"))
	maxMsg, _ := strconv.ParseInt(getEnv("WS_MAX_MESSAGE_SIZE", "65536"), 10, 64)

	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		AppHost:           getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:          firstEnv("APP_PORT", "HTTP_PORT", "8091"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		WSReadBufferSize:  readBuf,
		WSWriteBufferSize: writeBuf,
		WSMaxMessageSize:  maxMsg,
		WSBaseURL:         getEnv("WS_BASE_URL", ""),

		LateGracePeriod:          envSeconds("LATE_GRACE_PERIOD_SEC", 300),
		EngagementWindow:         envSeconds("ENGAGEMENT_WINDOW_SEC", 120),
		AlertWindow:              envSeconds("ALERT_WINDOW_SEC", 300),
		EngagedThreshold:         envFloat("ENGAGED_THRESHOLD", 0.7),
		NegativeThreshold:        envFloat("NEGATIVE_EMOTION_THRESHOLD", 0.5),
		NegativeHighThreshold:    envFloat("NEGATIVE_EMOTION_HIGH_THRESHOLD", 0.7),
		LowAttentivenessCeiling:  envFloat("LOW_ATTENTIVENESS_CEILING", 0.5),
		AlertMinOccurrences:      envInt("ALERT_MIN_OCCURRENCES", 2),
		PartialAttendanceCutoff:  envFloat("PARTIAL_ATTENDANCE_CUTOFF", 50),
		EngagementBroadcastEvery: envSeconds("ENGAGEMENT_BROADCAST_SEC", 30),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "presence_service")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

// Validate checks required fields and production safety.
func (c *Config) Validate() error {
	if c.DB.Host == "" {
		return errors.New("config: DB_HOST is required")
	}
	if c.DB.User == "" {
		return errors.New("config: DB_USER is required")
	}
	if c.DB.Database == "" {
		return errors.New("config: DB_DATABASE is required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.EngagedThreshold < 0 || c.EngagedThreshold > 1 {
		return errors.New("config: ENGAGED_THRESHOLD must be in [0,1]")
	}
	if c.NegativeThreshold < 0 || c.NegativeThreshold > 1 {
		return errors.New("config: NEGATIVE_EMOTION_THRESHOLD must be in [0,1]")
	}
	if c.AlertMinOccurrences < 1 {
		return errors.New("config: ALERT_MIN_OCCURRENCES must be >= 1")
	}
	return nil
}

// DSN returns PostgreSQL connection string for GORM.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// DatabaseURL returns postgres URL for golang-migrate.
func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

// Addr returns listen address for HTTP server.
func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func envSeconds(key string, def int) time.Duration {
	n := envInt(key, def)
	return time.Duration(n) * time.Second
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	keys := keysAndDef[:len(keysAndDef)-1]
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
