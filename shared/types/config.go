package types

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Config contains the configuration for the server, the core services and
// the web handlers.
type Config struct {
	// HTTPPort is the port to listen on
	HTTPPort int
	// BasePath is the base URL path for the application
	BasePath string
	// ActionParam is the query parameter used for actions
	ActionParam string
	// SessionSecret is the secret used for session management
	SessionSecret string
	// SecureCookies marks session cookies as Secure
	SecureCookies bool

	// StorePath is the SQLite file holding saved connections and settings
	StorePath string

	// ProbeTimeout bounds a single connectivity test
	ProbeTimeout time.Duration
	// ProbeSchedule is the cron spec for re-testing connected profiles; empty disables it
	ProbeSchedule string
	// ProbeParallelism limits concurrent probes when testing every profile
	ProbeParallelism int

	// QueryTimeout bounds a single query execution
	QueryTimeout time.Duration
	// MaxRows caps the rows kept from a single result
	MaxRows int
	// DefaultTable is used when a question carries no table hint
	DefaultTable string
	// ReadOnlyMode forces read-only operations regardless of DB grants
	ReadOnlyMode bool
	// SafeModeDefault blocks destructive DDL
	SafeModeDefault bool

	// OpenAIBaseURL is the OpenAI compatible endpoint used for translation
	OpenAIBaseURL string
	// OpenAIModel is the chat model used for translation
	OpenAIModel string
	// OpenAIAPIKey seeds the stored API key when none is saved yet
	OpenAIAPIKey string

	// LogLevel is one of debug, info, warn, error
	LogLevel string
	// LogJSON switches the log handler to JSON
	LogJSON bool

	// RateLimitRPS is the sustained per-client request rate; 0 disables limiting
	RateLimitRPS int
	// RateLimitBurst is the per-client burst size
	RateLimitBurst int
}

// SlogLevel parses LogLevel, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate checks value ranges after loading.
func (c Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT_SECONDS must be positive")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxRows <= 0 {
		return fmt.Errorf("MAX_ROWS must be positive")
	}
	if c.ProbeSchedule != "" {
		if _, err := cron.ParseStandard(c.ProbeSchedule); err != nil {
			return fmt.Errorf("PROBE_SCHEDULE: %w", err)
		}
	}
	return nil
}
