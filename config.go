package insightpilot

import (
	"flag"
	"os"
	"time"

	"github.com/dracory/env"
	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/types"
)

// LoadConfig reads flags/env with sensible defaults.
// Flags take precedence over env.
func LoadConfig() (types.Config, error) {
	return loadConfig(flag.CommandLine, os.Args[1:])
}

func loadConfig(fs *flag.FlagSet, args []string) (types.Config, error) {
	var cfg types.Config

	// Optionally load from .env files (missing files are ignored inside the lib)
	env.Load(".env")

	cfg.HTTPPort = env.GetIntOrDefault("HTTP_PORT", 8080)
	cfg.BasePath = env.GetStringOrDefault("BASE_URL", "/")
	cfg.ActionParam = env.GetStringOrDefault("ACTION_PARAM", "action")
	cfg.SessionSecret = env.GetStringOrDefault("SESSION_SECRET", "dev-insecure-change-me")
	cfg.SecureCookies = env.GetBoolOrDefault("SECURE_COOKIES", false)
	cfg.StorePath = env.GetStringOrDefault("STORE_PATH", "insightpilot.db")

	cfg.ProbeTimeout = seconds(env.GetIntOrDefault("PROBE_TIMEOUT_SECONDS", 10))
	cfg.ProbeSchedule = env.GetStringOrDefault("PROBE_SCHEDULE", "@every 5m")
	cfg.ProbeParallelism = env.GetIntOrDefault("PROBE_PARALLELISM", 4)

	cfg.QueryTimeout = seconds(env.GetIntOrDefault("QUERY_TIMEOUT_SECONDS", 30))
	cfg.MaxRows = env.GetIntOrDefault("MAX_ROWS", 200)
	cfg.DefaultTable = env.GetStringOrDefault("DEFAULT_TABLE", constants.FallbackTable)
	cfg.ReadOnlyMode = env.GetBoolOrDefault("READ_ONLY_MODE", true)
	cfg.SafeModeDefault = env.GetBoolOrDefault("SAFE_MODE_DEFAULT", true)

	cfg.OpenAIBaseURL = env.GetStringOrDefault("OPENAI_BASE_URL", "https://api.openai.com")
	cfg.OpenAIModel = env.GetStringOrDefault("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIAPIKey = env.GetStringOrDefault("OPENAI_API_KEY", "")

	cfg.LogLevel = env.GetStringOrDefault("LOG_LEVEL", "info")
	cfg.LogJSON = env.GetBoolOrDefault("LOG_JSON", false)

	cfg.RateLimitRPS = env.GetIntOrDefault("RATE_LIMIT_RPS", 5)
	cfg.RateLimitBurst = env.GetIntOrDefault("RATE_LIMIT_BURST", 10)

	// Flags
	port := fs.Int("port", cfg.HTTPPort, "HTTP port to listen on")
	base := fs.String("base", cfg.BasePath, "Base path to mount handler under (e.g. /insight)")
	storePath := fs.String("store", cfg.StorePath, "SQLite file holding saved connections")
	readOnly := fs.Bool("readonly", cfg.ReadOnlyMode, "Reject statements that write")
	safe := fs.Bool("safe", cfg.SafeModeDefault, "Safe mode default (block destructive ops)")
	schedule := fs.String("probe-schedule", cfg.ProbeSchedule, "Cron spec for re-testing connections, empty disables")
	logLevel := fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.HTTPPort = *port
	cfg.BasePath = *base
	cfg.StorePath = *storePath
	cfg.ReadOnlyMode = *readOnly
	cfg.SafeModeDefault = *safe
	cfg.ProbeSchedule = *schedule
	cfg.LogLevel = *logLevel

	return cfg, cfg.Validate()
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
