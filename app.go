// Package insightpilot serves the query session orchestrator: saved database
// connections, connectivity probes and natural-language questions answered
// with SQL, behind a single-endpoint JSON API.
package insightpilot

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dracory/api"
	"github.com/dracory/insightpilot/api/api_ask"
	"github.com/dracory/insightpilot/api/api_export"
	"github.com/dracory/insightpilot/api/api_profile_delete"
	"github.com/dracory/insightpilot/api/api_profile_probe"
	"github.com/dracory/insightpilot/api/api_profile_save"
	"github.com/dracory/insightpilot/api/api_profiles_list"
	"github.com/dracory/insightpilot/api/api_settings"
	"github.com/dracory/insightpilot/api/api_tables_list"
	"github.com/dracory/insightpilot/api/api_turns_list"
	"github.com/dracory/insightpilot/internal/nl2sql"
	"github.com/dracory/insightpilot/internal/observability"
	"github.com/dracory/insightpilot/internal/probe"
	"github.com/dracory/insightpilot/internal/querysession"
	"github.com/dracory/insightpilot/internal/registry"
	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/driver"
	"github.com/dracory/insightpilot/shared/session"
	"github.com/dracory/insightpilot/shared/store"
	"github.com/dracory/insightpilot/shared/types"
)

// App wires the registry, prober, translator and browser sessions together.
type App struct {
	cfg    types.Config
	logger *slog.Logger

	store      store.Store
	closeStore func() error
	driver     driver.Driver
	translator nl2sql.Translator
	keys       nl2sql.KeySource

	registry *registry.Registry
	prober   *probe.Prober
	sessions *session.Manager
	limiter  *RateLimiter
}

// New builds an App from cfg. Options replace the store, driver, translator
// or logger; anything not replaced is built from cfg.
func New(cfg types.Config, options ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, option := range options {
		option(a)
	}
	if a.cfg.ActionParam == "" {
		a.cfg.ActionParam = "action"
	}
	if a.cfg.BasePath == "" {
		a.cfg.BasePath = "/"
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	if a.store == nil {
		st, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = st
		a.closeStore = st.Close
	}

	if a.driver == nil {
		a.driver = driver.NewGorm(driver.Options{
			MaxRows:  cfg.MaxRows,
			ReadOnly: cfg.ReadOnlyMode,
			SafeMode: cfg.SafeModeDefault,
		})
	}

	a.keys = nl2sql.StoreKeySource{Store: a.store, Default: cfg.OpenAIAPIKey}
	if a.translator == nil {
		a.translator = nl2sql.NewAuto(a.keys, nl2sql.OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, nl2sql.Rules{DefaultTable: cfg.DefaultTable}, a.logger)
	}

	reg, err := registry.New(a.store, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("restore connections: %w", err)
	}
	a.registry = reg

	a.prober = probe.New(reg, a.driver, probe.Options{
		Timeout:     cfg.ProbeTimeout,
		Parallelism: cfg.ProbeParallelism,
		Logger:      a.logger,
	})

	a.sessions = session.NewManager(cfg.SessionSecret, cfg.SecureCookies, func() *querysession.Session {
		return querysession.New(reg, a.translator, a.driver, querysession.Options{
			QueryTimeout: cfg.QueryTimeout,
			Logger:       a.logger,
		})
	})

	if cfg.RateLimitRPS > 0 {
		a.limiter = NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	return a, nil
}

func (a *App) Registry() *registry.Registry { return a.registry }
func (a *App) Prober() *probe.Prober        { return a.prober }
func (a *App) Sessions() *session.Manager   { return a.sessions }
func (a *App) Logger() *slog.Logger         { return a.logger }

// NewQuerySession creates a session outside any browser cookie, for callers
// such as the MCP server.
func (a *App) NewQuerySession() *querysession.Session {
	return querysession.New(a.registry, a.translator, a.driver, querysession.Options{
		QueryTimeout: a.cfg.QueryTimeout,
		Logger:       a.logger,
	})
}

// Sweep drops browser sessions and rate limit entries idle for longer than
// maxIdle.
func (a *App) Sweep(maxIdle time.Duration) {
	sessions := a.sessions.Sweep(maxIdle)
	clients := 0
	if a.limiter != nil {
		clients = a.limiter.Sweep(maxIdle)
	}
	if sessions > 0 || clients > 0 {
		a.logger.Info("swept idle state", "sessions", sessions, "rate_limit_clients", clients)
	}
}

// Close releases the store opened by New.
func (a *App) Close() error {
	if a.closeStore == nil {
		return nil
	}
	err := a.closeStore()
	a.closeStore = nil
	return err
}

// Handler returns an http.Handler that serves the JSON API
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.BasePath, a.handleRequest)

	var h http.Handler = mux
	if a.limiter != nil {
		h = a.limiter.Middleware(h)
	}
	h = SecurityHeaders(h)
	return RequestLogger(a.logger, a.cfg.ActionParam)(h)
}

// handleRequest routes requests to the appropriate handler
func (a *App) handleRequest(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get(a.cfg.ActionParam)

	switch action {
	case constants.ActionHealthz:
		api.Respond(w, r, api.SuccessWithData("ok", map[string]any{
			"service":     observability.ServiceName,
			"connections": len(a.registry.List()),
		}))

	case constants.ActionProfilesList, constants.ActionProfiles:
		api_profiles_list.New(a.registry).ServeHTTP(w, r)
	case constants.ActionProfileSave, constants.ActionProfilesSave:
		api_profile_save.New(a.registry).ServeHTTP(w, r)
	case constants.ActionProfileDelete:
		api_profile_delete.New(a.registry).ServeHTTP(w, r)
	case constants.ActionProfileTest:
		api_profile_probe.New(a.prober, a.registry).Test(w, r)
	case constants.ActionProfileTestCancel:
		api_profile_probe.New(a.prober, a.registry).Cancel(w, r)

	case constants.ActionTablesList, constants.ActionListTables:
		api_tables_list.New(a.sessions).Handle(w, r)

	case constants.ActionAsk:
		api_ask.New(a.sessions).ServeHTTP(w, r)
	case constants.ActionTurnsList:
		api_turns_list.New(a.sessions).ServeHTTP(w, r)
	case constants.ActionExport:
		api_export.New(a.sessions).ServeHTTP(w, r)

	case constants.ActionSettings:
		api_settings.New(a.store, a.keys).ServeHTTP(w, r)

	case "":
		api.Respond(w, r, api.Error(a.cfg.ActionParam+" is required"))
	default:
		api.Respond(w, r, api.Error("unknown action: "+action))
	}
}
