package insightpilot

import (
	"log/slog"

	"github.com/dracory/insightpilot/internal/nl2sql"
	"github.com/dracory/insightpilot/shared/driver"
	"github.com/dracory/insightpilot/shared/store"
)

// Option customises an App before its components are built.
type Option func(*App)

// WithStore replaces the SQLite store opened from Config.StorePath.
func WithStore(st store.Store) Option {
	return func(a *App) { a.store = st }
}

// WithDriver replaces the GORM backend driver.
func WithDriver(drv driver.Driver) Option {
	return func(a *App) { a.driver = drv }
}

// WithTranslator replaces the default rules-or-model translator.
func WithTranslator(tr nl2sql.Translator) Option {
	return func(a *App) { a.translator = tr }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}
