// Package observability provides the logger and prometheus metrics.
package observability

import (
	"io"
	"log/slog"

	"github.com/dracory/insightpilot/shared/types"
)

// ServiceName is attached to every log line.
const ServiceName = "insightpilot"

// NewLogger builds the process logger from config.
func NewLogger(cfg types.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(slog.String("service", ServiceName))
}
