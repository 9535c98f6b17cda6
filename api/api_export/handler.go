package api_export

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dracory/api"
	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/session"
)

// Sessions resolves the browser session of a request.
type Sessions interface {
	Ensure(w http.ResponseWriter, r *http.Request) *session.Session
}

// Handler downloads the result of a turn as CSV.
type Handler struct {
	sessions Sessions
}

// New creates a new export handler
func New(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

// ServeHTTP writes the CSV attachment, or an error envelope when there is
// nothing to export.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.Respond(w, r, api.Error("method not allowed"))
		return
	}

	delimiter, err := parseDelimiter(r.URL.Query().Get("delimiter"))
	if err != nil {
		api.Respond(w, r, api.Error(err.Error()))
		return
	}

	sess := h.sessions.Ensure(w, r)
	text, err := sess.Query.Export(strings.TrimSpace(r.URL.Query().Get("turn_id")), delimiter)
	if err != nil {
		api.Respond(w, r, api.Error(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", constants.ExportFileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func parseDelimiter(raw string) (rune, error) {
	switch raw {
	case "", ",":
		return ',', nil
	case "tab", "\t":
		return '\t', nil
	}
	if utf8.RuneCountInString(raw) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character")
	}
	d, _ := utf8.DecodeRuneInString(raw)
	if d == '"' || d == '\r' || d == '\n' {
		return 0, fmt.Errorf("delimiter %q is not allowed", d)
	}
	return d, nil
}
