package api_ask

import (
	"net/http"
	"strings"

	"github.com/dracory/api"
	"github.com/dracory/insightpilot/shared/session"
)

// Sessions resolves the browser session of a request.
type Sessions interface {
	Ensure(w http.ResponseWriter, r *http.Request) *session.Session
}

// Handler answers a natural-language question on a connected profile.
type Handler struct {
	sessions Sessions
}

// New creates a new ask handler
func New(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

// ServeHTTP handles the HTTP request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.Respond(w, r, api.Error("ask must be POST"))
		return
	}
	if err := r.ParseForm(); err != nil {
		api.Respond(w, r, api.Error("failed to parse form"))
		return
	}

	connectionID := strings.TrimSpace(r.Form.Get("connection_id"))
	question := strings.TrimSpace(r.Form.Get("question"))
	if question == "" {
		api.Respond(w, r, api.Error("question is required"))
		return
	}
	var tableHint *string
	if table := strings.TrimSpace(r.Form.Get("table")); table != "" {
		tableHint = &table
	}

	sess := h.sessions.Ensure(w, r)
	turn, err := sess.Query.Ask(r.Context(), connectionID, question, tableHint)
	if err != nil {
		// failed turns are recorded; return them so the query stays visible
		if turn.ID != "" {
			api.Respond(w, r, api.ErrorWithData(err.Error(), map[string]any{"turn": turn}))
			return
		}
		api.Respond(w, r, api.Error(err.Error()))
		return
	}

	api.Respond(w, r, api.SuccessWithData("query executed", map[string]any{
		"turn": turn,
	}))
}
