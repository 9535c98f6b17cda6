package api_tables_list

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

// TablesList lists the tables of a connected profile for the schema browser
type TablesList struct {
	sessions Sessions
}

// New creates a new TablesList handler
func New(sessions Sessions) *TablesList {
	return &TablesList{sessions: sessions}
}

// Handle processes the request to list database tables
func (h *TablesList) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.Respond(w, r, api.Error("method not allowed"))
		return
	}

	connectionID := strings.TrimSpace(r.URL.Query().Get("connection_id"))
	if connectionID == "" {
		api.Respond(w, r, api.Error("connection_id is required"))
		return
	}

	sess := h.sessions.Ensure(w, r)
	tables, err := sess.Query.Tables(r.Context(), connectionID)
	if err != nil {
		api.Respond(w, r, api.Error(err.Error()))
		return
	}

	api.Respond(w, r, api.SuccessWithData("", map[string]any{
		"connection_id": connectionID,
		"tables":        tables,
	}))
}
