package api_turns_list

import (
	"net/http"

	"github.com/dracory/api"
	"github.com/dracory/insightpilot/shared/session"
)

// Sessions resolves the browser session of a request.
type Sessions interface {
	Ensure(w http.ResponseWriter, r *http.Request) *session.Session
}

// Handler returns the chat history of the caller's session.
type Handler struct {
	sessions Sessions
}

func New(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.Respond(w, r, api.Error("method not allowed"))
		return
	}

	sess := h.sessions.Ensure(w, r)
	api.Respond(w, r, api.SuccessWithData("", map[string]any{
		"state": sess.Query.State(),
		"turns": sess.Query.Turns(),
	}))
}
