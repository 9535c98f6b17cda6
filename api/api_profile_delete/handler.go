package api_profile_delete

import (
	"net/http"
	"strings"

	"github.com/dracory/api"
)

// Deleter removes profiles by id. Unknown ids are not an error.
type Deleter interface {
	Delete(id string) error
}

// Handler deletes a saved connection profile
type Handler struct {
	profiles Deleter
}

// New creates a new profile delete handler
func New(profiles Deleter) *Handler {
	return &Handler{profiles: profiles}
}

// ServeHTTP handles the HTTP request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.Respond(w, r, api.Error("profile_delete must be POST"))
		return
	}
	if err := r.ParseForm(); err != nil {
		api.Respond(w, r, api.Error("failed to parse form"))
		return
	}

	id := strings.TrimSpace(r.Form.Get("id"))
	if id == "" {
		api.Respond(w, r, api.Error("id is required"))
		return
	}

	if err := h.profiles.Delete(id); err != nil {
		api.Respond(w, r, api.Error("failed to delete connection: "+err.Error()))
		return
	}
	api.Respond(w, r, api.Success("connection deleted"))
}
