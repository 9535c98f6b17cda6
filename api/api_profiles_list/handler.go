package api_profiles_list

import (
	"net/http"

	"github.com/dracory/api"
	"github.com/dracory/insightpilot/shared/types"
)

// Lister returns the saved profiles in display order.
type Lister interface {
	List() []types.ConnectionProfile
}

// Handler handles the profiles list API requests
type Handler struct {
	profiles Lister
}

// New creates a new profiles list handler
func New(profiles Lister) *Handler {
	return &Handler{profiles: profiles}
}

// ServeHTTP handles the HTTP request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.Respond(w, r, api.Error("method not allowed"))
		return
	}

	api.Respond(w, r, api.SuccessWithData("", map[string]interface{}{
		"profiles": types.PublicProfiles(h.profiles.List()),
	}))
}
