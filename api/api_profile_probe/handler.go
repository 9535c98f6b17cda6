package api_profile_probe

import (
	"context"
	"net/http"
	"strings"

	"github.com/dracory/api"
	"github.com/dracory/insightpilot/shared/types"
)

// Prober runs and cancels connectivity tests.
type Prober interface {
	Test(ctx context.Context, id string) (bool, error)
	Cancel(id string) bool
}

// Getter reads a profile.
type Getter interface {
	Get(id string) (types.ConnectionProfile, error)
}

// Handler tests saved profiles. Test blocks until the probe finishes, times
// out, or is cancelled through Cancel from another request.
type Handler struct {
	probe    Prober
	profiles Getter
}

// New creates a new profile probe handler
func New(probe Prober, profiles Getter) *Handler {
	return &Handler{probe: probe, profiles: profiles}
}

// Test handles the profile_test action
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := h.formID(w, r, "profile_test")
	if !ok {
		return
	}

	connected, err := h.probe.Test(r.Context(), id)

	data := map[string]interface{}{"connected": connected}
	if p, gerr := h.profiles.Get(id); gerr == nil {
		data["profile"] = p.Public()
	}
	if err != nil {
		api.Respond(w, r, api.ErrorWithData(err.Error(), data))
		return
	}
	api.Respond(w, r, api.SuccessWithData("connection successful", data))
}

// Cancel handles the profile_test_cancel action
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.formID(w, r, "profile_test_cancel")
	if !ok {
		return
	}
	if !h.probe.Cancel(id) {
		api.Respond(w, r, api.Error("no connection test is running for "+id))
		return
	}
	api.Respond(w, r, api.Success("connection test cancelled"))
}

func (h *Handler) formID(w http.ResponseWriter, r *http.Request, action string) (string, bool) {
	if r.Method != http.MethodPost {
		api.Respond(w, r, api.Error(action+" must be POST"))
		return "", false
	}
	if err := r.ParseForm(); err != nil {
		api.Respond(w, r, api.Error("failed to parse form"))
		return "", false
	}
	id := strings.TrimSpace(r.Form.Get("id"))
	if id == "" {
		api.Respond(w, r, api.Error("id is required"))
		return "", false
	}
	return id, true
}
