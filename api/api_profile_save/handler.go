package api_profile_save

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dracory/api"
	"github.com/dracory/insightpilot/shared/types"
)

// Saver adds new profiles and patches existing ones.
type Saver interface {
	Add(in types.ProfileInput) (types.ConnectionProfile, error)
	Update(id string, patch types.ProfilePatch) (types.ConnectionProfile, error)
}

// Handler creates a profile, or updates one when the form carries an id.
type Handler struct {
	profiles Saver
}

// New creates a new profile save handler
func New(profiles Saver) *Handler {
	return &Handler{profiles: profiles}
}

// ServeHTTP handles the HTTP request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.Respond(w, r, api.Error("profile_save must be POST"))
		return
	}
	if err := r.ParseForm(); err != nil {
		api.Respond(w, r, api.Error("failed to parse form"))
		return
	}

	var (
		profile types.ConnectionProfile
		err     error
	)
	if id := strings.TrimSpace(r.Form.Get("id")); id != "" {
		patch, perr := patchFromForm(r)
		if perr != nil {
			api.Respond(w, r, api.Error(perr.Error()))
			return
		}
		profile, err = h.profiles.Update(id, patch)
	} else {
		in, ierr := inputFromForm(r)
		if ierr != nil {
			api.Respond(w, r, api.Error(ierr.Error()))
			return
		}
		profile, err = h.profiles.Add(in)
	}
	if err != nil {
		api.Respond(w, r, api.Error(err.Error()))
		return
	}

	api.Respond(w, r, api.SuccessWithData("connection saved", map[string]interface{}{
		"profile": profile.Public(),
	}))
}

func inputFromForm(r *http.Request) (types.ProfileInput, error) {
	kind := parseKind(r.Form.Get("type"))
	port, err := parsePort(r.Form.Get("port"), kind)
	if err != nil {
		return types.ProfileInput{}, err
	}
	return types.ProfileInput{
		Name:     strings.TrimSpace(r.Form.Get("name")),
		Kind:     kind,
		Host:     strings.TrimSpace(r.Form.Get("host")),
		Port:     port,
		Database: strings.TrimSpace(r.Form.Get("database")),
		Username: strings.TrimSpace(r.Form.Get("username")),
		Secret:   r.Form.Get("password"),
	}, nil
}

// patchFromForm builds a patch from the fields present in the form. An empty
// password keeps the saved one.
func patchFromForm(r *http.Request) (types.ProfilePatch, error) {
	var patch types.ProfilePatch
	text := func(key string) *string {
		if _, ok := r.Form[key]; !ok {
			return nil
		}
		v := strings.TrimSpace(r.Form.Get(key))
		return &v
	}

	patch.Name = text("name")
	patch.Host = text("host")
	patch.Database = text("database")
	patch.Username = text("username")
	if pw := r.Form.Get("password"); pw != "" {
		patch.Secret = &pw
	}
	if _, ok := r.Form["type"]; ok {
		kind := parseKind(r.Form.Get("type"))
		patch.Kind = &kind
	}
	if _, ok := r.Form["port"]; ok && strings.TrimSpace(r.Form.Get("port")) != "" {
		port, err := parsePort(r.Form.Get("port"), "")
		if err != nil {
			return patch, err
		}
		patch.Port = &port
	}
	return patch, nil
}

// parseKind keeps unknown values as given so validation reports them.
func parseKind(s string) types.BackendKind {
	if kind, ok := types.ParseBackendKind(s); ok {
		return kind
	}
	return types.BackendKind(strings.TrimSpace(s))
}

// parsePort falls back to the backend's default port when empty.
func parsePort(s string, kind types.BackendKind) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if kind.Valid() {
			return kind.DefaultPort(), nil
		}
		return 0, nil
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, types.ErrValidation("port must be a number, got %q", s)
	}
	return port, nil
}
