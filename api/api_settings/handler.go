package api_settings

import (
	"net/http"
	"strings"

	"github.com/dracory/api"
	"github.com/dracory/insightpilot/internal/nl2sql"
	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/store"
)

// Handler reads and updates the translation settings. The API key is write
// only; responses report whether one is set.
type Handler struct {
	store store.Store
	keys  nl2sql.KeySource
}

// New creates a new settings handler
func New(st store.Store, keys nl2sql.KeySource) *Handler {
	return &Handler{store: st, keys: keys}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.respondSettings(w, r, "")
	case http.MethodPost:
		h.save(w, r)
	default:
		api.Respond(w, r, api.Error("method not allowed"))
	}
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		api.Respond(w, r, api.Error("failed to parse form"))
		return
	}
	if _, ok := r.PostForm["openai_api_key"]; !ok {
		api.Respond(w, r, api.Error("openai_api_key is required"))
		return
	}

	key := strings.TrimSpace(r.PostForm.Get("openai_api_key"))
	if err := h.store.Set(constants.StoreKeyOpenAIAPIKey, []byte(key)); err != nil {
		api.Respond(w, r, api.Error("failed to save settings: "+err.Error()))
		return
	}
	h.respondSettings(w, r, "settings saved")
}

func (h *Handler) respondSettings(w http.ResponseWriter, r *http.Request, msg string) {
	key, err := h.keys.OpenAIKey()
	if err != nil {
		api.Respond(w, r, api.Error("failed to read settings: "+err.Error()))
		return
	}

	provider := nl2sql.ProviderRules
	if key != "" {
		provider = nl2sql.ProviderOpenAI
	}
	api.Respond(w, r, api.SuccessWithData(msg, map[string]any{
		"openai_api_key_set": key != "",
		"provider":           provider,
	}))
}
