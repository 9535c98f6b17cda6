package nl2sql

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/store"
)

// KeySource supplies the current model API key; an empty key disables the model.
type KeySource interface {
	OpenAIKey() (string, error)
}

// StoreKeySource reads the key saved in the settings store.
type StoreKeySource struct {
	Store store.Store
	// Default is used when no key has been saved.
	Default string
}

func (s StoreKeySource) OpenAIKey() (string, error) {
	raw, ok, err := s.Store.Get(constants.StoreKeyOpenAIAPIKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return s.Default, nil
	}
	return strings.TrimSpace(string(raw)), nil
}

// Auto uses the model translator while an API key is configured and the rule
// translator otherwise, or when the model fails. It never returns an error.
type Auto struct {
	keys   KeySource
	cfg    OpenAIConfig
	rules  Rules
	logger *slog.Logger

	mu        sync.Mutex
	cachedKey string
	cached    Translator
}

var _ Translator = (*Auto)(nil)

// NewAuto creates an Auto translator. cfg.APIKey is ignored; keys are read
// from keys on every call.
func NewAuto(keys KeySource, cfg OpenAIConfig, rules Rules, logger *slog.Logger) *Auto {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auto{keys: keys, cfg: cfg, rules: rules, logger: logger}
}

func (a *Auto) Translate(ctx context.Context, req Request) (Result, error) {
	key, err := a.keys.OpenAIKey()
	if err != nil {
		a.logger.Warn("read api key, using rules", "error", err)
		key = ""
	}
	if key == "" {
		return a.rules.Translate(ctx, req)
	}

	model, err := a.model(key)
	if err != nil {
		a.logger.Warn("model translator unavailable, using rules", "error", err)
		return a.fallback(ctx, req)
	}

	res, err := model.Translate(ctx, req)
	if err != nil {
		a.logger.Warn("model translation failed, using rules", "error", err)
		return a.fallback(ctx, req)
	}
	return res, nil
}

func (a *Auto) fallback(ctx context.Context, req Request) (Result, error) {
	res, err := a.rules.Translate(ctx, req)
	res.Fallback = true
	return res, err
}

func (a *Auto) model(key string) (Translator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached != nil && a.cachedKey == key {
		return a.cached, nil
	}
	cfg := a.cfg
	cfg.APIKey = key
	tr, err := NewOpenAITranslator(cfg)
	if err != nil {
		return nil, err
	}
	a.cached, a.cachedKey = tr, key
	return tr, nil
}
