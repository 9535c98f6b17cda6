// Package nl2sql turns natural-language questions into SQL for a backend dialect.
package nl2sql

import (
	"context"

	"github.com/dracory/insightpilot/shared/types"
)

// Request is a question to translate.
type Request struct {
	Utterance string `json:"utterance"`
	// TableHint names the table the question is about; nil means the default table.
	TableHint *string           `json:"table_hint,omitempty"`
	Dialect   types.BackendKind `json:"dialect"`
	// Tables optionally lists the tables known on the connection.
	Tables []string `json:"tables,omitempty"`
}

// Result is a translated query.
type Result struct {
	SQL      string            `json:"sql"`
	Dialect  types.BackendKind `json:"dialect"`
	Provider string            `json:"provider"`
	Model    string            `json:"model,omitempty"`
	// Rule names the heuristic that produced SQL for the rule translator.
	Rule string `json:"rule,omitempty"`
	// Fallback is set when a model translator failed and rules were used instead.
	Fallback bool `json:"fallback,omitempty"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
