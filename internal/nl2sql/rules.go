package nl2sql

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/types"
)

const ProviderRules = "rules"

// Rule names.
const (
	RuleList     = "list"
	RuleCount    = "count"
	RuleRecent   = "recent"
	RuleFallback = "fallback"
)

var (
	listMarkers   = markerSet("todos", "todas", "listar", "lista", "all", "list")
	countMarkers  = markerSet("contar", "cuántos", "cuántas", "cuantos", "cuantas", "count")
	recentMarkers = markerSet("últimos", "últimas", "ultimos", "ultimas", "recientes", "recent", "latest", "newest")

	bareIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

func markerSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Rules is the keyword heuristic translator. It never fails.
type Rules struct {
	// DefaultTable replaces the built-in fallback table when set.
	DefaultTable string
}

var _ Translator = Rules{}

func (r Rules) Translate(_ context.Context, req Request) (Result, error) {
	return translate(req.Utterance, req.TableHint, req.Dialect, r.DefaultTable), nil
}

// Translate applies the keyword cascade: list, count, recent, then a name
// search on the first word. It is a pure function of its arguments.
func Translate(utterance string, tableHint *string, dialect types.BackendKind) Result {
	return translate(utterance, tableHint, dialect, "")
}

func translate(utterance string, tableHint *string, dialect types.BackendKind, defaultTable string) Result {
	table := defaultTable
	if table == "" {
		table = constants.FallbackTable
	}
	if tableHint != nil && strings.TrimSpace(*tableHint) != "" {
		table = strings.TrimSpace(*tableHint)
	}
	t := QuoteIdentifier(dialect, table)
	tokens := words(utterance)

	res := Result{Dialect: dialect, Provider: ProviderRules}
	switch {
	case containsAny(tokens, listMarkers):
		res.Rule = RuleList
		res.SQL = limited(dialect, "SELECT * FROM "+t, "", 10)
	case containsAny(tokens, countMarkers) || containsPhrase(tokens, "how", "many"):
		res.Rule = RuleCount
		res.SQL = "SELECT COUNT(*) AS total FROM " + t + ";"
	case containsAny(tokens, recentMarkers):
		res.Rule = RuleRecent
		res.SQL = limited(dialect, "SELECT * FROM "+t, " ORDER BY created_at DESC", 5)
	default:
		first := ""
		if len(tokens) > 0 {
			first = strings.ReplaceAll(tokens[0], "'", "''")
		}
		res.Rule = RuleFallback
		res.SQL = "SELECT * FROM " + t + " WHERE name LIKE '%" + first + "%';"
	}
	return res
}

// limited renders base with a row limit in the dialect's syntax.
func limited(dialect types.BackendKind, base, orderBy string, n int) string {
	if dialect == types.BackendSQLServer {
		return strings.Replace(base, "SELECT ", fmt.Sprintf("SELECT TOP %d ", n), 1) + orderBy + ";"
	}
	return fmt.Sprintf("%s%s LIMIT %d;", base, orderBy, n)
}

// QuoteIdentifier quotes each dotted part of name unless it is a plain
// lower-case identifier.
func QuoteIdentifier(dialect types.BackendKind, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if bareIdent.MatchString(p) {
			continue
		}
		switch dialect {
		case types.BackendMySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case types.BackendSQLServer:
			parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
		default:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// words lower-cases s and splits it on anything that is not a letter, digit,
// apostrophe or underscore.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(strings.TrimSpace(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '\''
	})
}

func containsAny(words []string, markers map[string]bool) bool {
	for _, w := range words {
		if markers[w] {
			return true
		}
	}
	return false
}

func containsPhrase(words []string, phrase ...string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
