package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dracory/insightpilot/internal/querysession"
	"github.com/dracory/insightpilot/shared/types"
)

// previewRows caps the rows rendered into an ask result.
const previewRows = 20

// Lister returns the saved connections.
type Lister interface {
	List() []types.ConnectionProfile
}

// Prober tests one connection.
type Prober interface {
	Test(ctx context.Context, id string) (bool, error)
}

// ListConnectionsTool handles the list_connections MCP tool.
type ListConnectionsTool struct {
	profiles Lister
}

func NewListConnectionsTool(profiles Lister) *ListConnectionsTool {
	return &ListConnectionsTool{profiles: profiles}
}

func (t *ListConnectionsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_connections",
		mcp.WithDescription("List saved database connections with their type, target and connectivity status."),
	)
}

func (t *ListConnectionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := t.profiles.List()
	if len(list) == 0 {
		return mcp.NewToolResultText("No connections saved."), nil
	}

	var sb strings.Builder
	sb.WriteString("## Connections\n\n")
	for _, p := range list {
		sb.WriteString(fmt.Sprintf("- **%s** (`%s`): %s %s:%d/%s, %s\n",
			p.Name, p.ID, p.Kind, p.Host, p.Port, p.Database, p.Status))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// TestConnectionTool handles the test_connection MCP tool.
type TestConnectionTool struct {
	prober Prober
}

func NewTestConnectionTool(prober Prober) *TestConnectionTool {
	return &TestConnectionTool{prober: prober}
}

func (t *TestConnectionTool) Definition() mcp.Tool {
	return mcp.NewTool("test_connection",
		mcp.WithDescription("Test connectivity of a saved connection. A connection must pass a test before questions can be asked on it."),
		mcp.WithString("connection_id",
			mcp.Required(),
			mcp.Description("ID of the saved connection"),
		),
	)
}

func (t *TestConnectionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("connection_id", ""))
	if id == "" {
		return mcp.NewToolResultError("'connection_id' is required"), nil
	}
	if _, err := t.prober.Test(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Connection `%s` is connected.", id)), nil
}

// AskTool handles the ask MCP tool.
type AskTool struct {
	session *querysession.Session
}

func NewAskTool(session *querysession.Session) *AskTool {
	return &AskTool{session: session}
}

func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription("Translate a natural-language question into SQL, run it on a connected database and return the query with a preview of the rows."),
		mcp.WithString("connection_id",
			mcp.Required(),
			mcp.Description("ID of a connected connection"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question, e.g. 'how many orders'"),
		),
		mcp.WithString("table",
			mcp.Description("Table the question is about"),
		),
	)
}

func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("connection_id", ""))
	question := strings.TrimSpace(req.GetString("question", ""))
	if id == "" || question == "" {
		return mcp.NewToolResultError("'connection_id' and 'question' are required"), nil
	}
	var tableHint *string
	if table := strings.TrimSpace(req.GetString("table", "")); table != "" {
		tableHint = &table
	}

	turn, err := t.session.Ask(ctx, id, question, tableHint)
	if err != nil {
		var backendErr *types.BackendExecutionError
		if errors.As(err, &backendErr) && turn.Query != "" {
			return mcp.NewToolResultError(fmt.Sprintf("%v\n\nQuery:\n%s", err, turn.Query)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(renderTurn(turn)), nil
}

// ExportCSVTool handles the export_csv MCP tool.
type ExportCSVTool struct {
	session *querysession.Session
}

func NewExportCSVTool(session *querysession.Session) *ExportCSVTool {
	return &ExportCSVTool{session: session}
}

func (t *ExportCSVTool) Definition() mcp.Tool {
	return mcp.NewTool("export_csv",
		mcp.WithDescription("Export the rows of an answered question as CSV."),
		mcp.WithString("turn_id",
			mcp.Description("Turn to export (default: the last question)"),
		),
		mcp.WithString("delimiter",
			mcp.Description("Single character field separator (default: comma)"),
		),
	)
}

func (t *ExportCSVTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	delimiter := ','
	if d := req.GetString("delimiter", ""); d != "" {
		if utf8.RuneCountInString(d) != 1 {
			return mcp.NewToolResultError("'delimiter' must be a single character"), nil
		}
		delimiter, _ = utf8.DecodeRuneInString(d)
	}

	text, err := t.session.Export(strings.TrimSpace(req.GetString("turn_id", "")), delimiter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func renderTurn(turn querysession.Turn) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Turn `%s` via %s\n\n```sql\n%s\n```\n\n", turn.ID, turn.Provider, turn.Query))

	rs := turn.Result
	if rs.IsEmpty() {
		sb.WriteString("No rows.\n")
		return sb.String()
	}

	sb.WriteString("| " + strings.Join(rs.Columns, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(rs.Columns)) + "\n")
	for i, row := range rs.Rows {
		if i == previewRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = strings.ReplaceAll(v.String(), "|", "\\|")
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	sb.WriteString(fmt.Sprintf("\n%d row(s)", rs.RowCount))
	if rs.RowCount > previewRows {
		sb.WriteString(fmt.Sprintf(", first %d shown", previewRows))
	}
	if rs.Truncated {
		sb.WriteString(", result truncated")
	}
	sb.WriteString(". Use export_csv for the full result.\n")
	return sb.String()
}
