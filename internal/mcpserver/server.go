// Package mcpserver exposes saved connections and the ask pipeline as MCP
// tools, so assistants can query databases through the same session rules as
// the HTTP API.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/dracory/insightpilot/internal/querysession"
)

// Version is reported to MCP clients during initialization.
const Version = "0.1.0"

// New creates the MCP server. All tool calls share one query session, the
// conversation of the connected client.
func New(profiles Lister, prober Prober, session *querysession.Session) *server.MCPServer {
	s := server.NewMCPServer(
		"insightpilot",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	listTool := NewListConnectionsTool(profiles)
	s.AddTool(listTool.Definition(), listTool.Handle)

	testTool := NewTestConnectionTool(prober)
	s.AddTool(testTool.Definition(), testTool.Handle)

	askTool := NewAskTool(session)
	s.AddTool(askTool.Definition(), askTool.Handle)

	exportTool := NewExportCSVTool(session)
	s.AddTool(exportTool.Definition(), exportTool.Handle)

	return s
}

const instructions = `InsightPilot answers questions about relational databases.
Call list_connections to find a connection, test_connection before the first
question on it, then ask. export_csv returns the rows of the last answer.`
