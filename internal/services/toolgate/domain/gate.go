package domain

import (
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// VisibleTools returns the tools a session may list.
func VisibleTools(session storage.Session) []*mcp.Tool {
	if !session.Unlocked {
		return []*mcp.Tool{GateTool()}
	}
	return AllTools()
}

// VisibleToolNames returns the names of VisibleTools in order.
func VisibleToolNames(session storage.Session) []string {
	tools := VisibleTools(session)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}

// IsCallAllowed reports whether a session may invoke name.
// The gate tool is always callable; everything else requires an unlocked session.
func IsCallAllowed(session storage.Session, name ToolName) bool {
	if name == ToolUnlock {
		return true
	}
	return session.Unlocked
}
