package domain

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// MethodToolsListChanged tells a client to re-fetch its tool list.
	MethodToolsListChanged = "notifications/tools/list_changed"
	// MethodResourcesUpdated announces the tools that became available.
	MethodResourcesUpdated = "notifications/resources/updated"
)

// Notification is a one-way protocol message pushed to a session.
type Notification struct {
	Method string
	Params any
}

// Notifier delivers notifications to the peer of a session.
// Implementations must not block for long; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, sessionID string, notification Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, sessionID string, notification Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, sessionID string, notification Notification) error {
	return f(ctx, sessionID, notification)
}

// ToolsListChangedParams is the payload of a tools/list_changed notification.
type ToolsListChangedParams struct {
	Message        string   `json:"message"`
	AvailableTools []string `json:"availableTools"`
	SessionID      string   `json:"sessionId"`
}

// ToolSummary names a tool and what it does.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ResourcesUpdatedParams is the payload of a resources/updated notification.
type ResourcesUpdatedParams struct {
	Message  string        `json:"message"`
	NewTools []ToolSummary `json:"newTools"`
}

// UnlockNotifications builds the notifications emitted when a session
// unlocks. Both carry only the newly available tools.
func UnlockNotifications(sessionID string, unlocked []*mcp.Tool) []Notification {
	names := make([]string, 0, len(unlocked))
	summaries := make([]ToolSummary, 0, len(unlocked))
	for _, tool := range unlocked {
		names = append(names, tool.Name)
		summaries = append(summaries, ToolSummary{Name: tool.Name, Description: tool.Description})
	}
	return []Notification{
		{
			Method: MethodToolsListChanged,
			Params: ToolsListChangedParams{
				Message:        "More tools unlocked! You now have access to: " + strings.Join(names, ", "),
				AvailableTools: names,
				SessionID:      sessionID,
			},
		},
		{
			Method: MethodResourcesUpdated,
			Params: ResourcesUpdatedParams{
				Message:  "Tool availability has been updated for this session",
				NewTools: summaries,
			},
		},
	}
}

func toolNames(tools []*mcp.Tool) string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return strings.Join(names, ", ")
}
