package domain

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolName identifies a tool in the closed catalogue.
type ToolName string

const (
	// ToolUnlock is the gate tool; it is always visible and unlocks the rest.
	ToolUnlock ToolName = "unlock_more_tools"
	// ToolCalculateSum adds two numbers.
	ToolCalculateSum ToolName = "calculate_sum"
	// ToolSayHello greets a name.
	ToolSayHello ToolName = "say_hello"
)

// gatedToolNames lists the gated tools in presentation order.
var gatedToolNames = []ToolName{ToolCalculateSum, ToolSayHello}

// ParseToolName maps a wire name onto the catalogue.
func ParseToolName(name string) (ToolName, bool) {
	switch ToolName(name) {
	case ToolUnlock, ToolCalculateSum, ToolSayHello:
		return ToolName(name), true
	default:
		return "", false
	}
}

// GateTool defines the MCP tool schema for unlocking the gated tools.
func GateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        string(ToolUnlock),
		Description: "Unlock more tools!",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
			Required:   []string{},
		},
	}
}

// CalculateSumTool defines the MCP tool schema for adding two numbers.
func CalculateSumTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        string(ToolCalculateSum),
		Description: "Add two numbers together",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"a": {Type: "number", Description: "First number"},
				"b": {Type: "number", Description: "Second number"},
			},
			Required: []string{"a", "b"},
		},
	}
}

// SayHelloTool defines the MCP tool schema for greeting a name.
func SayHelloTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        string(ToolSayHello),
		Description: "Greets the users",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name": {Type: "string", Description: "Name of the person to greet"},
			},
			Required: []string{"name"},
		},
	}
}

// GatedTools returns the tools that become visible once a session unlocks,
// in presentation order. Each call returns fresh values.
func GatedTools() []*mcp.Tool {
	tools := make([]*mcp.Tool, 0, len(gatedToolNames))
	for _, name := range gatedToolNames {
		tools = append(tools, toolDefinition(name))
	}
	return tools
}

// AllTools returns the gate tool followed by every gated tool.
func AllTools() []*mcp.Tool {
	return append([]*mcp.Tool{GateTool()}, GatedTools()...)
}

func toolDefinition(name ToolName) *mcp.Tool {
	switch name {
	case ToolUnlock:
		return GateTool()
	case ToolCalculateSum:
		return CalculateSumTool()
	case ToolSayHello:
		return SayHelloTool()
	default:
		return nil
	}
}
