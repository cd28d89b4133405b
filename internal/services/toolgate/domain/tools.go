package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	alreadyUnlockedText = "Tools are unlocked!"
	accessDeniedText    = "Access denied. Please unlock tools using unlock_more_tools first."
	sumTypeErrorText    = "Error: Both arguments must be numbers."
	nameTypeErrorText   = "Error: Name must be a string."
)

// toolHandler executes a gated tool against decoded arguments.
type toolHandler func(args map[string]any) *mcp.CallToolResult

// gatedHandlers is the closed dispatch table for gated tools.
var gatedHandlers = map[ToolName]toolHandler{
	ToolCalculateSum: calculateSum,
	ToolSayHello:     sayHello,
}

// DecodeArguments parses raw tool arguments into a map.
// Absent, null, and non-object arguments decode to an empty map so that tool
// handlers report type errors as text.
func DecodeArguments(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return args
	}
	return decoded
}

func calculateSum(args map[string]any) *mcp.CallToolResult {
	a, okA := numberArg(args["a"])
	b, okB := numberArg(args["b"])
	if !okA || !okB {
		return textResult(sumTypeErrorText)
	}
	return textResult(fmt.Sprintf("Result: %s + %s = %s", formatNumber(a), formatNumber(b), formatNumber(a+b)))
}

func sayHello(args map[string]any) *mcp.CallToolResult {
	name, ok := args["name"].(string)
	if !ok {
		return textResult(nameTypeErrorText)
	}
	return textResult(fmt.Sprintf("Hello, %s! Nice to meet you!", name))
}

// unlockedText describes the tools a session just gained.
func unlockedText(tools []*mcp.Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have unlocked %d additional tools:\n\n", len(tools))
	for _, tool := range tools {
		fmt.Fprintf(&b, "• %s: %s\n", tool.Name, tool.Description)
	}
	b.WriteString("\n These tools are now available")
	return b.String()
}

func numberArg(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
