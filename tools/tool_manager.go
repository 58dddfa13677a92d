package tools

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/athapong/concept-graph/util"
)

// ToolGroup is a set of tools enabled or disabled together through ENABLE_TOOLS.
type ToolGroup struct {
	Name        string
	Description string
}

var ToolGroups = []ToolGroup{
	{"tool_manager", "Tool management"},
	{"concept_graph", "Concept extraction, linking and graph maintenance"},
	{"fetch", "Web content fetching"},
}

func RegisterToolManagerTool(s *server.MCPServer) {
	tool := mcp.NewTool("tool_manager",
		mcp.WithDescription("Manage MCP tools - list, enable or disable tool groups. Changes apply on the next server start."),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action to perform: list, enable, disable")),
		mcp.WithString("tool_name", mcp.Description("Tool group to enable/disable")),
	)

	s.AddTool(tool, util.ErrorGuard(toolManagerHandler))
}

func toolManagerHandler(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.Params.Arguments
	action, ok := arguments["action"].(string)
	if !ok {
		return mcp.NewToolResultError("action must be a string"), nil
	}

	enableTools := os.Getenv("ENABLE_TOOLS")
	toolList := splitTools(enableTools)

	switch action {
	case "list":
		var b strings.Builder
		b.WriteString("Available tools:\n")
		allEnabled := len(toolList) == 0

		for _, t := range ToolGroups {
			status := "disabled"
			if allEnabled || slices.Contains(toolList, t.Name) {
				status = "enabled"
			}
			fmt.Fprintf(&b, "- %s (%s) [%s]\n", t.Name, t.Description, status)
		}
		b.WriteString("\nCurrently enabled tools:\n")
		if allEnabled {
			b.WriteString("All tools are enabled (ENABLE_TOOLS is empty)\n")
		} else {
			for _, tool := range toolList {
				fmt.Fprintf(&b, "- %s\n", tool)
			}
		}
		return mcp.NewToolResultText(b.String()), nil

	case "enable", "disable":
		toolName, ok := arguments["tool_name"].(string)
		if !ok || toolName == "" {
			return mcp.NewToolResultError("tool_name is required for enable/disable actions"), nil
		}
		if !knownGroup(toolName) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown tool group %q", toolName)), nil
		}

		if action == "enable" {
			if !slices.Contains(toolList, toolName) {
				toolList = append(toolList, toolName)
			}
		} else {
			if len(toolList) == 0 {
				for _, g := range ToolGroups {
					toolList = append(toolList, g.Name)
				}
			}
			toolList = slices.DeleteFunc(toolList, func(s string) bool { return s == toolName })
		}

		os.Setenv("ENABLE_TOOLS", strings.Join(toolList, ","))
		return mcp.NewToolResultText(fmt.Sprintf("Successfully %sd tool: %s", action, toolName)), nil

	default:
		return mcp.NewToolResultError("Invalid action. Use 'list', 'enable', or 'disable'"), nil
	}
}

func splitTools(v string) []string {
	out := make([]string, 0)
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func knownGroup(name string) bool {
	return slices.ContainsFunc(ToolGroups, func(g ToolGroup) bool { return g.Name == name })
}
