package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func RegisterConceptMapPrompts(s *server.MCPServer) {
	review := mcp.NewPrompt("concept_map_review",
		mcp.WithPromptDescription("Review the concept map of a workspace and point out weak or missing links"),
		mcp.WithArgument("workspace_id", mcp.ArgumentDescription("Workspace to review"), mcp.RequiredArgument()),
	)
	s.AddPrompt(review, conceptMapReviewHandler)

	study := mcp.NewPrompt("concept_map_study",
		mcp.WithPromptDescription("Build a study guide around one concept and its neighbours"),
		mcp.WithArgument("workspace_id", mcp.ArgumentDescription("Workspace of the concept"), mcp.RequiredArgument()),
		mcp.WithArgument("concept", mcp.ArgumentDescription("Title of the concept to start from"), mcp.RequiredArgument()),
	)
	s.AddPrompt(study, conceptMapStudyHandler)
}

func conceptMapReviewHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	workspaceID := request.Params.Arguments["workspace_id"]
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace_id is required")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Concept map review for workspace %s", workspaceID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Use concept_graph_list_nodes to load workspace %s. "+
						"List concepts that have no connections, pairs of concepts that look related but are not linked, "+
						"and concepts whose descriptions overlap so much that they may be duplicates. "+
						"Suggest which stale node ids could be removed with concept_graph_cleanup.", workspaceID),
				},
			},
		},
	}, nil
}

func conceptMapStudyHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	workspaceID := request.Params.Arguments["workspace_id"]
	concept := request.Params.Arguments["concept"]
	if workspaceID == "" || concept == "" {
		return nil, fmt.Errorf("workspace_id and concept are required")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Study guide for %s", concept),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Find the concept titled %q in workspace %s with concept_graph_list_nodes, "+
						"then walk two hops with concept_graph_neighbors. Write a short study guide that explains the concept first "+
						"and then each neighbour in the order a learner should meet them.", concept, workspaceID),
				},
			},
		},
	}, nil
}
