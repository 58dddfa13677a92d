package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"

	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/algorithms"
	"github.com/athapong/concept-graph/pkg/graph/processors"
	"github.com/athapong/concept-graph/pkg/graph/query"
	"github.com/athapong/concept-graph/services"
	"github.com/athapong/concept-graph/util"
)

// maxUploadBytes bounds files and pages handed to the pipeline.
const maxUploadBytes = 32 << 20

type conceptGraphTools struct {
	cg *services.ConceptGraph
}

func RegisterConceptGraphTools(s *server.MCPServer, cg *services.ConceptGraph) {
	t := &conceptGraphTools{cg: cg}

	uploadFileTool := mcp.NewTool("concept_graph_upload_file",
		mcp.WithDescription("Extract concepts from a local file (markdown, text, HTML or PDF) and merge them into a workspace concept graph"),
		mcp.WithNumber("workspace_id", mcp.Required(), mcp.Description("Workspace to merge the concepts into")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the file to upload")),
	)
	s.AddTool(uploadFileTool, util.ErrorGuard(t.uploadFileHandler))

	uploadURLTool := mcp.NewTool("concept_graph_upload_url",
		mcp.WithDescription("Fetch a web page or document over HTTP(S), extract its concepts and merge them into a workspace concept graph"),
		mcp.WithNumber("workspace_id", mcp.Required(), mcp.Description("Workspace to merge the concepts into")),
		mcp.WithString("url", mcp.Required(), mcp.Description("The complete HTTP/HTTPS URL to fetch")),
	)
	s.AddTool(uploadURLTool, util.ErrorGuard(t.uploadURLHandler))

	listTool := mcp.NewTool("concept_graph_list_nodes",
		mcp.WithDescription("List the concept nodes of a workspace, optionally filtered by title or keyword"),
		mcp.WithNumber("workspace_id", mcp.Required(), mcp.Description("Workspace to list")),
		mcp.WithString("title", mcp.Description("Only nodes whose title contains this text")),
		mcp.WithString("keyword", mcp.Description("Only nodes carrying this keyword")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of nodes to return")),
	)
	s.AddTool(listTool, util.ErrorGuard(t.listNodesHandler))

	neighborsTool := mcp.NewTool("concept_graph_neighbors",
		mcp.WithDescription("Walk the connections of a concept node up to a given depth"),
		mcp.WithNumber("workspace_id", mcp.Required(), mcp.Description("Workspace of the node")),
		mcp.WithNumber("node_id", mcp.Required(), mcp.Description("Node to start from")),
		mcp.WithNumber("depth", mcp.Description("Number of hops to follow (default 1)")),
		mcp.WithString("mode", mcp.Description("Traversal order: bfs or dfs (default bfs)")),
	)
	s.AddTool(neighborsTool, util.ErrorGuard(t.neighborsHandler))

	cleanupTool := mcp.NewTool("concept_graph_cleanup",
		mcp.WithDescription("Delete stale concept nodes. Either keeps only keep_ids, or deletes the single node_id. References to deleted nodes are removed from the remaining nodes."),
		mcp.WithNumber("workspace_id", mcp.Required(), mcp.Description("Workspace to clean up")),
		mcp.WithString("keep_ids", mcp.Description("Comma-separated node ids to keep; every other node is deleted")),
		mcp.WithNumber("node_id", mcp.Description("Single node to delete")),
	)
	s.AddTool(cleanupTool, util.ErrorGuard(t.cleanupHandler))
}

func (t *conceptGraphTools) uploadFileHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	workspaceID, err := intArg(args, "workspace_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, _ := args["path"].(string)
	if path == "" {
		return mcp.NewToolResultError("path must be a non-empty string"), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stat file: %v", err)), nil
	}
	if info.Size() > maxUploadBytes {
		return mcp.NewToolResultError(fmt.Sprintf("file is larger than %d bytes", maxUploadBytes)), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read file: %v", err)), nil
	}

	doc := &graph.Document{
		Name:     filepath.Base(path),
		MimeType: processors.DetectMimeType(path, "", content),
		Raw:      content,
		Metadata: map[string]interface{}{"filepath": path},
	}
	return t.upload(ctx, workspaceID, doc)
}

func (t *conceptGraphTools) uploadURLHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	workspaceID, err := intArg(args, "workspace_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	url, ok := args["url"].(string)
	if !ok || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return mcp.NewToolResultError("url must be an http or https URL"), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %v", err)), nil
	}
	resp, err := services.DefaultHttpClient().Do(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch URL: %s", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch URL: %s", resp.Status)), nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read response body: %s", err)), nil
	}

	doc := &graph.Document{
		Name:     url,
		MimeType: processors.DetectMimeType(req.URL.Path, resp.Header.Get("Content-Type"), body),
		Raw:      body,
		Metadata: map[string]interface{}{"url": url},
	}
	return t.upload(ctx, workspaceID, doc)
}

func (t *conceptGraphTools) upload(ctx context.Context, workspaceID int64, doc *graph.Document) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cg.Config.UploadTimeout)
	defer cancel()

	result, err := t.cg.Pipeline.Upload(ctx, workspaceID, doc)
	if err != nil && !errors.Is(err, graph.ErrReconciliationPartialFailure) {
		return nil, err
	}
	return jsonResult(result)
}

func (t *conceptGraphTools) listNodesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	workspaceID, err := intArg(args, "workspace_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	nodes, err := t.cg.Storage.ListAll(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	title, _ := args["title"].(string)
	keyword, _ := args["keyword"].(string)
	q := query.NewQuery(workspaceID).TitleContains(title).WithKeyword(keyword)
	if limit, err := intArg(args, "limit"); err == nil {
		q.SetLimit(int(limit))
	}
	return jsonResult(map[string]interface{}{"nodes": q.Apply(nodes)})
}

func (t *conceptGraphTools) neighborsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	workspaceID, err := intArg(args, "workspace_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeID, err := intArg(args, "node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth := int64(1)
	if d, err := intArg(args, "depth"); err == nil {
		depth = d
	}
	mode, _ := args["mode"].(string)
	traversal, err := algorithms.ParseTraversalType(mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	nodes, err := algorithms.NewGraphTraversal(t.cg.Storage).Traverse(ctx, workspaceID, nodeID, int(depth), traversal)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]interface{}{"nodes": nodes})
}

func (t *conceptGraphTools) cleanupHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	workspaceID, err := intArg(args, "workspace_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if nodeID, err := intArg(args, "node_id"); err == nil {
		result, err := t.cg.Reconciler.DeleteNode(ctx, workspaceID, nodeID)
		if err != nil && result == nil {
			return nil, err
		}
		return jsonResult(result)
	}

	raw, _ := args["keep_ids"].(string)
	keep, err := parseIDs(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(keep) == 0 {
		return mcp.NewToolResultError("keep_ids or node_id is required; an empty keep list would delete the whole workspace"), nil
	}
	result, err := t.cg.Reconciler.Cleanup(ctx, workspaceID, keep)
	if err != nil && result == nil {
		return nil, err
	}
	return jsonResult(result)
}

func intArg(args map[string]interface{}, key string) (int64, error) {
	switch v := args[key].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}

func parseIDs(raw string) ([]int64, error) {
	ids := make([]int64, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
