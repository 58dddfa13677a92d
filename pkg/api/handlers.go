package api

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/algorithms"
	"github.com/athapong/concept-graph/pkg/graph/processors"
	"github.com/athapong/concept-graph/pkg/graph/query"
	"github.com/athapong/concept-graph/services"
)

// maxUploadBytes bounds a multipart upload.
const maxUploadBytes = 32 << 20

type handler struct {
	cg     *services.ConceptGraph
	logger *logrus.Logger
}

// uploadDocument handles POST /graphs/upload_nodes with a multipart "file"
// and a "workspace_id" form field.
func (h *handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	workspaceID, err := strconv.ParseInt(r.FormValue("workspace_id"), 10, 64)
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "workspace_id must be an integer")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "failed to read file: "+err.Error())
		return
	}

	doc := &graph.Document{
		Name:     header.Filename,
		MimeType: processors.DetectMimeType(header.Filename, header.Header.Get("Content-Type"), content),
		Raw:      content,
		Metadata: map[string]interface{}{"filename": header.Filename},
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cg.Config.UploadTimeout)
	defer cancel()
	result, err := h.cg.Pipeline.Upload(ctx, workspaceID, doc)
	h.respondUpload(w, result, err)
}

// uploadNodes handles POST /nodes/{workspaceID} with a JSON array of
// already-extracted concept nodes.
func (h *handler) uploadNodes(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	var candidates []graph.ConceptNode
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&candidates); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cg.Config.UploadTimeout)
	defer cancel()
	result, err := h.cg.Pipeline.UploadNodes(ctx, workspaceID, candidates)
	h.respondUpload(w, result, err)
}

func (h *handler) respondUpload(w http.ResponseWriter, result *graph.UploadResult, err error) {
	switch {
	case err == nil:
		respondJSON(h.logger, w, http.StatusOK, result)
	case result != nil && errors.Is(err, graph.ErrReconciliationPartialFailure):
		respondJSON(h.logger, w, http.StatusMultiStatus, result)
	default:
		h.respondErr(w, err)
	}
}

func (h *handler) listNodes(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	nodes, err := h.cg.Storage.ListAll(r.Context(), workspaceID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	q := query.NewQuery(workspaceID).
		TitleContains(r.URL.Query().Get("title")).
		WithKeyword(r.URL.Query().Get("keyword"))
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondError(h.logger, w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.SetLimit(limit)
	}
	if v := r.URL.Query().Get("skip"); v != "" {
		skip, err := strconv.Atoi(v)
		if err != nil || skip < 0 {
			respondError(h.logger, w, http.StatusBadRequest, "skip must be a non-negative integer")
			return
		}
		q.SetSkip(skip)
	}

	matched := q.Apply(nodes)
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"workspace_id": workspaceID,
		"nodes":        matched,
		"total":        len(matched),
	})
}

func (h *handler) getNode(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	nodeID, ok := h.pathID(w, r, "nodeID")
	if !ok {
		return
	}
	node, err := h.cg.Storage.Get(r.Context(), workspaceID, nodeID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if node == nil {
		respondError(h.logger, w, http.StatusNotFound, "node not found")
		return
	}
	respondJSON(h.logger, w, http.StatusOK, node)
}

func (h *handler) neighbors(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	nodeID, ok := h.pathID(w, r, "nodeID")
	if !ok {
		return
	}
	depth := 1
	if v := r.URL.Query().Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			respondError(h.logger, w, http.StatusBadRequest, "depth must be an integer")
			return
		}
		depth = d
	}
	mode, err := algorithms.ParseTraversalType(r.URL.Query().Get("mode"))
	if err != nil {
		h.respondErr(w, err)
		return
	}

	nodes, err := algorithms.NewGraphTraversal(h.cg.Storage).Traverse(r.Context(), workspaceID, nodeID, depth, mode)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

func (h *handler) graphView(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	nodes, err := h.cg.Storage.ListAll(r.Context(), workspaceID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, graph.NewGraphView(workspaceID, nodes))
}

type cleanupRequest struct {
	KeepIDs []int64 `json:"keep_ids"`
}

// cleanup handles POST /nodes/{workspaceID}/cleanup. Every node not in
// keep_ids is deleted.
func (h *handler) cleanup(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.KeepIDs == nil {
		respondError(h.logger, w, http.StatusBadRequest, "keep_ids is required")
		return
	}
	result, err := h.cg.Reconciler.Cleanup(r.Context(), workspaceID, req.KeepIDs)
	h.respondCleanup(w, result, err)
}

func (h *handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := h.pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	nodeID, ok := h.pathID(w, r, "nodeID")
	if !ok {
		return
	}
	result, err := h.cg.Reconciler.DeleteNode(r.Context(), workspaceID, nodeID)
	h.respondCleanup(w, result, err)
}

func (h *handler) respondCleanup(w http.ResponseWriter, result *graph.CleanupResult, err error) {
	switch {
	case err == nil:
		respondJSON(h.logger, w, http.StatusOK, result)
	case result != nil && errors.Is(err, graph.ErrReconciliationPartialFailure):
		respondJSON(h.logger, w, http.StatusMultiStatus, result)
	default:
		h.respondErr(w, err)
	}
}

type createWorkspaceRequest struct {
	UserID      int64  `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *handler) createWorkspace(w http.ResponseWriter, r *http.Request) {
	if h.cg.Workspaces == nil {
		respondError(h.logger, w, http.StatusNotImplemented, "storage backend does not manage workspaces")
		return
	}
	req, err := decodeCreateWorkspace(r)
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" {
		respondError(h.logger, w, http.StatusBadRequest, "title is required")
		return
	}
	ws, err := h.cg.Workspaces.CreateWorkspace(r.Context(), req.UserID, req.Title, req.Description)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, ws)
}

// decodeCreateWorkspace accepts a JSON body or form fields (user_id, title,
// description).
func decodeCreateWorkspace(r *http.Request) (createWorkspaceRequest, error) {
	var req createWorkspaceRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, errors.Wrap(err, "invalid form")
		}
		userID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
		if err != nil {
			return req, errors.New("user_id must be an integer")
		}
		req.UserID = userID
		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.Wrap(err, "invalid request body")
		}
	}
	return req, nil
}

func (h *handler) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	if h.cg.Workspaces == nil {
		respondError(h.logger, w, http.StatusNotImplemented, "storage backend does not manage workspaces")
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	list, err := h.cg.Workspaces.ListWorkspaces(r.Context(), userID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{"workspaces": list})
}

func (h *handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return id, true
}

func (h *handler) respondErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("status", status).Error("Request failed")
	}
	respondError(h.logger, w, status, err.Error())
}

// StatusFor maps pipeline and storage errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrInvalidArgument), errors.Is(err, graph.ErrMalformedNode):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, graph.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, graph.ErrReconciliationPartialFailure):
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(logger *logrus.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

func respondError(logger *logrus.Logger, w http.ResponseWriter, status int, message string) {
	respondJSON(logger, w, status, map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	})
}
