package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/graph/metrics"
)

var (
	pipelineProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "concept_graph_pipeline_duration_seconds",
			Help: "Time spent on one upload, by stage",
		},
		[]string{"stage"},
	)

	documentProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_documents_processed_total",
			Help: "Total number of uploaded documents processed",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(pipelineProcessingDuration)
	prometheus.MustRegister(documentProcessedTotal)
}

// UploadResult is what an upload reports back: the reconciled nodes and the
// titles that were skipped or could not be persisted.
type UploadResult struct {
	WorkspaceID int64            `json:"workspace_id"`
	DocumentID  string           `json:"document_id,omitempty"`
	Nodes       []IdentifiedNode `json:"nodes"`
	Skipped     []string         `json:"skipped"`
	Failed      []string         `json:"failed"`
}

// Pipeline turns an uploaded document into reconciled concept nodes:
// conversion, extraction, validation, similarity, selection, identity and
// reconciliation.
type Pipeline struct {
	processors map[string]DocumentProcessor
	extractor  Extractor
	similarity *SimilarityEngine
	reconciler *Reconciler
	mode       SimilarityMode
	band       Band
	batchSize  int
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMode sets the similarity mode used for uploads.
func WithMode(mode SimilarityMode) PipelineOption {
	return func(p *Pipeline) {
		p.mode = mode
	}
}

// WithBand sets the acceptance band used for uploads.
func WithBand(band Band) PipelineOption {
	return func(p *Pipeline) {
		p.band = band
	}
}

// WithBatchSize bounds how many documents BatchProcess runs at once.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline. extractor may be nil when only UploadNodes
// is used.
func NewPipeline(extractor Extractor, similarity *SimilarityEngine, reconciler *Reconciler, opts ...PipelineOption) *Pipeline {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	p := &Pipeline{
		processors: make(map[string]DocumentProcessor),
		extractor:  extractor,
		similarity: similarity,
		reconciler: reconciler,
		mode:       ModeHybrid,
		band:       DefaultBand(),
		batchSize:  4,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddProcessor registers processor for each of its MIME types.
func (p *Pipeline) AddProcessor(processor DocumentProcessor) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, t := range processor.SupportedTypes() {
		p.processors[t] = processor
	}
}

// SupportedTypes lists the registered MIME types.
func (p *Pipeline) SupportedTypes() []string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	types := make([]string, 0, len(p.processors))
	for t := range p.processors {
		types = append(types, t)
	}
	return types
}

// Reconciler exposes the reconciler for maintenance operations.
func (p *Pipeline) Reconciler() *Reconciler {
	return p.reconciler
}

// Process converts doc.Raw to markdown with the processor registered for its
// MIME type. Documents that already carry content are left as they are.
func (p *Pipeline) Process(ctx context.Context, doc *Document) error {
	if doc == nil {
		return invalidArgument("cannot process nil document")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if len(doc.Raw) == 0 && doc.Content != "" {
		return nil
	}

	mimeType := strings.TrimSpace(strings.SplitN(doc.MimeType, ";", 2)[0])
	p.mutex.RLock()
	processor, ok := p.processors[mimeType]
	p.mutex.RUnlock()
	if !ok {
		return invalidArgument("unsupported document type %q", doc.MimeType)
	}

	timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("convert"))
	defer timer.ObserveDuration()

	metadata := map[string]interface{}{"name": doc.Name}
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	processed, err := processor.Process(ctx, doc.Raw, metadata)
	if err != nil {
		metrics.DocumentProcessingErrors.WithLabelValues("convert", mimeType).Inc()
		return errors.Wrapf(err, "failed to convert document %s", doc.ID)
	}

	doc.Content = processed.Content
	doc.Metadata = processed.Metadata
	doc.ProcessedAt = time.Now()
	return nil
}

// Upload runs a document through the whole pipeline into workspaceID.
func (p *Pipeline) Upload(ctx context.Context, workspaceID int64, doc *Document) (*UploadResult, error) {
	if p.extractor == nil {
		return nil, invalidArgument("pipeline has no extractor")
	}

	metrics.PipelineInFlight.Inc()
	defer metrics.PipelineInFlight.Dec()

	if err := p.Process(ctx, doc); err != nil {
		documentProcessedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	log := p.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "doc_id": doc.ID})
	log.WithField("name", doc.Name).Info("Extracting concepts")

	timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("extract"))
	candidates, err := p.extractor.Extract(ctx, doc.Content)
	timer.ObserveDuration()
	if err != nil {
		metrics.DocumentProcessingErrors.WithLabelValues("extract", "llm").Inc()
		documentProcessedTotal.WithLabelValues("error").Inc()
		return nil, Unavailable(err, "failed to extract concepts")
	}
	metrics.ExtractedNodes.Add(float64(len(candidates)))

	result, err := p.UploadNodes(ctx, workspaceID, candidates)
	if result != nil {
		result.DocumentID = doc.ID
	}
	if err != nil {
		documentProcessedTotal.WithLabelValues("error").Inc()
		return result, err
	}
	documentProcessedTotal.WithLabelValues("success").Inc()
	return result, nil
}

// UploadNodes links and reconciles already extracted candidates. On a partial
// reconciliation failure the result is returned together with the
// *ReconcileError.
func (p *Pipeline) UploadNodes(ctx context.Context, workspaceID int64, candidates []ConceptNode) (*UploadResult, error) {
	if err := p.band.Validate(); err != nil {
		return nil, err
	}

	valid, skipped := ValidateCandidates(candidates)
	for _, s := range skipped {
		p.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "title": s}).Warn("Skipping malformed candidate")
	}
	if len(valid) == 0 {
		return nil, invalidArgument("no valid concept nodes to upload")
	}

	timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("link"))
	matrix, err := p.similarity.ComputeSimilarity(ctx, valid, p.mode)
	if err != nil {
		timer.ObserveDuration()
		return nil, err
	}
	scored, err := SelectConnections(valid, matrix, p.band)
	timer.ObserveDuration()
	if err != nil {
		return nil, err
	}
	identified := Identify(workspaceID, scored)

	timer = prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("reconcile"))
	reconciled, err := p.reconciler.Reconcile(ctx, workspaceID, identified)
	timer.ObserveDuration()

	result := &UploadResult{
		WorkspaceID: workspaceID,
		Nodes:       identified,
		Skipped:     skipped,
		Failed:      []string{},
	}
	if reconciled != nil {
		result.Skipped = append(result.Skipped, reconciled.Skipped...)
	}

	var rerr *ReconcileError
	switch {
	case err == nil:
	case errors.As(err, &rerr):
		result.Failed = rerr.FailedTitles()
		failed := mapset.NewThreadUnsafeSet[string](result.Failed...)
		kept := make([]IdentifiedNode, 0, len(identified))
		for _, n := range identified {
			if !failed.Contains(n.Title) {
				kept = append(kept, n)
			}
		}
		result.Nodes = kept
		return result, err
	default:
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"workspace_id": workspaceID,
		"nodes":        len(result.Nodes),
		"skipped":      len(result.Skipped),
	}).Info("Upload completed")
	return result, nil
}

// ValidateCandidates trims titles and drops candidates without a title and
// repeated titles. Dropped candidates are reported by title, or by position
// when they have none.
func ValidateCandidates(candidates []ConceptNode) ([]ConceptNode, []string) {
	valid := make([]ConceptNode, 0, len(candidates))
	skipped := []string{}
	seen := mapset.NewThreadUnsafeSet[string]()
	for i, c := range candidates {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			skipped = append(skipped, fmt.Sprintf("candidate #%d", i))
			continue
		}
		if !seen.Add(title) {
			skipped = append(skipped, title)
			continue
		}
		keywords := c.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		valid = append(valid, ConceptNode{
			Title:       title,
			Description: strings.TrimSpace(c.Description),
			Keywords:    keywords,
		})
	}
	return valid, skipped
}

// BatchProcess uploads documents into one workspace, batchSize at a time.
// Every document is attempted; the first error is returned alongside the
// results, which hold nil for documents that failed before reconciliation.
func (p *Pipeline) BatchProcess(ctx context.Context, workspaceID int64, docs []*Document) ([]*UploadResult, error) {
	p.logger.WithFields(logrus.Fields{
		"workspace_id":   workspaceID,
		"document_count": len(docs),
	}).Info("Starting batch processing")

	results := make([]*UploadResult, len(docs))
	var firstErr error

	for i := 0; i < len(docs); i += p.batchSize {
		end := i + p.batchSize
		if end > len(docs) {
			end = len(docs)
		}

		errs := make(chan error, end-i)
		var wg sync.WaitGroup

		for j := i; j < end; j++ {
			wg.Add(1)
			go func(idx int, d *Document) {
				defer wg.Done()

				res, err := p.Upload(ctx, workspaceID, d)
				results[idx] = res
				if err != nil {
					name := ""
					if d != nil {
						name = d.Name
					}
					p.logger.WithError(err).WithField("name", name).Error("Failed to process document")
					errs <- errors.WithMessagef(err, "document %q", name)
				}
			}(j, docs[j])
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return results, errors.WithMessage(firstErr, "batch processing failed")
	}
	p.logger.Info("Batch processing completed successfully")
	return results, nil
}
