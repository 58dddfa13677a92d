package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/graph/metrics"
)

// ReconcileResult summarises one reconciliation.
type ReconcileResult struct {
	WorkspaceID int64         `json:"workspace_id"`
	Inserted    []int64       `json:"inserted"`
	Updated     []int64       `json:"updated"`
	Skipped     []string      `json:"skipped,omitempty"`
	Unresolved  []string      `json:"unresolved,omitempty"`
	Failures    []NodeFailure `json:"failures,omitempty"`
}

// CleanupResult summarises an explicit stale-node cleanup.
type CleanupResult struct {
	WorkspaceID int64         `json:"workspace_id"`
	Deleted     []int64       `json:"deleted"`
	Pruned      []int64       `json:"pruned"`
	Failures    []NodeFailure `json:"failures,omitempty"`
}

// Reconciler merges identified batches into a Storage. Connection sets only
// grow through Reconcile; Cleanup and DeleteNode are the only ways to shrink
// the graph.
type Reconciler struct {
	storage Storage
	locks   *nodeLocks
	logger  *logrus.Logger
	now     func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the reconciler logger.
func WithReconcilerLogger(logger *logrus.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a reconciler over storage.
func NewReconciler(storage Storage, opts ...ReconcilerOption) *Reconciler {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	r := &Reconciler{
		storage: storage,
		locks:   newNodeLocks(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Storage returns the underlying store.
func (r *Reconciler) Storage() Storage {
	return r.storage
}

// Reconcile inserts unseen nodes and unions the connections of known ones.
// Storage failures are collected per node; the rest of the batch still runs
// and a *ReconcileError is returned at the end. A cancelled context stops the
// batch; nodes handled before that stay committed.
func (r *Reconciler) Reconcile(ctx context.Context, workspaceID int64, nodes []IdentifiedNode) (*ReconcileResult, error) {
	result := &ReconcileResult{
		WorkspaceID: workspaceID,
		Inserted:    []int64{},
		Updated:     []int64{},
	}

	titleIDs := make(map[string]int64, len(nodes))
	for _, n := range nodes {
		if n.NodeID != 0 && n.Title != "" {
			titleIDs[n.Title] = n.NodeID
		}
	}

	log := r.logger.WithField("workspace_id", workspaceID)
	log.WithField("node_count", len(nodes)).Info("Reconciling node batch")

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "reconciliation interrupted")
		}

		if n.NodeID == 0 || strings.TrimSpace(n.Title) == "" {
			log.WithField("title", n.Title).Warn("Skipping node without a resolvable id")
			metrics.ReconciledNodes.WithLabelValues("skipped").Inc()
			result.Skipped = append(result.Skipped, n.Title)
			continue
		}

		titles := make([]string, 0, len(n.ConnectedTitles))
		ids := make([]int64, 0, len(n.ConnectedTitles))
		for _, c := range n.ConnectedTitles {
			titles = append(titles, c.Title)
			id, ok := titleIDs[c.Title]
			if !ok {
				log.WithFields(logrus.Fields{
					"title":     n.Title,
					"connected": c.Title,
				}).Warn("Connected title is not part of the batch")
				result.Unresolved = append(result.Unresolved, c.Title)
				continue
			}
			ids = append(ids, id)
		}

		op, err := r.reconcileNode(ctx, workspaceID, n, titles, ids)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"node_id": n.NodeID,
				"title":   n.Title,
			}).Error("Failed to persist node")
			metrics.ReconciledNodes.WithLabelValues("error").Inc()
			result.Failures = append(result.Failures, NodeFailure{NodeID: n.NodeID, Title: n.Title, Err: err})
			continue
		}

		metrics.ReconciledNodes.WithLabelValues(op).Inc()
		if op == "inserted" {
			result.Inserted = append(result.Inserted, n.NodeID)
		} else {
			result.Updated = append(result.Updated, n.NodeID)
		}
	}

	log.WithFields(logrus.Fields{
		"inserted": len(result.Inserted),
		"updated":  len(result.Updated),
		"skipped":  len(result.Skipped),
		"failed":   len(result.Failures),
	}).Info("Reconciliation completed")

	if len(result.Failures) > 0 {
		return result, &ReconcileError{WorkspaceID: workspaceID, Failures: result.Failures}
	}
	return result, nil
}

func (r *Reconciler) reconcileNode(ctx context.Context, workspaceID int64, n IdentifiedNode, titles []string, ids []int64) (string, error) {
	unlock := r.locks.lock(nodeKey{workspaceID, n.NodeID})
	defer unlock()

	var op string
	upsert := func(s Storage) error {
		var err error
		op, err = r.upsert(ctx, s, workspaceID, n, titles, ids)
		return err
	}

	var err error
	if locker, ok := r.storage.(NodeLocker); ok {
		err = locker.WithNodeLock(ctx, workspaceID, n.NodeID, upsert)
	} else {
		err = upsert(r.storage)
	}
	return op, err
}

func (r *Reconciler) upsert(ctx context.Context, s Storage, workspaceID int64, n IdentifiedNode, titles []string, ids []int64) (string, error) {
	existing, err := s.Get(ctx, workspaceID, n.NodeID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to load node %d", n.NodeID)
	}
	if existing == nil {
		existing, err = s.GetByTitle(ctx, workspaceID, n.Title)
		if err != nil {
			return "", errors.Wrapf(err, "failed to load node %q", n.Title)
		}
	}

	now := r.now().UTC()
	if existing == nil {
		node := PersistedNode{
			NodeID:          n.NodeID,
			WorkspaceID:     workspaceID,
			Title:           n.Title,
			Description:     n.Description,
			ConnectedTitles: unionStrings(nil, titles),
			ConnectedIDs:    unionIDs(nil, ids),
			Keywords:        append([]string{}, n.Keywords...),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.Insert(ctx, node); err != nil {
			return "", errors.Wrapf(err, "failed to insert node %d", n.NodeID)
		}
		return "inserted", nil
	}

	log := r.logger.WithFields(logrus.Fields{
		"workspace_id": workspaceID,
		"node_id":      n.NodeID,
		"title":        n.Title,
	})
	if existing.NodeID != n.NodeID {
		log.WithField("stored_node_id", existing.NodeID).Warn("Title resolved to a row with a different id")
	} else if existing.Title != n.Title {
		log.WithField("stored_title", existing.Title).Warn("Node id collision between titles")
	}
	if existing.Description != n.Description && r.logger.IsLevelEnabled(logrus.DebugLevel) {
		log.WithField("description_change", describeChange(existing.Description, n.Description)).Debug("Description replaced")
	}

	updated := PersistedNode{
		NodeID:          existing.NodeID,
		WorkspaceID:     workspaceID,
		Title:           n.Title,
		Description:     n.Description,
		ConnectedTitles: unionStrings(existing.ConnectedTitles, titles),
		ConnectedIDs:    unionIDs(existing.ConnectedIDs, ids),
		Keywords:        append([]string{}, n.Keywords...),
		CreatedAt:       existing.CreatedAt,
		UpdatedAt:       now,
	}
	if err := s.Update(ctx, updated); err != nil {
		return "", errors.Wrapf(err, "failed to update node %d", existing.NodeID)
	}
	return "updated", nil
}

// Cleanup deletes every node of the workspace whose id is not in keepIDs and
// drops references to the deleted nodes from the survivors. It is never run
// as part of Reconcile.
func (r *Reconciler) Cleanup(ctx context.Context, workspaceID int64, keepIDs []int64) (*CleanupResult, error) {
	all, err := r.storage.ListAll(ctx, workspaceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list nodes for cleanup")
	}

	keep := mapset.NewThreadUnsafeSet[int64](keepIDs...)
	stale := make([]PersistedNode, 0)
	for _, n := range all {
		if !keep.Contains(n.NodeID) {
			stale = append(stale, n)
		}
	}
	return r.remove(ctx, workspaceID, all, stale)
}

// DeleteNode removes one node and the references other nodes hold to it.
func (r *Reconciler) DeleteNode(ctx context.Context, workspaceID, nodeID int64) (*CleanupResult, error) {
	node, err := r.storage.Get(ctx, workspaceID, nodeID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load node %d", nodeID)
	}
	if node == nil {
		return nil, errors.Wrapf(ErrNodeNotFound, "node %d in workspace %d", nodeID, workspaceID)
	}
	all, err := r.storage.ListAll(ctx, workspaceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list nodes")
	}
	return r.remove(ctx, workspaceID, all, []PersistedNode{*node})
}

func (r *Reconciler) remove(ctx context.Context, workspaceID int64, all, stale []PersistedNode) (*CleanupResult, error) {
	result := &CleanupResult{
		WorkspaceID: workspaceID,
		Deleted:     []int64{},
		Pruned:      []int64{},
	}
	log := r.logger.WithField("workspace_id", workspaceID)

	deletedIDs := mapset.NewThreadUnsafeSet[int64]()
	deletedTitles := mapset.NewThreadUnsafeSet[string]()
	for _, n := range stale {
		unlock := r.locks.lock(nodeKey{workspaceID, n.NodeID})
		err := r.storage.Delete(ctx, workspaceID, n.NodeID)
		unlock()
		if err != nil {
			log.WithError(err).WithField("node_id", n.NodeID).Error("Failed to delete stale node")
			result.Failures = append(result.Failures, NodeFailure{NodeID: n.NodeID, Title: n.Title, Err: err})
			continue
		}
		deletedIDs.Add(n.NodeID)
		deletedTitles.Add(n.Title)
		result.Deleted = append(result.Deleted, n.NodeID)
	}

	for _, n := range all {
		if deletedIDs.Contains(n.NodeID) {
			continue
		}
		if err := r.prune(ctx, workspaceID, n.NodeID, deletedIDs, deletedTitles); err != nil {
			if errors.Is(err, errNothingToPrune) {
				continue
			}
			log.WithError(err).WithField("node_id", n.NodeID).Error("Failed to prune references")
			result.Failures = append(result.Failures, NodeFailure{NodeID: n.NodeID, Title: n.Title, Err: err})
			continue
		}
		result.Pruned = append(result.Pruned, n.NodeID)
	}

	log.WithFields(logrus.Fields{
		"deleted": len(result.Deleted),
		"pruned":  len(result.Pruned),
		"failed":  len(result.Failures),
	}).Info("Node cleanup completed")

	if len(result.Failures) > 0 {
		return result, &ReconcileError{WorkspaceID: workspaceID, Failures: result.Failures}
	}
	return result, nil
}

var errNothingToPrune = errors.New("nothing to prune")

func (r *Reconciler) prune(ctx context.Context, workspaceID, nodeID int64, ids mapset.Set[int64], titles mapset.Set[string]) error {
	unlock := r.locks.lock(nodeKey{workspaceID, nodeID})
	defer unlock()

	prune := func(s Storage) error {
		// re-read under the lock; a concurrent reconcile may have grown the node
		n, err := s.Get(ctx, workspaceID, nodeID)
		if err != nil {
			return err
		}
		if n == nil {
			return errNothingToPrune
		}
		keptIDs := make([]int64, 0, len(n.ConnectedIDs))
		for _, id := range n.ConnectedIDs {
			if !ids.Contains(id) {
				keptIDs = append(keptIDs, id)
			}
		}
		keptTitles := make([]string, 0, len(n.ConnectedTitles))
		for _, t := range n.ConnectedTitles {
			if !titles.Contains(t) {
				keptTitles = append(keptTitles, t)
			}
		}
		if len(keptIDs) == len(n.ConnectedIDs) && len(keptTitles) == len(n.ConnectedTitles) {
			return errNothingToPrune
		}
		updated := n.Clone()
		updated.ConnectedIDs = keptIDs
		updated.ConnectedTitles = keptTitles
		updated.UpdatedAt = r.now().UTC()
		return s.Update(ctx, updated)
	}

	if locker, ok := r.storage.(NodeLocker); ok {
		return locker.WithNodeLock(ctx, workspaceID, nodeID, prune)
	}
	return prune(r.storage)
}

// unionIDs appends the ids of add missing from base, keeping base order.
func unionIDs(base, add []int64) []int64 {
	seen := mapset.NewThreadUnsafeSet[int64]()
	out := make([]int64, 0, len(base)+len(add))
	for _, list := range [][]int64{base, add} {
		for _, id := range list {
			if seen.Add(id) {
				out = append(out, id)
			}
		}
	}
	return out
}

func unionStrings(base, add []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			if seen.Add(s) {
				out = append(out, s)
			}
		}
	}
	return out
}

func describeChange(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	var inserted, deleted int
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += len(d.Text)
		case diffmatchpatch.DiffDelete:
			deleted += len(d.Text)
		}
	}
	return fmt.Sprintf("+%d -%d chars", inserted, deleted)
}

type nodeKey struct {
	workspaceID int64
	nodeID      int64
}

// nodeLocks hands out one mutex per (workspace, node) key and forgets keys
// nobody holds.
type nodeLocks struct {
	mu   sync.Mutex
	held map[nodeKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newNodeLocks() *nodeLocks {
	return &nodeLocks{held: make(map[nodeKey]*keyLock)}
}

func (l *nodeLocks) lock(k nodeKey) func() {
	l.mu.Lock()
	e, ok := l.held[k]
	if !ok {
		e = &keyLock{}
		l.held[k] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.held, k)
		}
		l.mu.Unlock()
	}
}
