package graph

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument reports caller or configuration mistakes: an unknown
	// similarity mode, an empty batch, an inverted band.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUpstreamUnavailable reports an unreachable embedder, LLM or storage backend.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedNode reports a candidate without a title.
	ErrMalformedNode = errors.New("malformed node")

	// ErrReconciliationPartialFailure is returned when some nodes of a batch
	// could not be persisted.
	ErrReconciliationPartialFailure = errors.New("reconciliation partially failed")

	// ErrNodeNotFound is returned by explicit maintenance operations on a missing node.
	ErrNodeNotFound = errors.New("node not found")
)

// NodeFailure records a storage failure for a single node.
type NodeFailure struct {
	NodeID int64  `json:"node_id"`
	Title  string `json:"title"`
	Err    error  `json:"-"`
}

// ReconcileError aggregates the per-node failures of a reconciliation.
type ReconcileError struct {
	WorkspaceID int64
	Failures    []NodeFailure
}

func (e *ReconcileError) Error() string {
	titles := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		titles = append(titles, fmt.Sprintf("%q: %v", f.Title, f.Err))
	}
	return fmt.Sprintf("%s for workspace %d (%d nodes): %s",
		ErrReconciliationPartialFailure, e.WorkspaceID, len(e.Failures), strings.Join(titles, "; "))
}

func (e *ReconcileError) Unwrap() error {
	return ErrReconciliationPartialFailure
}

// FailedTitles lists the titles that could not be persisted.
func (e *ReconcileError) FailedTitles() []string {
	titles := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		titles = append(titles, f.Title)
	}
	return titles
}

func invalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// Unavailable marks err as an upstream outage while keeping its message.
func Unavailable(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(&upstreamError{cause: err}, message)
}

type upstreamError struct {
	cause error
}

func (e *upstreamError) Error() string { return e.cause.Error() }

func (e *upstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

func (e *upstreamError) Unwrap() error { return e.cause }
