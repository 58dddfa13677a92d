package storage

import "github.com/pkg/errors"

var (
	// ErrDuplicateNode is returned by Insert when the node id is taken.
	ErrDuplicateNode = errors.New("node already exists")

	// ErrNodeMissing is returned by Update when the node does not exist.
	ErrNodeMissing = errors.New("node does not exist")
)
