package graph

import (
	"crypto/sha256"
	"math/big"
	"strconv"
)

// idDigits is the width of a node id in decimal digits.
const idDigits = 8

// AssignID derives the node id of title within workspaceID: the leading eight
// decimal digits of SHA-256("{workspaceID}:{title}") read as an integer.
// Distinct titles may collide; the id space is 10^8.
func AssignID(workspaceID int64, title string) int64 {
	sum := sha256.Sum256([]byte(strconv.FormatInt(workspaceID, 10) + ":" + title))
	digits := new(big.Int).SetBytes(sum[:]).String()
	if len(digits) > idDigits {
		digits = digits[:idDigits]
	}
	id, _ := strconv.ParseInt(digits, 10, 64)
	return id
}

// Identify stamps every node of a batch with its workspace-scoped id.
func Identify(workspaceID int64, nodes []ScoredNode) []IdentifiedNode {
	out := make([]IdentifiedNode, len(nodes))
	for i, n := range nodes {
		out[i] = IdentifiedNode{
			ScoredNode: n,
			NodeID:     AssignID(workspaceID, n.Title),
		}
	}
	return out
}
