package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/athapong/concept-graph/pkg/graph"
)

type Operator string

const (
	Equals      Operator = "eq"
	Contains    Operator = "contains"
	HasKeyword  Operator = "has_keyword"
	ConnectedTo Operator = "connected_to"
)

// Query filters the nodes of one workspace. Filters are combined with AND.
type Query struct {
	WorkspaceID int64    `json:"workspace_id"`
	Filters     []Filter `json:"filters"`
	Limit       int      `json:"limit"`
	Skip        int      `json:"skip"`
}

type Filter struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

func NewQuery(workspaceID int64) *Query {
	return &Query{
		WorkspaceID: workspaceID,
		Filters:     make([]Filter, 0),
	}
}

func (q *Query) AddFilter(filter Filter) *Query {
	q.Filters = append(q.Filters, filter)
	return q
}

// TitleContains matches titles containing s, case-insensitively.
func (q *Query) TitleContains(s string) *Query {
	if s == "" {
		return q
	}
	return q.AddFilter(Filter{Field: "title", Operator: Contains, Value: s})
}

// WithKeyword matches nodes carrying keyword, case-insensitively.
func (q *Query) WithKeyword(keyword string) *Query {
	if keyword == "" {
		return q
	}
	return q.AddFilter(Filter{Field: "keywords", Operator: HasKeyword, Value: keyword})
}

func (q *Query) SetLimit(limit int) *Query {
	q.Limit = limit
	return q
}

func (q *Query) SetSkip(skip int) *Query {
	q.Skip = skip
	return q
}

// Apply returns the matching nodes in input order, after Skip and Limit.
// A non-positive limit returns every match.
func (q *Query) Apply(nodes []graph.PersistedNode) []graph.PersistedNode {
	out := make([]graph.PersistedNode, 0)
	skipped := 0
	for _, n := range nodes {
		if n.WorkspaceID != q.WorkspaceID || !q.matches(n) {
			continue
		}
		if skipped < q.Skip {
			skipped++
			continue
		}
		out = append(out, n)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

func (q *Query) matches(n graph.PersistedNode) bool {
	for _, f := range q.Filters {
		if !f.matches(n) {
			return false
		}
	}
	return true
}

func (f Filter) matches(n graph.PersistedNode) bool {
	switch f.Operator {
	case Equals:
		return fieldValue(n, f.Field) == fmt.Sprint(f.Value)
	case Contains:
		return strings.Contains(strings.ToLower(fieldValue(n, f.Field)), strings.ToLower(fmt.Sprint(f.Value)))
	case HasKeyword:
		want := strings.ToLower(fmt.Sprint(f.Value))
		for _, k := range n.Keywords {
			if strings.ToLower(k) == want {
				return true
			}
		}
		return false
	case ConnectedTo:
		want := fmt.Sprint(f.Value)
		for _, id := range n.ConnectedIDs {
			if fmt.Sprint(id) == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func fieldValue(n graph.PersistedNode, field string) string {
	switch field {
	case "title":
		return n.Title
	case "description":
		return n.Description
	case "node_id":
		return fmt.Sprint(n.NodeID)
	default:
		return ""
	}
}

func (q *Query) String() string {
	bytes, _ := json.MarshalIndent(q, "", "  ")
	return string(bytes)
}
