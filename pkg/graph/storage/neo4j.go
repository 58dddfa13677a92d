package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"

	"github.com/athapong/concept-graph/pkg/graph"
)

// Neo4jStore keeps concepts as :Concept nodes and mirrors their connection
// lists as undirected :SIMILAR_TO relationships.
type Neo4jStore struct {
	driver neo4j.Driver
	// tx is set on the store handed out by WithNodeLock
	tx neo4j.Transaction
}

var (
	_ graph.Storage    = (*Neo4jStore)(nil)
	_ graph.NodeLocker = (*Neo4jStore)(nil)
)

// NewNeo4jStore connects to uri and creates the lookup index.
func NewNeo4jStore(uri, username, password string) (*Neo4jStore, error) {
	auth := neo4j.BasicAuth(username, password, "")
	driver, err := neo4j.NewDriver(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(); err != nil {
		driver.Close()
		return nil, graph.Unavailable(err, "neo4j is unreachable")
	}

	s := &Neo4jStore{driver: driver}
	if err := s.write(func(tx neo4j.Transaction) (interface{}, error) {
		return tx.Run(`CREATE INDEX concept_lookup IF NOT EXISTS FOR (c:Concept) ON (c.workspace_id, c.node_id)`, nil)
	}); err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to create concept index: %w", err)
	}
	if err := s.write(func(tx neo4j.Transaction) (interface{}, error) {
		return tx.Run(`CREATE CONSTRAINT concept_lock_key IF NOT EXISTS FOR (l:ConceptLock) REQUIRE l.key IS UNIQUE`, nil)
	}); err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to create lock constraint: %w", err)
	}
	return s, nil
}

// WithNodeLock runs fn inside one write transaction that first writes the
// node's :ConceptLock row. Neo4j holds the write lock on that row until
// commit, so concurrent lockers of the same node wait for each other.
func (s *Neo4jStore) WithNodeLock(ctx context.Context, workspaceID, nodeID int64, fn func(graph.Storage) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.write(func(tx neo4j.Transaction) (interface{}, error) {
		if _, err := tx.Run(`
			MERGE (l:ConceptLock {key: $key})
			SET l.held_at = timestamp()
		`, map[string]interface{}{"key": lockKey(workspaceID, nodeID)}); err != nil {
			return nil, fmt.Errorf("failed to lock node %d: %w", nodeID, err)
		}
		return nil, fn(&Neo4jStore{driver: s.driver, tx: tx})
	})
}

func lockKey(workspaceID, nodeID int64) string {
	return fmt.Sprintf("%d:%d", workspaceID, nodeID)
}

// Close releases the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close()
}

func (s *Neo4jStore) Get(ctx context.Context, workspaceID, nodeID int64) (*graph.PersistedNode, error) {
	return s.getOne(`
		MATCH (c:Concept {workspace_id: $ws, node_id: $id})
		RETURN c
	`, map[string]interface{}{"ws": workspaceID, "id": nodeID})
}

func (s *Neo4jStore) GetByTitle(ctx context.Context, workspaceID int64, title string) (*graph.PersistedNode, error) {
	return s.getOne(`
		MATCH (c:Concept {workspace_id: $ws, title: $title})
		RETURN c
		LIMIT 1
	`, map[string]interface{}{"ws": workspaceID, "title": title})
}

func (s *Neo4jStore) getOne(query string, params map[string]interface{}) (*graph.PersistedNode, error) {
	nodes, err := s.read(query, params)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

func (s *Neo4jStore) ListAll(ctx context.Context, workspaceID int64) ([]graph.PersistedNode, error) {
	return s.read(`
		MATCH (c:Concept {workspace_id: $ws})
		RETURN c
		ORDER BY c.node_id
	`, map[string]interface{}{"ws": workspaceID})
}

func (s *Neo4jStore) Insert(ctx context.Context, node graph.PersistedNode) error {
	return s.write(func(tx neo4j.Transaction) (interface{}, error) {
		result, err := tx.Run(`
			MATCH (c:Concept {workspace_id: $ws, node_id: $id})
			RETURN count(c) AS n
		`, map[string]interface{}{"ws": node.WorkspaceID, "id": node.NodeID})
		if err != nil {
			return nil, err
		}
		record, err := result.Single()
		if err != nil {
			return nil, err
		}
		if n, _ := record.Get("n"); n.(int64) > 0 {
			return nil, ErrDuplicateNode
		}

		params := nodeParams(node)
		if _, err := tx.Run(`
			CREATE (c:Concept {
				workspace_id: $ws,
				node_id: $id,
				title: $title,
				description: $description,
				connected_titles: $connected_titles,
				connected_ids: $connected_ids,
				keywords: $keywords,
				created_at: $created_at,
				updated_at: $updated_at
			})
		`, params); err != nil {
			return nil, err
		}
		return nil, linkConnections(tx, params)
	})
}

func (s *Neo4jStore) Update(ctx context.Context, node graph.PersistedNode) error {
	return s.write(func(tx neo4j.Transaction) (interface{}, error) {
		params := nodeParams(node)
		result, err := tx.Run(`
			MATCH (c:Concept {workspace_id: $ws, node_id: $id})
			SET c.title = $title,
				c.description = $description,
				c.connected_titles = $connected_titles,
				c.connected_ids = $connected_ids,
				c.keywords = $keywords,
				c.updated_at = $updated_at
			RETURN count(c) AS n
		`, params)
		if err != nil {
			return nil, err
		}
		record, err := result.Single()
		if err != nil {
			return nil, err
		}
		if n, _ := record.Get("n"); n.(int64) == 0 {
			return nil, ErrNodeMissing
		}

		if _, err := tx.Run(`
			MATCH (c:Concept {workspace_id: $ws, node_id: $id})-[r:SIMILAR_TO]-(m:Concept)
			WHERE NOT m.node_id IN $connected_ids
			DELETE r
		`, params); err != nil {
			return nil, err
		}
		return nil, linkConnections(tx, params)
	})
}

func (s *Neo4jStore) Delete(ctx context.Context, workspaceID, nodeID int64) error {
	return s.write(func(tx neo4j.Transaction) (interface{}, error) {
		params := map[string]interface{}{"ws": workspaceID, "id": nodeID, "key": lockKey(workspaceID, nodeID)}
		if _, err := tx.Run(`
			MATCH (c:Concept {workspace_id: $ws, node_id: $id})
			DETACH DELETE c
		`, params); err != nil {
			return nil, err
		}
		return tx.Run(`
			MATCH (l:ConceptLock {key: $key})
			DELETE l
		`, params)
	})
}

func linkConnections(tx neo4j.Transaction, params map[string]interface{}) error {
	_, err := tx.Run(`
		MATCH (c:Concept {workspace_id: $ws, node_id: $id})
		UNWIND $connected_ids AS other
		MATCH (m:Concept {workspace_id: $ws, node_id: other})
		MERGE (c)-[:SIMILAR_TO]-(m)
	`, params)
	return err
}

func (s *Neo4jStore) write(work neo4j.TransactionWork) error {
	if s.tx != nil {
		_, err := work(s.tx)
		return err
	}
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(work)
	return err
}

func (s *Neo4jStore) read(query string, params map[string]interface{}) ([]graph.PersistedNode, error) {
	if s.tx != nil {
		return collectNodes(s.tx, query, params)
	}
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	out, err := session.ReadTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		return collectNodes(tx, query, params)
	})
	if err != nil {
		return nil, err
	}
	return out.([]graph.PersistedNode), nil
}

func collectNodes(tx neo4j.Transaction, query string, params map[string]interface{}) ([]graph.PersistedNode, error) {
	result, err := tx.Run(query, params)
	if err != nil {
		return nil, err
	}
	nodes := make([]graph.PersistedNode, 0)
	for result.Next() {
		value, ok := result.Record().Get("c")
		if !ok {
			continue
		}
		nodes = append(nodes, nodeFromProps(value.(neo4j.Node).Props))
	}
	return nodes, result.Err()
}

func nodeParams(n graph.PersistedNode) map[string]interface{} {
	titles := make([]interface{}, len(n.ConnectedTitles))
	for i, t := range n.ConnectedTitles {
		titles[i] = t
	}
	ids := make([]interface{}, len(n.ConnectedIDs))
	for i, id := range n.ConnectedIDs {
		ids[i] = id
	}
	keywords := make([]interface{}, len(n.Keywords))
	for i, k := range n.Keywords {
		keywords[i] = k
	}
	return map[string]interface{}{
		"ws":               n.WorkspaceID,
		"id":               n.NodeID,
		"title":            n.Title,
		"description":      n.Description,
		"connected_titles": titles,
		"connected_ids":    ids,
		"keywords":         keywords,
		"created_at":       n.CreatedAt,
		"updated_at":       n.UpdatedAt,
	}
}

func nodeFromProps(props map[string]interface{}) graph.PersistedNode {
	n := graph.PersistedNode{
		ConnectedTitles: stringList(props["connected_titles"]),
		ConnectedIDs:    int64List(props["connected_ids"]),
		Keywords:        stringList(props["keywords"]),
	}
	n.WorkspaceID, _ = props["workspace_id"].(int64)
	n.NodeID, _ = props["node_id"].(int64)
	n.Title, _ = props["title"].(string)
	n.Description, _ = props["description"].(string)
	n.CreatedAt, _ = props["created_at"].(time.Time)
	n.UpdatedAt, _ = props["updated_at"].(time.Time)
	return n
}

func stringList(v interface{}) []string {
	items, _ := v.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func int64List(v interface{}) []int64 {
	items, _ := v.([]interface{})
	out := make([]int64, 0, len(items))
	for _, item := range items {
		if id, ok := item.(int64); ok {
			out = append(out, id)
		}
	}
	return out
}
