package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	workspace_id BIGINT PRIMARY KEY,
	user_id      BIGINT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS workspaces_user_idx ON workspaces (user_id);

CREATE TABLE IF NOT EXISTS nodes (
	workspace_id     BIGINT NOT NULL,
	node_id          BIGINT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	connected_titles TEXT[] NOT NULL DEFAULT '{}',
	connected_ids    BIGINT[] NOT NULL DEFAULT '{}',
	keywords         TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (workspace_id, node_id)
);
CREATE INDEX IF NOT EXISTS nodes_title_idx ON nodes (workspace_id, title);
`

const nodeColumns = `workspace_id, node_id, title, description, connected_titles, connected_ids, keywords, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps nodes and workspaces in PostgreSQL. Each single-node
// write is one statement; WithNodeLock wraps a read-modify-write in a
// transaction holding an advisory lock on the node.
type PostgresStore struct {
	pool   *pgxpool.Pool
	q      querier
	logger *logrus.Logger
}

var (
	_ graph.Storage        = (*PostgresStore)(nil)
	_ graph.NodeLocker     = (*PostgresStore)(nil)
	_ graph.WorkspaceStore = (*PostgresStore)(nil)
)

// NewPostgresStore connects to databaseURL and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string, logger *logrus.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, graph.Unavailable(err, "postgres is unreachable")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL node store")
	return &PostgresStore{pool: pool, q: pool, logger: logger}, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Get(ctx context.Context, workspaceID, nodeID int64) (*graph.PersistedNode, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE workspace_id = $1 AND node_id = $2`,
		workspaceID, nodeID)
	return scanOne(row)
}

func (s *PostgresStore) GetByTitle(ctx context.Context, workspaceID int64, title string) (*graph.PersistedNode, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE workspace_id = $1 AND title = $2 ORDER BY node_id LIMIT 1`,
		workspaceID, title)
	return scanOne(row)
}

func (s *PostgresStore) ListAll(ctx context.Context, workspaceID int64) ([]graph.PersistedNode, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE workspace_id = $1 ORDER BY node_id`,
		workspaceID)
	if err != nil {
		return nil, mapError("list nodes", err)
	}
	defer rows.Close()

	out := make([]graph.PersistedNode, 0)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, mapError("scan node", err)
		}
		out = append(out, n)
	}
	return out, mapError("list nodes", rows.Err())
}

func (s *PostgresStore) Insert(ctx context.Context, node graph.PersistedNode) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO nodes (`+nodeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		node.WorkspaceID, node.NodeID, node.Title, node.Description,
		nonNilStrings(node.ConnectedTitles), nonNilIDs(node.ConnectedIDs), nonNilStrings(node.Keywords),
		node.CreatedAt, node.UpdatedAt)
	return mapError("insert node", err)
}

func (s *PostgresStore) Update(ctx context.Context, node graph.PersistedNode) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE nodes
		SET title = $3, description = $4, connected_titles = $5, connected_ids = $6,
			keywords = $7, updated_at = $8
		WHERE workspace_id = $1 AND node_id = $2`,
		node.WorkspaceID, node.NodeID, node.Title, node.Description,
		nonNilStrings(node.ConnectedTitles), nonNilIDs(node.ConnectedIDs), nonNilStrings(node.Keywords),
		node.UpdatedAt)
	if err != nil {
		return mapError("update node", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNodeMissing
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, workspaceID, nodeID int64) error {
	_, err := s.q.Exec(ctx, `DELETE FROM nodes WHERE workspace_id = $1 AND node_id = $2`, workspaceID, nodeID)
	return mapError("delete node", err)
}

// WithNodeLock runs fn in a transaction that holds
// pg_advisory_xact_lock for the node until commit.
func (s *PostgresStore) WithNodeLock(ctx context.Context, workspaceID, nodeID int64, fn func(graph.Storage) error) error {
	if s.pool == nil {
		// already inside a transaction
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(workspaceID, nodeID)); err != nil {
			return mapError("lock node", err)
		}
		return fn(&PostgresStore{q: tx, logger: s.logger})
	})
}

// CreateWorkspace inserts a workspace with the next id (highest + 1),
// retrying when a concurrent create takes the same id.
func (s *PostgresStore) CreateWorkspace(ctx context.Context, userID int64, title, description string) (*graph.Workspace, error) {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		ws := graph.Workspace{UserID: userID, Title: title, Description: description}
		err = s.q.QueryRow(ctx, `
			INSERT INTO workspaces (workspace_id, user_id, title, description)
			SELECT COALESCE(MAX(workspace_id), 0) + 1, $1, $2, $3 FROM workspaces
			RETURNING workspace_id`,
			userID, title, description).Scan(&ws.WorkspaceID)
		if err == nil {
			return &ws, nil
		}
		if !errors.Is(mapError("create workspace", err), ErrDuplicateNode) {
			break
		}
		s.logger.WithField("attempt", i+1).Debug("Workspace id taken, retrying")
	}
	return nil, mapError("create workspace", err)
}

func (s *PostgresStore) ListWorkspaces(ctx context.Context, userID int64) ([]graph.Workspace, error) {
	rows, err := s.q.Query(ctx,
		`SELECT workspace_id, user_id, title, description FROM workspaces WHERE user_id = $1 ORDER BY workspace_id`,
		userID)
	if err != nil {
		return nil, mapError("list workspaces", err)
	}
	defer rows.Close()

	out := make([]graph.Workspace, 0)
	for rows.Next() {
		var ws graph.Workspace
		if err := rows.Scan(&ws.WorkspaceID, &ws.UserID, &ws.Title, &ws.Description); err != nil {
			return nil, mapError("scan workspace", err)
		}
		out = append(out, ws)
	}
	return out, mapError("list workspaces", rows.Err())
}

func scanOne(row pgx.Row) (*graph.PersistedNode, error) {
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("get node", err)
	}
	return &n, nil
}

func scanNode(row pgx.Row) (graph.PersistedNode, error) {
	var n graph.PersistedNode
	err := row.Scan(&n.WorkspaceID, &n.NodeID, &n.Title, &n.Description,
		&n.ConnectedTitles, &n.ConnectedIDs, &n.Keywords, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// mapError translates driver errors into the storage and graph sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return fmt.Errorf("%s: %w", op, ErrDuplicateNode) // unique_violation
		case "57P01", "57P02", "57P03", "53300":
			return graph.Unavailable(err, op) // shutdown/too many connections
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return graph.Unavailable(err, op)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func advisoryKey(workspaceID, nodeID int64) int64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "concept_node:%d:%d", workspaceID, nodeID)
	return int64(h.Sum64())
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilIDs(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}
