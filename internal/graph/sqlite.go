package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB is a SQLite-backed graph store. It lives in its own database file
// so that graph writes never share a transaction with the primary
// store; consistency between the two is eventual, via the outbox.
type DB struct {
	db   *sql.DB
	Path string
}

var _ Store = (*DB)(nil)

// Open opens (or creates) the graph database at the given path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create graph db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open graph sqlite: %w", err)
	}

	g := &DB{db: sqlDB, Path: path}
	if err := g.init(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return g, nil
}

// OpenMemory opens an in-memory graph database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open graph sqlite memory: %w", err)
	}

	g := &DB{db: sqlDB, Path: ":memory:"}
	if err := g.init(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return g, nil
}

func (g *DB) init() error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			kind       TEXT NOT NULL,
			key        TEXT NOT NULL,
			props      TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, key)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			rel        TEXT NOT NULL,
			src_kind   TEXT NOT NULL,
			src_key    TEXT NOT NULL,
			dst_kind   TEXT NOT NULL,
			dst_key    TEXT NOT NULL,
			props      TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (rel, src_kind, src_key, dst_kind, dst_key)
		)`,
	}
	for _, s := range stmts {
		if _, err := g.db.Exec(s); err != nil {
			return fmt.Errorf("init graph schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (g *DB) Close() error {
	return g.db.Close()
}

// Apply runs all ops in one transaction.
func (g *DB) Apply(ctx context.Context, ops []Op) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin graph tx: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, op := range ops {
		switch o := op.(type) {
		case MergeNode:
			err = mergeNode(tx, o, now)
		case MergeEdge:
			err = mergeEdge(tx, o, now)
		case DeleteEdges:
			_, err = tx.Exec(`
				DELETE FROM graph_edges WHERE rel = ? AND src_kind = ? AND src_key = ?
			`, o.Rel, o.SrcKind, o.SrcKey)
		default:
			err = fmt.Errorf("unknown graph op %T", op)
		}
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit graph tx: %w", err)
	}
	return nil
}

func mergeNode(tx *sql.Tx, o MergeNode, now int64) error {
	existing, err := readProps(tx, `SELECT props FROM graph_nodes WHERE kind = ? AND key = ?`, o.Kind, o.Key)
	if err != nil {
		return err
	}

	merged, err := overlayProps(existing, o.Props)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO graph_nodes (kind, key, props, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET props = excluded.props, updated_at = excluded.updated_at
	`, o.Kind, o.Key, merged, now)
	if err != nil {
		return fmt.Errorf("merge node %s/%s: %w", o.Kind, o.Key, err)
	}
	return nil
}

func mergeEdge(tx *sql.Tx, o MergeEdge, now int64) error {
	existing, err := readProps(tx, `
		SELECT props FROM graph_edges
		WHERE rel = ? AND src_kind = ? AND src_key = ? AND dst_kind = ? AND dst_key = ?
	`, o.Rel, o.SrcKind, o.SrcKey, o.DstKind, o.DstKey)
	if err != nil {
		return err
	}

	merged, err := overlayProps(existing, o.Props)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO graph_edges (rel, src_kind, src_key, dst_kind, dst_key, props, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (rel, src_kind, src_key, dst_kind, dst_key)
		DO UPDATE SET props = excluded.props, updated_at = excluded.updated_at
	`, o.Rel, o.SrcKind, o.SrcKey, o.DstKind, o.DstKey, merged, now)
	if err != nil {
		return fmt.Errorf("merge edge %s: %w", o.Rel, err)
	}
	return nil
}

// readProps returns the stored props JSON for a node or edge, or "" if
// the row does not exist.
func readProps(tx *sql.Tx, query string, args ...any) (string, error) {
	var props string
	err := tx.QueryRow(query, args...).Scan(&props)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read props: %w", err)
	}
	return props, nil
}

// overlayProps merges incoming props over existing JSON, last write
// wins per key. Empty incoming values do not clear existing keys.
func overlayProps(existingJSON string, incoming Props) (string, error) {
	merged := Props{}
	if existingJSON != "" {
		if err := json.Unmarshal([]byte(existingJSON), &merged); err != nil {
			return "", fmt.Errorf("decode existing props: %w", err)
		}
	}
	for k, v := range incoming {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("encode props: %w", err)
	}
	return string(out), nil
}

// GetNode returns a node, or nil if absent.
func (g *DB) GetNode(ctx context.Context, kind, key string) (*Node, error) {
	var props string
	err := g.db.QueryRowContext(ctx, `
		SELECT props FROM graph_nodes WHERE kind = ? AND key = ?
	`, kind, key).Scan(&props)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}

	n := &Node{Kind: kind, Key: key, Props: Props{}}
	if err := json.Unmarshal([]byte(props), &n.Props); err != nil {
		return nil, fmt.Errorf("decode node props: %w", err)
	}
	return n, nil
}

// EdgesFrom returns all Rel-edges leaving the given node.
func (g *DB) EdgesFrom(ctx context.Context, rel, srcKind, srcKey string) ([]Edge, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT rel, src_kind, src_key, dst_kind, dst_key, props
		FROM graph_edges WHERE rel = ? AND src_kind = ? AND src_key = ?
		ORDER BY dst_kind, dst_key
	`, rel, srcKind, srcKey)
	if err != nil {
		return nil, fmt.Errorf("edges from: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var props string
		if err := rows.Scan(&e.Rel, &e.SrcKind, &e.SrcKey, &e.DstKind, &e.DstKey, &props); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Props = Props{}
		if err := json.Unmarshal([]byte(props), &e.Props); err != nil {
			return nil, fmt.Errorf("decode edge props: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// NodeCount returns the total number of nodes.
func (g *DB) NodeCount(ctx context.Context) (int, error) {
	var n int
	err := g.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM graph_nodes").Scan(&n)
	return n, err
}

// EdgeCount returns the total number of edges.
func (g *DB) EdgeCount(ctx context.Context) (int, error) {
	var n int
	err := g.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM graph_edges").Scan(&n)
	return n, err
}
