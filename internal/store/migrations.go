package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "conversations: chat conversation metadata",
		SQL: `
CREATE TABLE conversations (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    title          TEXT NOT NULL DEFAULT 'New Conversation',
    topic          TEXT,
    sub_topic      TEXT,
    message_count  INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX idx_conv_user ON conversations(user_id, updated_at DESC);
`,
	},
	{
		Version:     2,
		Description: "messages: chat turns with quality score fields",
		SQL: `
CREATE TABLE messages (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    conversation_id      TEXT NOT NULL,
    role                 TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    ordinal              INTEGER NOT NULL,
    content              TEXT,

    -- Scoring: R(t) written by the evaluator, H(t) by the feedback path,
    -- final by the recompute hook.
    quality_score        REAL,
    human_feedback_score REAL,
    final_quality_score  REAL,
    human_feedback_type  TEXT,
    human_feedback_at    INTEGER,

    -- Evaluation metadata
    eval_model           TEXT,
    evaluator_version    TEXT,
    evaluated_at         INTEGER,

    created_at           INTEGER NOT NULL,

    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX idx_msgs_conv    ON messages(conversation_id, ordinal);
CREATE INDEX idx_msgs_scoring ON messages(role, quality_score, created_at);
`,
	},
	{
		Version:     3,
		Description: "score_cache: judged scores keyed by content hash and evaluator version",
		SQL: `
CREATE TABLE score_cache (
    content_hash       TEXT NOT NULL,
    evaluator_version  TEXT NOT NULL,
    score              REAL NOT NULL,
    cached_at          INTEGER NOT NULL,
    PRIMARY KEY (content_hash, evaluator_version)
);
`,
	},
	{
		Version:     4,
		Description: "graph_outbox: transactional outbox for graph propagation",
		SQL: `
CREATE TABLE graph_outbox (
    id             TEXT PRIMARY KEY,
    event_type     TEXT NOT NULL,
    entity_id      TEXT NOT NULL,
    payload        TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'done', 'deadletter')),
    attempts       INTEGER NOT NULL DEFAULT 0,
    last_error     TEXT,
    next_retry_at  INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX idx_outbox_status_created ON graph_outbox(status, created_at);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
