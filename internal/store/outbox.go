package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outbox event types. Each maps to an idempotent graph handler in the
// dispatcher.
const (
	EventConversationUpsert = "conversation_upsert"
	EventMessageUpsert      = "message_upsert"
	EventFeedback           = "feedback"
)

// Outbox statuses. done and deadletter are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusDeadletter = "deadletter"
)

// OutboxEvent is one pending side effect destined for the graph store.
type OutboxEvent struct {
	ID          string
	EventType   string
	EntityID    string
	Payload     string // JSON
	Status      string
	Attempts    int
	LastError   string
	NextRetryAt int64
	CreatedAt   int64
	UpdatedAt   int64
}

// AddOutboxEvent appends a pending event inside the caller's transaction.
// Producers must call this in the same transaction as the business-row
// mutation so that neither commits without the other.
func AddOutboxEvent(tx *sql.Tx, eventType, entityID, payload string) error {
	now := time.Now().UnixMilli()
	_, err := tx.Exec(`
		INSERT INTO graph_outbox (id, event_type, entity_id, payload, status, attempts, next_retry_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', 0, 0, ?, ?)
	`, uuid.NewString(), eventType, entityID, payload, now, now)
	if err != nil {
		return fmt.Errorf("add outbox event: %w", err)
	}
	return nil
}

// PendingEvents returns due pending events, oldest-created first.
// An event whose next_retry_at lies in the future is not yet due.
func (db *DB) PendingEvents(limit int) ([]OutboxEvent, error) {
	now := time.Now().UnixMilli()
	rows, err := db.Query(`
		SELECT id, event_type, entity_id, payload, status, attempts, last_error, next_retry_at, created_at, updated_at
		FROM graph_outbox
		WHERE status = 'pending' AND next_retry_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetOutboxEvent returns a single event by ID, or nil if not found.
func (db *DB) GetOutboxEvent(id string) (*OutboxEvent, error) {
	rows, err := db.Query(`
		SELECT id, event_type, entity_id, payload, status, attempts, last_error, next_retry_at, created_at, updated_at
		FROM graph_outbox WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get outbox event: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// MarkProcessing transitions an event to processing.
func (db *DB) MarkProcessing(id string) error {
	_, err := db.Exec(`
		UPDATE graph_outbox SET status = 'processing', updated_at = ? WHERE id = ?
	`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// MarkDone transitions an event to its terminal success state.
func (db *DB) MarkDone(id string) error {
	_, err := db.Exec(`
		UPDATE graph_outbox SET status = 'done', updated_at = ? WHERE id = ?
	`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// RequeueEvent records a failed attempt and puts the event back in the
// pending queue with a retry due time.
func (db *DB) RequeueEvent(id string, attempts int, lastError string, nextRetryAt int64) error {
	_, err := db.Exec(`
		UPDATE graph_outbox
		SET status = 'pending', attempts = ?, last_error = ?, next_retry_at = ?, updated_at = ?
		WHERE id = ?
	`, attempts, lastError, nextRetryAt, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("requeue event: %w", err)
	}
	return nil
}

// DeadletterEvent moves an event to the terminal deadletter state.
// Rows are retained for audit; remediation is manual.
func (db *DB) DeadletterEvent(id string, attempts int, lastError string) error {
	_, err := db.Exec(`
		UPDATE graph_outbox
		SET status = 'deadletter', attempts = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, attempts, lastError, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("deadletter event: %w", err)
	}
	return nil
}

// OutboxStats summarizes outbox state by status.
type OutboxStats struct {
	Pending    int
	Processing int
	Done       int
	Deadletter int
}

// CountOutbox returns per-status event counts.
func (db *DB) CountOutbox() (OutboxStats, error) {
	var stats OutboxStats
	rows, err := db.Query(`SELECT status, COUNT(*) FROM graph_outbox GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("scan outbox count: %w", err)
		}
		switch status {
		case StatusPending:
			stats.Pending = n
		case StatusProcessing:
			stats.Processing = n
		case StatusDone:
			stats.Done = n
		case StatusDeadletter:
			stats.Deadletter = n
		}
	}
	return stats, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]OutboxEvent, error) {
	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		var lastError sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &e.EntityID, &e.Payload, &e.Status,
			&e.Attempts, &lastError, &e.NextRetryAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.LastError = lastError.String
		events = append(events, e)
	}
	return events, rows.Err()
}
