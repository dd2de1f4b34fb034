package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation is one chat thread.
type Conversation struct {
	ID           string
	UserID       string
	Title        string
	Topic        string
	SubTopic     string
	MessageCount int
	CreatedAt    int64
	UpdatedAt    int64
}

// ConversationPayload is the outbox payload for conversation_upsert events.
type ConversationPayload struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Topic          string `json:"topic,omitempty"`
	SubTopic       string `json:"sub_topic,omitempty"`
}

// CreateConversation inserts a conversation and its conversation_upsert
// outbox event in one transaction. If either write fails the whole
// transaction rolls back.
func (db *DB) CreateConversation(userID, title, topic, subTopic string) (*Conversation, error) {
	if title == "" {
		title = "New Conversation"
	}
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		topic = "general"
	}
	subTopic = strings.ToLower(strings.TrimSpace(subTopic))

	conv := &Conversation{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    title,
		Topic:    topic,
		SubTopic: subTopic,
	}
	now := time.Now().UnixMilli()

	payload, err := json.Marshal(ConversationPayload{
		UserID:         userID,
		ConversationID: conv.ID,
		Title:          title,
		Topic:          topic,
		SubTopic:       subTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal conversation payload: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO conversations (id, user_id, title, topic, sub_topic, message_count, created_at, updated_at)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), 0, ?, ?)
	`, conv.ID, userID, title, topic, subTopic, now, now); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	if err := AddOutboxEvent(tx, EventConversationUpsert, conv.ID, string(payload)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit conversation: %w", err)
	}

	conv.CreatedAt = now
	conv.UpdatedAt = now
	return conv, nil
}

// GetConversation returns a conversation by ID, or nil if not found.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	rows, err := db.Query(`
		SELECT id, user_id, title, COALESCE(topic, ''), COALESCE(sub_topic, ''), message_count, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var c Conversation
	if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Topic, &c.SubTopic,
		&c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &c, nil
}

// RetitleConversation updates mutable conversation fields and emits a
// fresh conversation_upsert so the graph converges on the new values.
func (db *DB) RetitleConversation(id, title, topic, subTopic string) error {
	conv, err := db.GetConversation(id)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("conversation %s not found", id)
	}

	topic = strings.ToLower(strings.TrimSpace(topic))
	subTopic = strings.ToLower(strings.TrimSpace(subTopic))

	payload, err := json.Marshal(ConversationPayload{
		UserID:         conv.UserID,
		ConversationID: id,
		Title:          title,
		Topic:          topic,
		SubTopic:       subTopic,
	})
	if err != nil {
		return fmt.Errorf("marshal conversation payload: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE conversations SET title = ?, topic = NULLIF(?, ''), sub_topic = NULLIF(?, ''), updated_at = ?
		WHERE id = ?
	`, title, topic, subTopic, time.Now().UnixMilli(), id); err != nil {
		tx.Rollback()
		return fmt.Errorf("update conversation: %w", err)
	}

	if err := AddOutboxEvent(tx, EventConversationUpsert, id, string(payload)); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
