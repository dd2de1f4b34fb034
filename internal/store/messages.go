package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn. Assistant turns carry the score fields the
// evaluator and feedback paths fill in.
type Message struct {
	ID             string
	UserID         string
	ConversationID string
	Role           string
	Ordinal        int
	Content        string

	QualityScore       *float64 // R(t), written by the evaluator
	HumanFeedbackScore *float64 // H(t), written by the feedback path
	FinalQualityScore  *float64
	HumanFeedbackType  string
	HumanFeedbackAt    *int64

	EvalModel        string
	EvaluatorVersion string
	EvaluatedAt      *int64

	CreatedAt int64
}

// MessagePayload is the outbox payload for message_upsert events.
type MessagePayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Role           string `json:"role"`
}

// FeedbackPayload is the outbox payload for feedback events.
type FeedbackPayload struct {
	UserID       string  `json:"user_id"`
	MessageID    string  `json:"message_id"`
	FeedbackType string  `json:"feedback_type"`
	Score        float64 `json:"score"`
}

// AddMessage inserts a message, bumps the conversation's message count,
// and appends the message_upsert outbox event, all in one transaction.
// The ordinal is assigned as the next position in the conversation.
func (db *DB) AddMessage(userID, conversationID, role, content string) (*Message, error) {
	msg := &Message{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	now := time.Now().UnixMilli()

	payload, err := json.Marshal(MessagePayload{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Role:           role,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message payload: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	var ordinal int
	if err := tx.QueryRow(`
		SELECT COALESCE(MAX(ordinal), 0) + 1 FROM messages WHERE conversation_id = ?
	`, conversationID).Scan(&ordinal); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("next ordinal: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO messages (id, user_id, conversation_id, role, ordinal, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, userID, conversationID, role, ordinal, content, now); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE conversations SET message_count = message_count + 1, updated_at = ? WHERE id = ?
	`, now, conversationID); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("bump message count: %w", err)
	}

	if err := AddOutboxEvent(tx, EventMessageUpsert, msg.ID, string(payload)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}

	msg.Ordinal = ordinal
	msg.CreatedAt = now
	return msg, nil
}

// GetMessage returns a message by ID, or nil if not found.
func (db *DB) GetMessage(id string) (*Message, error) {
	row := db.QueryRow(`
		SELECT id, user_id, conversation_id, role, ordinal, content,
			quality_score, human_feedback_score, final_quality_score,
			human_feedback_type, human_feedback_at,
			eval_model, evaluator_version, evaluated_at, created_at
		FROM messages WHERE id = ?
	`, id)
	return scanMessage(row)
}

// UnscoredAssistantMessages returns assistant messages with no quality
// score and non-null content, oldest-created first.
func (db *DB) UnscoredAssistantMessages(limit int) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, user_id, conversation_id, role, ordinal, content,
			quality_score, human_feedback_score, final_quality_score,
			human_feedback_type, human_feedback_at,
			eval_model, evaluator_version, evaluated_at, created_at
		FROM messages
		WHERE role = 'assistant' AND quality_score IS NULL AND content IS NOT NULL
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("unscored messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// HasHumanFeedback reports whether an explicit H(t) has been recorded
// for the message. Unknown message IDs report false.
func (db *DB) HasHumanFeedback(id string) (bool, error) {
	var present int
	err := db.QueryRow(`
		SELECT human_feedback_score IS NOT NULL FROM messages WHERE id = ?
	`, id).Scan(&present)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has human feedback: %w", err)
	}
	return present != 0, nil
}

// NextUserReply returns the first user message after the given ordinal
// in the same conversation, falling back to the most recent user message
// in the conversation. Returns nil when the conversation has none.
func (db *DB) NextUserReply(conversationID, userID string, afterOrdinal int) (*Message, error) {
	row := db.QueryRow(`
		SELECT id, user_id, conversation_id, role, ordinal, content,
			quality_score, human_feedback_score, final_quality_score,
			human_feedback_type, human_feedback_at,
			eval_model, evaluator_version, evaluated_at, created_at
		FROM messages
		WHERE conversation_id = ? AND user_id = ? AND role = 'user' AND ordinal > ?
		ORDER BY ordinal ASC
		LIMIT 1
	`, conversationID, userID, afterOrdinal)

	msg, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	if msg != nil {
		return msg, nil
	}

	row = db.QueryRow(`
		SELECT id, user_id, conversation_id, role, ordinal, content,
			quality_score, human_feedback_score, final_quality_score,
			human_feedback_type, human_feedback_at,
			eval_model, evaluator_version, evaluated_at, created_at
		FROM messages
		WHERE conversation_id = ? AND user_id = ? AND role = 'user'
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID, userID)
	return scanMessage(row)
}

// SetQualityScore writes R(t) and evaluation metadata onto a message.
func (db *DB) SetQualityScore(id string, score float64, evalModel, evaluatorVersion string) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE messages
		SET quality_score = ?, eval_model = ?, evaluator_version = ?, evaluated_at = ?
		WHERE id = ?
	`, score, evalModel, evaluatorVersion, now, id)
	if err != nil {
		return fmt.Errorf("set quality score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s not found", id)
	}
	return nil
}

// SetFinalQualityScore writes the combined final score.
func (db *DB) SetFinalQualityScore(id string, score float64) error {
	_, err := db.Exec(`UPDATE messages SET final_quality_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("set final quality score: %w", err)
	}
	return nil
}

// RecordHumanFeedback writes H(t) and the feedback outbox event in one
// transaction. Returns the updated message.
func (db *DB) RecordHumanFeedback(id, feedbackType string, score float64) (*Message, error) {
	msg, err := db.GetMessage(id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message %s not found", id)
	}

	payload, err := json.Marshal(FeedbackPayload{
		UserID:       msg.UserID,
		MessageID:    id,
		FeedbackType: feedbackType,
		Score:        score,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal feedback payload: %w", err)
	}

	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE messages
		SET human_feedback_score = ?, human_feedback_type = ?, human_feedback_at = ?
		WHERE id = ?
	`, score, feedbackType, now, id); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("record human feedback: %w", err)
	}

	if err := AddOutboxEvent(tx, EventFeedback, id, string(payload)); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit feedback: %w", err)
	}

	msg.HumanFeedbackScore = &score
	msg.HumanFeedbackType = feedbackType
	msg.HumanFeedbackAt = &now
	return msg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessageInto(m *Message, s rowScanner) error {
	var content, feedbackType, evalModel, evalVersion sql.NullString
	var quality, human, final sql.NullFloat64
	var feedbackAt, evaluatedAt sql.NullInt64

	if err := s.Scan(&m.ID, &m.UserID, &m.ConversationID, &m.Role, &m.Ordinal, &content,
		&quality, &human, &final,
		&feedbackType, &feedbackAt,
		&evalModel, &evalVersion, &evaluatedAt, &m.CreatedAt); err != nil {
		return err
	}

	m.Content = content.String
	m.HumanFeedbackType = feedbackType.String
	m.EvalModel = evalModel.String
	m.EvaluatorVersion = evalVersion.String
	if quality.Valid {
		m.QualityScore = &quality.Float64
	}
	if human.Valid {
		m.HumanFeedbackScore = &human.Float64
	}
	if final.Valid {
		m.FinalQualityScore = &final.Float64
	}
	if feedbackAt.Valid {
		m.HumanFeedbackAt = &feedbackAt.Int64
	}
	if evaluatedAt.Valid {
		m.EvaluatedAt = &evaluatedAt.Int64
	}
	return nil
}

func scanMessage(row *sql.Row) (*Message, error) {
	var m Message
	err := scanMessageInto(&m, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := scanMessageInto(&m, rows); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
