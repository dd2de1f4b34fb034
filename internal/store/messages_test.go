package store

import (
	"encoding/json"
	"testing"
)

func testConversation(t *testing.T, db *DB) *Conversation {
	t.Helper()
	conv, err := db.CreateConversation("user-1", "Test Conversation", "go", "sqlite")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return conv
}

func TestCreateConversationEmitsOutboxEvent(t *testing.T) {
	db := testDB(t)

	conv := testConversation(t, db)
	if conv.ID == "" {
		t.Fatal("expected conversation ID")
	}
	if conv.Topic != "go" {
		t.Errorf("topic = %q, want go", conv.Topic)
	}

	events, err := db.PendingEvents(10)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(events))
	}
	if events[0].EventType != EventConversationUpsert {
		t.Errorf("event type = %q, want %q", events[0].EventType, EventConversationUpsert)
	}

	var payload ConversationPayload
	if err := json.Unmarshal([]byte(events[0].Payload), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ConversationID != conv.ID {
		t.Errorf("payload conversation_id = %q, want %q", payload.ConversationID, conv.ID)
	}
}

func TestAddMessageAssignsOrdinals(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)

	m1, err := db.AddMessage("user-1", conv.ID, RoleUser, "hello")
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	m2, err := db.AddMessage("user-1", conv.ID, RoleAssistant, "hi there")
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if m1.Ordinal != 1 || m2.Ordinal != 2 {
		t.Errorf("ordinals = %d, %d, want 1, 2", m1.Ordinal, m2.Ordinal)
	}

	got, _ := db.GetConversation(conv.ID)
	if got.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", got.MessageCount)
	}
}

func TestAddMessageRollsBackWhenOutboxInsertFails(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)

	// Force the outbox append to fail mid-transaction. The business row
	// must not survive the rollback.
	if _, err := db.Exec("DROP TABLE graph_outbox"); err != nil {
		t.Fatalf("drop outbox: %v", err)
	}

	if _, err := db.AddMessage("user-1", conv.ID, RoleAssistant, "orphaned"); err == nil {
		t.Fatal("expected AddMessage to fail without outbox table")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conv.ID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 messages after rollback, got %d", count)
	}

	got, _ := db.GetConversation(conv.ID)
	if got.MessageCount != 0 {
		t.Errorf("message_count = %d, want 0 after rollback", got.MessageCount)
	}
}

func TestUnscoredAssistantMessages(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)

	db.AddMessage("user-1", conv.ID, RoleUser, "question")
	scored, _ := db.AddMessage("user-1", conv.ID, RoleAssistant, "already scored")
	db.AddMessage("user-1", conv.ID, RoleAssistant, "not yet scored")

	if err := db.SetQualityScore(scored.ID, 8.0, "judge-model", "v1"); err != nil {
		t.Fatalf("SetQualityScore: %v", err)
	}

	msgs, err := db.UnscoredAssistantMessages(10)
	if err != nil {
		t.Fatalf("UnscoredAssistantMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 unscored message, got %d", len(msgs))
	}
	if msgs[0].Content != "not yet scored" {
		t.Errorf("content = %q", msgs[0].Content)
	}
}

func TestSetQualityScoreRecordsMetadata(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)
	msg, _ := db.AddMessage("user-1", conv.ID, RoleAssistant, "answer")

	if err := db.SetQualityScore(msg.ID, 7.5, "judge-model", "v2"); err != nil {
		t.Fatalf("SetQualityScore: %v", err)
	}

	got, _ := db.GetMessage(msg.ID)
	if got.QualityScore == nil || *got.QualityScore != 7.5 {
		t.Errorf("quality_score = %v, want 7.5", got.QualityScore)
	}
	if got.EvaluatorVersion != "v2" {
		t.Errorf("evaluator_version = %q, want v2", got.EvaluatorVersion)
	}
	if got.EvaluatedAt == nil {
		t.Error("expected evaluated_at to be set")
	}
}

func TestHasHumanFeedback(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)
	msg, _ := db.AddMessage("user-1", conv.ID, RoleAssistant, "answer")

	has, err := db.HasHumanFeedback(msg.ID)
	if err != nil {
		t.Fatalf("HasHumanFeedback: %v", err)
	}
	if has {
		t.Error("expected no feedback initially")
	}

	if _, err := db.RecordHumanFeedback(msg.ID, "great_response", 9.0); err != nil {
		t.Fatalf("RecordHumanFeedback: %v", err)
	}

	has, _ = db.HasHumanFeedback(msg.ID)
	if !has {
		t.Error("expected feedback after recording")
	}

	// Unknown message reports false, not an error
	has, err = db.HasHumanFeedback("nonexistent")
	if err != nil {
		t.Fatalf("HasHumanFeedback(nonexistent): %v", err)
	}
	if has {
		t.Error("expected false for unknown message")
	}
}

func TestRecordHumanFeedbackEmitsOutboxEvent(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)
	msg, _ := db.AddMessage("user-1", conv.ID, RoleAssistant, "answer")

	updated, err := db.RecordHumanFeedback(msg.ID, "that_worked", 10.0)
	if err != nil {
		t.Fatalf("RecordHumanFeedback: %v", err)
	}
	if updated.HumanFeedbackScore == nil || *updated.HumanFeedbackScore != 10.0 {
		t.Errorf("human_feedback_score = %v, want 10.0", updated.HumanFeedbackScore)
	}

	events, _ := db.PendingEvents(20)
	var feedback *OutboxEvent
	for i := range events {
		if events[i].EventType == EventFeedback {
			feedback = &events[i]
		}
	}
	if feedback == nil {
		t.Fatal("expected a feedback outbox event")
	}

	var payload FeedbackPayload
	if err := json.Unmarshal([]byte(feedback.Payload), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Score != 10.0 || payload.FeedbackType != "that_worked" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestNextUserReply(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)

	db.AddMessage("user-1", conv.ID, RoleUser, "first question")
	assistant, _ := db.AddMessage("user-1", conv.ID, RoleAssistant, "answer")
	db.AddMessage("user-1", conv.ID, RoleUser, "thanks, that worked!")

	reply, err := db.NextUserReply(conv.ID, "user-1", assistant.Ordinal)
	if err != nil {
		t.Fatalf("NextUserReply: %v", err)
	}
	if reply == nil {
		t.Fatal("expected a reply")
	}
	if reply.Content != "thanks, that worked!" {
		t.Errorf("reply content = %q", reply.Content)
	}
}

func TestNextUserReplyFallsBackToMostRecent(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)

	db.AddMessage("user-1", conv.ID, RoleUser, "older question")
	db.AddMessage("user-1", conv.ID, RoleUser, "latest question")
	assistant, _ := db.AddMessage("user-1", conv.ID, RoleAssistant, "answer")

	// No user message after the assistant turn, falls back to the most
	// recent user message in the conversation.
	reply, err := db.NextUserReply(conv.ID, "user-1", assistant.Ordinal)
	if err != nil {
		t.Fatalf("NextUserReply: %v", err)
	}
	if reply == nil {
		t.Fatal("expected fallback reply")
	}
	if reply.Content != "latest question" {
		t.Errorf("reply content = %q, want latest question", reply.Content)
	}
}

func TestNextUserReplyNone(t *testing.T) {
	db := testDB(t)
	conv := testConversation(t, db)

	assistant, _ := db.AddMessage("user-1", conv.ID, RoleAssistant, "unprompted answer")

	reply, err := db.NextUserReply(conv.ID, "user-1", assistant.Ordinal)
	if err != nil {
		t.Fatalf("NextUserReply: %v", err)
	}
	if reply != nil {
		t.Errorf("expected nil reply, got %+v", reply)
	}
}
