package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Title    string `json:"title"`
		Topic    string `json:"topic"`
		SubTopic string `json:"sub_topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	conv, err := s.db.CreateConversation(req.UserID, req.Title, req.Topic, req.SubTopic)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"conversation_id": conv.ID,
		"title":           conv.Title,
		"topic":           conv.Topic,
	})
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req struct {
		Title    string `json:"title"`
		Topic    string `json:"topic"`
		SubTopic string `json:"sub_topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	if err := s.db.RetitleConversation(conversationID, req.Title, req.Topic, req.SubTopic); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req struct {
		UserID  string `json:"user_id"`
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Role == "" {
		http.Error(w, `{"error":"user_id and role required"}`, http.StatusBadRequest)
		return
	}

	msg, err := s.db.AddMessage(req.UserID, conversationID, req.Role, req.Content)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"message_id": msg.ID,
		"ordinal":    msg.Ordinal,
	})
}

// handleFeedback records an explicit or implicit feedback event. The
// feedback type maps to an H(t) score via configuration; the final
// score is recomputed immediately afterwards.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req struct {
		FeedbackType string `json:"feedback_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	score, ok := s.cfg.Scoring.FeedbackScores[req.FeedbackType]
	if !ok {
		http.Error(w, `{"error":"unknown feedback_type"}`, http.StatusBadRequest)
		return
	}

	msg, err := s.db.RecordHumanFeedback(messageID, req.FeedbackType, score)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	if err := s.rescorer.RecomputeFinalScore(r.Context(), messageID, msg.UserID); err != nil {
		log.Printf("final score recompute failed for %s: %v", messageID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message_id":           messageID,
		"human_feedback_score": score,
	})
}

// handleScoringRun triggers one scoring batch synchronously.
func (s *Server) handleScoringRun(w http.ResponseWriter, r *http.Request) {
	if s.evaluator == nil {
		http.Error(w, `{"error":"scoring not configured"}`, http.StatusServiceUnavailable)
		return
	}

	stats, err := s.evaluator.ProcessBatch(r.Context())
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleOutboxRun triggers one dispatcher pass synchronously.
func (s *Server) handleOutboxRun(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		http.Error(w, `{"error":"outbox not configured"}`, http.StatusServiceUnavailable)
		return
	}

	results, err := s.dispatcher.ProcessPending(r.Context())
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	counts := map[string]int{}
	for _, res := range results {
		counts[string(res.Outcome)]++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"dispatched": len(results),
		"outcomes":   counts,
	})
}

func (s *Server) handleOutboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.CountOutbox()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"pending":    stats.Pending,
		"processing": stats.Processing,
		"done":       stats.Done,
		"deadletter": stats.Deadletter,
	})
}
