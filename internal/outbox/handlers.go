package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tovey/reverie/internal/graph"
	"github.com/tovey/reverie/internal/store"
)

// buildOps translates an outbox event into a graph op batch. Every
// batch uses natural-key merges so replaying it is harmless.
func buildOps(ev store.OutboxEvent) ([]graph.Op, error) {
	switch ev.EventType {
	case store.EventConversationUpsert:
		return conversationOps(ev.Payload)
	case store.EventMessageUpsert:
		return messageOps(ev.Payload)
	case store.EventFeedback:
		return feedbackOps(ev.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownEventType, ev.EventType)
	}
}

// conversationOps merges the owner and conversation nodes and replaces
// the topic edge set wholesale, so replays and reorderings converge on
// the latest classification.
func conversationOps(payload string) ([]graph.Op, error) {
	var p store.ConversationPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode conversation payload: %w", err)
	}
	if p.UserID == "" || p.ConversationID == "" {
		return nil, fmt.Errorf("conversation payload missing ids")
	}

	ops := []graph.Op{
		graph.MergeNode{Kind: graph.KindUser, Key: p.UserID},
		graph.MergeNode{Kind: graph.KindConversation, Key: p.ConversationID, Props: graph.Props{
			"title":     p.Title,
			"topic":     p.Topic,
			"sub_topic": p.SubTopic,
		}},
		graph.MergeEdge{
			Rel:     graph.RelOwns,
			SrcKind: graph.KindUser, SrcKey: p.UserID,
			DstKind: graph.KindConversation, DstKey: p.ConversationID,
		},
		graph.DeleteEdges{Rel: graph.RelHasTopic, SrcKind: graph.KindConversation, SrcKey: p.ConversationID},
		graph.DeleteEdges{Rel: graph.RelHasSubTopic, SrcKind: graph.KindConversation, SrcKey: p.ConversationID},
	}

	if p.Topic != "" {
		ops = append(ops,
			graph.MergeNode{Kind: graph.KindTopic, Key: p.Topic},
			graph.MergeEdge{
				Rel:     graph.RelHasTopic,
				SrcKind: graph.KindConversation, SrcKey: p.ConversationID,
				DstKind: graph.KindTopic, DstKey: p.Topic,
			},
		)
	}
	if p.SubTopic != "" {
		ops = append(ops,
			graph.MergeNode{Kind: graph.KindSubTopic, Key: p.SubTopic},
			graph.MergeEdge{
				Rel:     graph.RelHasSubTopic,
				SrcKind: graph.KindConversation, SrcKey: p.ConversationID,
				DstKind: graph.KindSubTopic, DstKey: p.SubTopic,
			},
		)
	}
	return ops, nil
}

func messageOps(payload string) ([]graph.Op, error) {
	var p store.MessagePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode message payload: %w", err)
	}
	if p.ConversationID == "" || p.MessageID == "" {
		return nil, fmt.Errorf("message payload missing ids")
	}

	return []graph.Op{
		graph.MergeNode{Kind: graph.KindConversation, Key: p.ConversationID},
		graph.MergeNode{Kind: graph.KindMessage, Key: p.MessageID, Props: graph.Props{
			"role": p.Role,
		}},
		graph.MergeEdge{
			Rel:     graph.RelHasMessage,
			SrcKind: graph.KindConversation, SrcKey: p.ConversationID,
			DstKind: graph.KindMessage, DstKey: p.MessageID,
		},
	}, nil
}

// feedbackOps sets the feedback edge properties, last write wins.
// Feedback events are naturally monotonic in time so this is safe.
func feedbackOps(payload string) ([]graph.Op, error) {
	var p store.FeedbackPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode feedback payload: %w", err)
	}
	if p.UserID == "" || p.MessageID == "" {
		return nil, fmt.Errorf("feedback payload missing ids")
	}

	return []graph.Op{
		graph.MergeNode{Kind: graph.KindUser, Key: p.UserID},
		graph.MergeNode{Kind: graph.KindMessage, Key: p.MessageID},
		graph.MergeEdge{
			Rel:     graph.RelGaveFeedback,
			SrcKind: graph.KindUser, SrcKey: p.UserID,
			DstKind: graph.KindMessage, DstKey: p.MessageID,
			Props: graph.Props{
				"type":  p.FeedbackType,
				"score": p.Score,
				"at":    time.Now().UnixMilli(),
			},
		},
	}, nil
}
