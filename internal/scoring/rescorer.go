package scoring

import (
	"context"
	"fmt"

	"github.com/tovey/reverie/internal/store"
)

// Rescorer recomputes a message's final quality score after either
// the model score or the human feedback score changes.
type Rescorer interface {
	RecomputeFinalScore(ctx context.Context, messageID, userID string) error
}

// StoreRescorer combines the model score with any explicit human
// feedback, weighting feedback heavier since it is ground truth.
type StoreRescorer struct {
	DB *store.DB
}

const humanFeedbackWeight = 0.7

func (r *StoreRescorer) RecomputeFinalScore(ctx context.Context, messageID, userID string) error {
	msg, err := r.DB.GetMessage(messageID)
	if err != nil {
		return fmt.Errorf("load message for rescore: %w", err)
	}
	if msg == nil || msg.QualityScore == nil {
		return nil
	}

	final := *msg.QualityScore
	if msg.HumanFeedbackScore != nil {
		final = humanFeedbackWeight**msg.HumanFeedbackScore + (1-humanFeedbackWeight)*final
	}
	final = clamp(final, 1.0, 10.0)

	if err := r.DB.SetFinalQualityScore(messageID, final); err != nil {
		return fmt.Errorf("write final score: %w", err)
	}
	return nil
}
