package scoring

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tovey/reverie/internal/config"
	"github.com/tovey/reverie/internal/metrics"
	"github.com/tovey/reverie/internal/poll"
	"github.com/tovey/reverie/internal/store"
)

const neutralScore = 5.0

// Item is one assistant message queued for evaluation.
type Item struct {
	MessageID      string
	UserID         string
	ConversationID string
	Ordinal        int
	Content        string
}

// EvaluationResult is the outcome for one item. Cached marks a score
// served from the cache without a judge call.
type EvaluationResult struct {
	MessageID string
	UserID    string
	Score     float64
	Cached    bool
}

// BatchStats summarizes one scoring pass.
type BatchStats struct {
	TotalFound int `json:"total_found"`
	Cached     int `json:"cached"`
	Evaluated  int `json:"evaluated"`
}

// Evaluator runs the cache -> judge -> feedback-adjust pipeline over
// batches of unscored assistant messages.
type Evaluator struct {
	db       *store.DB
	judge    *Judge
	rescorer Rescorer
	cfg      config.ScoringConfig
	model    string
}

func NewEvaluator(db *store.DB, judge *Judge, rescorer Rescorer, cfg config.ScoringConfig, model string) *Evaluator {
	if rescorer == nil {
		rescorer = &StoreRescorer{DB: db}
	}
	return &Evaluator{db: db, judge: judge, rescorer: rescorer, cfg: cfg, model: model}
}

// EvaluateBatch scores all items with bounded concurrency. Results
// come back in item order; an item whose pipeline fails unexpectedly
// is downgraded to the neutral score instead of failing the batch.
func (e *Evaluator) EvaluateBatch(ctx context.Context, items []Item) []EvaluationResult {
	results := make([]EvaluationResult, len(items))
	sem := make(chan struct{}, e.cfg.MaxConcurrency)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			defer func() {
				// An unexpected failure downgrades the item to the
				// neutral score instead of failing the batch.
				if r := recover(); r != nil {
					log.Printf("evaluation panic for %s: %v", item.MessageID, r)
					results[i] = EvaluationResult{MessageID: item.MessageID, UserID: item.UserID, Score: neutralScore}
				}
			}()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.evaluateOne(ctx, item)
		}(i, item)
	}
	wg.Wait()

	return results
}

func (e *Evaluator) evaluateOne(ctx context.Context, item Item) EvaluationResult {
	res := EvaluationResult{MessageID: item.MessageID, UserID: item.UserID}

	if strings.TrimSpace(item.Content) == "" {
		res.Score = neutralScore
		metrics.RecordScored("default")
		return res
	}

	hash := ContentHash(item.Content)

	// Cache errors degrade to a miss, never abort the item.
	cached, err := e.db.CachedScore(hash, e.cfg.EvaluatorVersion)
	if err != nil {
		log.Printf("score cache read failed for %s: %v", item.MessageID, err)
	}
	if cached != nil {
		res.Score = e.adjust(ctx, item, *cached)
		res.Cached = true
		metrics.RecordScored("cache")
		return res
	}

	score, err := e.judge.Score(ctx, item.Content)
	source := "judge"
	if err != nil {
		log.Printf("judge failed for %s: %v", item.MessageID, err)
		score = neutralScore
		source = "default"
	}

	// The defaulted score is cached too, so content the judge could
	// not rate is not re-judged every cycle.
	if err := e.db.StoreCachedScore(hash, e.cfg.EvaluatorVersion, score); err != nil {
		log.Printf("score cache write failed for %s: %v", item.MessageID, err)
	}

	res.Score = e.adjust(ctx, item, score)
	metrics.RecordScored(source)
	return res
}

// adjust nudges a base score using the next user reply, unless the
// message already carries explicit human feedback.
func (e *Evaluator) adjust(ctx context.Context, item Item, base float64) float64 {
	if !e.cfg.FeedbackAdjustment {
		return base
	}

	has, err := e.db.HasHumanFeedback(item.MessageID)
	if err != nil {
		// Cannot tell, fail safe and leave the score alone.
		log.Printf("feedback check failed for %s: %v", item.MessageID, err)
		return base
	}
	if has {
		return base
	}

	reply, err := e.db.NextUserReply(item.ConversationID, item.UserID, item.Ordinal)
	if err != nil {
		log.Printf("user reply lookup failed for %s: %v", item.MessageID, err)
		return base
	}
	if reply == nil || strings.TrimSpace(reply.Content) == "" {
		return base
	}

	analysis := AnalyzeReply(reply.Content)

	if analysis.Sentiment < 0 {
		if tag, err := e.judge.ClassifyIssue(ctx, item.Content, reply.Content); err == nil {
			log.Printf("negative feedback on %s classified as %q", item.MessageID, tag)
		}
	}

	return clamp(base+analysis.Delta, 1.0, 10.0)
}

// ProcessBatch discovers unscored assistant messages, evaluates them
// and persists the scores. Callable on demand as well as by the loop.
func (e *Evaluator) ProcessBatch(ctx context.Context) (BatchStats, error) {
	start := time.Now()

	msgs, err := e.db.UnscoredAssistantMessages(e.cfg.BatchSize)
	if err != nil {
		return BatchStats{}, err
	}
	if len(msgs) == 0 {
		return BatchStats{}, nil
	}

	items := make([]Item, len(msgs))
	for i, m := range msgs {
		items[i] = Item{
			MessageID:      m.ID,
			UserID:         m.UserID,
			ConversationID: m.ConversationID,
			Ordinal:        m.Ordinal,
			Content:        m.Content,
		}
	}

	results := e.EvaluateBatch(ctx, items)

	stats := BatchStats{TotalFound: len(results)}
	for _, r := range results {
		if r.Cached {
			stats.Cached++
		} else {
			stats.Evaluated++
		}

		if err := e.db.SetQualityScore(r.MessageID, r.Score, e.model, e.cfg.EvaluatorVersion); err != nil {
			log.Printf("score write failed for %s: %v", r.MessageID, err)
			continue
		}
		if err := e.rescorer.RecomputeFinalScore(ctx, r.MessageID, r.UserID); err != nil {
			log.Printf("final score recompute failed for %s: %v", r.MessageID, err)
		}
	}

	elapsed := time.Since(start)
	metrics.RecordScoringBatch(elapsed.Seconds())
	log.Printf("scoring: batch processed in %s: %d total, %d cached, %d evaluated",
		elapsed.Round(time.Millisecond), stats.TotalFound, stats.Cached, stats.Evaluated)
	return stats, nil
}

// Loop returns the periodic driver for this evaluator.
func (e *Evaluator) Loop() *poll.Loop {
	return &poll.Loop{
		Name:     "scoring",
		Warmup:   e.cfg.Warmup(),
		Interval: e.cfg.ProcessInterval(),
		Cooldown: e.cfg.Cooldown(),
		Run: func(ctx context.Context) error {
			_, err := e.ProcessBatch(ctx)
			return err
		},
	}
}
