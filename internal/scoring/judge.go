package scoring

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tovey/reverie/internal/llm"
	"github.com/tovey/reverie/internal/metrics"
)

const judgeMaxAttempts = 3

var numberRe = regexp.MustCompile(`\d+\.?\d*`)

// Judge rates assistant responses 1-10 via the evaluation model.
// Transient call failures are retried with exponential backoff;
// unparseable replies get one strict reprompt per attempt.
type Judge struct {
	client      llm.Client
	backoffBase time.Duration
	backoffMax  time.Duration

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

func NewJudge(client llm.Client, backoffBase, backoffMax time.Duration) *Judge {
	return &Judge{
		client:      client,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		sleep:       time.Sleep,
	}
}

// Score returns a clamped quality score for the given response text.
// An error means every attempt failed; the caller decides the default.
func (j *Judge) Score(ctx context.Context, content string) (float64, error) {
	var lastErr error
	for attempt := 0; attempt < judgeMaxAttempts; attempt++ {
		resp, err := j.client.Complete(ctx, llm.JudgePrompt(content))
		if err != nil {
			if !llm.IsTransient(err) {
				return 0, fmt.Errorf("judge call: %w", err)
			}
			lastErr = err
			j.backoff(attempt, err)
			continue
		}

		if score, ok := parseScore(resp.Content); ok {
			return clamp(score, 1.0, 10.0), nil
		}

		strict, err := j.client.Complete(ctx, llm.StrictJudgePrompt(content))
		if err != nil {
			if !llm.IsTransient(err) {
				return 0, fmt.Errorf("judge reprompt: %w", err)
			}
			lastErr = err
			j.backoff(attempt, err)
			continue
		}
		if score, ok := parseScore(strict.Content); ok {
			return clamp(score, 1.0, 10.0), nil
		}

		// Parse failures are not retried.
		return 0, fmt.Errorf("judge reply not numeric: %q", truncate(strict.Content, 80))
	}
	return 0, fmt.Errorf("judge gave up after %d attempts: %w", judgeMaxAttempts, lastErr)
}

// ClassifyIssue asks for a one-word reason tag for a negative user
// reply. Best effort, single attempt.
func (j *Judge) ClassifyIssue(ctx context.Context, aiResponse, userReply string) (string, error) {
	resp, err := j.client.Complete(ctx, llm.IssueTagPrompt(aiResponse, userReply))
	if err != nil {
		return "", fmt.Errorf("classify issue: %w", err)
	}

	tag := strings.ToLower(strings.TrimSpace(resp.Content))
	switch tag {
	case "inaccuracy", "unclear", "insufficient detail", "off-topic", "tone", "other":
		return tag, nil
	}
	return "", fmt.Errorf("unrecognized issue tag %q", truncate(tag, 40))
}

func (j *Judge) backoff(attempt int, err error) {
	delay := j.backoffBase << attempt
	if delay > j.backoffMax {
		delay = j.backoffMax
	}
	log.Printf("judge retry %d: %v; sleeping %s", attempt+1, err, delay)
	metrics.RecordJudgeRetry()
	j.sleep(delay)
}

// parseScore tries an exact numeric parse, then the first numeric
// token in the reply.
func parseScore(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	if tok := numberRe.FindString(s); tok != "" {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
