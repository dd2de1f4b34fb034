package scoring

import (
	"regexp"
	"strings"
)

// Cue lists for the rule-based reply analysis. Matching is substring
// over the lowercased reply.
var (
	positiveCues = []string{
		"thank", "thanks", "great", "awesome", "helpful", "perfect",
		"works", "good job", "nice", "that fixed it", "this solved it",
	}
	negativeCues = []string{
		"not helpful", "wrong", "bad", "useless", "frustrat", "angry",
		"annoy", "broken", "doesn't work", "doesnt work", "fail",
		"didn't work", "didnt work",
	}
	questionCues = []string{"?", "how do i", "why", "what about", "does this", "can you"}
)

var wordRe = regexp.MustCompile(`[A-Za-z]+`)

// Signal names reported by AnalyzeReply.
const (
	SignalPositiveAck      = "positive_ack"
	SignalFrustration      = "frustration"
	SignalFollowupQuestion = "followup_question"
	SignalShortAck         = "short_ack"
)

// Analysis is the outcome of the reply heuristic. Delta is the
// suggested score adjustment, already clamped.
type Analysis struct {
	Sentiment int
	CapsRatio float64
	Signals   []string
	Delta     float64
}

// AnalyzeReply scores a follow-up user message for sentiment cues.
// Only consulted when the message carries no explicit human feedback.
func AnalyzeReply(userText string) Analysis {
	if userText == "" {
		return Analysis{}
	}

	text := strings.TrimSpace(userText)
	lower := strings.ToLower(text)

	words := wordRe.FindAllString(text, -1)
	capsWords := 0
	for _, w := range words {
		if len(w) >= 2 && w == strings.ToUpper(w) {
			capsWords++
		}
	}
	capsRatio := 0.0
	if len(words) > 0 {
		capsRatio = float64(capsWords) / float64(len(words))
	}
	frustrationCaps := capsRatio >= 0.3

	a := Analysis{CapsRatio: capsRatio}

	if containsAny(lower, positiveCues) {
		a.Signals = append(a.Signals, SignalPositiveAck)
		a.Sentiment++
		a.Delta += 0.7
	}

	if containsAny(lower, negativeCues) || frustrationCaps {
		a.Signals = append(a.Signals, SignalFrustration)
		a.Sentiment--
		if frustrationCaps {
			a.Delta -= 1.0
		} else {
			a.Delta -= 0.7
		}
	}

	if containsAny(lower, questionCues) {
		a.Signals = append(a.Signals, SignalFollowupQuestion)
		a.Delta -= 0.2
	}

	if len(text) <= 3 && (lower == "k" || lower == "ok") {
		a.Signals = append(a.Signals, SignalShortAck)
		a.Delta -= 0.2
	}

	a.Delta = clamp(a.Delta, -2.0, 1.5)
	if a.Sentiment > 1 {
		a.Sentiment = 1
	} else if a.Sentiment < -1 {
		a.Sentiment = -1
	}
	return a
}

func containsAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
