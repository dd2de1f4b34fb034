package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeReplyEmpty(t *testing.T) {
	a := AnalyzeReply("")
	assert.Equal(t, 0, a.Sentiment)
	assert.Equal(t, 0.0, a.Delta)
	assert.Empty(t, a.Signals)
}

func TestAnalyzeReplyPositive(t *testing.T) {
	a := AnalyzeReply("thanks, that worked!")
	assert.Equal(t, 1, a.Sentiment)
	assert.InDelta(t, 0.7, a.Delta, 1e-9)
	assert.Contains(t, a.Signals, SignalPositiveAck)
}

func TestAnalyzeReplyNegativeCue(t *testing.T) {
	a := AnalyzeReply("this is wrong, it doesn't work")
	assert.Equal(t, -1, a.Sentiment)
	assert.InDelta(t, -0.7, a.Delta, 1e-9)
	assert.Contains(t, a.Signals, SignalFrustration)
}

func TestAnalyzeReplyShoutingCaps(t *testing.T) {
	a := AnalyzeReply("THIS IS BROKEN AGAIN")
	assert.Equal(t, -1, a.Sentiment)
	assert.InDelta(t, -1.0, a.Delta, 1e-9)
	assert.GreaterOrEqual(t, a.CapsRatio, 0.3)
}

func TestAnalyzeReplyFollowupQuestion(t *testing.T) {
	a := AnalyzeReply("how do i run this on windows")
	assert.InDelta(t, -0.2, a.Delta, 1e-9)
	assert.Contains(t, a.Signals, SignalFollowupQuestion)
}

func TestAnalyzeReplyShortAck(t *testing.T) {
	a := AnalyzeReply("ok")
	assert.InDelta(t, -0.2, a.Delta, 1e-9)
	assert.Contains(t, a.Signals, SignalShortAck)
}

func TestAnalyzeReplyMixedSignalsClamped(t *testing.T) {
	// Negative cue plus shouting plus a question stacks below the floor
	a := AnalyzeReply("WRONG WRONG WRONG, why does this FAIL?")
	assert.GreaterOrEqual(t, a.Delta, -2.0)
	assert.Equal(t, -1, a.Sentiment)
}

func TestContentHashDeterministic(t *testing.T) {
	assert.Equal(t, ContentHash("hello"), ContentHash("hello"))
	assert.NotEqual(t, ContentHash("hello"), ContentHash("hello "))
	assert.Len(t, ContentHash("hello"), 32)
}
