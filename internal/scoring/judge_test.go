package scoring

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tovey/reverie/internal/llm"
)

func testJudge(client llm.Client) (*Judge, *[]time.Duration) {
	j := NewJudge(client, 100*time.Millisecond, 400*time.Millisecond)
	var delays []time.Duration
	j.sleep = func(d time.Duration) { delays = append(delays, d) }
	return j, &delays
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"8", 8, true},
		{" 7.5 ", 7.5, true},
		{"Score: 9/10", 9, true},
		{"I'd rate this a 6.", 6, true},
		{"no number here", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := parseScore(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.want, got, c.in)
		}
	}
}

func TestJudgeScoreHappyPath(t *testing.T) {
	j, delays := testJudge(llm.MockReply("8"))
	score, err := j.Score(context.Background(), "some answer")
	require.NoError(t, err)
	assert.Equal(t, 8.0, score)
	assert.Empty(t, *delays)
}

func TestJudgeScoreClampsRange(t *testing.T) {
	j, _ := testJudge(llm.MockReply("15"))
	score, err := j.Score(context.Background(), "some answer")
	require.NoError(t, err)
	assert.Equal(t, 10.0, score)

	j, _ = testJudge(llm.MockReply("0"))
	score, err = j.Score(context.Background(), "some answer")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestJudgeRetriesTransientWithBackoff(t *testing.T) {
	mock := &llm.MockClient{
		Errs:      []error{llm.Transient(errors.New("timeout")), llm.Transient(errors.New("timeout")), nil},
		Responses: []*llm.Response{{Content: "8", Provider: "mock"}},
	}
	j, delays := testJudge(mock)

	score, err := j.Score(context.Background(), "some answer")
	require.NoError(t, err)
	assert.Equal(t, 8.0, score)

	// Exponential and non-decreasing: base, base*2
	require.Len(t, *delays, 2)
	assert.Equal(t, 100*time.Millisecond, (*delays)[0])
	assert.Equal(t, 200*time.Millisecond, (*delays)[1])
}

func TestJudgeBackoffCapped(t *testing.T) {
	mock := &llm.MockClient{Errs: []error{llm.Transient(errors.New("timeout"))}}
	j, delays := testJudge(mock)

	_, err := j.Score(context.Background(), "some answer")
	require.Error(t, err)

	require.Len(t, *delays, 3)
	for i := 1; i < len(*delays); i++ {
		assert.GreaterOrEqual(t, (*delays)[i], (*delays)[i-1])
	}
	assert.Equal(t, 400*time.Millisecond, (*delays)[2])
}

func TestJudgePermanentErrorNotRetried(t *testing.T) {
	mock := &llm.MockClient{Errs: []error{errors.New("401 unauthorized")}}
	j, delays := testJudge(mock)

	_, err := j.Score(context.Background(), "some answer")
	require.Error(t, err)
	assert.Len(t, mock.Calls, 1)
	assert.Empty(t, *delays)
}

func TestJudgeStrictRepromptRescuesParse(t *testing.T) {
	mock := &llm.MockClient{Responses: []*llm.Response{
		{Content: "That looks pretty good to me!", Provider: "mock"},
		{Content: "7", Provider: "mock"},
	}}
	j, _ := testJudge(mock)

	score, err := j.Score(context.Background(), "some answer")
	require.NoError(t, err)
	assert.Equal(t, 7.0, score)
	assert.Len(t, mock.Calls, 2)
}

func TestJudgeParseFailureNotRetried(t *testing.T) {
	j, delays := testJudge(llm.MockReply("no number at all"))

	_, err := j.Score(context.Background(), "some answer")
	require.Error(t, err)
	// One rubric call plus one strict reprompt, no backoff loop
	assert.Empty(t, *delays)
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	s := "оценка " // multibyte cyrillic
	for len(s) < 40 {
		s += s
	}
	for n := 1; n < 20; n++ {
		out := truncate(s, n)
		assert.True(t, utf8.ValidString(out), "n=%d got %q", n, out)
		assert.LessOrEqual(t, len(out), n+len("..."))
	}
	assert.Equal(t, "short", truncate("short", 10))
}

func TestClassifyIssue(t *testing.T) {
	j, _ := testJudge(llm.MockReply(" Inaccuracy \n"))
	tag, err := j.ClassifyIssue(context.Background(), "resp", "that is wrong")
	require.NoError(t, err)
	assert.Equal(t, "inaccuracy", tag)

	j, _ = testJudge(llm.MockReply("something long and invalid"))
	_, err = j.ClassifyIssue(context.Background(), "resp", "that is wrong")
	require.Error(t, err)
}
