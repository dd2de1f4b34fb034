package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tovey/reverie/internal/config"
	"github.com/tovey/reverie/internal/llm"
	"github.com/tovey/reverie/internal/store"
)

func testEvaluator(t *testing.T, client llm.Client) (*Evaluator, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default().Scoring
	judge := NewJudge(client, time.Millisecond, 4*time.Millisecond)
	judge.sleep = func(time.Duration) {}
	ev := NewEvaluator(db, judge, nil, cfg, "mock-model")
	return ev, db
}

func TestEvaluateBatchCachedNewAndEmpty(t *testing.T) {
	mock := llm.MockReply("8")
	ev, db := testEvaluator(t, mock)

	cachedContent := "This response was seen before."
	require.NoError(t, db.StoreCachedScore(ContentHash(cachedContent), "v1", 7.5))

	items := []Item{
		{MessageID: "m1", UserID: "u1", ConversationID: "c1", Content: cachedContent},
		{MessageID: "m2", UserID: "u1", ConversationID: "c1", Content: "A brand new response."},
		{MessageID: "m3", UserID: "u1", ConversationID: "c1", Content: "   "},
	}

	results := ev.EvaluateBatch(context.Background(), items)
	require.Len(t, results, 3)

	assert.Equal(t, 7.5, results[0].Score)
	assert.True(t, results[0].Cached)

	assert.Equal(t, 8.0, results[1].Score)
	assert.False(t, results[1].Cached)

	assert.Equal(t, 5.0, results[2].Score)
	assert.False(t, results[2].Cached)

	// Only the uncached, non-empty item reached the judge
	assert.Len(t, mock.Calls, 1)
}

func TestEvaluateCacheHitSkipsJudgeCall(t *testing.T) {
	mock := llm.MockReply("3")
	ev, db := testEvaluator(t, mock)

	content := "Identical content, second evaluation."
	require.NoError(t, db.StoreCachedScore(ContentHash(content), "v1", 9.0))

	results := ev.EvaluateBatch(context.Background(), []Item{
		{MessageID: "m1", UserID: "u1", ConversationID: "c1", Content: content},
	})
	assert.Equal(t, 9.0, results[0].Score)
	assert.True(t, results[0].Cached)
	assert.Empty(t, mock.Calls)
}

func TestEvaluateStoresScoreInCache(t *testing.T) {
	ev, db := testEvaluator(t, llm.MockReply("6.5"))

	content := "Fresh content to be cached."
	ev.EvaluateBatch(context.Background(), []Item{
		{MessageID: "m1", UserID: "u1", ConversationID: "c1", Content: content},
	})

	cached, err := db.CachedScore(ContentHash(content), "v1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 6.5, *cached)
}

func TestEvaluateJudgeFailureDefaultsAndCachesNeutral(t *testing.T) {
	mock := &llm.MockClient{Errs: []error{llm.Transient(errors.New("timeout"))}}
	ev, db := testEvaluator(t, mock)

	results := ev.EvaluateBatch(context.Background(), []Item{
		{MessageID: "m1", UserID: "u1", ConversationID: "c1", Content: "Some content."},
	})
	assert.Equal(t, 5.0, results[0].Score)

	// The default is cached so the same content is not re-judged
	cached, err := db.CachedScore(ContentHash("Some content."), "v1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 5.0, *cached)
}

func TestEvaluateNonNumericReplyCachesNeutral(t *testing.T) {
	mock := llm.MockReply("no number in this reply at all")
	ev, db := testEvaluator(t, mock)

	content := "A response the judge cannot rate."
	results := ev.EvaluateBatch(context.Background(), []Item{
		{MessageID: "m1", UserID: "u1", ConversationID: "c1", Content: content},
	})
	assert.Equal(t, 5.0, results[0].Score)

	cached, err := db.CachedScore(ContentHash(content), "v1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 5.0, *cached)

	// A second cycle over the same content hits the cache
	calls := len(mock.Calls)
	again := ev.EvaluateBatch(context.Background(), []Item{
		{MessageID: "m2", UserID: "u1", ConversationID: "c1", Content: content},
	})
	assert.Equal(t, 5.0, again[0].Score)
	assert.True(t, again[0].Cached)
	assert.Len(t, mock.Calls, calls)
}

func TestAdjustAppliesPositiveDelta(t *testing.T) {
	ev, db := testEvaluator(t, llm.MockReply("8"))

	conv, err := db.CreateConversation("u1", "Chat", "general", "")
	require.NoError(t, err)
	asst, err := db.AddMessage("u1", conv.ID, store.RoleAssistant, "Here is how you do it.")
	require.NoError(t, err)
	_, err = db.AddMessage("u1", conv.ID, store.RoleUser, "thanks, that worked!")
	require.NoError(t, err)

	results := ev.EvaluateBatch(context.Background(), []Item{{
		MessageID:      asst.ID,
		UserID:         "u1",
		ConversationID: conv.ID,
		Ordinal:        asst.Ordinal,
		Content:        asst.Content,
	}})
	assert.InDelta(t, 8.7, results[0].Score, 1e-9)
}

func TestAdjustClampsAtCeiling(t *testing.T) {
	ev, db := testEvaluator(t, llm.MockReply("10"))

	conv, err := db.CreateConversation("u1", "Chat", "general", "")
	require.NoError(t, err)
	asst, err := db.AddMessage("u1", conv.ID, store.RoleAssistant, "Flawless answer.")
	require.NoError(t, err)
	_, err = db.AddMessage("u1", conv.ID, store.RoleUser, "perfect, thanks!")
	require.NoError(t, err)

	results := ev.EvaluateBatch(context.Background(), []Item{{
		MessageID:      asst.ID,
		UserID:         "u1",
		ConversationID: conv.ID,
		Ordinal:        asst.Ordinal,
		Content:        asst.Content,
	}})
	assert.Equal(t, 10.0, results[0].Score)
}

func TestAdjustSkippedWithExplicitFeedback(t *testing.T) {
	ev, db := testEvaluator(t, llm.MockReply("8"))

	conv, err := db.CreateConversation("u1", "Chat", "general", "")
	require.NoError(t, err)
	asst, err := db.AddMessage("u1", conv.ID, store.RoleAssistant, "Here is how you do it.")
	require.NoError(t, err)
	_, err = db.AddMessage("u1", conv.ID, store.RoleUser, "thanks, that worked!")
	require.NoError(t, err)
	_, err = db.RecordHumanFeedback(asst.ID, "like", 8.0)
	require.NoError(t, err)

	results := ev.EvaluateBatch(context.Background(), []Item{{
		MessageID:      asst.ID,
		UserID:         "u1",
		ConversationID: conv.ID,
		Ordinal:        asst.Ordinal,
		Content:        asst.Content,
	}})
	assert.Equal(t, 8.0, results[0].Score)
}

func TestAdjustDisabledByConfig(t *testing.T) {
	ev, db := testEvaluator(t, llm.MockReply("8"))
	ev.cfg.FeedbackAdjustment = false

	conv, err := db.CreateConversation("u1", "Chat", "general", "")
	require.NoError(t, err)
	asst, err := db.AddMessage("u1", conv.ID, store.RoleAssistant, "Here is how you do it.")
	require.NoError(t, err)
	_, err = db.AddMessage("u1", conv.ID, store.RoleUser, "thanks, that worked!")
	require.NoError(t, err)

	results := ev.EvaluateBatch(context.Background(), []Item{{
		MessageID:      asst.ID,
		UserID:         "u1",
		ConversationID: conv.ID,
		Ordinal:        asst.Ordinal,
		Content:        asst.Content,
	}})
	assert.Equal(t, 8.0, results[0].Score)
}

func TestProcessBatchPersistsScores(t *testing.T) {
	ev, db := testEvaluator(t, llm.MockReply("8"))

	conv, err := db.CreateConversation("u1", "Chat", "general", "")
	require.NoError(t, err)
	asst, err := db.AddMessage("u1", conv.ID, store.RoleAssistant, "The answer is 42.")
	require.NoError(t, err)

	stats, err := ev.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchStats{TotalFound: 1, Evaluated: 1}, stats)

	msg, err := db.GetMessage(asst.ID)
	require.NoError(t, err)
	require.NotNil(t, msg.QualityScore)
	assert.Equal(t, 8.0, *msg.QualityScore)
	assert.Equal(t, "mock-model", msg.EvalModel)
	assert.Equal(t, "v1", msg.EvaluatorVersion)
	require.NotNil(t, msg.FinalQualityScore)
	assert.Equal(t, 8.0, *msg.FinalQualityScore)

	// Second pass finds nothing left to score
	stats, err = ev.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchStats{}, stats)
}

func TestProcessBatchEmptyStore(t *testing.T) {
	ev, _ := testEvaluator(t, llm.MockReply("8"))
	stats, err := ev.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchStats{}, stats)
}

func TestRescorerBlendsHumanFeedback(t *testing.T) {
	ev, db := testEvaluator(t, llm.MockReply("6"))

	conv, err := db.CreateConversation("u1", "Chat", "general", "")
	require.NoError(t, err)
	asst, err := db.AddMessage("u1", conv.ID, store.RoleAssistant, "An answer.")
	require.NoError(t, err)
	_, err = db.RecordHumanFeedback(asst.ID, "great_response", 9.0)
	require.NoError(t, err)

	_, err = ev.ProcessBatch(context.Background())
	require.NoError(t, err)

	msg, err := db.GetMessage(asst.ID)
	require.NoError(t, err)
	require.NotNil(t, msg.FinalQualityScore)
	// 0.7*9.0 + 0.3*6.0
	assert.InDelta(t, 8.1, *msg.FinalQualityScore, 1e-9)
}
