package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sift/collector"
	"sift/config"
	"sift/keywords"
	"sift/relevance"
	"sift/state"
	"sift/textproc"
)

// fakeEmbedder returns fixed vectors keyed on marker words, making every
// cosine outcome deterministic: "machine learning" scores 1.0 against the
// test topic, "tangent" 0.5, "gardening" 0.0.
type fakeEmbedder struct {
	calls int32
	err   error
}

func (f *fakeEmbedder) Model() string { return "fake" }

func (f *fakeEmbedder) GetEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "gardening"):
			vecs[i] = []float32{-1, 0}
		case strings.Contains(lower, "tangent"):
			vecs[i] = []float32{0, 1}
		default:
			vecs[i] = []float32{1, 0}
		}
	}
	return vecs, nil
}

func testFilterConfig() config.FilterConfig {
	cfg := config.DefaultFilterConfig()
	cfg.EnglishOnly = false
	cfg.Workers = 2
	cfg.CheckpointEvery = 1
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *keywords.Store
	states *state.Store
	client *fakeEmbedder
}

func newTestEnv(t *testing.T, cfg config.FilterConfig) *testEnv {
	t.Helper()

	client := &fakeEmbedder{}
	normalizer, err := textproc.NewNormalizer()
	require.NoError(t, err)
	scorer := relevance.NewScorer(client, normalizer, cfg.MaxInputChars)
	extractor := keywords.NewExtractor(cfg.ExtraStopwords)
	store := keywords.NewStore()

	states, err := state.Open(filepath.Join(t.TempDir(), "state.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { states.Close() })

	return &testEnv{
		engine: NewEngine(cfg, scorer, normalizer, extractor, store, states, zap.NewNop()),
		store:  store,
		states: states,
		client: client,
	}
}

const relevantBody = "Our team spent the last quarter training a neural network for fraud " +
	"detection across payment streams. The machine learning model improved precision " +
	"in every customer segment we measured after deploying it to production."

func testItem(id string) collector.ContentItem {
	return collector.ContentItem{
		ID:        id,
		Platform:  "forum",
		Title:     "Lessons from a production rollout",
		Body:      relevantBody,
		Author:    "dev",
		CreatedAt: time.Now().Add(-time.Hour),
		Engagement: collector.Engagement{
			Score:        25,
			CommentCount: 3,
		},
		URL: fmt.Sprintf("https://example.com/post/%s", id),
	}
}

var testTopic = collector.Topic{
	Name:        "machine learning",
	Description: "training and deploying machine learning models",
}

func TestEvaluateAccept(t *testing.T) {
	env := newTestEnv(t, testFilterConfig())

	rec, err := env.engine.Evaluate(context.Background(), testItem("a1"), testTopic, collector.EngagementForum)
	require.NoError(t, err)

	assert.Equal(t, Accept, rec.Decision)
	assert.Equal(t, ReasonAccepted, rec.Reason)
	assert.Equal(t, 1.0, rec.SimilarityScore)
	assert.Contains(t, rec.MatchedKeywords, "neural network")

	// Acceptance registered the URL and learned vocabulary.
	seen, err := env.states.SeenURL("https://example.com/post/a1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Greater(t, env.store.Len(), 0)
	assert.GreaterOrEqual(t, env.store.Weight("neural network"), 0.9)
}

func TestEvaluateDuplicate(t *testing.T) {
	env := newTestEnv(t, testFilterConfig())
	ctx := context.Background()

	_, err := env.engine.Evaluate(ctx, testItem("a1"), testTopic, collector.EngagementForum)
	require.NoError(t, err)

	// Same URL again.
	rec, err := env.engine.Evaluate(ctx, testItem("a1"), testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, Reject, rec.Decision)
	assert.Equal(t, ReasonDuplicate, rec.Reason)

	// A tracking-parameter variant of the same URL is still a duplicate.
	variant := testItem("a1")
	variant.URL += "?utm_source=newsletter"
	rec, err = env.engine.Evaluate(ctx, variant, testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicate, rec.Reason)
}

func TestEvaluateThreshold(t *testing.T) {
	cfg := testFilterConfig()
	cfg.RelevanceThreshold = 0.5
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	// Cosine 0 rescales to exactly the threshold: accepted, not rejected.
	atBar := testItem("t1")
	atBar.Body = "This long post goes off on a tangent about unrelated infrastructure " +
		"concerns, yet it keeps enough words and characters to clear every structural " +
		"filter stage before scoring happens."
	rec, err := env.engine.Evaluate(ctx, atBar, testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, Accept, rec.Decision)
	assert.Equal(t, 0.5, rec.SimilarityScore)

	// Strictly below the threshold: rejected, score preserved on the record.
	below := testItem("t2")
	below.Body = "A long gardening journal entry describing soil preparation, seasonal " +
		"planting schedules and the various tools required to keep a suburban vegetable " +
		"patch productive throughout the year."
	rec, err = env.engine.Evaluate(ctx, below, testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, Reject, rec.Decision)
	assert.Equal(t, ReasonBelowThreshold, rec.Reason)
	assert.Equal(t, 0.0, rec.SimilarityScore)

	// Nothing below the bar leaked into the store or the registry.
	seen, err := env.states.SeenURL(below.URL)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestStructuralRejectsSkipScoring(t *testing.T) {
	env := newTestEnv(t, testFilterConfig())
	ctx := context.Background()

	manyLinks := strings.Repeat("https://example.com/x ", 8) + "just a few words here"

	tests := []struct {
		name   string
		mutate func(*collector.ContentItem)
		reason Reason
	}{
		{
			name:   "too old",
			mutate: func(it *collector.ContentItem) { it.CreatedAt = time.Now().AddDate(-3, 0, 0) },
			reason: ReasonTooOld,
		},
		{
			name:   "too short",
			mutate: func(it *collector.ContentItem) { it.Title, it.Body = "", "short" },
			reason: ReasonMinPostLength,
		},
		{
			name: "too few words",
			mutate: func(it *collector.ContentItem) {
				it.Title, it.Body = "", strings.Repeat("x", 120)+" word"
			},
			reason: ReasonMinWordCount,
		},
		{
			name:   "low score",
			mutate: func(it *collector.ContentItem) { it.Engagement.Score = 5 },
			reason: ReasonMinEngagement,
		},
		{
			name:   "no comments",
			mutate: func(it *collector.ContentItem) { it.Engagement.CommentCount = 0 },
			reason: ReasonMinEngagement,
		},
		{
			name:   "link heavy",
			mutate: func(it *collector.ContentItem) { it.Title, it.Body = "", manyLinks },
			reason: ReasonMaxLinkRatio,
		},
		{
			name:   "promotional",
			mutate: func(it *collector.ContentItem) { it.Body += " Buy now while the offer lasts." },
			reason: ReasonPromotional,
		},
		{
			name:   "blacklisted link",
			mutate: func(it *collector.ContentItem) { it.Body += " details at https://bit.ly/3xyzabc" },
			reason: ReasonBlacklistedDomain,
		},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			it := testItem(fmt.Sprintf("s%d", i))
			tc.mutate(&it)
			rec, err := env.engine.Evaluate(ctx, it, testTopic, collector.EngagementForum)
			require.NoError(t, err)
			assert.Equal(t, Reject, rec.Decision)
			assert.Equal(t, tc.reason, rec.Reason)
		})
	}

	// Every rejection above happened before any embedding work.
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.client.calls))
}

func TestBlacklistBareMentions(t *testing.T) {
	env := newTestEnv(t, testFilterConfig())
	ctx := context.Background()

	// "support.com" contains "t.co" as a substring but names a different
	// host; the item must sail through to acceptance.
	innocent := testItem("bm1")
	innocent.Body += " Full writeup is on our support.com knowledge base."
	rec, err := env.engine.Evaluate(ctx, innocent, testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, Accept, rec.Decision)

	// A schemeless shortener mention still trips the blacklist.
	bare := testItem("bm2")
	bare.Body += " Mirror available at bit.ly/3abcxyz for convenience."
	rec, err = env.engine.Evaluate(ctx, bare, testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, ReasonBlacklistedDomain, rec.Reason)
	assert.Equal(t, "bit.ly", rec.Detail)
}

func TestMentionsDomain(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		domain string
		want   bool
	}{
		{"bare path mention", "grab it from bit.ly/xyz today", "bit.ly", true},
		{"subdomain mention", "spam arrives via evil.t.co links", "t.co", true},
		{"end of sentence", "they moved everything to goo.gl.", "goo.gl", true},
		{"longer host suffix", "docs live on support.com now", "t.co", false},
		{"longer host prefix", "that domain is bit.ly.evil.com really", "bit.ly", false},
		{"inside a word", "visit not.comparable prices", "t.co", false},
		{"absent", "nothing suspicious here", "bit.ly", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mentionsDomain(tc.text, tc.domain))
		})
	}
}

func TestCatalogEngagement(t *testing.T) {
	env := newTestEnv(t, testFilterConfig())
	ctx := context.Background()

	popular := testItem("c1")
	popular.Engagement = collector.Engagement{Downloads: 500}
	rec, err := env.engine.Evaluate(ctx, popular, testTopic, collector.EngagementCatalog)
	require.NoError(t, err)
	assert.Equal(t, Accept, rec.Decision)

	liked := testItem("c2")
	liked.Engagement = collector.Engagement{Likes: 9}
	rec, err = env.engine.Evaluate(ctx, liked, testTopic, collector.EngagementCatalog)
	require.NoError(t, err)
	assert.Equal(t, Accept, rec.Decision)

	obscure := testItem("c3")
	obscure.Engagement = collector.Engagement{Downloads: 3, Likes: 1}
	rec, err = env.engine.Evaluate(ctx, obscure, testTopic, collector.EngagementCatalog)
	require.NoError(t, err)
	assert.Equal(t, ReasonMinEngagement, rec.Reason)
}

func TestEnglishOnly(t *testing.T) {
	cfg := testFilterConfig()
	cfg.EnglishOnly = true
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	rec, err := env.engine.Evaluate(ctx, testItem("e1"), testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, Accept, rec.Decision)

	foreign := testItem("e2")
	foreign.Title = "Receta de paella valenciana"
	foreign.Body = "Este es un artículo largo sobre cocina española que describe los " +
		"ingredientes tradicionales y todos los pasos necesarios para preparar una " +
		"paella valenciana auténtica en casa durante el fin de semana."
	rec, err = env.engine.Evaluate(ctx, foreign, testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotEnglish, rec.Reason)
}

func TestEvaluateScoringFailure(t *testing.T) {
	env := newTestEnv(t, testFilterConfig())
	env.client.err = errors.New("embedding service down")

	rec, err := env.engine.Evaluate(context.Background(), testItem("f1"), testTopic, collector.EngagementForum)
	require.NoError(t, err)
	assert.Equal(t, Reject, rec.Decision)
	assert.Equal(t, ReasonScoringFailed, rec.Reason)

	// A scoring failure must not consume the URL.
	seen, err := env.states.SeenURL("https://example.com/post/f1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestEvaluateComments(t *testing.T) {
	cfg := testFilterConfig()
	cfg.TopComments = 2
	env := newTestEnv(t, cfg)

	it := testItem("m1")
	it.Comments = []collector.Comment{
		{ID: "c1", Text: "We solved this with a tangent approach to caching instead."},
		{ID: "c2", Text: "short"},
		{ID: "c3", Text: "Training the machine learning model on fresher data fixed our drift."},
		{ID: "c4", Text: "My gardening hobby keeps me away from these production incidents."},
		{ID: "c5", Text: "Another machine learning anecdote with plenty of detail to score."},
	}

	got, err := env.engine.EvaluateComments(context.Background(), it, testTopic)
	require.NoError(t, err)

	// Top-2 of the relevant ones, highest score first. The short and the
	// off-topic comments never make it.
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].SimilarityScore)
	assert.Equal(t, 1.0, got[1].SimilarityScore)
	for _, sc := range got {
		assert.NotEqual(t, "c2", sc.ID)
		assert.NotEqual(t, "c4", sc.ID)
	}

	// Relevant comments feed the vocabulary too.
	assert.Greater(t, env.store.Len(), 0)
}

func TestEvaluateCommentsNoCandidates(t *testing.T) {
	env := newTestEnv(t, testFilterConfig())

	it := testItem("m2")
	got, err := env.engine.EvaluateComments(context.Background(), it, testTopic)
	require.NoError(t, err)
	assert.Empty(t, got)

	it.Comments = []collector.Comment{{ID: "c1", Text: "nope"}}
	got, err = env.engine.EvaluateComments(context.Background(), it, testTopic)
	require.NoError(t, err)
	assert.Empty(t, got)
}
