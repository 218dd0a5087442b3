// Package pipeline is the filtering core: it runs every fetched item
// through dedup, structural, and content-quality checks, hands survivors
// to the embedding scorer, and on acceptance feeds the keyword store and
// URL registry through a single-writer path.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudflare/ahocorasick"
	"github.com/pemistahl/lingua-go"
	"go.uber.org/zap"

	"sift/collector"
	"sift/config"
	"sift/keywords"
	"sift/relevance"
	"sift/state"
	"sift/textproc"
)

// Engine evaluates items against a topic. Construction is cheap relative
// to the language detector, so build one Engine per run and share it.
type Engine struct {
	cfg        config.FilterConfig
	scorer     *relevance.Scorer
	normalizer *textproc.Normalizer
	extractor  *keywords.Extractor
	store      *keywords.Store
	states     *state.Store
	logger     *zap.Logger

	promoMatcher *ahocorasick.Matcher
	promoTerms   []string
	detector     lingua.LanguageDetector

	// acceptMu serializes acceptance side effects (URL registration and
	// keyword merges), preserving the max-merge invariant under
	// concurrent evaluation.
	acceptMu sync.Mutex

	now func() time.Time
}

func NewEngine(
	cfg config.FilterConfig,
	scorer *relevance.Scorer,
	normalizer *textproc.Normalizer,
	extractor *keywords.Extractor,
	store *keywords.Store,
	states *state.Store,
	logger *zap.Logger,
) *Engine {
	terms := make([]string, 0, len(cfg.PromoKeywords))
	for _, kw := range cfg.PromoKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			terms = append(terms, kw)
		}
	}

	e := &Engine{
		cfg:          cfg,
		scorer:       scorer,
		normalizer:   normalizer,
		extractor:    extractor,
		store:        store,
		states:       states,
		logger:       logger,
		promoMatcher: ahocorasick.NewStringMatcher(terms),
		promoTerms:   terms,
		now:          time.Now,
	}

	if cfg.EnglishOnly {
		e.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.English, lingua.German, lingua.French, lingua.Spanish,
				lingua.Portuguese, lingua.Italian, lingua.Russian, lingua.Chinese,
				lingua.Japanese, lingua.Korean, lingua.Hindi, lingua.Arabic,
			).
			Build()
	}

	return e
}

// Evaluate runs the full pipeline for one item: dedup, structural
// pre-filter, content-quality filter, semantic scoring, threshold
// decision. On acceptance it registers the URL and merges learned
// keywords. Scoring failures reject the item rather than erroring; only
// state-layer failures surface as errors.
func (e *Engine) Evaluate(ctx context.Context, item collector.ContentItem, topic collector.Topic, kind collector.EngagementKind) (RelevanceRecord, error) {
	if rec, err := e.dedupCheck(item, topic); rec != nil || err != nil {
		if rec != nil {
			return *rec, nil
		}
		return RelevanceRecord{}, err
	}

	if rec := e.precheck(item, topic, kind); rec != nil {
		return *rec, nil
	}

	cleaned := e.Clean(item.Text())
	score, err := e.scorer.Score(ctx, cleaned, topic)
	if err != nil {
		e.logger.Warn("scoring failed",
			zap.String("item_id", item.ID),
			zap.String("url", item.URL),
			zap.Error(err))
		return e.reject(item, topic, ReasonScoringFailed, err.Error()), nil
	}

	if score < e.cfg.RelevanceThreshold {
		rec := e.reject(item, topic, ReasonBelowThreshold, "")
		rec.SimilarityScore = score
		return rec, nil
	}

	return e.commitAccept(item, topic, score, cleaned)
}

// dedupCheck canonicalizes the item URL and short-circuits when the
// registry already holds it. Runs before anything expensive.
func (e *Engine) dedupCheck(item collector.ContentItem, topic collector.Topic) (*RelevanceRecord, error) {
	seen, err := e.states.SeenURL(item.URL)
	if err != nil {
		return nil, fmt.Errorf("registry lookup for %s: %w", item.URL, err)
	}
	if seen {
		rec := e.reject(item, topic, ReasonDuplicate, "")
		return &rec, nil
	}
	return nil, nil
}

// precheck covers the structural and content-quality stages. A nil
// return means the item survived and may be scored.
func (e *Engine) precheck(item collector.ContentItem, topic collector.Topic, kind collector.EngagementKind) *RelevanceRecord {
	text := item.Text()

	if e.cfg.MaxAgeDays > 0 {
		age := e.now().Sub(item.CreatedAt)
		if age > time.Duration(e.cfg.MaxAgeDays)*24*time.Hour {
			return e.rejectP(item, topic, ReasonTooOld, fmt.Sprintf("%d days", int(age.Hours()/24)))
		}
	}
	if len(text) < e.cfg.MinPostLength {
		return e.rejectP(item, topic, ReasonMinPostLength, fmt.Sprintf("%d chars", len(text)))
	}
	if words := len(strings.Fields(text)); words < e.cfg.MinWordCount {
		return e.rejectP(item, topic, ReasonMinWordCount, fmt.Sprintf("%d words", words))
	}
	if detail, ok := e.engagementOK(item.Engagement, kind); !ok {
		return e.rejectP(item, topic, ReasonMinEngagement, detail)
	}

	if e.detector != nil {
		lang, ok := e.detector.DetectLanguageOf(text)
		if !ok || lang != lingua.English {
			return e.rejectP(item, topic, ReasonNotEnglish, lang.String())
		}
	}
	if ratio := textproc.LinkRatio(text); ratio > e.cfg.MaxLinkRatio {
		return e.rejectP(item, topic, ReasonMaxLinkRatio, fmt.Sprintf("%.2f", ratio))
	}
	if term := e.promoMatch(text); term != "" {
		return e.rejectP(item, topic, ReasonPromotional, term)
	}
	if domain := e.blacklistedDomain(text); domain != "" {
		return e.rejectP(item, topic, ReasonBlacklistedDomain, domain)
	}

	return nil
}

func (e *Engine) engagementOK(eng collector.Engagement, kind collector.EngagementKind) (string, bool) {
	switch kind {
	case collector.EngagementCatalog:
		if eng.Downloads < e.cfg.MinDownloads && eng.Likes < e.cfg.MinLikes {
			return fmt.Sprintf("downloads=%d likes=%d", eng.Downloads, eng.Likes), false
		}
	default:
		if eng.Score < e.cfg.MinScore {
			return fmt.Sprintf("score=%d", eng.Score), false
		}
		if eng.CommentCount < e.cfg.MinComments {
			return fmt.Sprintf("comments=%d", eng.CommentCount), false
		}
	}
	return "", true
}

// promoMatch returns the first configured promotional keyword present in
// text, or "".
func (e *Engine) promoMatch(text string) string {
	if len(e.promoTerms) == 0 {
		return ""
	}
	hits := e.promoMatcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return ""
	}
	return e.promoTerms[hits[0]]
}

// blacklistedDomain returns the first blacklisted domain the text links
// to, or "".
func (e *Engine) blacklistedDomain(text string) string {
	links := textproc.Links(text)
	for _, link := range links {
		host := ""
		if u, err := url.Parse(link); err == nil {
			host = strings.ToLower(u.Host)
		}
		for _, domain := range e.cfg.BlacklistedDomains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return domain
			}
		}
	}
	// Bare mentions without a scheme, e.g. "bit.ly/xyz".
	lower := strings.ToLower(text)
	for _, domain := range e.cfg.BlacklistedDomains {
		if mentionsDomain(lower, domain) {
			return domain
		}
	}
	return ""
}

func isDomainChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '-'
}

// mentionsDomain reports whether text contains domain as a standalone
// host token. "bit.ly/xyz" mentions bit.ly and "spam.t.co" mentions t.co,
// but "support.com" does not mention t.co and "bit.ly.evil.com" does not
// mention bit.ly. Expects lowercased text.
func mentionsDomain(text, domain string) bool {
	for from := 0; ; {
		idx := strings.Index(text[from:], domain)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(domain)
		from = start + 1

		// Preceded by a host label: part of a longer name unless the
		// separator is a dot (subdomain of the blacklisted domain).
		if start > 0 && isDomainChar(text[start-1]) {
			continue
		}
		if end < len(text) {
			if isDomainChar(text[end]) {
				continue
			}
			// A dot starting another host label means a different domain;
			// a sentence-ending dot does not.
			if text[end] == '.' && end+1 < len(text) && isDomainChar(text[end+1]) {
				continue
			}
		}
		return true
	}
}

// commitAccept finalizes an acceptance: re-checks the registry under the
// writer lock (two copies of one URL can survive the concurrent
// pre-stage), registers the URL, merges keyword evidence, and builds the
// accepted record. Nothing is written until the decision is final.
func (e *Engine) commitAccept(item collector.ContentItem, topic collector.Topic, score float64, cleaned string) (RelevanceRecord, error) {
	e.acceptMu.Lock()
	defer e.acceptMu.Unlock()

	seen, err := e.states.SeenURL(item.URL)
	if err != nil {
		return RelevanceRecord{}, fmt.Errorf("registry re-check for %s: %w", item.URL, err)
	}
	if seen {
		return e.reject(item, topic, ReasonDuplicate, ""), nil
	}
	if err := e.states.RegisterURL(item.URL); err != nil {
		return RelevanceRecord{}, fmt.Errorf("registering %s: %w", item.URL, err)
	}

	contribution := score * keywords.RecencyFactor(item.CreatedAt, e.now(), e.cfg.MaxAgeDays)
	e.store.Learn(e.extractor.Extract(cleaned), contribution)

	matched := e.store.Snapshot().Match(cleaned, e.cfg.KeywordWeightFloor)

	return RelevanceRecord{
		ItemID:          item.ID,
		Topic:           topic.Name,
		SimilarityScore: score,
		MatchedKeywords: matched,
		Decision:        Accept,
		Reason:          ReasonAccepted,
	}, nil
}

// EvaluateComments scores an accepted item's comments against a relaxed
// bar: a minimum text length only, no engagement or age requirement.
// Relevant comments feed keyword learning and are returned sorted by
// score, capped at the configured top-N.
func (e *Engine) EvaluateComments(ctx context.Context, item collector.ContentItem, topic collector.Topic) ([]ScoredComment, error) {
	if len(item.Comments) == 0 {
		return nil, nil
	}

	candidates := make([]collector.Comment, 0, len(item.Comments))
	texts := make([]string, 0, len(item.Comments))
	for _, c := range item.Comments {
		cleaned := e.Clean(c.Text)
		if len(cleaned) < e.cfg.CommentMinLength {
			continue
		}
		candidates = append(candidates, c)
		texts = append(texts, cleaned)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scores, err := e.scorer.ScoreBatch(ctx, texts, topic)
	if err != nil {
		return nil, fmt.Errorf("scoring %d comments of %s: %w", len(candidates), item.ID, err)
	}

	recency := keywords.RecencyFactor(item.CreatedAt, e.now(), e.cfg.MaxAgeDays)
	var relevant []ScoredComment
	for i, c := range candidates {
		if scores[i] < e.cfg.RelevanceThreshold {
			continue
		}
		relevant = append(relevant, ScoredComment{Comment: c, SimilarityScore: scores[i]})

		e.acceptMu.Lock()
		e.store.Learn(e.extractor.Extract(texts[i]), scores[i]*recency)
		e.acceptMu.Unlock()
	}

	sortComments(relevant)
	if e.cfg.TopComments > 0 && len(relevant) > e.cfg.TopComments {
		relevant = relevant[:e.cfg.TopComments]
	}
	return relevant, nil
}

// Clean strips markup and collapses whitespace; the exact text form the
// scorer and extractor consume.
func (e *Engine) Clean(text string) string {
	return e.normalizer.Clean(text)
}

func (e *Engine) reject(item collector.ContentItem, topic collector.Topic, reason Reason, detail string) RelevanceRecord {
	return RelevanceRecord{
		ItemID:   item.ID,
		Topic:    topic.Name,
		Decision: Reject,
		Reason:   reason,
		Detail:   detail,
	}
}

func (e *Engine) rejectP(item collector.ContentItem, topic collector.Topic, reason Reason, detail string) *RelevanceRecord {
	rec := e.reject(item, topic, reason, detail)
	return &rec
}

func sortComments(comments []ScoredComment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].SimilarityScore > comments[j].SimilarityScore
	})
}
