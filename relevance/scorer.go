// Package relevance scores candidate text against a topic using sentence
// embeddings. The scorer is pure: for a fixed model and input it always
// produces the same score, and it never mutates shared state beyond its
// internal anchor cache.
package relevance

import (
	"context"
	"fmt"
	"sync"

	"sift/collector"
	"sift/embedding"
	"sift/textproc"
)

// DefaultMaxInputChars bounds embedding input length. mpnet-class models
// truncate around 384 word pieces; staying near 2000 characters keeps the
// model from silently dropping the tail.
const DefaultMaxInputChars = 2000

// Scorer turns text into a similarity score in [0, 1] against a topic
// anchor. Anchors are embedded once per topic and cached.
type Scorer struct {
	client        embedding.Client
	normalizer    *textproc.Normalizer
	maxInputChars int

	mu      sync.Mutex
	anchors map[string][]float32
}

func NewScorer(client embedding.Client, normalizer *textproc.Normalizer, maxInputChars int) *Scorer {
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}
	return &Scorer{
		client:        client,
		normalizer:    normalizer,
		maxInputChars: maxInputChars,
		anchors:       make(map[string][]float32),
	}
}

// Anchor returns the cached topic embedding, computing it on first use.
func (s *Scorer) Anchor(ctx context.Context, topic collector.Topic) ([]float32, error) {
	s.mu.Lock()
	if vec, ok := s.anchors[topic.Name]; ok {
		s.mu.Unlock()
		return vec, nil
	}
	s.mu.Unlock()

	vecs, err := s.client.GetEmbeddings(ctx, []string{topic.AnchorText()})
	if err != nil {
		return nil, fmt.Errorf("failed to embed topic %q: %w", topic.Name, err)
	}

	s.mu.Lock()
	s.anchors[topic.Name] = vecs[0]
	s.mu.Unlock()
	return vecs[0], nil
}

// Score embeds one text and returns its similarity to the topic anchor.
func (s *Scorer) Score(ctx context.Context, text string, topic collector.Topic) (float64, error) {
	scores, err := s.ScoreBatch(ctx, []string{text}, topic)
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch scores many texts in a single batched inference call,
// amortizing model overhead. Texts that normalize to nothing score 0
// without touching the model. The returned slice is index-aligned with
// texts.
func (s *Scorer) ScoreBatch(ctx context.Context, texts []string, topic collector.Topic) ([]float64, error) {
	scores := make([]float64, len(texts))

	inputs := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		normalized := s.Normalize(text)
		if normalized == "" {
			continue
		}
		inputs = append(inputs, normalized)
		positions = append(positions, i)
	}
	if len(inputs) == 0 {
		return scores, nil
	}

	anchor, err := s.Anchor(ctx, topic)
	if err != nil {
		return nil, err
	}

	vecs, err := s.client.GetEmbeddings(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch of %d texts: %w", len(inputs), err)
	}

	for j, vec := range vecs {
		scores[positions[j]] = Rescale(embedding.CosineSimilarity(anchor, vec))
	}
	return scores, nil
}

// Normalize returns the exact text form the scorer would embed:
// whitespace-collapsed and truncated on sentence boundaries.
func (s *Scorer) Normalize(text string) string {
	return s.normalizer.Truncate(textproc.CollapseWhitespace(text), s.maxInputChars)
}

// Rescale maps raw cosine similarity from [-1, 1] into [0, 1].
func Rescale(cos float32) float64 {
	score := (float64(cos) + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
