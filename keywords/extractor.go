// Package keywords extracts candidate vocabulary terms from accepted
// content and maintains the persistent global keyword store the filter
// pipeline reads back to explain matches.
package keywords

import (
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
	"github.com/kljensen/snowball"
)

const (
	minTokenLen  = 3
	maxPhraseLen = 40
)

// Extractor pulls noun-like candidate keywords out of cleaned text.
type Extractor struct {
	stopwords map[string]bool
}

// NewExtractor builds an extractor with the builtin stopword list plus
// the configured extras.
func NewExtractor(extraStopwords []string) *Extractor {
	stops := make(map[string]bool, len(builtinStopwords)+len(extraStopwords))
	for w := range builtinStopwords {
		stops[w] = true
	}
	for _, w := range extraStopwords {
		stops[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return &Extractor{stopwords: stops}
}

// Extract returns normalized candidate keywords in order of first
// appearance: single nouns (stemmed) and runs of consecutive nouns as
// short phrases. Input should already be HTML-free.
func (e *Extractor) Extract(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithSegmentation(false))
	if err != nil {
		return nil
	}

	var candidates []string
	seen := make(map[string]bool)
	add := func(kw string) {
		if kw == "" || seen[kw] {
			return
		}
		seen[kw] = true
		candidates = append(candidates, kw)
	}

	// A candidate phrase is a noun chunk: optional adjectives followed by
	// nouns, e.g. "neural network", "large language model".
	var run []string
	lastNoun := -1
	flush := func() {
		if lastNoun >= 1 {
			phrase := strings.Join(run[:lastNoun+1], " ")
			if len(phrase) <= maxPhraseLen {
				add(phrase)
			}
		}
		run = run[:0]
		lastNoun = -1
	}

	for _, tok := range doc.Tokens() {
		word := e.normalizeToken(tok.Text)
		if word == "" || !isChunkTag(tok.Tag) {
			flush()
			continue
		}
		if isNounTag(tok.Tag) {
			add(stemWord(word))
			lastNoun = len(run)
		}
		run = append(run, word)
	}
	flush()

	return candidates
}

// normalizeToken lowercases and validates a raw token. Empty return means
// the token is not a keyword candidate.
func (e *Extractor) normalizeToken(raw string) string {
	word := strings.ToLower(strings.Trim(raw, "-_'\".,:;!?()[]{}"))
	if len(word) < minTokenLen {
		return ""
	}
	if e.stopwords[word] {
		return ""
	}
	if !hasLetter(word) {
		return ""
	}
	return word
}

// isNounTag reports whether a Penn Treebank tag marks a noun or proper
// noun.
func isNounTag(tag string) bool {
	return strings.HasPrefix(tag, "NN")
}

// isChunkTag reports whether a tag may appear inside a noun chunk.
func isChunkTag(tag string) bool {
	return isNounTag(tag) || strings.HasPrefix(tag, "JJ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func stemWord(word string) string {
	stem, err := snowball.Stem(word, "english", true)
	if err != nil || stem == "" {
		return word
	}
	return stem
}
