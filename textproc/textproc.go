// Package textproc normalizes raw platform text before scoring and
// keyword extraction: HTML stripping, whitespace collapsing,
// sentence-boundary truncation, and link statistics.
package textproc

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

var (
	linkPattern          = regexp.MustCompile(`https?://[^\s)\]>"']+`)
	markdownImagePattern = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	markdownLinkPattern  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
)

// Normalizer prepares candidate text for embedding. One instance is safe
// for concurrent use.
type Normalizer struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

func NewNormalizer() (*Normalizer, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, err
	}
	return &Normalizer{tokenizer: tokenizer}, nil
}

// Clean strips HTML markup, markdown link syntax and bare URLs, then
// collapses whitespace. The result is plain prose suitable for the
// embedding model and for keyword extraction.
func (n *Normalizer) Clean(text string) string {
	if strings.Contains(text, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			doc.Find("script, style, noscript, pre > code").Remove()
			text = doc.Text()
		}
	}
	text = markdownImagePattern.ReplaceAllString(text, "$1")
	text = markdownLinkPattern.ReplaceAllString(text, "$1")
	text = linkPattern.ReplaceAllString(text, " ")
	return CollapseWhitespace(text)
}

// Truncate shortens text to at most maxChars, cutting only on sentence
// boundaries so a half-written sentence never corrupts the embedding. A
// single oversized sentence falls back to a word boundary.
func (n *Normalizer) Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	var b strings.Builder
	for _, s := range n.tokenizer.Tokenize(text) {
		sentence := strings.TrimSpace(s.Text)
		if sentence == "" {
			continue
		}
		if b.Len()+len(sentence)+1 > maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
	}
	if b.Len() > 0 {
		return b.String()
	}

	// First sentence alone exceeds maxChars: cut at the last word that fits.
	truncated := text[:maxChars]
	if idx := strings.LastIndexByte(truncated, ' '); idx > 0 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}

// CollapseWhitespace joins all runs of whitespace into single spaces.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// CountLinks returns the number of outbound links in the raw (uncleaned)
// text.
func CountLinks(text string) int {
	return len(linkPattern.FindAllString(text, -1))
}

// LinkRatio is outbound links per word of raw text. Empty text ratios 0.
func LinkRatio(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return float64(CountLinks(text)) / float64(words)
}

// Links returns the raw link strings found in text, used for domain
// blacklist checks.
func Links(text string) []string {
	return linkPattern.FindAllString(text, -1)
}
