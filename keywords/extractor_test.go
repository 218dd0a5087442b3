package keywords

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractorNormalizeToken(t *testing.T) {
	e := NewExtractor([]string{"Custom"})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercased", "Kubernetes", "kubernetes"},
		{"punctuation trimmed", "\"database\",", "database"},
		{"too short", "ai", ""},
		{"stopword dropped", "the", ""},
		{"extra stopword dropped", "custom", ""},
		{"digits only dropped", "2024", ""},
		{"mixed alphanumeric kept", "gpt4all", "gpt4all"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.normalizeToken(tc.in))
		})
	}
}

func TestExtractNouns(t *testing.T) {
	e := NewExtractor(nil)

	got := e.Extract("The engineers deployed the database behind a firewall.")
	require.NotEmpty(t, got)

	joined := strings.Join(got, "|")
	assert.Contains(t, joined, "engin") // stemmed "engineers"
	assert.Contains(t, joined, "databas")
	assert.Contains(t, joined, "firewall")
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "behind")
}

func TestExtractNounPhrases(t *testing.T) {
	e := NewExtractor(nil)

	got := e.Extract("We trained a neural network on the dataset.")
	assert.Contains(t, got, "neural network")
}

func TestExtractDedupAndOrder(t *testing.T) {
	e := NewExtractor(nil)

	got := e.Extract("Database database DATABASE.")
	count := 0
	for _, kw := range got {
		if kw == "databas" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractEmptyInput(t *testing.T) {
	e := NewExtractor(nil)
	assert.Empty(t, e.Extract(""))
	assert.Empty(t, e.Extract("a an the of"))
}
