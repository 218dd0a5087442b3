package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sift/collector"
)

// FilterConfig holds every threshold and list the filter pipeline
// consults. Loaded once per run, immutable thereafter.
type FilterConfig struct {
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	MinPostLength      int     `yaml:"min_post_length"`
	MinWordCount       int     `yaml:"min_word_count"`
	MaxAgeDays         int     `yaml:"max_age_days"`
	MaxLinkRatio       float64 `yaml:"max_link_ratio"`
	EnglishOnly        bool    `yaml:"english_only"`

	// Forum-style engagement floors (score, comment count).
	MinScore    int `yaml:"min_score"`
	MinComments int `yaml:"min_comments"`
	// Catalog-style engagement floors (likes, downloads).
	MinLikes     int `yaml:"min_likes"`
	MinDownloads int `yaml:"min_downloads"`

	// Comments of accepted items are held to a relaxed bar.
	CommentMinLength int `yaml:"comment_min_length"`
	TopComments      int `yaml:"top_comments"`

	KeywordWeightFloor float64 `yaml:"keyword_weight_floor"`
	MaxInputChars      int     `yaml:"max_input_chars"`
	MaxItemsPerTopic   int     `yaml:"max_items_per_topic"`
	CheckpointEvery    int     `yaml:"checkpoint_every"`
	Workers            int     `yaml:"workers"`

	PromoKeywords      []string `yaml:"promo_keywords"`
	BlacklistedDomains []string `yaml:"blacklisted_domains"`
	ExtraStopwords     []string `yaml:"extra_stopwords"`

	Topics []collector.Topic `yaml:"topics"`
}

// DefaultFilterConfig mirrors the thresholds the engine ships with.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		RelevanceThreshold: 0.35,
		MinPostLength:      100,
		MinWordCount:       10,
		MaxAgeDays:         730,
		MaxLinkRatio:       0.3,
		EnglishOnly:        true,

		MinScore:     10,
		MinComments:  1,
		MinLikes:     5,
		MinDownloads: 100,

		CommentMinLength: 20,
		TopComments:      5,

		KeywordWeightFloor: 0.35,
		MaxInputChars:      2000,
		MaxItemsPerTopic:   10000,
		CheckpointEvery:    10,
		Workers:            4,

		PromoKeywords: []string{
			"buy now", "sale", "discount", "promotion", "special offer",
			"webinar", "free trial", "limited time",
		},
		BlacklistedDomains: []string{
			// URL shorteners
			"bit.ly", "tinyurl.com", "t.co", "goo.gl", "is.gd", "ow.ly",
			"buff.ly", "adf.ly", "shorte.st", "bc.vc",
			// Ad and tracking domains
			"doubleclick.net", "adservice.google.com", "googlesyndication.com",
			"analytics.google.com", "criteo.com", "taboola.com", "outbrain.com",
		},
	}
}

// LoadFilterConfig reads a YAML filter file over the defaults. An empty
// path returns the defaults unchanged.
func LoadFilterConfig(path string) (FilterConfig, error) {
	cfg := DefaultFilterConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return FilterConfig{}, fmt.Errorf("failed to read filter config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return FilterConfig{}, fmt.Errorf("failed to parse filter config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return FilterConfig{}, err
	}
	return cfg, nil
}

func (c FilterConfig) validate() error {
	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		return fmt.Errorf("relevance_threshold %v out of range [0,1]", c.RelevanceThreshold)
	}
	if c.KeywordWeightFloor < 0 || c.KeywordWeightFloor > 1 {
		return fmt.Errorf("keyword_weight_floor %v out of range [0,1]", c.KeywordWeightFloor)
	}
	if c.MaxLinkRatio < 0 {
		return fmt.Errorf("max_link_ratio %v must not be negative", c.MaxLinkRatio)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers %d must be at least 1", c.Workers)
	}
	if c.CheckpointEvery < 1 {
		return fmt.Errorf("checkpoint_every %d must be at least 1", c.CheckpointEvery)
	}
	return nil
}
