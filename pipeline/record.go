package pipeline

import (
	"time"

	"sift/collector"
)

// Decision is the outcome of one (item, topic) evaluation.
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// Reason identifies the pipeline stage that decided an item's fate. Each
// failing check yields a distinct code.
type Reason string

const (
	ReasonAccepted          Reason = "accepted"
	ReasonDuplicate         Reason = "duplicate"
	ReasonTooOld            Reason = "too_old"
	ReasonMinPostLength     Reason = "min_post_length"
	ReasonMinWordCount      Reason = "min_word_count"
	ReasonMinEngagement     Reason = "min_engagement"
	ReasonNotEnglish        Reason = "not_english"
	ReasonMaxLinkRatio      Reason = "max_link_ratio"
	ReasonPromotional       Reason = "promotional"
	ReasonBlacklistedDomain Reason = "blacklisted_domain"
	ReasonScoringFailed     Reason = "scoring_failed"
	ReasonBelowThreshold    Reason = "below_threshold"
)

// RelevanceRecord is produced once per (item, topic) pair and never
// mutated; re-evaluation produces a new record.
type RelevanceRecord struct {
	ItemID          string   `json:"item_id"`
	Topic           string   `json:"topic"`
	SimilarityScore float64  `json:"similarity_score"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Decision        Decision `json:"decision"`
	Reason          Reason   `json:"reason"`
	// Detail carries the specific trigger, e.g. the promotional keyword
	// or blacklisted domain that fired.
	Detail string `json:"detail,omitempty"`
}

// ScoredComment is a comment that independently passed the relevance bar.
type ScoredComment struct {
	collector.Comment
	SimilarityScore float64 `json:"similarity_score"`
}

// AcceptedItem is the output unit: the item, its record, and its
// relevant comments sorted by score.
type AcceptedItem struct {
	Item     collector.ContentItem `json:"item"`
	Record   RelevanceRecord       `json:"record"`
	Comments []ScoredComment       `json:"comments,omitempty"`
}

// RunStats summarizes one topic run for observability.
type RunStats struct {
	RunID            string         `json:"run_id"`
	Platform         string         `json:"platform"`
	Topic            string         `json:"topic"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	Fetched          int            `json:"fetched"`
	Skipped          int            `json:"skipped"`
	Accepted         int            `json:"accepted"`
	RejectedByReason map[Reason]int `json:"rejected_by_reason"`
}

func newRunStats(runID, platform, topic string) RunStats {
	return RunStats{
		RunID:            runID,
		Platform:         platform,
		Topic:            topic,
		StartedAt:        time.Now(),
		RejectedByReason: make(map[Reason]int),
	}
}

func (s *RunStats) countReject(reason Reason) {
	s.RejectedByReason[reason]++
}
