// Package collector defines the normalized content model and the contract
// the engine requires from any platform integration. The engine never
// branches on platform identity, only on the engagement style a collector
// declares.
package collector

import "context"

// EngagementKind tells the filter pipeline which engagement fields carry
// signal for a platform.
type EngagementKind int

const (
	// EngagementForum means Score and CommentCount are meaningful
	// (forum posts, issues, questions).
	EngagementForum EngagementKind = iota
	// EngagementCatalog means Likes and Downloads are meaningful
	// (model and dataset catalogs).
	EngagementCatalog
)

// Batch is one page of fetch results. End marks the end of the stream; a
// Batch with End=false must carry a usable NextCursor.
type Batch struct {
	Items      []ContentItem
	NextCursor string
	End        bool
}

// Collector yields normalized items for a topic, one page at a time.
// Implementations own query construction, authentication and paging.
// Rate-limit signals must surface as *RetryAfterError so the run loop can
// back off instead of aborting.
type Collector interface {
	Platform() string
	EngagementKind() EngagementKind
	FetchBatch(ctx context.Context, topic Topic, cursor string) (Batch, error)
}
