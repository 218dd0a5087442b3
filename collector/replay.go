package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// ReplayCollector serves a previously captured dump of normalized items
// from a JSON file, paging through it with an offset cursor. It stands in
// for a live platform integration during reprocessing and in tests.
type ReplayCollector struct {
	platform string
	kind     EngagementKind
	pageSize int
	items    []ContentItem
}

// NewReplayCollector loads a JSON array of ContentItem from path.
func NewReplayCollector(path, platform string, kind EngagementKind, pageSize int) (*ReplayCollector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump %s: %w", path, err)
	}
	var items []ContentItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse dump %s: %w", path, err)
	}
	if pageSize <= 0 {
		pageSize = 25
	}
	return &ReplayCollector{
		platform: platform,
		kind:     kind,
		pageSize: pageSize,
		items:    items,
	}, nil
}

func (c *ReplayCollector) Platform() string               { return c.platform }
func (c *ReplayCollector) EngagementKind() EngagementKind { return c.kind }

// FetchBatch pages through the dump. The cursor is the decimal offset of
// the next unread item; an empty cursor starts from the beginning.
func (c *ReplayCollector) FetchBatch(ctx context.Context, topic Topic, cursor string) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Batch{}, fmt.Errorf("malformed replay cursor %q", cursor)
		}
		offset = n
	}

	if offset >= len(c.items) {
		return Batch{End: true}, nil
	}

	end := offset + c.pageSize
	if end > len(c.items) {
		end = len(c.items)
	}
	return Batch{
		Items:      c.items[offset:end],
		NextCursor: strconv.Itoa(end),
		End:        end == len(c.items),
	}, nil
}
