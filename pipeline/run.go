package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sift/collector"
	"sift/config"
	"sift/state"
)

// Runner drives one topic at a time through a collector: fetch, filter,
// score, learn, checkpoint. A Runner is reusable across topics and
// collectors; the shared Engine carries the learned state.
type Runner struct {
	engine    *Engine
	states    *state.Store
	cfg       config.FilterConfig
	outputDir string
	logger    *zap.Logger
}

func NewRunner(engine *Engine, states *state.Store, cfg config.FilterConfig, outputDir string, logger *zap.Logger) *Runner {
	return &Runner{
		engine:    engine,
		states:    states,
		cfg:       cfg,
		outputDir: outputDir,
		logger:    logger,
	}
}

// verdict is the outcome of the concurrent pre-stage for one batch slot.
type verdict struct {
	rejected *RelevanceRecord
	cleaned  string
}

// RunTopic processes one topic to completion or interruption. It resumes
// from the last checkpoint, honors rate limits with backoff, and always
// leaves a valid checkpoint behind, including on cancellation and on
// transient-failure exhaustion.
func (r *Runner) RunTopic(ctx context.Context, col collector.Collector, topic collector.Topic) (RunStats, error) {
	runID := uuid.NewString()
	stats := newRunStats(runID, col.Platform(), topic.Name)
	log := r.logger.With(
		zap.String("run_id", runID),
		zap.String("platform", col.Platform()),
		zap.String("topic", topic.Name),
	)

	topicKey := checkpointKey(col.Platform(), topic.Name)
	cursor := ""
	accepted, err := r.loadResults(col.Platform(), topic.Name)
	if err != nil {
		return stats, err
	}
	if cp, err := r.states.LoadCheckpoint(topicKey); err != nil {
		return stats, err
	} else if cp != nil {
		cursor = cp.Cursor
		log.Info("resuming from checkpoint",
			zap.String("cursor", cp.Cursor),
			zap.Int("accepted_count", cp.AcceptedCount),
			zap.Time("checkpoint_at", cp.Timestamp))
	}

	kind := col.EngagementKind()
	attempt := 0
	initial := len(accepted)
	lastFlushed := len(accepted)

	finish := func() {
		stats.Accepted = len(accepted) - initial
		stats.FinishedAt = time.Now()
	}
	checkpoint := func() error {
		if err := r.flush(topicKey, cursor, accepted, col.Platform(), topic.Name); err != nil {
			return err
		}
		lastFlushed = len(accepted)
		return nil
	}

	for {
		if ctx.Err() != nil {
			if err := checkpoint(); err != nil {
				log.Error("checkpoint on cancellation failed", zap.Error(err))
			}
			finish()
			return stats, ctx.Err()
		}
		if len(accepted) >= r.cfg.MaxItemsPerTopic {
			log.Info("max items per topic reached", zap.Int("accepted", len(accepted)))
			break
		}

		batch, err := col.FetchBatch(ctx, topic, cursor)
		if err != nil {
			delay, retry := collector.NextDelay(attempt, err)
			if !retry {
				if cpErr := checkpoint(); cpErr != nil {
					log.Error("checkpoint on fetch failure failed", zap.Error(cpErr))
				}
				finish()
				if collector.IsTransient(err) {
					log.Warn("retries exhausted, topic run paused", zap.Error(err))
					return stats, fmt.Errorf("topic %q paused after %d attempts: %w", topic.Name, attempt, err)
				}
				return stats, fmt.Errorf("fetching topic %q: %w", topic.Name, err)
			}
			attempt++
			log.Warn("transient fetch failure, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			select {
			case <-ctx.Done():
				continue
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		newlyAccepted, err := r.processBatch(ctx, batch.Items, topic, kind, &stats, log)
		if err != nil {
			if cpErr := checkpoint(); cpErr != nil {
				log.Error("checkpoint on batch failure failed", zap.Error(cpErr))
			}
			finish()
			return stats, err
		}
		for _, item := range newlyAccepted {
			accepted = append(accepted, item)
			if len(accepted)-lastFlushed >= r.cfg.CheckpointEvery {
				if err := checkpoint(); err != nil {
					finish()
					return stats, err
				}
				log.Info("progress checkpoint", zap.Int("accepted", len(accepted)))
			}
			if len(accepted) >= r.cfg.MaxItemsPerTopic {
				break
			}
		}

		cursor = batch.NextCursor
		if batch.End {
			break
		}
	}

	if err := checkpoint(); err != nil {
		finish()
		return stats, err
	}

	finish()
	log.Info("topic run completed",
		zap.Int("fetched", stats.Fetched),
		zap.Int("accepted", stats.Accepted),
		zap.Int("skipped", stats.Skipped),
		zap.Any("rejected_by_reason", stats.RejectedByReason))
	return stats, nil
}

// processBatch runs stages 1-3 for every item on a bounded worker pool,
// scores all survivors in one batched inference call, then commits
// acceptances sequentially in fetch order.
func (r *Runner) processBatch(ctx context.Context, items []collector.ContentItem, topic collector.Topic, kind collector.EngagementKind, stats *RunStats, log *zap.Logger) ([]AcceptedItem, error) {
	verdicts := make([]verdict, len(items))
	valid := make([]bool, len(items))

	for i, item := range items {
		stats.Fetched++
		if err := item.Validate(); err != nil {
			log.Warn("skipping invalid item", zap.String("url", item.URL), zap.Error(err))
			stats.Skipped++
			continue
		}
		valid[i] = true
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var stageErr error
	var stageErrOnce sync.Once

	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := items[i]
				rec, err := r.engine.dedupCheck(item, topic)
				if err != nil {
					stageErrOnce.Do(func() { stageErr = err })
					continue
				}
				if rec == nil {
					rec = r.engine.precheck(item, topic, kind)
				}
				if rec != nil {
					verdicts[i].rejected = rec
					continue
				}
				verdicts[i].cleaned = r.engine.Clean(item.Text())
			}
		}()
	}
	for i := range items {
		if valid[i] {
			jobs <- i
		}
	}
	close(jobs)
	wg.Wait()
	if stageErr != nil {
		return nil, stageErr
	}

	// One batched inference call for everything that survived the cheap
	// stages.
	var survivorIdx []int
	var survivorTexts []string
	for i := range items {
		if valid[i] && verdicts[i].rejected == nil {
			survivorIdx = append(survivorIdx, i)
			survivorTexts = append(survivorTexts, verdicts[i].cleaned)
		}
	}
	scores := make(map[int]float64, len(survivorIdx))
	scoringFailed := make(map[int]string)
	if len(survivorIdx) > 0 {
		batchScores, err := r.engine.scorer.ScoreBatch(ctx, survivorTexts, topic)
		if err != nil {
			log.Warn("batch scoring failed, falling back to per-item scoring", zap.Error(err))
			for j, i := range survivorIdx {
				score, serr := r.engine.scorer.Score(ctx, survivorTexts[j], topic)
				if serr != nil {
					scoringFailed[i] = serr.Error()
					continue
				}
				scores[i] = score
			}
		} else {
			for j, i := range survivorIdx {
				scores[i] = batchScores[j]
			}
		}
	}

	var out []AcceptedItem
	for i, item := range items {
		if !valid[i] {
			continue
		}
		if rec := verdicts[i].rejected; rec != nil {
			stats.countReject(rec.Reason)
			continue
		}
		if detail, ok := scoringFailed[i]; ok {
			stats.countReject(ReasonScoringFailed)
			log.Warn("scoring failed", zap.String("item_id", item.ID), zap.String("detail", detail))
			continue
		}

		score := scores[i]
		if score < r.cfg.RelevanceThreshold {
			stats.countReject(ReasonBelowThreshold)
			continue
		}

		rec, err := r.engine.commitAccept(item, topic, score, verdicts[i].cleaned)
		if err != nil {
			return nil, err
		}
		if rec.Decision != Accept {
			stats.countReject(rec.Reason)
			continue
		}

		comments, err := r.engine.EvaluateComments(ctx, item, topic)
		if err != nil {
			log.Warn("comment scoring failed", zap.String("item_id", item.ID), zap.Error(err))
		}

		log.Info("item accepted",
			zap.String("item_id", item.ID),
			zap.String("url", item.URL),
			zap.Float64("score", score),
			zap.Int("relevant_comments", len(comments)),
			zap.Strings("matched_keywords", rec.MatchedKeywords))
		out = append(out, AcceptedItem{Item: item, Record: rec, Comments: comments})
	}

	return out, nil
}

// flush persists the checkpoint, the keyword store, and the output files
// for one topic. Called on cadence and unconditionally on exit paths.
func (r *Runner) flush(topicKey, cursor string, accepted []AcceptedItem, platform, topicName string) error {
	cp := state.Checkpoint{
		Topic:         topicKey,
		Cursor:        cursor,
		AcceptedCount: len(accepted),
		Timestamp:     time.Now(),
	}
	if err := r.states.SaveCheckpoint(cp); err != nil {
		return err
	}
	if err := r.states.SaveKeywords(r.engine.store.Export()); err != nil {
		return err
	}

	if err := state.WriteJSONAtomic(r.resultsPath(platform, topicName), accepted); err != nil {
		return err
	}
	progress := filepath.Join(r.outputDir,
		fmt.Sprintf("%s_progress_%s.json", platform, time.Now().Format("20060102_150405")))
	if err := state.WriteJSONAtomic(progress, accepted); err != nil {
		return err
	}

	urls, err := r.states.ExportURLs()
	if err != nil {
		return err
	}
	if err := state.WriteJSONAtomic(filepath.Join(r.outputDir, "urls.json"), urls); err != nil {
		return err
	}
	return state.WriteJSONAtomic(filepath.Join(r.outputDir, "keywords.json"), r.engine.store.Export())
}

// loadResults reads back items accepted by a previous interrupted run so
// resumption appends instead of re-emitting.
func (r *Runner) loadResults(platform, topicName string) ([]AcceptedItem, error) {
	path := r.resultsPath(platform, topicName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading previous results %s: %w", path, err)
	}

	var accepted []AcceptedItem
	if err := json.Unmarshal(data, &accepted); err != nil {
		return nil, &state.CorruptError{What: "results file " + path, Err: err}
	}
	return accepted, nil
}

func (r *Runner) resultsPath(platform, topicName string) string {
	return filepath.Join(r.outputDir, fmt.Sprintf("%s_%s_results.json", platform, slug(topicName)))
}

func checkpointKey(platform, topicName string) string {
	return platform + "/" + topicName
}

// slug makes a topic name safe for a filename.
func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '/':
			b.WriteByte('_')
		}
	}
	return b.String()
}
