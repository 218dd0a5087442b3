package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"sift/collector"
	"sift/config"
	"sift/embedding"
	"sift/keywords"
	"sift/pipeline"
	"sift/relevance"
	"sift/state"
	"sift/textproc"

	"go.uber.org/zap"
)

func main() {
	// =========
	// Config
	// =========
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	filter, err := config.LoadFilterConfig(cfg.FilterPath)
	if err != nil {
		log.Fatalf("Failed to load filter config: %v", err)
	}
	if cfg.DumpPath == "" {
		log.Fatalf("DUMP_PATH is required")
	}

	// =========
	// Logging
	// =========
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	// =========
	// State
	// =========
	states, err := state.Open(cfg.StatePath, logger)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer states.Close()

	// =========
	// Embedding Client
	// =========
	embeddingClient := embedding.NewTEIClient(cfg.EmbeddingURL, cfg.EmbeddingModel)

	// =========
	// Text Processing
	// =========
	normalizer, err := textproc.NewNormalizer()
	if err != nil {
		logger.Fatal("failed to create normalizer", zap.Error(err))
	}
	scorer := relevance.NewScorer(embeddingClient, normalizer, filter.MaxInputChars)
	extractor := keywords.NewExtractor(filter.ExtraStopwords)

	// =========
	// Keyword Store
	// =========
	store := keywords.NewStore()
	persisted, err := states.LoadKeywords()
	if err != nil {
		logger.Fatal("failed to load keyword weights", zap.Error(err))
	}
	store.Merge(persisted)
	logger.Info("loaded keyword weights", zap.Int("count", store.Len()))

	// =========
	// Pipeline
	// =========
	engine := pipeline.NewEngine(filter, scorer, normalizer, extractor, store, states, logger)
	runner := pipeline.NewRunner(engine, states, filter, cfg.OutputDir, logger)

	// =========
	// Collector
	// =========
	kind := collector.EngagementForum
	if cfg.SourceKind == "catalog" {
		kind = collector.EngagementCatalog
	}
	source, err := collector.NewReplayCollector(cfg.DumpPath, cfg.Platform, kind, 25)
	if err != nil {
		logger.Fatal("failed to open item dump", zap.Error(err))
	}

	// =========
	// Run
	// =========
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, topic := range filter.Topics {
		stats, err := runner.RunTopic(ctx, source, topic)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("run interrupted, progress checkpointed",
					zap.String("topic", topic.Name))
				return
			}
			logger.Error("topic run failed",
				zap.String("topic", topic.Name),
				zap.Error(err))
			continue
		}
		rejected := 0
		for _, n := range stats.RejectedByReason {
			rejected += n
		}
		logger.Info("topic run complete",
			zap.String("topic", topic.Name),
			zap.Int("fetched", stats.Fetched),
			zap.Int("accepted", stats.Accepted),
			zap.Int("rejected", rejected),
			zap.Int("skipped", stats.Skipped))
	}
}
