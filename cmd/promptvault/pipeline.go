package main

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/promptvault/internal/anthropic"
	"github.com/MikeSquared-Agency/promptvault/internal/batch"
	"github.com/MikeSquared-Agency/promptvault/internal/categorizer"
	"github.com/MikeSquared-Agency/promptvault/internal/config"
	"github.com/MikeSquared-Agency/promptvault/internal/hermes"
	"github.com/MikeSquared-Agency/promptvault/internal/metrics"
	"github.com/MikeSquared-Agency/promptvault/internal/parser"
	"github.com/MikeSquared-Agency/promptvault/internal/quota"
	"github.com/MikeSquared-Agency/promptvault/internal/recovery"
	"github.com/MikeSquared-Agency/promptvault/internal/store"
)

// batchOptions maps the configured import defaults onto batch options.
func batchOptions(c config.ImportConfig) batch.Options {
	opts := batch.DefaultOptions()
	opts.MaxConcurrency = c.MaxConcurrency
	opts.ChunkSize = c.ChunkSize
	opts.MaxRetries = c.MaxRetries
	opts.EnableRecovery = c.EnableRecovery
	opts.MaxFileSize = c.MaxFileSize
	opts.LargeFileThreshold = c.LargeFileThreshold
	opts.DedupThreshold = c.DedupThreshold
	return opts
}

func newOrchestrator(m *metrics.Metrics, logger *slog.Logger) *batch.Orchestrator {
	return batch.New(parser.NewRegistry(), recovery.NewRecoverer(logger), m, logger)
}

func newQuota(st store.PromptStore, c config.QuotaConfig) *quota.TierService {
	return quota.NewTierService(st, c.DefaultTier, quota.WithLimits(c.Limits))
}

// newCategorizer builds the categorization gateway. Without an API key
// prompts are categorized heuristically; with a bus the results are shared
// through a JetStream KV bucket.
func newCategorizer(ctx context.Context, c config.Config, bus *hermes.Client, m *metrics.Metrics, logger *slog.Logger) *categorizer.Gateway {
	opts := []categorizer.Option{
		categorizer.WithBatchSize(c.Categorizer.BatchSize),
		categorizer.WithTimeout(c.Categorizer.Timeout),
		categorizer.WithMemoryLimit(c.Categorizer.CacheEntries),
		categorizer.WithMetrics(m),
		categorizer.WithLogger(logger),
	}

	if bus != nil && c.Categorizer.CacheBucket != "" {
		kv, err := bus.KeyValue(ctx, c.Categorizer.CacheBucket, c.Categorizer.CacheTTL)
		if err != nil {
			logger.Warn("shared categorization cache unavailable", "bucket", c.Categorizer.CacheBucket, "error", err)
		} else {
			opts = append(opts, categorizer.WithSharedCache(categorizer.NewSharedCache(kv, logger)))
			logger.Info("shared categorization cache ready", "bucket", c.Categorizer.CacheBucket, "ttl", c.Categorizer.CacheTTL)
		}
	}

	if c.AnthropicAPIKey == "" {
		logger.Warn("ANTHROPIC_API_KEY not set, categorizing heuristically")
		return categorizer.NewGateway(nil, opts...)
	}
	llm := anthropic.NewClient(c.AnthropicAPIKey, c.AnthropicModel)
	logger.Info("anthropic client ready", "model", llm.Model())
	return categorizer.NewGateway(categorizer.NewAnthropicBackend(llm, logger), opts...)
}
