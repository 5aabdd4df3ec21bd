package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumira/research-crawler/internal/cache"
	"github.com/lumira/research-crawler/internal/clock/system"
	"github.com/lumira/research-crawler/internal/config"
	"github.com/lumira/research-crawler/internal/dedup"
	"github.com/lumira/research-crawler/internal/extract"
	"github.com/lumira/research-crawler/internal/fetcher"
	"github.com/lumira/research-crawler/internal/hash/sha256"
	"github.com/lumira/research-crawler/internal/id/uuid"
	"github.com/lumira/research-crawler/internal/pipeline"
	"github.com/lumira/research-crawler/internal/ratelimit"
	"github.com/lumira/research-crawler/internal/report"
	"github.com/lumira/research-crawler/internal/score"
	"github.com/lumira/research-crawler/internal/telemetry"
)

// newRunCmd creates and configures the 'run' subcommand. It reads a JSON file
// of source descriptors, runs the acquisition pipeline over them, and writes
// a ranked report.
func newRunCmd() *cobra.Command {
	var (
		sourcesPath string
		outputPath  string
		urls        []string
		keywords    []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the source acquisition pipeline",
		Long: `Fetches every source descriptor on a bounded worker pool, extracts and
scores the content, and writes the ranked result set as JSON. Descriptors
come from a JSON file (--sources) or directly from --url flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), sourcesPath, outputPath, urls, keywords)
		},
	}

	cmd.Flags().StringVar(&sourcesPath, "sources", "", "path to the source descriptors JSON file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "report output path (default stdout)")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "source URL (repeatable, alternative to --sources)")
	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "query keyword applied to --url descriptors (repeatable)")
	cmd.MarkFlagsOneRequired("sources", "url")
	cmd.MarkFlagsMutuallyExclusive("sources", "url")

	return cmd
}

func runPipeline(parent context.Context, sourcesPath, outputPath string, urls, keywords []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	descriptors, err := resolveDescriptors(sourcesPath, urls, keywords)
	if err != nil {
		return err
	}

	runID, err := uuid.NewGenerator().NewRunID()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.Addr, logger)
	}

	sched, err := buildScheduler(cfg, runID, logger)
	if err != nil {
		return err
	}

	logger.Info("starting run",
		zap.String("run_id", runID),
		zap.Int("sources", len(descriptors)),
		zap.Int("workers", cfg.Pipeline.MaxWorkers),
	)

	records, stats, err := sched.Run(ctx, descriptors)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("accepted", stats.Accepted),
		zap.Int("rejected", stats.Rejected),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", stats.Elapsed),
	)

	rep := report.New(stats, records, system.New().Now())
	if outputPath == "" {
		return rep.WriteJSON(os.Stdout)
	}
	if err := rep.WriteFile(outputPath); err != nil {
		return err
	}
	logger.Info("report written", zap.String("path", outputPath))
	return nil
}

// buildScheduler wires the pipeline components from config.
func buildScheduler(cfg config.Config, runID string, logger *zap.Logger) (*pipeline.Scheduler, error) {
	contentCache, err := cache.New(cache.Config{
		EntryCap:         cfg.Cache.EntryCap,
		MemoryLimitBytes: cfg.Cache.MemoryLimitBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	typeTable := make(map[pipeline.SourceType]float64, len(cfg.Scoring.SourceTypeTable))
	for name, w := range cfg.Scoring.SourceTypeTable {
		typeTable[pipeline.SourceType(name)] = w
	}

	clk := system.New()
	sched, err := pipeline.NewScheduler(
		pipeline.SchedulerConfig{
			RunID:            runID,
			MaxWorkers:       cfg.Pipeline.MaxWorkers,
			MaxSources:       cfg.Pipeline.MaxSources,
			MinRelevance:     cfg.Pipeline.MinRelevance,
			MinContentLength: cfg.Pipeline.MinContentLength,
			RunTimeout:       cfg.RunTimeout(),
		},
		fetcher.New(fetcher.Config{
			UserAgent:      cfg.Fetch.UserAgent,
			Timeout:        cfg.FetchTimeout(),
			MaxRetries:     cfg.Fetch.MaxRetries,
			BackoffInitial: time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
			BackoffMax:     time.Duration(cfg.Fetch.BackoffMaxMs) * time.Millisecond,
		}, logger),
		ratelimit.New(ratelimit.Config{RequestDelay: cfg.RequestDelay()}),
		extract.New(extract.Config{
			MaxContentLength: cfg.Pipeline.MaxContentLength,
			MetricPatterns:   cfg.Patterns,
		}),
		score.New(score.Config{
			KeywordWeight:       cfg.Scoring.KeywordWeight,
			RecencyWeight:       cfg.Scoring.RecencyWeight,
			SourceTypeWeight:    cfg.Scoring.SourceTypeWeight,
			RecencyHorizonYears: cfg.Scoring.RecencyHorizon,
			ReferenceYear:       clk.Now().Year(),
			SourceTypeTable:     typeTable,
		}),
		dedup.New(),
		contentCache,
		sha256.New(),
		clk,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	return sched, nil
}

// resolveDescriptors builds the descriptor list from the sources file or the
// --url/--keyword flags.
func resolveDescriptors(path string, urls, keywords []string) ([]pipeline.SourceDescriptor, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sources file: %w", err)
		}
		var descriptors []pipeline.SourceDescriptor
		if err := json.Unmarshal(data, &descriptors); err != nil {
			return nil, fmt.Errorf("parse sources file: %w", err)
		}
		if len(descriptors) == 0 {
			return nil, fmt.Errorf("sources file %s contains no descriptors", path)
		}
		return descriptors, nil
	}

	descriptors := make([]pipeline.SourceDescriptor, 0, len(urls))
	for _, u := range urls {
		descriptors = append(descriptors, pipeline.SourceDescriptor{
			URL:           u,
			QueryKeywords: keywords,
		})
	}
	return descriptors, nil
}

// startMetricsServer serves Prometheus metrics until ctx is canceled. Serving
// failures are logged, never fatal to the run.
func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           telemetry.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
