package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lumira/research-crawler/internal/telemetry"
)

// SchedulerConfig bounds one pipeline run.
type SchedulerConfig struct {
	RunID            string
	MaxWorkers       int
	MaxSources       int
	MinRelevance     float64
	MinContentLength int
	// RunTimeout is the whole-run soft deadline: once elapsed, workers
	// refuse new dispatches but in-flight work finishes naturally. Zero
	// disables it.
	RunTimeout time.Duration
}

// Scheduler pulls source descriptors from a FIFO queue and drives each
// through fetch, extraction, dedup, and scoring on a bounded pool of
// workers. Per-source errors are contained in that source's worker pass;
// only configuration errors and cancellation are run-fatal.
//
// URL duplicates are rejected before dispatch, in enqueue order, and
// content-fingerprint duplicates settle in the aggregator in enqueue-ID
// order, so the accepted set and its ranking do not depend on how workers
// interleave.
type Scheduler struct {
	cfg       SchedulerConfig
	fetcher   Fetcher
	limiter   Limiter
	extractor Extractor
	scorer    Scorer
	dedup     Deduplicator
	cache     ContentCache
	hasher    Hasher
	clock     Clock
	logger    *zap.Logger

	fetched   atomic.Int64
	extracted atomic.Int64
	scored    atomic.Int64
	attempts  atomic.Int64
	retries   atomic.Int64
}

// NewScheduler wires the pipeline components into a Scheduler.
func NewScheduler(
	cfg SchedulerConfig,
	fetcher Fetcher,
	limiter Limiter,
	extractor Extractor,
	scorer Scorer,
	dedup Deduplicator,
	cache ContentCache,
	hasher Hasher,
	clock Clock,
	logger *zap.Logger,
) (*Scheduler, error) {
	if cfg.MaxWorkers < 1 {
		return nil, &ConfigError{Field: "max_workers", Err: fmt.Errorf("must be >= 1, got %d", cfg.MaxWorkers)}
	}
	if cfg.MaxSources < 1 {
		return nil, &ConfigError{Field: "max_sources", Err: fmt.Errorf("must be >= 1, got %d", cfg.MaxSources)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		fetcher:   fetcher,
		limiter:   limiter,
		extractor: extractor,
		scorer:    scorer,
		dedup:     dedup,
		cache:     cache,
		hasher:    hasher,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Run processes the descriptors and returns the ranked accepted records plus
// run statistics. It blocks until the queue drains, the soft deadline stops
// dispatch and in-flight work settles, or ctx is canceled (in which case
// partial work is discarded).
func (s *Scheduler) Run(ctx context.Context, descriptors []SourceDescriptor) ([]SourceRecord, RunStats, error) {
	start := s.clock.Now()
	agg := NewAggregator(s.cfg.MaxSources, s.cfg.MinRelevance)

	type task struct {
		id   int64
		desc SourceDescriptor
	}
	queue := make(chan task, len(descriptors))
	for i, d := range descriptors {
		id := int64(i + 1)
		// Registering URLs here, in enqueue order, keeps URL dedup
		// independent of worker interleaving and skips the fetch entirely.
		fresh, err := s.dedup.CheckAndRegister(d.URL, "")
		if err != nil {
			s.fail(agg, s.newRecord(id, d), ReasonInvalidURL, err)
			continue
		}
		if !fresh {
			s.reject(agg, s.newRecord(id, d), ReasonDuplicate)
			continue
		}
		queue <- task{id: id, desc: d}
	}
	close(queue)

	var deadline time.Time
	if s.cfg.RunTimeout > 0 {
		deadline = start.Add(s.cfg.RunTimeout)
	}

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				if ctx.Err() != nil {
					return
				}
				if !deadline.IsZero() && s.clock.Now().After(deadline) {
					s.logger.Warn("run deadline reached, refusing new dispatches",
						zap.String("run_id", s.cfg.RunID))
					return
				}
				telemetry.IncActiveWorkers()
				s.process(ctx, agg, t.id, t.desc)
				telemetry.DecActiveWorkers()
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, RunStats{}, fmt.Errorf("run canceled: %w", err)
	}

	records := agg.Finalize()
	accepted, rejected, failed, dups, reasons := agg.Counts()
	telemetry.ObserveSources(string(StatusAccepted), accepted)
	telemetry.ObserveSources(string(StatusRejected), rejected)
	telemetry.ObserveSources(string(StatusFailed), failed)

	stats := RunStats{
		RunID:          s.cfg.RunID,
		Enqueued:       len(descriptors),
		Fetched:        int(s.fetched.Load()),
		Extracted:      int(s.extracted.Load()),
		Scored:         int(s.scored.Load()),
		Accepted:       accepted,
		Rejected:       rejected,
		Failed:         failed,
		Duplicates:     dups,
		FetchAttempts:  int(s.attempts.Load()),
		Retries:        int(s.retries.Load()),
		Elapsed:        s.clock.Now().Sub(start),
		FailureReasons: reasons,
	}
	return records, stats, nil
}

func (s *Scheduler) newRecord(id int64, desc SourceDescriptor) SourceRecord {
	rec := SourceRecord{
		ID:         id,
		RunID:      s.cfg.RunID,
		URL:        desc.URL,
		Title:      desc.Title,
		Author:     desc.Author,
		Year:       desc.Year,
		SourceType: desc.SourceTypeHint,
		Status:     StatusPending,
	}
	if rec.SourceType == "" || rec.SourceType == SourceUnknown {
		rec.SourceType = ClassifySourceType(desc.URL)
	}
	return rec
}

// process runs the per-source pipeline for one dispatched descriptor. Every
// exit path except cancellation hands a record to the aggregator.
func (s *Scheduler) process(ctx context.Context, agg *Aggregator, id int64, desc SourceDescriptor) {
	rec := s.newRecord(id, desc)

	rec.Status = StatusFetching
	if err := s.limiter.Acquire(ctx, TargetKey(desc.URL)); err != nil {
		// Only cancellation unblocks a waiting acquire; discard partials.
		return
	}

	res, err := s.fetcher.Fetch(ctx, desc)
	s.attempts.Add(int64(res.Attempts))
	if res.Attempts > 1 {
		s.retries.Add(int64(res.Attempts - 1))
	}
	rec.HTTPStatus = res.HTTPStatus
	rec.FetchDurationMs = res.Duration.Milliseconds()
	rec.FetchedAt = s.clock.Now()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.fail(agg, rec, ReasonFetch, err)
		return
	}
	rec.Status = StatusFetched
	s.fetched.Add(1)

	rec.Status = StatusExtracting
	ext, err := s.extractor.Extract(res.RawBytes, res.ContentType)
	if err != nil {
		s.fail(agg, rec, ReasonExtract, err)
		return
	}
	if len(ext.Text) < s.cfg.MinContentLength {
		s.reject(agg, rec, ReasonThinContent)
		return
	}

	fingerprint, err := s.hasher.Hash([]byte(ext.Text))
	if err != nil {
		s.fail(agg, rec, ReasonExtract, err)
		return
	}
	text, err := s.cache.GetOrCompute(fingerprint, func() (string, error) {
		return ext.Text, nil
	})
	if err != nil {
		s.fail(agg, rec, ReasonExtract, err)
		return
	}

	rec.ContentFingerprint = fingerprint
	rec.ExtractedText = text
	rec.ExtractedMetrics = ext.Metrics
	if rec.Title == "" {
		rec.Title = ext.Title
	}
	rec.Status = StatusExtracted
	s.extracted.Add(1)

	rec.Status = StatusScoring
	rec.RelevanceScore = s.scorer.Score(rec, desc)
	rec.Status = StatusScored
	s.scored.Add(1)

	if ctx.Err() != nil {
		return
	}
	agg.Add(rec)
	s.logger.Debug("source scored",
		zap.String("run_id", s.cfg.RunID),
		zap.String("url", desc.URL),
		zap.Float64("score", rec.RelevanceScore),
	)
}

func (s *Scheduler) fail(agg *Aggregator, rec SourceRecord, reason string, err error) {
	rec.Status = StatusFailed
	rec.FailureReason = reason
	agg.Add(rec)
	s.logger.Warn("source failed",
		zap.String("run_id", s.cfg.RunID),
		zap.String("url", rec.URL),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func (s *Scheduler) reject(agg *Aggregator, rec SourceRecord, reason string) {
	rec.Status = StatusRejected
	rec.FailureReason = reason
	agg.Add(rec)
	s.logger.Debug("source rejected",
		zap.String("run_id", s.cfg.RunID),
		zap.String("url", rec.URL),
		zap.String("reason", reason),
	)
}
