package pipeline

import (
	"context"
	"time"
)

// Fetcher retrieves one URL and returns the raw body plus metadata. A
// non-nil error means all attempts were exhausted; the FetchResult still
// carries the last HTTP status observed.
type Fetcher interface {
	Fetch(ctx context.Context, desc SourceDescriptor) (FetchResult, error)
}

// Limiter enforces minimum inter-request spacing per target and globally.
type Limiter interface {
	Acquire(ctx context.Context, targetKey string) error
}

// Extractor converts raw bytes into normalized text and metric candidates.
type Extractor interface {
	Extract(raw []byte, contentType string) (Extraction, error)
}

// Extraction is the output of one extract call.
type Extraction struct {
	Text    string
	Title   string
	Metrics map[string][]string
}

// Scorer computes a relevance score in [0,5] for an extracted record.
// Implementations must be pure and deterministic.
type Scorer interface {
	Score(rec SourceRecord, desc SourceDescriptor) float64
}

// Deduplicator tracks seen URLs and fingerprints across a run.
type Deduplicator interface {
	CheckAndRegister(url, fingerprint string) (bool, error)
}

// ContentCache is the bounded store of normalized text keyed by fingerprint.
type ContentCache interface {
	GetOrCompute(fingerprint string, compute func() (string, error)) (string, error)
}

// Hasher computes content fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}
