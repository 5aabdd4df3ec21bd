// Package pipeline defines the core types shared across the source
// acquisition pipeline and implements its orchestration.
package pipeline

import (
	"time"
)

// SourceType classifies the institution behind a candidate source.
type SourceType string

// Source type values, ordered roughly by the authority weight they carry.
const (
	SourceGovernment    SourceType = "government"
	SourceInternational SourceType = "international"
	SourceAcademic      SourceType = "academic"
	SourceIndustry      SourceType = "industry"
	SourceUnknown       SourceType = "unknown"
)

// Status is the lifecycle state of a SourceRecord within one run.
type Status string

// Record status values. Failed, Accepted, and Rejected are terminal.
const (
	StatusPending    Status = "pending"
	StatusFetching   Status = "fetching"
	StatusFetched    Status = "fetched"
	StatusExtracting Status = "extracting"
	StatusExtracted  Status = "extracted"
	StatusScoring    Status = "scoring"
	StatusScored     Status = "scored"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
)

// Failure/rejection reason labels surfaced in run statistics.
const (
	ReasonFetch       = "fetch_error"
	ReasonExtract     = "extract_error"
	ReasonThinContent = "thin_content"
	ReasonDuplicate   = "duplicate"
	ReasonLowScore    = "low_score"
	ReasonDisplaced   = "displaced"
	ReasonInvalidURL  = "invalid_url"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusFailed
}

// SourceDescriptor identifies one candidate source to fetch. Descriptors are
// produced by the query-generation collaborator and are immutable once
// enqueued.
type SourceDescriptor struct {
	URL            string     `json:"url"`
	QueryKeywords  []string   `json:"query_keywords"`
	SourceTypeHint SourceType `json:"source_type_hint"`

	// Hints carried over from the search result that produced the
	// descriptor. Used as fallbacks when extraction finds nothing better.
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	Year   int    `json:"year,omitempty"`
}

// FetchResult is the outcome of one fetch, consumed once by extraction.
// RawBytes are dropped after text extraction to bound memory.
type FetchResult struct {
	Descriptor  SourceDescriptor
	RawBytes    []byte
	ContentType string
	HTTPStatus  int
	Duration    time.Duration
	Attempts    int
	Err         error
}

// SourceRecord is the durable unit of work product handed to the aggregator.
type SourceRecord struct {
	ID                 int64               `json:"id"`
	RunID              string              `json:"run_id"`
	URL                string              `json:"url"`
	Title              string              `json:"title"`
	Author             string              `json:"author"`
	Year               int                 `json:"year,omitempty"`
	SourceType         SourceType          `json:"source_type"`
	RelevanceScore     float64             `json:"relevance_score"`
	ExtractedText      string              `json:"extracted_text"`
	ExtractedMetrics   map[string][]string `json:"extracted_metrics,omitempty"`
	ContentFingerprint string              `json:"content_fingerprint"`
	Status             Status              `json:"status"`
	FailureReason      string              `json:"failure_reason,omitempty"`
	FetchedAt          time.Time           `json:"fetched_at"`
	FetchDurationMs    int64               `json:"fetch_duration_ms"`
	HTTPStatus         int                 `json:"http_status"`
}

// RunStats summarizes one pipeline run for the metadata collaborator.
type RunStats struct {
	RunID          string         `json:"run_id"`
	Enqueued       int            `json:"enqueued"`
	Fetched        int            `json:"fetched"`
	Extracted      int            `json:"extracted"`
	Scored         int            `json:"scored"`
	Accepted       int            `json:"accepted"`
	Rejected       int            `json:"rejected"`
	Failed         int            `json:"failed"`
	Duplicates     int            `json:"duplicates"`
	FetchAttempts  int            `json:"fetch_attempts"`
	Retries        int            `json:"retries"`
	Elapsed        time.Duration  `json:"elapsed"`
	FailureReasons map[string]int `json:"failure_reasons,omitempty"`
}
