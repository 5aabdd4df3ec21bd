// Package report renders a finished pipeline run for downstream consumers.
// The JSON document is the hand-off boundary: the synthesis stage reads it
// and never touches pipeline internals.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lumira/research-crawler/internal/pipeline"
)

// Report is the serialized outcome of one run.
type Report struct {
	RunID       string                  `json:"run_id"`
	GeneratedAt time.Time               `json:"generated_at"`
	Stats       pipeline.RunStats       `json:"stats"`
	Scores      ScoreSummary            `json:"scores"`
	Sources     []pipeline.SourceRecord `json:"sources"`
}

// ScoreSummary aggregates the relevance scores of the accepted records.
type ScoreSummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// New assembles a Report from the aggregator's output. Records arrive already
// ranked; the slice order is preserved verbatim.
func New(stats pipeline.RunStats, records []pipeline.SourceRecord, now time.Time) Report {
	if records == nil {
		records = []pipeline.SourceRecord{}
	}
	return Report{
		RunID:       stats.RunID,
		GeneratedAt: now,
		Stats:       stats,
		Scores:      summarizeScores(records),
		Sources:     records,
	}
}

func summarizeScores(records []pipeline.SourceRecord) ScoreSummary {
	if len(records) == 0 {
		return ScoreSummary{}
	}
	s := ScoreSummary{Min: records[0].RelevanceScore, Max: records[0].RelevanceScore}
	var total float64
	for _, rec := range records {
		if rec.RelevanceScore < s.Min {
			s.Min = rec.RelevanceScore
		}
		if rec.RelevanceScore > s.Max {
			s.Max = rec.RelevanceScore
		}
		total += rec.RelevanceScore
	}
	s.Avg = total / float64(len(records))
	return s
}

// WriteJSON streams the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteFile writes the report to path, creating or truncating it.
func (r Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := r.WriteJSON(f); err != nil {
		return err
	}
	return f.Sync()
}
