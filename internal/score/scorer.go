// Package score computes multi-factor relevance scores for source records.
package score

import (
	"strings"

	"github.com/lumira/research-crawler/internal/pipeline"
)

// Config is the weight table for the relevance formula. The final score is
// keyword*KeywordWeight + recency*RecencyWeight + type*SourceTypeWeight,
// with each sub-score normalized to [0,1] and the sum clamped to [0,5].
type Config struct {
	KeywordWeight    float64
	RecencyWeight    float64
	SourceTypeWeight float64

	// RecencyHorizonYears is the age at which the recency sub-score
	// reaches zero.
	RecencyHorizonYears int

	// ReferenceYear anchors recency so scoring stays deterministic for a
	// given record and config.
	ReferenceYear int

	// SourceTypeTable maps source types to normalized weights in [0,1].
	SourceTypeTable map[pipeline.SourceType]float64
}

// Scorer implements pipeline.Scorer. It is pure: no side effects, and the
// same record and config always yield the same score.
type Scorer struct {
	cfg Config
}

// New builds a Scorer.
func New(cfg Config) *Scorer {
	if cfg.RecencyHorizonYears <= 0 {
		cfg.RecencyHorizonYears = 5
	}
	return &Scorer{cfg: cfg}
}

// Score computes the relevance of rec for the query that produced desc.
func (s *Scorer) Score(rec pipeline.SourceRecord, desc pipeline.SourceDescriptor) float64 {
	total := s.cfg.KeywordWeight*s.keywordDensity(rec, desc) +
		s.cfg.RecencyWeight*s.recency(rec.Year) +
		s.cfg.SourceTypeWeight*s.sourceTypeWeight(rec.SourceType)

	if total < 0 {
		return 0
	}
	if total > 5 {
		return 5
	}
	return total
}

// keywordDensity is the fraction of query keywords present in the extracted
// text or title.
func (s *Scorer) keywordDensity(rec pipeline.SourceRecord, desc pipeline.SourceDescriptor) float64 {
	if len(desc.QueryKeywords) == 0 {
		return 0
	}
	haystack := strings.ToLower(rec.ExtractedText + " " + rec.Title)
	hits := 0
	for _, kw := range desc.QueryKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(desc.QueryKeywords))
}

// recency decays linearly from 1 at the reference year to 0 at the horizon.
// Records without a year get median credit rather than zero.
func (s *Scorer) recency(year int) float64 {
	if year == 0 {
		return 0.5
	}
	age := s.cfg.ReferenceYear - year
	if age < 0 {
		age = 0
	}
	if age >= s.cfg.RecencyHorizonYears {
		return 0
	}
	return 1 - float64(age)/float64(s.cfg.RecencyHorizonYears)
}

func (s *Scorer) sourceTypeWeight(t pipeline.SourceType) float64 {
	if w, ok := s.cfg.SourceTypeTable[t]; ok {
		return w
	}
	if w, ok := s.cfg.SourceTypeTable[pipeline.SourceUnknown]; ok {
		return w
	}
	return 0
}
