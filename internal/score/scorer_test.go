package score

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumira/research-crawler/internal/pipeline"
)

func testConfig() Config {
	return Config{
		KeywordWeight:       2.5,
		RecencyWeight:       1.0,
		SourceTypeWeight:    1.5,
		RecencyHorizonYears: 5,
		ReferenceYear:       2025,
		SourceTypeTable: map[pipeline.SourceType]float64{
			pipeline.SourceGovernment: 1.0,
			pipeline.SourceAcademic:   0.8,
			pipeline.SourceUnknown:    0.2,
		},
	}
}

func TestScoreStaysWithinBounds(t *testing.T) {
	t.Parallel()

	s := New(testConfig())
	rec := pipeline.SourceRecord{
		Title:         "Partisipasi SMK dan literasi digital",
		ExtractedText: "partisipasi smk literasi digital kesiapan kerja",
		Year:          2025,
		SourceType:    pipeline.SourceGovernment,
	}
	desc := pipeline.SourceDescriptor{
		QueryKeywords: []string{"partisipasi smk", "literasi digital", "kesiapan kerja"},
	}

	got := s.Score(rec, desc)
	require.GreaterOrEqual(t, got, 0.0)
	require.LessOrEqual(t, got, 5.0)
	// All keywords present, current year, government host: the maximum.
	require.InDelta(t, 5.0, got, 1e-9)
}

func TestScoreZeroForEmptyRecord(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SourceTypeTable = nil
	s := New(cfg)
	got := s.Score(pipeline.SourceRecord{Year: 2020, SourceType: pipeline.SourceType("weird")}, pipeline.SourceDescriptor{})
	require.Equal(t, 0.0, got)
}

func TestScoreIsDeterministic(t *testing.T) {
	t.Parallel()

	s := New(testConfig())
	rec := pipeline.SourceRecord{
		Title:         "Laporan pengangguran lulusan",
		ExtractedText: "tingkat pengangguran lulusan smk 8,5%",
		Year:          2023,
		SourceType:    pipeline.SourceAcademic,
	}
	desc := pipeline.SourceDescriptor{QueryKeywords: []string{"pengangguran lulusan", "smk"}}

	first := s.Score(rec, desc)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, s.Score(rec, desc))
	}
}

func TestKeywordDensityPartialMatch(t *testing.T) {
	t.Parallel()

	s := New(testConfig())
	rec := pipeline.SourceRecord{ExtractedText: "hanya membahas akses internet di daerah"}
	desc := pipeline.SourceDescriptor{QueryKeywords: []string{"akses internet", "jumlah smk"}}

	// One of two keywords: half the keyword weight.
	require.InDelta(t, 2.5*0.5+1.0*0.5+1.5*0.2, s.Score(rec, desc), 1e-9)
}

func TestRecencyDecay(t *testing.T) {
	t.Parallel()

	s := New(testConfig())

	base := pipeline.SourceRecord{SourceType: pipeline.SourceUnknown}
	desc := pipeline.SourceDescriptor{}

	current := base
	current.Year = 2025
	old := base
	old.Year = 2020
	future := base
	future.Year = 2030

	scoreCurrent := s.Score(current, desc)
	scoreOld := s.Score(old, desc)
	scoreFuture := s.Score(future, desc)

	require.Greater(t, scoreCurrent, scoreOld)
	// At or past the horizon the recency contribution is zero.
	require.InDelta(t, 1.5*0.2, scoreOld, 1e-9)
	// Future years clamp to full recency credit.
	require.Equal(t, scoreCurrent, scoreFuture)
}

func TestMissingYearGetsMedianRecency(t *testing.T) {
	t.Parallel()

	s := New(testConfig())
	rec := pipeline.SourceRecord{SourceType: pipeline.SourceUnknown}
	got := s.Score(rec, pipeline.SourceDescriptor{})
	require.InDelta(t, 1.0*0.5+1.5*0.2, got, 1e-9)
}

func TestUnknownSourceTypeFallsBack(t *testing.T) {
	t.Parallel()

	s := New(testConfig())
	rec := pipeline.SourceRecord{Year: 2025, SourceType: pipeline.SourceType("press-release")}
	got := s.Score(rec, pipeline.SourceDescriptor{})
	require.InDelta(t, 1.0+1.5*0.2, got, 1e-9)
}
