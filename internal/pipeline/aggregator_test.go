package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func scoredRecord(id int64, score float64) SourceRecord {
	return SourceRecord{
		ID:                 id,
		URL:                fmt.Sprintf("https://example.com/%d", id),
		ContentFingerprint: fmt.Sprintf("fp-%d", id),
		RelevanceScore:     score,
		Status:             StatusScored,
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusAccepted, StatusRejected, StatusFailed} {
		require.True(t, s.Terminal(), s)
	}
	for _, s := range []Status{StatusPending, StatusFetching, StatusFetched, StatusExtracting, StatusExtracted, StatusScoring, StatusScored} {
		require.False(t, s.Terminal(), s)
	}
}

func TestAggregatorRejectsBelowThreshold(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(10, 2.0)
	agg.Add(scoredRecord(1, 1.99))
	agg.Add(scoredRecord(2, 2.0))

	final := agg.Finalize()
	require.Len(t, final, 1)
	require.Equal(t, int64(2), final[0].ID)

	accepted, rejected, _, _, reasons := agg.Counts()
	require.Equal(t, 1, accepted)
	require.Equal(t, 1, rejected)
	require.Equal(t, 1, reasons[ReasonLowScore])
}

func TestAggregatorBoundedRetention(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(3, 0)
	for i := int64(1); i <= 3; i++ {
		agg.Add(scoredRecord(i, float64(i)))
	}
	agg.Add(scoredRecord(4, 0.5)) // below the retained minimum
	agg.Add(scoredRecord(5, 4.0)) // displaces the minimum

	final := agg.Finalize()
	require.Len(t, final, 3)
	require.Equal(t, []int64{5, 3, 2}, []int64{final[0].ID, final[1].ID, final[2].ID})

	_, rejected, _, _, reasons := agg.Counts()
	require.Equal(t, 2, rejected)
	require.Equal(t, 1, reasons[ReasonDisplaced])
}

func TestAggregatorTieBreakEarlierEnqueueWins(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(2, 0)
	// Adds arrive out of enqueue order, as concurrent workers produce them.
	agg.Add(scoredRecord(3, 3.0))
	agg.Add(scoredRecord(1, 3.0))
	agg.Add(scoredRecord(2, 3.0))

	final := agg.Finalize()
	require.Len(t, final, 2)
	require.Equal(t, int64(1), final[0].ID)
	require.Equal(t, int64(2), final[1].ID)
}

func TestAggregatorFingerprintCollisionResolvesByEnqueueOrder(t *testing.T) {
	t.Parallel()

	build := func() []SourceRecord {
		winner := scoredRecord(1, 5.0)
		loser := scoredRecord(2, 1.5)
		loser.ContentFingerprint = winner.ContentFingerprint
		return []SourceRecord{winner, loser}
	}

	// Whichever record arrives first, the lower enqueue ID wins the
	// fingerprint and the other is the duplicate.
	for name, order := range map[string][]int{"in order": {0, 1}, "reversed": {1, 0}} {
		order := order
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			agg := NewAggregator(10, 2.0)
			recs := build()
			for _, i := range order {
				agg.Add(recs[i])
			}

			final := agg.Finalize()
			require.Len(t, final, 1)
			require.Equal(t, int64(1), final[0].ID)
			require.Equal(t, 5.0, final[0].RelevanceScore)

			accepted, rejected, _, dups, reasons := agg.Counts()
			require.Equal(t, 1, accepted)
			require.Equal(t, 1, rejected)
			require.Equal(t, 1, dups)
			require.Equal(t, 1, reasons[ReasonDuplicate])
		})
	}
}

func TestAggregatorFinalizeOrderAndIdempotence(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(10, 0)
	agg.Add(scoredRecord(3, 1.0))
	agg.Add(scoredRecord(1, 5.0))
	agg.Add(scoredRecord(2, 5.0))

	first := agg.Finalize()
	require.Equal(t, []int64{1, 2, 3}, []int64{first[0].ID, first[1].ID, first[2].ID})
	for _, rec := range first {
		require.Equal(t, StatusAccepted, rec.Status)
	}

	second := agg.Finalize()
	require.Equal(t, first, second)
}

func TestAggregatorCountsFailuresAndDuplicates(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(10, 0)
	agg.Add(SourceRecord{ID: 1, Status: StatusFailed, FailureReason: ReasonFetch})
	agg.Add(SourceRecord{ID: 2, Status: StatusRejected, FailureReason: ReasonDuplicate})
	agg.Add(SourceRecord{ID: 3, Status: StatusRejected, FailureReason: ReasonThinContent})
	agg.Add(scoredRecord(4, 3.0))
	agg.Finalize()

	accepted, rejected, failed, dups, reasons := agg.Counts()
	require.Equal(t, 1, accepted)
	require.Equal(t, 2, rejected)
	require.Equal(t, 1, failed)
	require.Equal(t, 1, dups)
	require.Equal(t, 1, reasons[ReasonFetch])
	require.Equal(t, 1, reasons[ReasonDuplicate])
	require.Equal(t, 1, reasons[ReasonThinContent])
}

func TestAggregatorConcurrentAdds(t *testing.T) {
	t.Parallel()

	const n = 200
	agg := NewAggregator(25, 0)

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			agg.Add(scoredRecord(id, float64(id)))
		}(int64(i))
	}
	wg.Wait()

	final := agg.Finalize()
	require.Len(t, final, 25)
	// The retained set must be exactly the 25 highest scores.
	require.Equal(t, float64(n), final[0].RelevanceScore)
	require.Equal(t, float64(n-24), final[24].RelevanceScore)
}
