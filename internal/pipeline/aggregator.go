package pipeline

import (
	"sort"
	"sync"
)

// Aggregator merges per-source records, resolves content-fingerprint
// collisions, applies the quality threshold, and retains at most maxSources
// Accepted records. Add is safe under concurrent calls from workers.
//
// Scored records are buffered and settled in Finalize by replaying them in
// enqueue-ID order, so duplicate resolution, the threshold, and the bounded
// retention all behave exactly as a single-worker run would regardless of
// worker interleaving.
type Aggregator struct {
	mu           sync.Mutex
	maxSources   int
	minRelevance float64

	scored    []SourceRecord
	accepted  int
	rejected  int
	failed    int
	dups      int
	reasons   map[string]int
	finalized bool
	final     []SourceRecord
}

// NewAggregator builds an Aggregator.
func NewAggregator(maxSources int, minRelevance float64) *Aggregator {
	return &Aggregator{
		maxSources:   maxSources,
		minRelevance: minRelevance,
		reasons:      make(map[string]int),
	}
}

// Add takes ownership of a record. Records already in a terminal state
// (Failed, Rejected) are tallied immediately; Scored records are buffered
// until Finalize settles them.
func (a *Aggregator) Add(rec SourceRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rec.Status.Terminal() {
		switch rec.Status {
		case StatusFailed:
			a.failed++
		case StatusRejected:
			a.rejected++
			if rec.FailureReason == ReasonDuplicate {
				a.dups++
			}
		}
		a.countReasonLocked(rec.FailureReason)
		return
	}
	a.scored = append(a.scored, rec)
}

// Finalize settles the buffered scored records and returns the retained set
// sorted by descending score, earlier enqueue breaking ties. It is called
// once, after the pool has drained; repeat calls return the same slice.
//
// Settlement replays the scored records in enqueue-ID order: the first
// record of each content fingerprint wins and later ones are rejected as
// duplicates; records below the relevance threshold are rejected; once
// maxSources records are retained, a candidate must strictly beat the
// current minimum score to displace it.
func (a *Aggregator) Finalize() []SourceRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return a.final
	}
	a.finalized = true

	sort.Slice(a.scored, func(i, j int) bool { return a.scored[i].ID < a.scored[j].ID })

	seen := make(map[string]struct{}, len(a.scored))
	var retained []SourceRecord
	for _, rec := range a.scored {
		if rec.ContentFingerprint != "" {
			if _, dup := seen[rec.ContentFingerprint]; dup {
				a.rejected++
				a.dups++
				a.countReasonLocked(ReasonDuplicate)
				continue
			}
			seen[rec.ContentFingerprint] = struct{}{}
		}

		if rec.RelevanceScore < a.minRelevance {
			a.rejected++
			a.countReasonLocked(ReasonLowScore)
			continue
		}

		rec.Status = StatusAccepted
		if len(retained) < a.maxSources {
			retained = append(retained, rec)
			continue
		}

		min := minIndex(retained)
		if rec.RelevanceScore > retained[min].RelevanceScore {
			retained[min] = rec
			a.rejected++
			a.countReasonLocked(ReasonDisplaced)
		} else {
			a.rejected++
			a.countReasonLocked(ReasonLowScore)
		}
	}
	a.scored = nil
	a.accepted = len(retained)

	sort.SliceStable(retained, func(i, j int) bool {
		if retained[i].RelevanceScore != retained[j].RelevanceScore {
			return retained[i].RelevanceScore > retained[j].RelevanceScore
		}
		return retained[i].ID < retained[j].ID
	})
	a.final = retained
	return retained
}

// Counts reports terminal tallies. Scored records only settle in Finalize,
// so the full tallies are available after the pool has drained.
func (a *Aggregator) Counts() (accepted, rejected, failed, duplicates int, reasons map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	accepted = a.accepted
	rejected = a.rejected
	failed = a.failed
	duplicates = a.dups
	reasons = make(map[string]int, len(a.reasons))
	for k, v := range a.reasons {
		reasons[k] = v
	}
	return accepted, rejected, failed, duplicates, reasons
}

// minIndex finds the retained record to displace first: lowest score, later
// enqueue (higher ID) losing ties.
func minIndex(retained []SourceRecord) int {
	min := 0
	for i := 1; i < len(retained); i++ {
		cur, best := retained[i], retained[min]
		if cur.RelevanceScore < best.RelevanceScore ||
			(cur.RelevanceScore == best.RelevanceScore && cur.ID > best.ID) {
			min = i
		}
	}
	return min
}

func (a *Aggregator) countReasonLocked(reason string) {
	if reason == "" {
		return
	}
	a.reasons[reason]++
}
