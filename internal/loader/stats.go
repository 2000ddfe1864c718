package loader

import (
	"sync"

	"github.com/jsonload/jsonload/internal/progress"
	"github.com/jsonload/jsonload/pkg/telemetry"
)

// Totals are the running counts of a load.
type Totals struct {
	// Txns counts committed transactions.
	Txns uint64
	// Docs counts documents of completed chunks.
	Docs uint64
	// NQuads is the estimated number of leaf values of completed chunks.
	NQuads uint64
	// Aborts counts retried attempts, including those of chunks that later failed.
	Aborts uint64
}

func (t Totals) update() progress.Update {
	return progress.Update{
		NQuads: t.NQuads,
		Txns:   t.Txns,
		Docs:   t.Docs,
		Aborts: t.Aborts,
	}
}

// Stats is the single aggregation point for chunk outcomes. Folding and reporting
// happen under one lock so the reporter always sees non-decreasing totals.
type Stats struct {
	mu       sync.Mutex
	totals   Totals
	reporter progress.Reporter
}

func NewStats(reporter progress.Reporter) *Stats {
	if reporter == nil {
		reporter = progress.Noop{}
	}
	return &Stats{reporter: reporter}
}

// Record folds a completed chunk into the totals and reports them.
func (s *Stats) Record(docs int, nquads, aborts uint64, committed bool) Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	if committed {
		s.totals.Txns++
		telemetry.TransactionsCounter.Inc()
	}
	s.totals.Docs += uint64(docs)
	s.totals.NQuads += nquads
	s.totals.Aborts += aborts

	telemetry.DocumentsCounter.Add(float64(docs))
	telemetry.NQuadsCounter.Add(float64(nquads))

	s.reporter.Report(s.totals.update())
	return s.totals
}

// RecordAborts folds the aborts observed by a chunk that did not complete.
func (s *Stats) RecordAborts(aborts uint64) {
	if aborts == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totals.Aborts += aborts
	s.reporter.Report(s.totals.update())
}

func (s *Stats) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}
