package http

import (
	"context"
	"sync/atomic"

	"txdash/internal/core"
	"txdash/internal/dashboard"
)

// FetchMetrics counts resolved dashboard fetches across all sessions. It is a
// dashboard.Observer.
type FetchMetrics struct {
	successes  int64
	failures   int64
	durationMs int64
}

// FetchCounts is a point-in-time copy of FetchMetrics.
type FetchCounts struct {
	Successes  int64
	Failures   int64
	DurationMs int64
}

func NewFetchMetrics() *FetchMetrics {
	return &FetchMetrics{}
}

func (m *FetchMetrics) FetchCompleted(_ context.Context, ev dashboard.FetchEvent) {
	if ev.Status == core.Success {
		atomic.AddInt64(&m.successes, 1)
	} else {
		atomic.AddInt64(&m.failures, 1)
	}
	atomic.AddInt64(&m.durationMs, ev.Duration.Milliseconds())
}

func (m *FetchMetrics) Snapshot() FetchCounts {
	return FetchCounts{
		Successes:  atomic.LoadInt64(&m.successes),
		Failures:   atomic.LoadInt64(&m.failures),
		DurationMs: atomic.LoadInt64(&m.durationMs),
	}
}
