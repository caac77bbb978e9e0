// Package dashboard holds the per-session dashboard state machine.
//
// A Controller owns the filter state and the result of the latest fetch. The
// pair is kept in a single snapshot that is replaced, never mutated, under the
// controller mutex. Every fetch runs in its own goroutine and carries a
// sequence number; a completion whose number is no longer the latest issued is
// dropped, so an older response can never overwrite a newer filter.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"txdash/internal/api"
	"txdash/internal/core"
	"txdash/internal/log"
)

// Field names accepted by SubmitFilterChange.
type Field string

const (
	FieldSearch Field = "search"
	FieldMonth  Field = "month"
)

var (
	ErrUnknownField = errors.New("unknown filter field")
	ErrInvalidDelta = errors.New("page delta must be +1 or -1")
)

// Fetcher performs the combined-response request for a filter.
type Fetcher interface {
	FetchCombined(ctx context.Context, f core.FilterState) (core.CombinedResponse, error)
}

// FetchEvent describes a fetch that resolved and was applied.
type FetchEvent struct {
	Seq       uint64
	Filter    core.FilterState
	Status    core.FetchStatus
	Rows      int
	Duration  time.Duration
	Err       error
	ErrorType string // log.ErrorType* name of Err, empty on success
}

// Observer is told about every applied fetch outcome. Stale outcomes are not reported.
type Observer interface {
	FetchCompleted(ctx context.Context, ev FetchEvent)
}

// Observers fans every event out to each non-nil observer in order.
type Observers []Observer

func (o Observers) FetchCompleted(ctx context.Context, ev FetchEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.FetchCompleted(ctx, ev)
		}
	}
}

type Controller struct {
	fetcher  Fetcher
	observer Observer
	logger   *log.Logger
	slog     *log.StructuredLogger

	mu     sync.Mutex
	state  core.Snapshot
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

// Option configures a Controller.
type Option func(*Controller)

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithFilter overrides the initial filter state. Invalid filters are ignored.
func WithFilter(f core.FilterState) Option {
	return func(c *Controller) {
		if f.Validate() == nil {
			c.state.Filter = f
		}
	}
}

// NewController returns an idle controller. Nothing is fetched until Start.
func NewController(fetcher Fetcher, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		fetcher: fetcher,
		state:   core.Snapshot{Filter: core.DefaultFilter()},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}
	c.logger = c.logger.WithComponent(log.ComponentDashboard)
	c.slog = log.NewStructuredLogger(c.logger)
	return c
}

// Start issues the initial fetch. It does nothing once any fetch has been
// issued, including one triggered by a filter or page change.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Seq == 0 {
		c.fetchLocked()
	}
}

// Snapshot returns the current state. The returned value must be treated as read-only.
func (c *Controller) Snapshot() core.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubmitFilterChange updates one filter field. A search change only records the
// text. A month change resets the page to 1 and fetches when the month or the
// page actually changed. It reports whether a fetch was scheduled.
func (c *Controller) SubmitFilterChange(field Field, value string) (bool, error) {
	switch field {
	case FieldSearch:
		c.mu.Lock()
		c.state.Filter.SearchText = value
		c.mu.Unlock()
		return false, nil
	case FieldMonth:
		m, err := core.ParseMonth(value)
		if err != nil {
			return false, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		prev := c.state.Filter
		c.state.Filter.Month = m
		c.state.Filter.Page = 1
		if prev.Month == m && prev.Page == 1 {
			return false, nil
		}
		return c.fetchLocked(), nil
	default:
		return false, ErrUnknownField
	}
}

// ChangePage moves one page forward or back. The page never drops below 1;
// going back from the first page changes nothing and fetches nothing.
func (c *Controller) ChangePage(delta int) (bool, error) {
	if delta != 1 && delta != -1 {
		return false, ErrInvalidDelta
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state.Filter.Page + delta
	if next < 1 {
		return false, nil
	}
	c.state.Filter.Page = next
	return c.fetchLocked(), nil
}

// SubmitSearch records the search text, goes back to page 1 and fetches once.
func (c *Controller) SubmitSearch(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Filter.SearchText = text
	c.state.Filter.Page = 1
	c.fetchLocked()
}

// Retry repeats the fetch with the current filter state.
func (c *Controller) Retry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchLocked()
}

// Wait blocks until every fetch issued so far has resolved.
func (c *Controller) Wait() {
	_ = c.group.Wait()
}

// Close cancels in-flight fetches and waits for them to finish. Once closed,
// the controller issues no further fetches.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.cancel()
	c.mu.Unlock()
	c.Wait()
}

// fetchLocked marks the state in progress and starts the request. It reports
// false, changing nothing, on a closed controller. c.mu must be held.
func (c *Controller) fetchLocked() bool {
	if c.closed {
		return false
	}
	c.state.Seq++
	seq := c.state.Seq
	filter := c.state.Filter
	c.state.Result = c.state.Result.WithStatus(core.InProgress)

	c.group.Go(func() error {
		c.run(seq, filter)
		return nil
	})
	return true
}

func (c *Controller) run(seq uint64, filter core.FilterState) {
	start := time.Now()
	resp, err := c.fetcher.FetchCombined(c.ctx, filter)
	elapsed := time.Since(start)

	c.mu.Lock()
	if seq != c.state.Seq {
		latest := c.state.Seq
		c.mu.Unlock()
		c.logger.Debug("Discarding stale fetch result",
			log.FieldSeq, seq,
			"latest_seq", latest,
			log.FieldMonth, string(filter.Month),
			log.FieldPage, filter.Page)
		return
	}
	ev := FetchEvent{Seq: seq, Filter: filter, Duration: elapsed, Err: err, ErrorType: errorType(err)}
	if err != nil {
		c.state.Result = c.state.Result.WithStatus(core.Failure)
		ev.Status = core.Failure
	} else {
		c.state.Result = c.state.Result.WithResponse(resp)
		ev.Status = core.Success
		ev.Rows = len(resp.ListTransactions)
	}
	c.mu.Unlock()

	// Outcome reporting must survive a Close that raced the response.
	ctx := context.WithoutCancel(c.ctx)
	c.slog.LogFetchResolved(ctx, string(filter.Month), filter.Page, filter.Offset(), filter.SearchText,
		seq, ev.Status.String(), ev.Rows, elapsed.Milliseconds(), err, ev.ErrorType)

	if c.observer != nil {
		c.observer.FetchCompleted(ctx, ev)
	}
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case api.IsStatusError(err):
		return log.ErrorTypeUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	default:
		return log.ErrorTypeNetwork
	}
}
