package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txdash/internal/core"
	"txdash/internal/dashboard"
	"txdash/internal/middleware/ratelimit"
	"txdash/internal/session"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []core.FilterState
	err   error
}

func (f *fakeFetcher) FetchCombined(_ context.Context, filter core.FilterState) (core.CombinedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filter)
	if f.err != nil {
		return core.CombinedResponse{}, f.err
	}
	return core.CombinedResponse{
		ListTransactions: []core.TransactionRecord{{
			ID: 7, Title: "Blue Shirt", Description: "Cotton", Price: 329.85,
			Category: "men's clothing", Sold: true, DateOfSale: "2021-03-27T20:29:54+05:30",
		}},
		Statistics: core.StatisticsSummary{TotalSaleAmount: 329.85, TotalSoldItems: 1},
		BarChart:   []core.BarChartEntry{{Range: "301-400", Count: 1}},
	}, nil
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) recorded() []core.FilterState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.FilterState(nil), f.calls...)
}

type testEnv struct {
	srv      *Server
	sessions *session.Registry
	fetcher  *fakeFetcher
	metrics  *FetchMetrics
	cookie   *http.Cookie
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{fetcher: &fakeFetcher{}, metrics: NewFetchMetrics()}
	env.sessions = session.NewRegistry(func(string) *dashboard.Controller {
		return dashboard.NewController(env.fetcher, dashboard.WithObserver(env.metrics))
	}, 10, time.Hour)
	env.srv = NewServer(":0", env.sessions, append([]Option{WithFetchMetrics(env.metrics)}, opts...)...)
	t.Cleanup(func() {
		_ = env.srv.Shutdown(context.Background())
		env.sessions.Close()
	})
	return env
}

// do sends a request carrying the session cookie and remembers the cookie
// the server hands back.
func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			e.cookie = c
		}
	}
	return rec
}

// settle waits for every fetch of the current session.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	require.NotNil(t, e.cookie, "no session cookie")
	ctl, ok := e.sessions.Lookup(e.cookie.Value)
	require.True(t, ok, "session not found")
	ctl.Wait()
}

func TestIndexMountsDashboard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Transaction Dashboard")
	assert.Contains(t, body, `<option value="March" selected>`)
	assert.Contains(t, body, `<option value="All">All months</option>`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	require.NotNil(t, env.cookie)
	assert.True(t, env.cookie.HttpOnly)

	env.settle(t)
	calls := env.fetcher.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, core.FilterState{Month: "March", Page: 1}, calls[0])

	rec = env.do(t, http.MethodGet, "/ui/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "Blue Shirt")
	assert.Contains(t, body, "Statistics - March")
	assert.Contains(t, body, "Bar Chart Stats - March")
	assert.Contains(t, body, "Page No: 1")
	assert.Contains(t, body, `title="Page 2">Next`)
	assert.NotContains(t, body, `title="Page 0"`)
	assert.NotContains(t, body, "No transactions found")

	// Reloading the page does not fetch again.
	env.do(t, http.MethodGet, "/", "")
	env.settle(t)
	assert.Len(t, env.fetcher.recorded(), 1)
}

func TestViewWithoutCookieCreatesSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/ui/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="view"`)
	require.NotNil(t, env.cookie)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestFilterChange(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/", "")
	env.settle(t)

	t.Run("month", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/ui/filter?field=month", "s_query=&month=January")
		require.Equal(t, http.StatusOK, rec.Code)
		trigger := rec.Header().Get("HX-Trigger")
		assert.Contains(t, trigger, `"filter:changed"`)
		assert.Contains(t, trigger, `"month":"January"`)
		assert.Contains(t, trigger, `"fetch:started"`)

		env.settle(t)
		calls := env.fetcher.recorded()
		assert.Equal(t, core.FilterState{Month: "January", Page: 1}, calls[len(calls)-1])
	})

	t.Run("same month does not fetch", func(t *testing.T) {
		before := len(env.fetcher.recorded())
		rec := env.do(t, http.MethodPost, "/ui/filter?field=month", "month=January")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Header().Get("HX-Trigger"), "fetch:started")
		env.settle(t)
		assert.Len(t, env.fetcher.recorded(), before)
	})

	t.Run("search text is recorded without fetching", func(t *testing.T) {
		before := len(env.fetcher.recorded())
		rec := env.do(t, http.MethodPost, "/ui/filter?field=search", "s_query=shirt")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		env.settle(t)
		assert.Len(t, env.fetcher.recorded(), before)

		ctl, _ := env.sessions.Lookup(env.cookie.Value)
		assert.Equal(t, "shirt", ctl.Snapshot().Filter.SearchText)
	})

	t.Run("explicit field and value", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/ui/filter", "field=month&value=All")
		require.Equal(t, http.StatusOK, rec.Code)
		env.settle(t)
		calls := env.fetcher.recorded()
		assert.Equal(t, core.AllMonths, calls[len(calls)-1].Month)
	})

	t.Run("invalid month", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/ui/filter?field=month", "month=Smarch")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), `class="error"`)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/ui/filter?field=color", "value=red")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSearchAndPaging(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/", "")
	env.settle(t)

	rec := env.do(t, http.MethodPost, "/ui/page", "delta=1")
	require.Equal(t, http.StatusOK, rec.Code)
	env.settle(t)
	calls := env.fetcher.recorded()
	assert.Equal(t, 2, calls[len(calls)-1].Page)
	assert.Equal(t, 10, calls[len(calls)-1].Offset())
	rec = env.do(t, http.MethodGet, "/ui/view", "")
	assert.Contains(t, rec.Body.String(), `title="Page 1">Previous`)
	assert.Contains(t, rec.Body.String(), `title="Page 3">Next`)

	rec = env.do(t, http.MethodPost, "/ui/search", "s_query=blue&month=March")
	require.Equal(t, http.StatusOK, rec.Code)
	env.settle(t)
	calls = env.fetcher.recorded()
	assert.Equal(t, core.FilterState{SearchText: "blue", Month: "March", Page: 1}, calls[len(calls)-1])

	// The search text is sent as typed, surrounding spaces included.
	rec = env.do(t, http.MethodPost, "/ui/search", "s_query=+blue%09shirt+")
	require.Equal(t, http.StatusOK, rec.Code)
	env.settle(t)
	calls = env.fetcher.recorded()
	assert.Equal(t, " blue\tshirt ", calls[len(calls)-1].SearchText)
	rec = env.do(t, http.MethodPost, "/ui/search", "s_query=blue")
	env.settle(t)
	calls = env.fetcher.recorded()

	// Previous on the first page changes nothing.
	before := len(calls)
	rec = env.do(t, http.MethodPost, "/ui/page", "delta=-1")
	require.Equal(t, http.StatusOK, rec.Code)
	env.settle(t)
	assert.Len(t, env.fetcher.recorded(), before)

	for _, body := range []string{"delta=abc", "delta=5", ""} {
		rec = env.do(t, http.MethodPost, "/ui/page", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestFailureAndRetry(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.setErr(errors.New("connection refused"))

	env.do(t, http.MethodGet, "/", "")
	env.settle(t)

	rec := env.do(t, http.MethodGet, "/ui/view", "")
	body := rec.Body.String()
	assert.Contains(t, body, "Failed to fetch data")
	assert.Contains(t, body, `hx-post="/ui/retry"`)

	env.fetcher.setErr(nil)
	rec = env.do(t, http.MethodPost, "/ui/retry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env.settle(t)

	calls := env.fetcher.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1])
	assert.Contains(t, env.do(t, http.MethodGet, "/ui/view", "").Body.String(), "Blue Shirt")

	counts := env.metrics.Snapshot()
	assert.Equal(t, int64(1), counts.Successes)
	assert.Equal(t, int64(1), counts.Failures)
}

func TestDashboardJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var idle map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &idle))
	assert.Equal(t, "idle", idle["status"])
	assert.Equal(t, "none", idle["view"])
	assert.NotContains(t, idle, "result")

	env.do(t, http.MethodGet, "/", "")
	env.settle(t)

	rec = env.do(t, http.MethodGet, "/api/dashboard", "")
	var got struct {
		Status string `json:"status"`
		View   string `json:"view"`
		Seq    uint64 `json:"seq"`
		Filter struct {
			Month  string `json:"month"`
			Page   int    `json:"page"`
			Offset int    `json:"offset"`
		} `json:"filter"`
		Result core.CombinedResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, "success", got.View)
	assert.Equal(t, uint64(1), got.Seq)
	assert.Equal(t, "March", got.Filter.Month)
	assert.Equal(t, 1, got.Filter.Page)
	require.Len(t, got.Result.ListTransactions, 1)
	assert.Equal(t, "Blue Shirt", got.Result.ListTransactions[0].Title)
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, WithReadinessCheck("amqp", func(context.Context) error {
		return errors.New("not connected")
	}))

	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ready struct {
		Status string                 `json:"status"`
		Checks map[string]interface{} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ok", ready.Checks["templates"])
	assert.Equal(t, "degraded: not connected", ready.Checks["amqp"])
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/", "")
	env.settle(t)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `dashboard_fetches_total{status="success"} 1`)
	assert.Contains(t, body, "dashboard_sessions 1")
	assert.Contains(t, body, "http_requests_total 2")
}

func TestRateLimitedEvents(t *testing.T) {
	env := newTestEnv(t, WithRateLimit(ratelimit.Config{RequestsPerSecond: 0.001, Burst: 1}))
	env.do(t, http.MethodGet, "/", "")

	rec := env.do(t, http.MethodPost, "/ui/retry", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/ui/retry", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Reads are never limited.
	rec = env.do(t, http.MethodGet, "/ui/view", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/static/app.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	rec = env.do(t, http.MethodGet, "/static/missing.css", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
