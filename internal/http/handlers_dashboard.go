package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"txdash/internal/core"
	"txdash/internal/dashboard"
	"txdash/internal/log"
	"txdash/internal/views"
)

const (
	viewFallback = `<section id="view" class="view-container"><div class="placeholder">Error rendering dashboard</div></section>`
	pageFallback = `<!doctype html><title>Transaction Dashboard</title><p class="placeholder">Error rendering dashboard</p>`
)

// handleIndex renders the full page. Opening the page mounts the dashboard:
// the first visit of a session issues the initial fetch.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	_, ctl := s.sessions.Resolve(w, r)
	ctl.Start()

	body, ok := s.renderTemplate(r.Context(), "dashboard.html", views.Dashboard(ctl.Snapshot()), pageFallback)
	resp := NewPartial().BodyHTML(body)
	if !ok {
		resp.Status(http.StatusInternalServerError)
	}
	resp.Write(w)
}

// handleView renders the view partial for the current state. The loading
// partial polls this endpoint until the latest fetch resolves.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	_, ctl := s.sessions.Resolve(w, r)
	ctl.Start()
	s.writeView(w, r, ctl, NewPartial())
}

// handleFilterChange applies one filter field. The field comes from the
// form or the query string; the value defaults to the field's own control.
func (s *Server) handleFilterChange(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	field := dashboard.Field(sanitizeInput(r.URL.Query().Get("field")))
	if p.Has("field") {
		field = dashboard.Field(p.Get("field"))
	}
	// Search text goes out exactly as typed.
	lookup := p.Lookup
	if field == dashboard.FieldSearch {
		lookup = p.Raw
	}
	value, ok := lookup("value")
	if !ok {
		value, _ = lookup(inputName(field))
	}

	_, ctl := s.sessions.Resolve(w, r)
	logger := log.FromContext(r.Context())

	fetching, err := ctl.SubmitFilterChange(field, value)
	switch {
	case errors.Is(err, dashboard.ErrUnknownField):
		logger.WarnContext(r.Context(), "Unknown filter field",
			"field", string(field),
			log.FieldOperation, log.OpFilter,
			"error_type", log.ErrorTypeValidation)
		BadRequestError("Unknown filter field").Write(w)
		return
	case errors.Is(err, core.ErrInvalidMonth):
		logger.WarnContext(r.Context(), "Invalid month selected",
			log.FieldMonth, value,
			log.FieldOperation, log.OpFilter,
			"error_type", log.ErrorTypeValidation)
		UnprocessableEntityError("Invalid month").Write(w)
		return
	case err != nil:
		BadRequestError("Invalid filter").Write(w)
		return
	}

	// Typing only records the text; the view is refreshed on submit.
	if field == dashboard.FieldSearch {
		NewPartial().Status(http.StatusNoContent).Write(w)
		return
	}

	resp := NewPartial()
	if fetching {
		resp.TriggerFetchStarted(ctl.Snapshot().Seq)
	}
	s.writeView(w, r, ctl, resp)
}

// handleSearch is the Enter key: the search text is applied from page 1.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	_, ctl := s.sessions.Resolve(w, r)
	query, _ := p.Raw("s_query")
	ctl.SubmitSearch(query)
	s.writeView(w, r, ctl, NewPartial().TriggerFetchStarted(ctl.Snapshot().Seq))
}

func (s *Server) handlePageChange(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	delta, err := p.Delta()
	if err != nil {
		BadRequestError("Invalid page change").Write(w)
		return
	}

	_, ctl := s.sessions.Resolve(w, r)
	fetching, err := ctl.ChangePage(delta)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected page change",
			"delta", delta,
			log.FieldOperation, log.OpPage,
			"error_type", log.ErrorTypeValidation)
		BadRequestError("Invalid page change").Write(w)
		return
	}

	resp := NewPartial()
	if fetching {
		resp.TriggerFetchStarted(ctl.Snapshot().Seq)
	}
	s.writeView(w, r, ctl, resp)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	_, ctl := s.sessions.Resolve(w, r)
	ctl.Retry()
	s.writeView(w, r, ctl, NewPartial().TriggerFetchStarted(ctl.Snapshot().Seq))
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, ctl *dashboard.Controller, resp *PartialResponse) {
	snap := ctl.Snapshot()
	body, ok := s.renderTemplate(r.Context(), "view", views.Dashboard(snap), viewFallback)
	if !ok {
		resp.Status(http.StatusInternalServerError)
	}
	resp.TriggerFilterState(snap.Filter).BodyHTML(body).Write(w)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError("Too many requests, please slow down").Write(w)
}

type filterJSON struct {
	Month      string `json:"month"`
	Page       int    `json:"page"`
	Offset     int    `json:"offset"`
	SearchText string `json:"s_query"`
}

type dashboardJSON struct {
	Status core.FetchStatus       `json:"status"`
	View   string                 `json:"view"`
	Seq    uint64                 `json:"seq"`
	Filter filterJSON             `json:"filter"`
	Result *core.CombinedResponse `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// handleDashboardJSON returns the session's snapshot. It does not start a
// fetch; a session that was never mounted reports status idle.
func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	_, ctl := s.sessions.Resolve(w, r)
	snap := ctl.Snapshot()

	out := dashboardJSON{
		Status: snap.Result.Status,
		View:   dashboard.ViewFor(snap.Result.Status).String(),
		Seq:    snap.Seq,
		Filter: filterJSON{
			Month:      string(snap.Filter.Month),
			Page:       snap.Filter.Page,
			Offset:     snap.Filter.Offset(),
			SearchText: snap.Filter.SearchText,
		},
	}
	if snap.Result.Status != core.Idle {
		out.Result = &core.CombinedResponse{
			ListTransactions: snap.Result.Transactions,
			Statistics:       snap.Result.Statistics,
			BarChart:         snap.Result.BarChart,
		}
	}
	if snap.Result.Status == core.Failure {
		out.Error = dashboard.FailureMessage
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode dashboard snapshot", log.FieldError, err)
	}
}
