package stubapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"txdash/internal/api"
	"txdash/internal/core"
	"txdash/internal/log"
	"txdash/internal/middleware/security"
	"txdash/internal/middleware/trace"
)

var (
	ErrInvalidLimit  = errors.New("limit must be an integer between 1 and 100")
	ErrInvalidOffset = errors.New("offset must be a non-negative integer")
)

// ErrorResponse is the body of every non-200 answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ParseQuery reads month, s_query, limit and offset. An empty month means
// all months.
func ParseQuery(v url.Values) (Query, error) {
	q := Query{Month: core.AllMonths, Limit: DefaultLimit, Search: strings.TrimSpace(v.Get(api.ParamSearch))}

	if raw := strings.TrimSpace(v.Get(api.ParamMonth)); raw != "" {
		m, err := core.ParseMonth(raw)
		if err != nil {
			return Query{}, err
		}
		q.Month = m
	}

	if raw := strings.TrimSpace(v.Get(api.ParamLimit)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxLimit {
			return Query{}, ErrInvalidLimit
		}
		q.Limit = n
	}

	if raw := strings.TrimSpace(v.Get(api.ParamOffset)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Query{}, ErrInvalidOffset
		}
		q.Offset = n
	}

	return q, nil
}

// Handler serves the combined-response endpoint from a Store.
type Handler struct {
	store  *Store
	logger *log.Logger
}

func NewHandler(store *Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{store: store, logger: logger.WithComponent(log.ComponentStub)}
}

// Routes builds the router. Any origin may read the API.
func (h *Handler) Routes() http.Handler {
	detector := security.NewDetector(h.logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(trace.NewMiddleware(h.logger, detector.ExtractClientIP).Middleware)
	r.Use(security.NewHeadersMiddleware(security.APIHeadersConfig()).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", trace.HeaderRequestID},
		ExposedHeaders: []string{trace.HeaderRequestID},
		MaxAge:         300, // 5 minutes
	}))

	r.Get("/healthz", h.handleHealth)
	r.Get("/combined-response", h.handleCombined)
	return r
}

func (h *Handler) handleCombined(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		h.logger.WarnContext(r.Context(), "Rejected combined-response query",
			log.FieldQuery, r.URL.RawQuery,
			log.FieldError, err,
			"error_type", log.ErrorTypeValidation)
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.store.Combined(r.Context(), q)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Combined response query failed",
			log.FieldOperation, log.OpList,
			log.FieldError, err,
			"error_type", log.ErrorTypeDatabase)
		respondError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.DebugContext(r.Context(), "Served combined response",
		log.FieldMonth, string(q.Month),
		log.FieldSearch, q.Search,
		log.FieldOffset, q.Offset,
		log.FieldRowCount, len(resp.ListTransactions))
	respondJSON(w, resp, http.StatusOK)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}
