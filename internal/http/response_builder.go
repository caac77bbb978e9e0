package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	"txdash/internal/core"
)

// Events emitted through HX-Trigger.
const (
	EventFilterChanged = "filter:changed"
	EventFetchStarted  = "fetch:started"
)

// PartialResponse builds an htmx fragment response: status, headers, body and
// the HX-Trigger events raised alongside it.
type PartialResponse struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewPartial starts a 200 response.
func NewPartial() *PartialResponse {
	return &PartialResponse{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *PartialResponse) Status(code int) *PartialResponse {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *PartialResponse) Trigger(name string, data any) *PartialResponse {
	b.triggers[name] = data
	return b
}

// TriggerFilterState announces the filter the dashboard now shows, so that
// controls outside the swapped view can follow it.
func (b *PartialResponse) TriggerFilterState(f core.FilterState) *PartialResponse {
	return b.Trigger(EventFilterChanged, map[string]any{
		"month":   string(f.Month),
		"page":    f.Page,
		"s_query": f.SearchText,
	})
}

// TriggerFetchStarted reports the sequence number of a newly issued fetch.
func (b *PartialResponse) TriggerFetchStarted(seq uint64) *PartialResponse {
	return b.Trigger(EventFetchStarted, map[string]uint64{"seq": seq})
}

// Header adds a custom header to the response.
func (b *PartialResponse) Header(name, value string) *PartialResponse {
	b.headers[name] = value
	return b
}

// Body sets the response body as bytes.
func (b *PartialResponse) Body(content []byte) *PartialResponse {
	b.body = content
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *PartialResponse) BodyHTML(html string) *PartialResponse {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *PartialResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		if events, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(events))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message, escaped, as an error fragment.
func ErrorResponse(statusCode int, message string) *PartialResponse {
	return NewPartial().
		Status(statusCode).
		BodyHTML(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *PartialResponse {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *PartialResponse {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// TooManyRequestsError creates a 429 response asking the client to back off.
func TooManyRequestsError(message string) *PartialResponse {
	return ErrorResponse(http.StatusTooManyRequests, message).Header("Retry-After", "1")
}
