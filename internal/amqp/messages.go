package amqp

import (
	"encoding/json"
	"time"

	"txdash/internal/dashboard"
)

// FetchEventMessage describes one applied dashboard fetch.
type FetchEventMessage struct {
	SessionID  string    `json:"session_id"`
	Seq        uint64    `json:"seq"`
	Month      string    `json:"month"`
	Page       int       `json:"page"`
	Offset     int       `json:"offset"`
	Search     string    `json:"s_query"`
	Status     string    `json:"status"`
	Rows       int       `json:"rows"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	ErrorType  string    `json:"error_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewFetchEventMessage builds the message for a session's fetch event
func NewFetchEventMessage(sessionID string, ev dashboard.FetchEvent) *FetchEventMessage {
	msg := &FetchEventMessage{
		SessionID:  sessionID,
		Seq:        ev.Seq,
		Month:      string(ev.Filter.Month),
		Page:       ev.Filter.Page,
		Offset:     ev.Filter.Offset(),
		Search:     ev.Filter.SearchText,
		Status:     ev.Status.String(),
		Rows:       ev.Rows,
		DurationMs: ev.Duration.Milliseconds(),
		Timestamp:  time.Now(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
		msg.ErrorType = ev.ErrorType
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *FetchEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
