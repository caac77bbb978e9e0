package core

import (
	"errors"
	"time"
)

// PageSize is the fixed number of transactions requested per page.
const PageSize = 10

const (
	Idle FetchStatus = iota
	InProgress
	Success
	Failure
)

type (
	// FetchStatus is the state of the most recent fetch as seen by the view.
	FetchStatus int

	// FilterState determines the query parameters of the next fetch.
	FilterState struct {
		SearchText string
		Month      Month
		Page       int
	}

	// TransactionRecord is a single row of the combined-response listTransactions array.
	TransactionRecord struct {
		ID          int64   `json:"id"`
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Category    string  `json:"category"`
		Image       string  `json:"image"`
		Sold        bool    `json:"sold"`
		DateOfSale  string  `json:"dateOfSale"`
	}

	// StatisticsSummary aggregates sales for the selected month.
	StatisticsSummary struct {
		TotalSaleAmount   float64 `json:"totalSaleAmount"`
		TotalSoldItems    int     `json:"totalSoldItems"`
		TotalNotSoldItems int     `json:"totalNotSoldItems"`
	}

	// BarChartEntry is one price range bucket of the bar chart series.
	BarChartEntry struct {
		Range string `json:"range"`
		Count int    `json:"count"`
	}

	// CombinedResponse is the JSON body of the combined-response endpoint.
	CombinedResponse struct {
		ListTransactions []TransactionRecord `json:"listTransactions"`
		Statistics       StatisticsSummary   `json:"statistics"`
		BarChart         []BarChartEntry     `json:"barChart"`
	}

	// ApiResult is the outcome of the most recently completed fetch.
	ApiResult struct {
		Status       FetchStatus
		Transactions []TransactionRecord
		Statistics   StatisticsSummary
		BarChart     []BarChartEntry
	}

	// Snapshot is the immutable dashboard state handed to readers.
	Snapshot struct {
		Filter FilterState
		Result ApiResult
		// Seq is the sequence number of the latest issued fetch.
		Seq uint64
	}
)

var (
	ErrInvalidPage   = errors.New("invalid page")
	ErrInvalidAmount = errors.New("invalid amount")
)

// DefaultFilter is the filter state of a freshly opened dashboard.
func DefaultFilter() FilterState {
	return FilterState{Month: DefaultMonth(), Page: 1}
}

func (f FilterState) Validate() error {
	if f.Page < 1 {
		return ErrInvalidPage
	}
	if !f.Month.IsValid() {
		return ErrInvalidMonth
	}
	return nil
}

// Offset returns the zero-based index of the first transaction of the page.
func (f FilterState) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * PageSize
}

func (s FetchStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case InProgress:
		return "in_progress"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// MarshalText renders the status by name in JSON payloads.
func (s FetchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SaleDate parses DateOfSale. The remote API sends RFC 3339 timestamps;
// plain dates are accepted too.
func (t TransactionRecord) SaleDate() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if d, err := time.Parse(layout, t.DateOfSale); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// WithResponse returns the result of a successful fetch. All three slices are
// taken from the response in one step.
func (r ApiResult) WithResponse(resp CombinedResponse) ApiResult {
	return ApiResult{
		Status:       Success,
		Transactions: resp.ListTransactions,
		Statistics:   resp.Statistics,
		BarChart:     resp.BarChart,
	}
}

// WithStatus returns a copy of r with only the status replaced.
func (r ApiResult) WithStatus(s FetchStatus) ApiResult {
	r.Status = s
	return r
}
