package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txdash/internal/core"
)

func TestTransactionList(t *testing.T) {
	records := []core.TransactionRecord{
		{ID: 1, Title: "Fjallraven Backpack", Price: 329.85, Category: "men's clothing", Sold: false, DateOfSale: "2021-11-27T20:29:54+05:30"},
		{ID: 2, Title: "Mens Casual Slim Fit", Price: 10, Sold: true, DateOfSale: "not a date"},
	}

	m := TransactionList(records, 3)

	require.Len(t, m.Rows, 2)
	assert.Equal(t, 3, m.Page)
	assert.Equal(t, 2, m.PrevPage)
	assert.Equal(t, 4, m.NextPage)
	assert.False(t, m.Empty)

	assert.Equal(t, "329.85", m.Rows[0].Price)
	assert.Equal(t, "2021-11-27", m.Rows[0].Date)
	assert.Equal(t, "No", m.Rows[0].SoldLabel)
	assert.Equal(t, "10.00", m.Rows[1].Price)
	assert.Equal(t, "not a date", m.Rows[1].Date)
	assert.Equal(t, "Yes", m.Rows[1].SoldLabel)
}

func TestTransactionList_Empty(t *testing.T) {
	m := TransactionList(nil, 0)
	assert.True(t, m.Empty)
	assert.Equal(t, 1, m.Page)
	assert.NotNil(t, m.Rows)
}

func TestStatistics(t *testing.T) {
	m := Statistics(core.StatisticsSummary{TotalSaleAmount: 1234.5, TotalSoldItems: 3, TotalNotSoldItems: 7}, "March")
	assert.Equal(t, "Statistics - March", m.Title)
	assert.Equal(t, "1234.50", m.TotalSaleAmount)
	assert.Equal(t, 3, m.TotalSoldItems)
	assert.Equal(t, 7, m.TotalNotSoldItems)

	assert.Equal(t, "Statistics - All months", Statistics(core.StatisticsSummary{}, core.AllMonths).Title)
}

func TestBarChart(t *testing.T) {
	tests := []struct {
		name    string
		series  []core.BarChartEntry
		heights []int
		empty   bool
	}{
		{
			name:    "scaled to max",
			series:  []core.BarChartEntry{{Range: "0-100", Count: 4}, {Range: "101-200", Count: 2}, {Range: "201-300", Count: 0}},
			heights: []int{100, 50, 0},
		},
		{
			name:    "tiny bars stay visible",
			series:  []core.BarChartEntry{{Range: "0-100", Count: 200}, {Range: "101-200", Count: 1}},
			heights: []int{100, 2},
		},
		{
			name:    "all zero",
			series:  []core.BarChartEntry{{Range: "0-100"}, {Range: "101-200"}},
			heights: []int{0, 0},
			empty:   true,
		},
		{
			name:  "no series",
			empty: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := BarChart(tt.series, "July")
			assert.Equal(t, "Bar Chart Stats - July", m.Title)
			assert.Equal(t, tt.empty, m.Empty)
			require.Len(t, m.Bars, len(tt.heights))
			for i, h := range tt.heights {
				assert.Equal(t, h, m.Bars[i].Height, "bar %s", m.Bars[i].Label)
			}
		})
	}
}

func TestMonths(t *testing.T) {
	choices := Months("March")
	require.Len(t, choices, 13)
	assert.Equal(t, "All", choices[0].Value)
	assert.Equal(t, "All months", choices[0].DisplayText)
	for i, c := range choices {
		assert.Equal(t, i == 3, c.Selected, c.Value)
	}
}

func TestDashboard(t *testing.T) {
	resp := core.CombinedResponse{
		ListTransactions: []core.TransactionRecord{{ID: 1, Title: "Ring", Price: 5}},
		Statistics:       core.StatisticsSummary{TotalSaleAmount: 5, TotalSoldItems: 1},
		BarChart:         []core.BarChartEntry{{Range: "0-100", Count: 1}},
	}
	filter := core.FilterState{Month: "June", Page: 2, SearchText: "ring"}

	t.Run("success fills every section", func(t *testing.T) {
		snap := core.Snapshot{Filter: filter, Result: core.ApiResult{}.WithResponse(resp), Seq: 4}
		m := Dashboard(snap)
		assert.Equal(t, "success", m.View)
		assert.Equal(t, "ring", m.SearchText)
		assert.Equal(t, "June", m.Month)
		assert.Equal(t, uint64(4), m.Seq)
		assert.Len(t, m.Transactions.Rows, 1)
		assert.Equal(t, 2, m.Transactions.Page)
		assert.Equal(t, "Statistics - June", m.Statistics.Title)
		assert.Len(t, m.Chart.Bars, 1)
		assert.Empty(t, m.Failure)
	})

	t.Run("failure hides stale data", func(t *testing.T) {
		res := core.ApiResult{}.WithResponse(resp).WithStatus(core.Failure)
		m := Dashboard(core.Snapshot{Filter: filter, Result: res})
		assert.Equal(t, "failure", m.View)
		assert.Equal(t, "Failed to fetch data", m.Failure)
		assert.Empty(t, m.Transactions.Rows)
	})

	t.Run("loading", func(t *testing.T) {
		m := Dashboard(core.Snapshot{Filter: filter, Result: core.ApiResult{Status: core.InProgress}})
		assert.Equal(t, "loading", m.View)
	})

	t.Run("idle", func(t *testing.T) {
		m := Dashboard(core.Snapshot{Filter: core.DefaultFilter()})
		assert.Equal(t, "none", m.View)
		assert.True(t, m.Months[3].Selected)
	})
}
