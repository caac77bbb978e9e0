// Package views maps dashboard state onto the models the templates render.
// Nothing here holds state or performs I/O.
package views

import (
	"txdash/internal/core"
	"txdash/internal/dashboard"
)

const dateLayout = "2006-01-02"

type (
	// TransactionRow is one formatted table row.
	TransactionRow struct {
		ID          int64
		Title       string
		Description string
		Price       string
		Category    string
		Image       string
		Sold        bool
		SoldLabel   string
		Date        string
	}

	TransactionListModel struct {
		Rows     []TransactionRow
		Page     int
		PrevPage int
		NextPage int
		Empty    bool
	}

	StatisticsModel struct {
		Title             string
		TotalSaleAmount   string
		TotalSoldItems    int
		TotalNotSoldItems int
	}

	// Bar is one bar of the chart. Height is a percentage of the tallest bar.
	Bar struct {
		Label  string
		Count  int
		Height int
	}

	BarChartModel struct {
		Title    string
		Bars     []Bar
		MaxCount int
		Empty    bool
	}

	// MonthChoice is a month selector option with its selection flag.
	MonthChoice struct {
		Value       string
		DisplayText string
		Selected    bool
	}

	// DashboardModel is everything the page and the view partial need.
	DashboardModel struct {
		View       string
		SearchText string
		Month      string
		Months     []MonthChoice
		Page       int
		Seq        uint64

		Transactions TransactionListModel
		Statistics   StatisticsModel
		Chart        BarChartModel
		Failure      string
	}
)

// TransactionList formats the rows of the current page.
func TransactionList(records []core.TransactionRecord, page int) TransactionListModel {
	if page < 1 {
		page = 1
	}
	m := TransactionListModel{
		Rows:     make([]TransactionRow, 0, len(records)),
		Page:     page,
		PrevPage: page - 1,
		NextPage: page + 1,
		Empty:    len(records) == 0,
	}
	for _, r := range records {
		date := r.DateOfSale
		if d, ok := r.SaleDate(); ok {
			date = d.Format(dateLayout)
		}
		sold := "No"
		if r.Sold {
			sold = "Yes"
		}
		m.Rows = append(m.Rows, TransactionRow{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Price:       core.MoneyFromFloat(r.Price).String(),
			Category:    r.Category,
			Image:       r.Image,
			Sold:        r.Sold,
			SoldLabel:   sold,
			Date:        date,
		})
	}
	return m
}

func Statistics(s core.StatisticsSummary, month core.Month) StatisticsModel {
	return StatisticsModel{
		Title:             "Statistics - " + month.DisplayText(),
		TotalSaleAmount:   core.MoneyFromFloat(s.TotalSaleAmount).String(),
		TotalSoldItems:    s.TotalSoldItems,
		TotalNotSoldItems: s.TotalNotSoldItems,
	}
}

// BarChart scales every bar against the largest count. Non-zero bars are at
// least 2% tall so they stay visible.
func BarChart(series []core.BarChartEntry, month core.Month) BarChartModel {
	m := BarChartModel{
		Title: "Bar Chart Stats - " + month.DisplayText(),
		Bars:  make([]Bar, 0, len(series)),
	}
	for _, e := range series {
		if e.Count > m.MaxCount {
			m.MaxCount = e.Count
		}
	}
	m.Empty = m.MaxCount == 0
	for _, e := range series {
		height := 0
		if m.MaxCount > 0 && e.Count > 0 {
			height = (e.Count*100 + m.MaxCount/2) / m.MaxCount
			if height < 2 {
				height = 2
			}
			if height > 100 {
				height = 100
			}
		}
		m.Bars = append(m.Bars, Bar{Label: e.Range, Count: e.Count, Height: height})
	}
	return m
}

// Months lists the selector options with the current month marked.
func Months(selected core.Month) []MonthChoice {
	out := make([]MonthChoice, 0, len(core.Months))
	for _, m := range core.Months {
		out = append(out, MonthChoice{
			Value:       string(m.Value),
			DisplayText: m.DisplayText,
			Selected:    m.Value == selected,
		})
	}
	return out
}

// Dashboard builds the full page model from a controller snapshot. The
// success sections are filled only when the success view is shown.
func Dashboard(snap core.Snapshot) DashboardModel {
	f := snap.Filter
	view := dashboard.ViewFor(snap.Result.Status)
	m := DashboardModel{
		View:       view.String(),
		SearchText: f.SearchText,
		Month:      string(f.Month),
		Months:     Months(f.Month),
		Page:       f.Page,
		Seq:        snap.Seq,
	}
	switch view {
	case dashboard.ViewSuccess:
		m.Transactions = TransactionList(snap.Result.Transactions, f.Page)
		m.Statistics = Statistics(snap.Result.Statistics, f.Month)
		m.Chart = BarChart(snap.Result.BarChart, f.Month)
	case dashboard.ViewFailure:
		m.Failure = dashboard.FailureMessage
	}
	return m
}
