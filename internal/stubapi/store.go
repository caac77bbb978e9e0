// Package stubapi is a stand-in for the remote combined-response endpoint,
// backed by SQLite.
package stubapi

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"txdash/internal/core"

	_ "modernc.org/sqlite"
)

const (
	DefaultLimit = core.PageSize
	MaxLimit     = 100
)

// Query selects a page of transactions.
type Query struct {
	Month  core.Month
	Search string
	Limit  int
	Offset int
}

// Store holds the transaction table.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at dbPath and applies pending migrations.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// Insert stores records in one transaction. Existing ids are replaced. A
// record whose date cannot be parsed fails the whole batch.
func (s *Store) Insert(ctx context.Context, records []core.TransactionRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO transactions
			(id, title, description, price, category, image, sold, date_of_sale, sale_month,
			 search_title, search_description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		date, ok := rec.SaleDate()
		if !ok {
			return 0, fmt.Errorf("transaction %d: invalid dateOfSale %q", rec.ID, rec.DateOfSale)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.Title, rec.Description, rec.Price, rec.Category, rec.Image,
			boolToInt(rec.Sold), rec.DateOfSale, int(date.Month()),
			fold(rec.Title), fold(rec.Description)); err != nil {
			return 0, fmt.Errorf("insert transaction %d: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(records), nil
}

// monthFilter returns the WHERE fragment and argument restricting rows to a
// month. All months yields no restriction.
func monthFilter(m core.Month) (string, []any) {
	if n := m.Number(); n > 0 {
		return "sale_month = ?", []any{n}
	}
	return "1 = 1", nil
}

// List returns one page of transactions ordered by id. Search text matches
// title or description case-insensitively, or the price to the cent when numeric.
func (s *Store) List(ctx context.Context, q Query) ([]core.TransactionRecord, error) {
	where, args := monthFilter(q.Month)
	if search := fold(strings.TrimSpace(q.Search)); search != "" {
		clause := "(instr(search_title, ?) > 0 OR instr(search_description, ?) > 0"
		args = append(args, search, search)
		if cents, err := core.ParseDecimalToCents(search); err == nil {
			clause += " OR CAST(round(price * 100) AS INTEGER) = ?"
			args = append(args, cents)
		}
		where += " AND " + clause + ")"
	}
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, price, category, image, sold, date_of_sale
		FROM transactions
		WHERE `+where+`
		ORDER BY id
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.TransactionRecord, 0, q.Limit)
	for rows.Next() {
		var rec core.TransactionRecord
		var sold int
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Price,
			&rec.Category, &rec.Image, &sold, &rec.DateOfSale); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Sold = sold != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Statistics sums the sales of the month.
func (s *Store) Statistics(ctx context.Context, month core.Month) (core.StatisticsSummary, error) {
	where, args := monthFilter(month)
	var stats core.StatisticsSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN sold = 1 THEN price ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sold = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sold = 0 THEN 1 ELSE 0 END), 0)
		FROM transactions
		WHERE `+where, args...).Scan(&stats.TotalSaleAmount, &stats.TotalSoldItems, &stats.TotalNotSoldItems)
	if err != nil {
		return core.StatisticsSummary{}, fmt.Errorf("compute statistics: %w", err)
	}
	stats.TotalSaleAmount = math.Round(stats.TotalSaleAmount*100) / 100
	return stats, nil
}

// BarChart counts the month's items per price range.
func (s *Store) BarChart(ctx context.Context, month core.Month) ([]core.BarChartEntry, error) {
	where, args := monthFilter(month)
	rows, err := s.db.QueryContext(ctx, `SELECT price FROM transactions WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	chart := emptyChart()
	for rows.Next() {
		var price float64
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		chart[bucket(price)].Count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices: %w", err)
	}
	return chart, nil
}

// Combined assembles the full combined-response body. Statistics and chart
// cover the whole month regardless of search and paging.
func (s *Store) Combined(ctx context.Context, q Query) (core.CombinedResponse, error) {
	list, err := s.List(ctx, q)
	if err != nil {
		return core.CombinedResponse{}, err
	}
	stats, err := s.Statistics(ctx, q.Month)
	if err != nil {
		return core.CombinedResponse{}, err
	}
	chart, err := s.BarChart(ctx, q.Month)
	if err != nil {
		return core.CombinedResponse{}, err
	}
	return core.CombinedResponse{ListTransactions: list, Statistics: stats, BarChart: chart}, nil
}

const chartBuckets = 10

func emptyChart() []core.BarChartEntry {
	chart := make([]core.BarChartEntry, chartBuckets)
	for i := range chart {
		switch {
		case i == 0:
			chart[i].Range = "0-100"
		case i == chartBuckets-1:
			chart[i].Range = "901-above"
		default:
			chart[i].Range = fmt.Sprintf("%d-%d", i*100+1, (i+1)*100)
		}
	}
	return chart
}

// bucket maps a price to its chart index: up to 100 is the first range,
// anything above 900 the last.
func bucket(price float64) int {
	i := int(math.Ceil(price/100)) - 1
	if i < 0 {
		return 0
	}
	if i >= chartBuckets {
		return chartBuckets - 1
	}
	return i
}

// fold lowercases text for substring search. Stored and searched text go
// through the same mapping.
func fold(s string) string {
	return strings.ToLower(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
