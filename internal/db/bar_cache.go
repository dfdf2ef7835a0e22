package db

import (
	"time"

	"folio-optimizer/internal/alpaca"
)

// GetDailyCloses returns cached closes for ticker covering dates from
// `from` onward. Misses when the entry is stale or was fetched with a
// later start date than the caller now needs.
func (d *DB) GetDailyCloses(ticker, from string) ([]alpaca.DailyClose, bool) {
	var fromDate, updatedAt string
	err := d.sql.QueryRow(
		"SELECT from_date, updated_at FROM daily_closes_meta WHERE ticker=?",
		ticker,
	).Scan(&fromDate, &updatedAt)
	if err != nil {
		return nil, false
	}
	if fromDate > from {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil || time.Since(t) > d.ttl {
		return nil, false
	}

	rows, err := d.sql.Query(
		"SELECT date, close FROM daily_closes WHERE ticker=? AND date>=? ORDER BY date",
		ticker, from,
	)
	if err != nil {
		return nil, false
	}
	defer rows.Close()

	var closes []alpaca.DailyClose
	for rows.Next() {
		var c alpaca.DailyClose
		if err := rows.Scan(&c.Date, &c.Close); err != nil {
			continue
		}
		closes = append(closes, c)
	}
	if len(closes) == 0 {
		return nil, false
	}
	return closes, true
}

// SetDailyCloses replaces the cached closes for ticker.
func (d *DB) SetDailyCloses(ticker, from string, closes []alpaca.DailyClose) {
	tx, err := d.sql.Begin()
	if err != nil {
		return
	}
	defer tx.Rollback()

	tx.Exec("DELETE FROM daily_closes WHERE ticker=?", ticker)

	stmt, err := tx.Prepare("INSERT INTO daily_closes (ticker, date, close) VALUES (?,?,?)")
	if err != nil {
		return
	}
	defer stmt.Close()

	for _, c := range closes {
		stmt.Exec(ticker, c.Date, c.Close)
	}

	tx.Exec(
		"INSERT OR REPLACE INTO daily_closes_meta (ticker, from_date, updated_at) VALUES (?,?,?)",
		ticker, from, time.Now().UTC().Format(time.RFC3339),
	)

	tx.Commit()
}
