// Package usage persists the cost ledger's admitted requests in SQLite.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chainscribe/chainscribe/pkg/models"
)

// Journal is a SQLite-backed write-through log of ledger entries. Entries are
// never deleted; a reset marks them archived.
type Journal struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	accounting_day TEXT NOT NULL,
	model_key TEXT NOT NULL,
	cost REAL NOT NULL,
	input_length INTEGER NOT NULL,
	output_length INTEGER NOT NULL,
	archived INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_day ON usage_entries(accounting_day, archived);
`

// New opens the journal database and runs auto-migration.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	// Other stores share this file; WAL and the busy timeout let their writers
	// queue behind each other instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage db: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append stores an entry under its accounting day and returns its row ID.
func (j *Journal) Append(ctx context.Context, day string, e models.UsageEntry) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO usage_entries (accounting_day, model_key, cost, input_length, output_length, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		day, e.ModelKey, e.Cost, e.InputLength, e.OutputLength, e.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("append usage: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append usage: %w", err)
	}
	return id, nil
}

// Archive marks every pending entry with an accounting day <= day as archived.
func (j *Journal) Archive(ctx context.Context, day string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE usage_entries SET archived = 1 WHERE archived = 0 AND accounting_day <= ?`, day)
	if err != nil {
		return fmt.Errorf("archive usage: %w", err)
	}
	return nil
}

// Pending returns the unarchived entries of a day in insertion order.
func (j *Journal) Pending(ctx context.Context, day string) ([]models.UsageEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, model_key, cost, input_length, output_length, created_at
		 FROM usage_entries WHERE accounting_day = ? AND archived = 0 ORDER BY id ASC`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending usage: %w", err)
	}
	defer rows.Close()

	var entries []models.UsageEntry
	for rows.Next() {
		var e models.UsageEntry
		if err := rows.Scan(&e.ID, &e.ModelKey, &e.Cost, &e.InputLength, &e.OutputLength, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Days returns per-day, per-model totals for accounting days on or after
// since, newest first. Archived and pending entries are reported separately.
func (j *Journal) Days(ctx context.Context, since time.Time) ([]models.UsageDay, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT accounting_day, model_key, archived, COUNT(*), SUM(input_length), SUM(output_length), SUM(cost)
		 FROM usage_entries WHERE accounting_day >= ?
		 GROUP BY accounting_day, model_key, archived
		 ORDER BY accounting_day DESC, model_key ASC, archived ASC`,
		since.Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("usage days: %w", err)
	}
	defer rows.Close()

	var days []models.UsageDay
	for rows.Next() {
		var d models.UsageDay
		var archived int
		if err := rows.Scan(&d.Day, &d.ModelKey, &archived, &d.RequestCount, &d.InputLength, &d.OutputLength, &d.TotalCost); err != nil {
			return nil, fmt.Errorf("scan usage day: %w", err)
		}
		d.Archived = archived != 0
		days = append(days, d)
	}
	return days, rows.Err()
}

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
