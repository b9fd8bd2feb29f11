// Package audit records every AI invocation in a dedicated SQLite database.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chainscribe/chainscribe/pkg/models"
)

// Logger writes and queries audit entries.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	logger  *slog.Logger
	now     func() time.Time
	done    chan struct{}
	wg      sync.WaitGroup
	pending sync.WaitGroup
	include map[string]bool
	exclude map[string]bool
}

// New opens the audit SQLite database, creates the schema and starts the
// hourly retention loop.
func New(cfg models.AuditConfig, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}
	exc := make(map[string]bool)
	for _, v := range cfg.ExcludeModels {
		exc[v] = true
	}

	l := &Logger{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		done:    make(chan struct{}),
		include: inc,
		exclude: exc,
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		request_id  TEXT PRIMARY KEY,
		model       TEXT NOT NULL,
		provider    TEXT,
		prompt      TEXT,
		output      TEXT,
		proof       TEXT,
		success     INTEGER NOT NULL,
		error       TEXT,
		prompt_len  INTEGER NOT NULL DEFAULT 0,
		output_len  INTEGER NOT NULL DEFAULT 0,
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_model ON audit_log(model)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	return err
}

// Log inserts an audit entry, respecting include/exclude configuration.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if l.exclude[entry.Model] {
		return nil
	}

	prompt := entry.Prompt
	output := entry.Output
	if !l.include["prompts"] {
		prompt = ""
	}
	if !l.include["responses"] {
		output = ""
	}
	if l.cfg.MaxBodySize > 0 {
		prompt = truncate(prompt, l.cfg.MaxBodySize)
		output = truncate(output, l.cfg.MaxBodySize)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(request_id, model, provider, prompt, output, proof, success, error,
		 prompt_len, output_len, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Model, entry.Provider, prompt, output, entry.Proof,
		boolToInt(entry.Success), entry.Error,
		entry.PromptLen, entry.OutputLen, entry.LatencyMs, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	return nil
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, model, provider, prompt, output, proof, success, error,
		prompt_len, output_len, latency_ms, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Model != "" {
		q += " AND model = ?"
		args = append(args, opts.Model)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.FailedOnly {
		q += " AND success = 0"
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var provider, prompt, output, proof, errMsg sql.NullString
		var success int
		var createdAt int64
		if err := rows.Scan(
			&e.RequestID, &e.Model, &provider, &prompt, &output, &proof, &success, &errMsg,
			&e.PromptLen, &e.OutputLen, &e.LatencyMs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Provider = provider.String
		e.Prompt = prompt.String
		e.Output = output.String
		e.Proof = proof.String
		e.Error = errMsg.String
		e.Success = success != 0
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts grouped by model and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT model, date(created_at / 1000, 'unixepoch') AS day,
		        COUNT(*) AS cnt, SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) AS failures
		 FROM audit_log GROUP BY model, day ORDER BY day DESC, model`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Model, &day, &s.Count, &s.Failures); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Prune deletes entries older than the configured retention period.
func (l *Logger) Prune(ctx context.Context) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("audit prune: %w", err)
	}
	return res.RowsAffected()
}

// Flush waits for asynchronous writes issued through Wrap.
func (l *Logger) Flush() {
	l.pending.Wait()
}

// Close stops the retention goroutine, drains pending writes and closes the
// database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	l.pending.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if n, err := l.Prune(context.Background()); err != nil {
				l.logger.Error("audit prune failed", "error", err)
			} else if n > 0 {
				l.logger.Info("audit entries pruned", "count", n)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
