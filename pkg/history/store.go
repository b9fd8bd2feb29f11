// Package history persists analyzed change records per document.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chainscribe/chainscribe/pkg/models"
)

// ErrNotFound is returned when a change record does not exist.
var ErrNotFound = errors.New("change record not found")

// Store is a SQLite-backed change history.
type Store struct {
	db *sql.DB
}

const createChangesTable = `
CREATE TABLE IF NOT EXISTS change_records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	change_type TEXT NOT NULL,
	summary TEXT NOT NULL,
	requires_ai INTEGER NOT NULL,
	additions INTEGER NOT NULL DEFAULT 0,
	deletions INTEGER NOT NULL DEFAULT 0,
	author TEXT,
	proof TEXT,
	model_id TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_document ON change_records(document_id, seq);
`

const selectColumns = `id, document_id, change_type, summary, requires_ai, additions, deletions,
	author, proof, model_id, created_at`

// New opens the history database and creates the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(createChangesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Append stores a change record.
func (s *Store) Append(ctx context.Context, rec models.ChangeRecord) error {
	requiresAI := 0
	if rec.RequiresAI {
		requiresAI = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO change_records (id, document_id, change_type, summary, requires_ai,
		 additions, deletions, author, proof, model_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DocumentID, string(rec.ChangeType), rec.Summary, requiresAI,
		rec.Additions, rec.Deletions, rec.Author, rec.Proof, rec.ModelID, rec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

// List returns a document's change records, newest first. A non-positive
// limit defaults to 50.
func (s *Store) List(ctx context.Context, documentID string, limit int) ([]models.ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM change_records WHERE document_id = ? ORDER BY seq DESC LIMIT ?`,
		documentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []models.ChangeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns a single change record.
func (s *Store) Get(ctx context.Context, id string) (models.ChangeRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM change_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChangeRecord{}, ErrNotFound
	}
	return rec, err
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (models.ChangeRecord, error) {
	var (
		rec                  models.ChangeRecord
		changeType           string
		requiresAI           int
		author, proof, model sql.NullString
		createdAt            int64
	)
	err := sc.Scan(&rec.ID, &rec.DocumentID, &changeType, &rec.Summary, &requiresAI,
		&rec.Additions, &rec.Deletions, &author, &proof, &model, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan change: %w", err)
	}
	rec.ChangeType = models.ChangeType(changeType)
	rec.RequiresAI = requiresAI != 0
	rec.Author = author.String
	rec.Proof = proof.String
	rec.ModelID = model.String
	rec.Timestamp = time.UnixMilli(createdAt).UTC()
	return rec, nil
}
