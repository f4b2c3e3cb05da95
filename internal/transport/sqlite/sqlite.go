package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/transport"
)

// Sink writes batches to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a SQLite sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// each new connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage_logs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			time TIMESTAMP NOT NULL,
			is_active BOOLEAN NULL,
			client_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_logs_name ON usage_logs(name);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Save(ctx context.Context, records []event.Body) error {
	if len(records) == 0 {
		return nil
	}
	rows, err := transport.Rows(ctx, records)
	if err != nil {
		return fmt.Errorf("sqlite sink: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rows {
		var active any
		if r.IsActive != nil {
			active = *r.IsActive
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO usage_logs(batch_id, seq, name, time, is_active, client_id, job_id, task_id, payload)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			r.BatchID, r.Seq, r.Name, r.Time, active, r.ClientID, r.JobID, r.TaskID, r.Payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query returns stored rows in insertion order, optionally filtered by batch.
func (s *Sink) Query(ctx context.Context, batchID string) ([]transport.Row, error) {
	q := `SELECT batch_id, seq, name, time, is_active, client_id, job_id, task_id, payload FROM usage_logs`
	var args []any
	if batchID != "" {
		q += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	q += ` ORDER BY id`

	rs, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rs.Close() }()

	var out []transport.Row
	for rs.Next() {
		var (
			r      transport.Row
			active sql.NullBool
		)
		if err := rs.Scan(&r.BatchID, &r.Seq, &r.Name, &r.Time, &active, &r.ClientID, &r.JobID, &r.TaskID, &r.Payload); err != nil {
			return nil, err
		}
		if active.Valid {
			v := active.Bool
			r.IsActive = &v
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
