package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/transport"
)

// Options selects the server and table. Empty fields fall back to the
// ClickHouse defaults.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// Sink inserts batches with the native protocol, one block per Save.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(opts Options) (*Sink, error) {
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	if opts.Table == "" {
		opts.Table = "usage_logs"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: opts.Table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			batch_id String,
			seq UInt32,
			name LowCardinality(String),
			time DateTime64(3),
			is_active Nullable(Bool),
			client_id String,
			job_id String,
			task_id String,
			payload String
		) ENGINE = MergeTree()
		ORDER BY (time, batch_id, seq)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Save(ctx context.Context, records []event.Body) error {
	if len(records) == 0 {
		return nil
	}
	rows, err := transport.Rows(ctx, records)
	if err != nil {
		return fmt.Errorf("clickhouse sink: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (batch_id, seq, name, time, is_active, client_id, job_id, task_id, payload)", s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare ClickHouse batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(
			r.BatchID,
			uint32(r.Seq),
			r.Name,
			r.Time,
			r.IsActive,
			r.ClientID,
			r.JobID,
			r.TaskID,
			r.Payload,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append row to ClickHouse batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert batch into ClickHouse: %w", err)
	}
	return nil
}
