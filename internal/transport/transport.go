package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/usagelog/internal/event"
)

// Sink persists one flushed batch of wire records.
// Implementations must be safe for concurrent use.
type Sink interface {
	Save(ctx context.Context, records []event.Body) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, records []event.Body) error

func (f Func) Save(ctx context.Context, records []event.Body) error { return f(ctx, records) }

type batchKey struct{}

// WithBatchID tags ctx with the id sinks store next to each row of the batch.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchKey{}, id)
}

// BatchID returns the id set by WithBatchID or a fresh UUID.
func BatchID(ctx context.Context) string {
	if id, ok := ctx.Value(batchKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Row is the flattened form of a wire record used by the table-based sinks.
type Row struct {
	BatchID  string
	Seq      int
	Name     string
	Time     time.Time
	IsActive *bool
	ClientID string
	JobID    string
	TaskID   string
	Payload  string
	Body     string
}

// Rows flattens a batch. Seq keeps the flush order inside the batch.
func Rows(ctx context.Context, records []event.Body) ([]Row, error) {
	batch := BatchID(ctx)
	out := make([]Row, 0, len(records))
	for i, r := range records {
		ts, err := ParseTime(r.Time)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("record %d payload: %w", i, err)
		}
		body, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("record %d body: %w", i, err)
		}
		out = append(out, Row{
			BatchID:  batch,
			Seq:      i,
			Name:     r.Name,
			Time:     ts,
			IsActive: r.IsActive,
			ClientID: idString(r.ClientID),
			JobID:    idString(r.JobID),
			TaskID:   idString(r.TaskID),
			Payload:  string(payload),
			Body:     string(body),
		})
	}
	return out, nil
}

// ParseTime accepts the wire layout and any RFC 3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(event.TimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		// numbers decoded by encoding/json
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// Memory keeps every saved batch in memory. It is used by tests and by the
// CLI's dry-run mode.
type Memory struct {
	mu      sync.Mutex
	batches [][]event.Body
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(_ context.Context, records []event.Body) error {
	cp := make([]event.Body, len(records))
	copy(cp, records)
	m.mu.Lock()
	m.batches = append(m.batches, cp)
	m.mu.Unlock()
	return nil
}

// Batches returns the saved batches in save order.
func (m *Memory) Batches() [][]event.Body {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]event.Body, len(m.batches))
	copy(out, m.batches)
	return out
}

// Records returns every saved record across batches.
func (m *Memory) Records() []event.Body {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Body
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}
