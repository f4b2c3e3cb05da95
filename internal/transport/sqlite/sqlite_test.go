package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/transport"
)

func sampleBatch() []event.Body {
	focused := false
	return []event.Body{
		{Name: "Load job", Time: "2024-03-01T12:00:00.000Z", ClientID: "004242", JobID: 12, Payload: map[string]any{"duration": 1500}},
		{Name: "Zoom image", Time: "2024-03-01T12:00:02.000Z", IsActive: &focused, Payload: map[string]any{}},
	}
}

func TestSQLiteSink_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := transport.WithBatchID(context.Background(), "b-1")
	if err := sink.Save(ctx, sampleBatch()); err != nil {
		t.Fatalf("Failed to save batch: %v", err)
	}

	rows, err := sink.Query(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Name != "Load job" || rows[0].ClientID != "004242" || rows[0].JobID != "12" || rows[0].Seq != 0 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[0].IsActive != nil {
		t.Fatalf("is_active must be NULL when unknown")
	}
	if rows[1].IsActive == nil || *rows[1].IsActive {
		t.Fatalf("is_active=false lost: %+v", rows[1])
	}
	if rows[0].Payload != `{"duration":1500}` {
		t.Fatalf("unexpected payload: %s", rows[0].Payload)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	if err := sink.Save(ctx, sampleBatch()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := sink.Save(ctx, sampleBatch()[:1]); err != nil {
		t.Fatalf("save: %v", err)
	}
	rows, err := sink.Query(ctx, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].BatchID == rows[2].BatchID {
		t.Fatalf("each save without a batch id must get its own")
	}
}

func TestSQLiteSink_EmptyBatch(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.Save(context.Background(), nil); err != nil {
		t.Fatalf("empty save: %v", err)
	}
}

func TestSQLiteSink_RejectsBadTime(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sink.Close() }()
	err = sink.Save(context.Background(), []event.Body{{Name: "x", Time: "not-a-time"}})
	if err == nil {
		t.Fatalf("expected error for bad time")
	}
	rows, _ := sink.Query(context.Background(), "")
	if len(rows) != 0 {
		t.Fatalf("no rows may be written for a rejected batch")
	}
}

func TestNew_EmptyDSN(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
