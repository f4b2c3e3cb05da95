package server

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/usagelog/internal/auth"
	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/eventstore"
	"github.com/loykin/usagelog/internal/transport"
	"github.com/loykin/usagelog/internal/transport/httpsink"
	"github.com/loykin/usagelog/internal/transport/sqlite"
)

// TestStoreToCollectorToSQLite drives a client store through the HTTP sink
// into a collector persisting to SQLite.
func TestStoreToCollectorToSQLite(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := sqlite.New(filepath.Join(t.TempDir(), "collector.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()

	var mu sync.Mutex
	var batches []string
	serverSink := transport.Func(func(ctx context.Context, recs []event.Body) error {
		mu.Lock()
		batches = append(batches, transport.BatchID(ctx))
		mu.Unlock()
		return db.Save(ctx, recs)
	})

	tokens, err := auth.NewTokenService(auth.Config{Secret: "shared"})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewRouter(serverSink, "/api", WithAuth(tokens), WithStrictTypes()).Handler())
	defer srv.Close()

	clientSink, err := httpsink.New(httpsink.Config{
		URL:     srv.URL + "/api/logs",
		Version: "test",
		Token:   tokens.TokenFunc("annotator", ""),
	})
	if err != nil {
		t.Fatal(err)
	}

	store := eventstore.New(clientSink)
	if _, err := store.Open(event.DeleteObject, map[string]any{"count": 2, event.KeyTaskID: 9}); err != nil {
		t.Fatalf("open: %v", err)
	}
	job, err := store.OpenDurable(event.SaveJob, map[string]any{event.KeyJobID: 4})
	if err != nil {
		t.Fatalf("open durable: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := job.Close(map[string]any{"outcome": "ok"}); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("buffer not drained: %d", store.Len())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch at the collector, got %d", len(batches))
	}
	rows, err := db.Query(context.Background(), batches[0])
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Name != "Delete object" || rows[0].TaskID != "9" || rows[0].ClientID != store.SessionID() {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Name != "Save job" || rows[1].JobID != "4" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}
