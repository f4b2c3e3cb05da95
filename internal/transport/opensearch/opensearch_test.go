package opensearch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/transport"
)

func TestSink_Bulk(t *testing.T) {
	var lines []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/_bulk" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-ndjson" {
			t.Fatalf("unexpected content type %q", ct)
		}
		b, _ := io.ReadAll(r.Body)
		sc := bufio.NewScanner(bytes.NewReader(b))
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		_, _ = w.Write([]byte(`{"took":1,"errors":false,"items":[]}`))
	}))
	defer ts.Close()

	sink := New(ts.URL, "idx")
	ctx := transport.WithBatchID(context.Background(), "b-1")
	err := sink.Save(ctx, []event.Body{
		{Name: "Zoom image", Time: "2024-03-01T12:00:00.000Z", ClientID: "000001", Payload: map[string]any{"a": 1}},
		{Name: "Fit image", Time: "2024-03-01T12:00:01.000Z", Payload: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 ndjson lines, got %d: %v", len(lines), lines)
	}
	var action map[string]map[string]string
	if err := json.Unmarshal([]byte(lines[0]), &action); err != nil || action["index"]["_index"] != "idx" {
		t.Fatalf("bad action line: %s", lines[0])
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &doc); err != nil {
		t.Fatalf("invalid doc json: %v", err)
	}
	if doc["name"] != "Zoom image" || doc["batch_id"] != "b-1" || doc["client_id"] != "000001" {
		t.Fatalf("unexpected doc: %v", doc)
	}
}

func TestSink_BulkItemErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":true}`))
	}))
	defer ts.Close()

	if err := New(ts.URL, "idx").Save(context.Background(), []event.Body{{Name: "a", Time: "t"}}); err == nil {
		t.Fatalf("expected error when bulk response reports errors")
	}
}

func TestSink_Status(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	if err := New(ts.URL, "idx").Save(context.Background(), []event.Body{{Name: "a"}}); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestSink_EmptyBatchSkipsRequest(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer ts.Close()

	if err := New(ts.URL, "idx").Save(context.Background(), nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if called {
		t.Fatalf("empty batch must not hit the server")
	}
}
