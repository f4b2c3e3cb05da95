package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/transport"
)

// Sink indexes records into OpenSearch with the _bulk API.
// Each document is the wire record plus batch_id.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

type document struct {
	event.Body
	BatchID string `json:"batch_id"`
	Seq     int    `json:"seq"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
}

func (s *Sink) Save(ctx context.Context, records []event.Body) error {
	if len(records) == 0 {
		return nil
	}
	batch := transport.BatchID(ctx)

	var buf bytes.Buffer
	action, _ := json.Marshal(map[string]any{"index": map[string]string{"_index": s.index}})
	for i, r := range records {
		doc, err := json.Marshal(document{Body: r, BatchID: batch, Seq: i})
		if err != nil {
			return fmt.Errorf("opensearch sink: record %d: %w", i, err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/_bulk", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	var br bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return fmt.Errorf("opensearch sink: decode bulk response: %w", err)
	}
	if br.Errors {
		return errors.New("opensearch sink: bulk request reported item errors")
	}
	return nil
}
