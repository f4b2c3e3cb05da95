package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/transport"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// decodeBatch reads a JSON array of wire records. Numbers are kept as
// json.Number so ids and counts reach the sink unchanged.
func decodeBatch(r io.Reader, strict bool) ([]event.Body, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, errors.New("invalid JSON: body must be an array of records")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []event.Body
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid JSON: trailing data after array")
	}

	for i, rec := range records {
		if rec.Name == "" {
			return nil, fmt.Errorf("record %d: name required", i)
		}
		if rec.Time == "" {
			return nil, fmt.Errorf("record %d: time required", i)
		}
		if _, err := transport.ParseTime(rec.Time); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if strict && !event.Known(event.Type(rec.Name)) {
			return nil, fmt.Errorf("record %d: %w %q", i, event.ErrUnknownType, rec.Name)
		}
		if rec.Payload == nil {
			records[i].Payload = map[string]any{}
		}
	}
	return records, nil
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
