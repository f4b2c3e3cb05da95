package httpsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/usagelog/internal/event"
)

const defaultTimeout = 10 * time.Second

// HTTPClient is satisfied by *http.Client and by test doubles.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config describes the collector endpoint.
type Config struct {
	URL     string
	Timeout time.Duration
	Version string
	// Token returns a bearer token per request; nil disables the header.
	Token  func() (string, error)
	Client HTTPClient
	Logger *slog.Logger
}

// Sink POSTs each batch as a JSON array to a collector.
type Sink struct {
	url     string
	timeout time.Duration
	agent   string
	token   func() (string, error)
	client  HTTPClient
	logger  *slog.Logger
}

func New(cfg Config) (*Sink, error) {
	u := strings.TrimSpace(cfg.URL)
	if u == "" {
		return nil, errors.New("empty collector URL")
	}
	s := &Sink{
		url:     u,
		timeout: cfg.Timeout,
		token:   cfg.Token,
		client:  cfg.Client,
		logger:  cfg.Logger,
		agent:   "usagelog/" + cfg.Version,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if cfg.Version == "" {
		s.agent = "usagelog/dev"
	}
	return s, nil
}

// URL returns the collector endpoint.
func (s *Sink) URL() string { return s.url }

func (s *Sink) Save(ctx context.Context, records []event.Body) error {
	if records == nil {
		records = []event.Body{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.agent)
	if s.token != nil {
		tok, err := s.token()
		if err != nil {
			return fmt.Errorf("failed to issue collector token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	s.logger.Debug("sending batch to collector", "url", s.url, "records", len(records), "payload_size", len(data))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("collector request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.logger.Debug("collector error response",
			"status_code", resp.StatusCode,
			"content_type", resp.Header.Get("Content-Type"),
			"response_body", string(body),
		)
		return fmt.Errorf("collector responded with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
