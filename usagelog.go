package usagelog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/usagelog/internal/auth"
	cfg "github.com/loykin/usagelog/internal/config"
	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/eventstore"
	"github.com/loykin/usagelog/internal/metrics"
	iapi "github.com/loykin/usagelog/internal/server"
	tlsconf "github.com/loykin/usagelog/internal/tls"
	"github.com/loykin/usagelog/internal/transport"
	"github.com/loykin/usagelog/internal/transport/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Type = event.Type

type Record = event.Record

type Pending = event.Pending

type Body = event.Body

type ClientInfo = event.ClientInfo

type FocusFunc = event.FocusFunc

type ValidationError = event.ValidationError

type TransportError = eventstore.TransportError

type Sink = transport.Sink

type SinkFunc = transport.Func

type Store = eventstore.Store

type Option = eventstore.Option

type Config = cfg.Config

const (
	LoadJob           = event.LoadJob
	SaveJob           = event.SaveJob
	RestoreJob        = event.RestoreJob
	UploadAnnotations = event.UploadAnnotations
	SendUserActivity  = event.SendUserActivity
	SendException     = event.SendException
	SendTaskInfo      = event.SendTaskInfo
	DrawObject        = event.DrawObject
	PasteObject       = event.PasteObject
	CopyObject        = event.CopyObject
	PropagateObject   = event.PropagateObject
	DragObject        = event.DragObject
	ResizeObject      = event.ResizeObject
	DeleteObject      = event.DeleteObject
	LockObject        = event.LockObject
	MergeObjects      = event.MergeObjects
	ChangeAttribute   = event.ChangeAttribute
	ChangeLabel       = event.ChangeLabel
	ChangeFrame       = event.ChangeFrame
	MoveImage         = event.MoveImage
	ZoomImage         = event.ZoomImage
	FitImage          = event.FitImage
	RotateImage       = event.RotateImage
	UndoAction        = event.UndoAction
	RedoAction        = event.RedoAction
	PressShortcut     = event.PressShortcut
	DebugInfo         = event.DebugInfo
)

var (
	ErrNotSerializable = event.ErrNotSerializable
	ErrUnknownType     = event.ErrUnknownType
	ErrInvalidField    = event.ErrInvalidField
	ErrAlreadyClosed   = event.ErrAlreadyClosed
	ErrStoreClosed     = eventstore.ErrStoreClosed
)

// Types lists every known event type.
func Types() []Type { return event.Types() }

// Rule describes the payload rule applied to t.
func Rule(t Type) string { return event.Rule(t) }

// New creates an event store flushing into sink.
func New(sink Sink, opts ...Option) *Store { return eventstore.New(sink, opts...) }

func WithClock(clock func() time.Time) Option { return eventstore.WithClock(clock) }
func WithFocus(f FocusFunc) Option            { return eventstore.WithFocus(f) }
func WithClient(c ClientInfo) Option          { return eventstore.WithClient(c) }
func WithLogger(l *slog.Logger) Option        { return eventstore.WithLogger(l) }
func WithFlushTimeout(d time.Duration) Option { return eventstore.WithFlushTimeout(d) }

// NewMemorySink returns an in-process sink, useful for tests and dry runs.
func NewMemorySink() *transport.Memory { return transport.NewMemory() }

// NewSinkFromDSN builds a sink from a DSN (http(s)://, clickhouse://,
// opensearch://, postgres://, sqlite://, memory:// or a file path).
func NewSinkFromDSN(dsn string) (Sink, error) {
	return factory.NewSinkFromDSN(dsn, factory.Options{})
}

// NewFromConfig wires a store from the [client] section: the sink, the
// client description with the detected host system, collector tokens when
// a secret is set, and the flush schedule when one is given.
func NewFromConfig(c cfg.ClientConfig, log *slog.Logger, focus FocusFunc) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	var token func() (string, error)
	var tokens *auth.TokenService
	if c.JWTSecret != "" {
		var err error
		tokens, err = auth.NewTokenService(auth.Config{Secret: c.JWTSecret, TokenTTL: c.TokenTTL})
		if err != nil {
			return nil, err
		}
	}

	// the token's session claim is the store's session id, known only
	// after construction
	var store *Store
	if tokens != nil {
		token = func() (string, error) {
			return tokens.TokenFunc(c.App, store.SessionID())()
		}
	}
	sink, err := factory.NewSinkFromDSN(c.Sink, factory.Options{Version: c.Version, Token: token, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("client sink: %w", err)
	}

	store = eventstore.New(sink,
		eventstore.WithLogger(log),
		eventstore.WithFocus(focus),
		eventstore.WithFlushTimeout(c.FlushTimeout),
		eventstore.WithClient(event.ClientInfo{
			Name:    c.App,
			Version: c.Version,
			System:  eventstore.DetectSystem(),
		}),
	)
	if c.FlushSchedule != "" {
		if err := store.StartSchedule(c.FlushSchedule); err != nil {
			_ = store.Shutdown(context.Background())
			return nil, err
		}
	}
	return store, nil
}

type storeKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store set by NewContext.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	return s, ok && s != nil
}

// Log records a non-durable event on the store carried by ctx. Without a
// store it does nothing and returns nil.
func Log(ctx context.Context, t Type, payload map[string]any) error {
	s, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	_, err := s.Open(t, payload)
	return err
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

type CollectorOption = iapi.Option

// WithCollectorAuth requires HS256 bearer tokens signed with secret.
func WithCollectorAuth(secret string) (CollectorOption, error) {
	tokens, err := auth.NewTokenService(auth.Config{Secret: secret})
	if err != nil {
		return nil, err
	}
	return iapi.WithAuth(tokens), nil
}

func WithCollectorLogger(l *slog.Logger) CollectorOption { return iapi.WithLogger(l) }
func WithCollectorStrictTypes() CollectorOption         { return iapi.WithStrictTypes() }
func WithCollectorMetrics() CollectorOption             { return iapi.WithMetrics() }

// TLSConfig is the [server.tls] config section.
type TLSConfig = tlsconf.Config

// WithCollectorTLS makes NewCollectorServer serve HTTPS. A disabled config
// yields an option that leaves the server on plain HTTP.
func WithCollectorTLS(c TLSConfig) (CollectorOption, error) {
	tc, err := tlsconf.ServerConfig(c)
	if err != nil {
		return nil, err
	}
	return iapi.WithTLS(tc), nil
}

// NewCollectorHandler returns the collector API as an http.Handler for
// mounting into another server.
func NewCollectorHandler(sink Sink, basePath string, opts ...CollectorOption) http.Handler {
	return iapi.NewRouter(sink, basePath, opts...).Handler()
}

// NewCollectorServer starts the collector on addr.
func NewCollectorServer(addr, basePath string, sink Sink, opts ...CollectorOption) *http.Server {
	return iapi.NewServer(addr, iapi.NewRouter(sink, basePath, opts...))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
