package server

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/usagelog/internal/auth"
	"github.com/loykin/usagelog/internal/metrics"
	"github.com/loykin/usagelog/internal/transport"
)

const defaultMaxBody = 4 << 20

// Router is the embeddable collector API.
// Endpoints:
//
//	POST {basePath}/logs      body: JSON array of wire records
//	GET  {basePath}/healthz
//	GET  /metrics             only with WithMetrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sink     transport.Sink
	basePath string
	auth     *auth.Middleware
	logger   *slog.Logger
	maxBody  int64
	strict   bool
	metrics  bool
	tls      *tls.Config
}

// Option configures a Router.
type Option func(*Router)

// WithAuth requires a valid bearer token on the logs endpoint.
func WithAuth(tokens *auth.TokenService) Option {
	return func(r *Router) { r.auth = auth.NewMiddleware(tokens) }
}

func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.logger = l } }

// WithMaxBody caps the request body size in bytes.
func WithMaxBody(n int64) Option { return func(r *Router) { r.maxBody = n } }

// WithStrictTypes rejects batches carrying event names this build does not know.
func WithStrictTypes() Option { return func(r *Router) { r.strict = true } }

// WithMetrics serves the Prometheus handler at /metrics.
func WithMetrics() Option { return func(r *Router) { r.metrics = true } }

// WithTLS makes NewServer serve HTTPS with cfg. A nil cfg keeps plain HTTP.
func WithTLS(cfg *tls.Config) Option { return func(r *Router) { r.tls = cfg } }

// NewRouter constructs a collector router saving batches into sink.
// Example basePath: "/api" results in /api/logs and /api/healthz.
func NewRouter(sink transport.Sink, basePath string, opts ...Option) *Router {
	r := &Router{sink: sink, basePath: sanitizeBase(basePath), maxBody: defaultMaxBody}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.auth == nil {
		r.auth = auth.NewMiddleware(nil)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	group.POST("/logs", r.auth.GinAuth(), r.handleLogs)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// With WithTLS it serves HTTPS using the certificates from that config.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		TLSConfig:         r.tls,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("collector server stopped", "addr", addr, "error", err)
		}
	}()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type acceptedResp struct {
	Accepted int    `json:"accepted"`
	BatchID  string `json:"batch_id"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLogs(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, r.maxBody)
	records, err := decodeBatch(c.Request.Body, r.strict)
	if err != nil {
		r.reply(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}

	batch := uuid.NewString()
	if len(records) > 0 {
		ctx := transport.WithBatchID(c.Request.Context(), batch)
		if err := r.sink.Save(ctx, records); err != nil {
			r.logger.Error("failed to store batch", "batch_id", batch, "records", len(records), "error", err)
			r.reply(c, http.StatusBadGateway, errorResp{Error: "failed to store batch"})
			return
		}
	}

	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Name]++
	}
	for name, n := range counts {
		metrics.AddCollectorRecords(name, n)
	}

	attrs := []any{"batch_id", batch, "records", len(records)}
	if res, ok := auth.FromGin(c); ok {
		attrs = append(attrs, "client", res.Subject, "session", res.Session)
	}
	r.logger.Debug("batch stored", attrs...)
	r.reply(c, http.StatusCreated, acceptedResp{Accepted: len(records), BatchID: batch})
}

func (r *Router) reply(c *gin.Context, code int, v any) {
	metrics.IncCollectorBatch(strconv.Itoa(code))
	writeJSON(c, code, v)
}
