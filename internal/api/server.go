// Package api exposes the ingestion pipeline, upload sessions, completion
// toggle and master-data sync over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/ingest"
	"github.com/sells-group/emla-tracker/internal/mastersync"
	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/result"
	"github.com/sells-group/emla-tracker/internal/store"
	"github.com/sells-group/emla-tracker/internal/uploadsession"
)

// Processor runs one upload batch.
type Processor interface {
	Process(ctx context.Context, in ingest.Input) (*result.UploadResult, error)
}

// Sessions accumulates batch results of one logical upload.
type Sessions interface {
	Start(ctx context.Context, expectedBatches int) (string, error)
	Exists(ctx context.Context, id string) (bool, error)
	Append(ctx context.Context, id string, res *result.UploadResult) (int, error)
	Get(ctx context.Context, id string) (*uploadsession.Summary, error)
}

// Customers is the read and completion side of the customer store.
type Customers interface {
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	ListCustomers(ctx context.Context, filter store.CustomerFilter) ([]model.Customer, error)
	SetCompleted(ctx context.Context, ids []string, day time.Time) (int, error)
	Ping(ctx context.Context) error
}

// Syncer runs one master-data sync.
type Syncer interface {
	Run(ctx context.Context) (*mastersync.Result, error)
}

// Deps are the collaborators of a Server. Sessions and Sync are optional; the
// routes that need them answer 503 when they are nil.
type Deps struct {
	Pipeline  Processor
	Sessions  Sessions
	Customers Customers
	Sync      Syncer
}

// Options configures the router.
type Options struct {
	MaxBodyBytes int64
	CORSOrigins  []string
}

// Server holds the handlers.
type Server struct {
	deps Deps
	now  func() time.Time
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps, now: time.Now}
}

// Router builds the chi router with middleware and all routes mounted.
func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	if opts.MaxBodyBytes > 0 {
		r.Use(limitBody(opts.MaxBodyBytes))
	}

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", s.upload)

		r.Route("/upload-sessions", func(r chi.Router) {
			r.Post("/", s.startSession)
			r.Get("/{id}", s.getSession)
			r.Post("/{id}/batches", s.appendBatch)
			r.Get("/{id}/failed-rows.csv", s.sessionFailedRows)
		})

		r.Get("/customers", s.listCustomers)
		r.Get("/customers/{id}", s.getCustomer)
		r.Post("/customers/complete", s.completeCustomers)

		r.Post("/sync", s.runSync)
	})

	return r
}

func limitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		zap.L().Info("http request",
			zap.String("component", "api"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Customers != nil {
		if err := s.deps.Customers.Ping(r.Context()); err != nil {
			zap.L().Warn("api: health check store ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
