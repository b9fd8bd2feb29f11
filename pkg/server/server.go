// Package server exposes the ChainScribe HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chainscribe/chainscribe/pkg/config"
	"github.com/chainscribe/chainscribe/pkg/models"
)

// Analyzer runs direct document analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error)
}

// ChangeAnalyzer classifies an edit between two snapshots.
type ChangeAnalyzer interface {
	Analyze(ctx context.Context, req models.ChangeRequest) (models.ChangeRecord, error)
}

// History persists and lists change records.
type History interface {
	Append(ctx context.Context, rec models.ChangeRecord) error
	List(ctx context.Context, documentID string, limit int) ([]models.ChangeRecord, error)
}

// Ledger is the cost ledger surface used by the cost endpoints.
type Ledger interface {
	DailyReport() models.DailyReport
	ResetDailyUsage(ctx context.Context) error
}

// UsageHistory reports journaled per-day usage.
type UsageHistory interface {
	Days(ctx context.Context, since time.Time) ([]models.UsageDay, error)
}

// ContentStore is a content-addressed blob store.
type ContentStore interface {
	Upload(ctx context.Context, data []byte, tags map[string]string) (models.StoredContent, error)
	Download(ctx context.Context, hash string) ([]byte, error)
}

// Deps are the components served by the API. Ledger is required; a nil
// optional component disables its routes with 503.
type Deps struct {
	Ledger   Ledger
	Analyzer Analyzer
	Changes  ChangeAnalyzer
	History  History
	Usage    UsageHistory
	Storage  ContentStore
}

// Server is the ChainScribe HTTP API server.
type Server struct {
	cfg     *config.Config
	deps    Deps
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
	now     func() time.Time
}

// New creates a Server with its routes and middleware installed.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/analyze-changes", s.handleAnalyzeChanges)
	s.mux.HandleFunc("GET /api/documents/{id}/changes", s.handleDocumentChanges)
	s.mux.HandleFunc("GET /api/cost/usage", s.handleCostUsage)
	s.mux.HandleFunc("GET /api/cost/history", s.handleCostHistory)
	s.mux.Handle("POST /api/cost/reset", s.adminOnly(http.HandlerFunc(s.handleCostReset)))
	s.mux.HandleFunc("POST /api/storage/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/storage/{contentHash}", s.handleDownload)
	s.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, errTypeNotFound, "endpoint not found")
	})

	s.handler = RequestID(RequestLogger(logger)(s.mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("chainscribe listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
