package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chainscribe/chainscribe/pkg/auth"
	"github.com/chainscribe/chainscribe/pkg/requestid"
)

// RequestID propagates the X-Request-ID header into the request context,
// generating one when absent.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestid.Header)
		if id == "" {
			id = requestid.New()
		}
		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(requestid.With(r.Context(), id)))
	})
}

// RequestLogger logs HTTP requests with timing information.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestid.From(r.Context()),
			)
		})
	}
}

// adminOnly requires "Authorization: Bearer <token>" matching the configured
// argon2id hash. Without a configured hash the route is disabled.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := s.cfg.Admin.TokenHash
		if hash == "" {
			writeJSONError(w, http.StatusForbidden, errTypeForbidden, "admin token not configured")
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSONError(w, http.StatusUnauthorized, errTypeUnauthorized, "missing admin token")
			return
		}

		valid, err := auth.VerifyToken(token, hash)
		if err != nil {
			s.logger.Error("admin token hash invalid", "error", err)
			writeJSONError(w, http.StatusInternalServerError, errTypeInternal, "admin token check failed")
			return
		}
		if !valid {
			writeJSONError(w, http.StatusUnauthorized, errTypeUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
