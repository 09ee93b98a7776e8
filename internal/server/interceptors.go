package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// ErrPanicRecovered indicates an admin HTTP handler panicked and was
// recovered.
var ErrPanicRecovered = errors.New("panic recovered in admin handler")

// statusRecorder wraps a ResponseWriter to capture the status code
// written for logging purposes.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs every admin request with its method, path,
// status, and duration. Log level is Info for 2xx/3xx responses and
// Warn otherwise.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
			}

			if rec.status >= 400 {
				logger.LogAttrs(r.Context(), slog.LevelWarn, "admin request completed with error", attrs...)
			} else {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "admin request completed", attrs...)
			}
		})
	}
}

// RecoveryMiddleware recovers from panics in admin handlers, logging the
// panic value and a stack trace at Error level and returning a 500.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)

					logger.ErrorContext(r.Context(), "panic recovered in admin handler",
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec),
						slog.String("stack", string(buf[:n])),
					)

					http.Error(w, fmt.Errorf("%s: %w", r.URL.Path, ErrPanicRecovered).Error(),
						http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
