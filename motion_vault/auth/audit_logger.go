package auth

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// AuditLogger writes one JSON line per request after it completes. Principal
// identity is not known at this layer since tokens travel in request bodies,
// so only transport facts are recorded.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) AuditLogger {
	return AuditLogger{logger: slog.New(slog.NewJSONHandler(stream, nil))}
}

func clientIp(r *http.Request) string {
	for _, header := range []string{"X-Real-Ip", "X-Forwarded-For"} {
		if ip := r.Header.Get(header); ip != "" {
			return ip
		}
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.logger.Info("request",
			"request_id", uuid.NewString(),
			"client_ip", clientIp(r),
			"method", r.Method,
			"url", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
