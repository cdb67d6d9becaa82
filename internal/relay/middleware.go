package relay

import (
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OriginAllowed reports whether origin matches one of the glob patterns,
// e.g. "chrome-extension://*".
func OriginAllowed(patterns []string, origin string) bool {
	for _, p := range patterns {
		if p == "*" || p == origin {
			return true
		}
		if ok, err := path.Match(p, origin); err == nil && ok {
			return true
		}
	}
	return false
}

// CheckOrigin returns a websocket origin check for patterns. Requests without
// an Origin header come from non-browser clients and are accepted.
func CheckOrigin(patterns []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || OriginAllowed(patterns, origin)
	}
}

// corsMiddleware answers CORS for allowed origins only.
func corsMiddleware(patterns []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && OriginAllowed(patterns, origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
			}
			if r.Method == http.MethodOptions {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs each request once it completes. Polling endpoints log at
// debug level.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := zapcore.InfoLevel
			if r.Method == http.MethodGet && r.URL.Path == "/v1/status" {
				level = zapcore.DebugLevel
			}
			if ww.Status() >= http.StatusInternalServerError {
				level = zapcore.WarnLevel
			}
			if ce := logger.Check(level, "HTTP request"); ce != nil {
				ce.Write(
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}
		})
	}
}
