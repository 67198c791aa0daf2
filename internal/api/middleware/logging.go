package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseStat captures what the handler wrote so the access log can report
// it. Upload bodies can be large, so bytes written matters here.
type responseStat struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseStat) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseStat) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Logger emits one structured line per request. Server-side failures log at
// error level so a broken upload or poll path stands out in the stream.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		stat := &responseStat{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(stat, r)

		level := slog.LevelInfo
		if stat.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", stat.status,
			"bytes", stat.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
