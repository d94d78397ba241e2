package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

const apiKeyHeader = "X-API-Key"

// RequestLogger logs one line per request once the response is written.
func RequestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	log = log.With(slog.String("component", "api"))

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				log.Info("request completed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

// APIKeyAuth admits requests whose X-API-Key matches one of the bcrypt
// hashes. With no hashes configured every request passes.
func APIKeyAuth(log *slog.Logger, hashes []string) func(next http.Handler) http.Handler {
	keys := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		if h != "" {
			keys = append(keys, []byte(h))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			for _, hash := range keys {
				if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn("rejected API key",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			writeError(w, http.StatusUnauthorized, "invalid API key")
		})
	}
}
