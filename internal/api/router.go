package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterOptions struct {
	KeyHashes []string
	// Stream serves the live diagnosis websocket when set.
	Stream http.Handler
}

func NewRouter(log *slog.Logger, h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(methodNotAllowed)

	r.With(APIKeyAuth(log, opts.KeyHashes)).Post("/upload_data", h.UploadData)
	r.With(APIKeyAuth(log, opts.KeyHashes)).Post("/upload_data/", h.UploadData)
	r.Get("/get_latest_data", h.GetLatestData)
	r.Get("/get_latest_data/", h.GetLatestData)

	if opts.Stream != nil {
		r.Get("/ws/diagnoses", opts.Stream.ServeHTTP)
	}

	return r
}
