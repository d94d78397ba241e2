package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/speedwagon-io/motordiag/internal/ingest"
	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/model"
)

type Ingester interface {
	Ingest(ctx context.Context, transport string, payload []byte, meta map[string]any) (*model.Reading, error)
}

type Diagnoser interface {
	Latest(ctx context.Context) (model.Diagnosis, error)
}

type Handler struct {
	log          *slog.Logger
	ingester     Ingester
	diagnoser    Diagnoser
	maxBodyBytes int64
}

func NewHandler(log *slog.Logger, ingester Ingester, diagnoser Diagnoser, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{
		log:          log.With(slog.String("component", "api")),
		ingester:     ingester,
		diagnoser:    diagnoser,
		maxBodyBytes: maxBodyBytes,
	}
}

// UploadData stores the posted reading as the most recent one.
func (h *Handler) UploadData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta := map[string]any{}
	if id := middleware.GetReqID(r.Context()); id != "" {
		meta["request_id"] = id
	}

	if _, err := h.ingester.Ingest(r.Context(), ingest.TransportHTTP, body, meta); err != nil {
		if errors.Is(err, model.ErrMalformedInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// GetLatestData diagnoses the most recent reading.
func (h *Handler) GetLatestData(w http.ResponseWriter, r *http.Request) {
	d, err := h.diagnoser.Latest(r.Context())
	if err != nil {
		h.log.Error("failed to diagnose latest reading",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, d)
}
