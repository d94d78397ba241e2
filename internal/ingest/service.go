package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/model"
)

// Transports reported to the Recorder.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Ingest outcomes, matching the metrics labels.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type Sink interface {
	Insert(ctx context.Context, r *model.Reading) error
}

type Recorder interface {
	ObserveIngest(transport, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveIngest(string, string) {}

// Service validates raw payloads and stores them as the most recent reading.
type Service struct {
	log  *slog.Logger
	sink Sink
	rec  Recorder
}

func NewService(log *slog.Logger, sink Sink, rec Recorder) *Service {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Service{
		log:  log,
		sink: sink,
		rec:  rec,
	}
}

// Ingest parses payload and inserts it. Fields in meta are added to the
// reading's extras unless the payload already carries them. A malformed
// payload is never stored.
func (s *Service) Ingest(ctx context.Context, transport string, payload []byte, meta map[string]any) (*model.Reading, error) {
	r, err := model.ParseReading(payload)
	if err != nil {
		s.rec.ObserveIngest(transport, outcomeRejected)
		s.log.Warn("reading rejected", slog.String("transport", transport), sl.Err(err))
		return nil, err
	}

	for k, v := range meta {
		if r.Extra == nil {
			r.Extra = make(map[string]any, len(meta))
		}
		if _, ok := r.Extra[k]; !ok {
			r.Extra[k] = v
		}
	}

	if err := s.sink.Insert(ctx, r); err != nil {
		s.rec.ObserveIngest(transport, outcomeFailed)
		if !errors.Is(err, model.ErrStorage) {
			err = errors.Join(model.ErrStorage, err)
		}
		s.log.Error("failed to store reading", slog.String("transport", transport), sl.Err(err))
		return nil, err
	}

	s.rec.ObserveIngest(transport, outcomeAccepted)
	s.log.Debug("reading accepted",
		slog.String("transport", transport),
		slog.String("id", r.ID),
		slog.Int64("seq", r.Seq),
	)
	return r, nil
}
