package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/speedwagon-io/motordiag/internal/inference"
	"github.com/speedwagon-io/motordiag/internal/model"
	"github.com/speedwagon-io/motordiag/internal/rul"
)

// Stages reported to the Observer when a run fails.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageClassify  = "classify"
)

type Normalizer interface {
	Transform(x []float64) ([]float64, error)
}

type Classifier interface {
	Classify(ctx context.Context, normalized []float64) (inference.Classification, error)
}

type Estimator interface {
	EstimateDetailed(faultType string, f model.FeatureVector) (int, rul.Severity)
}

// Source yields the reading to diagnose; a nil reading means none exists.
type Source interface {
	Latest(ctx context.Context) (*model.Reading, error)
}

type Observer interface {
	ObserveDiagnosis(d model.Diagnosis, elapsed time.Duration)
	ObserveFailure(stage string)
}

type nopObserver struct{}

func (nopObserver) ObserveDiagnosis(model.Diagnosis, time.Duration) {}
func (nopObserver) ObserveFailure(string)                           {}

// Pipeline turns a raw reading into a Diagnosis: normalize, classify, then
// estimate RUL from the label and the raw features. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	log        *slog.Logger
	source     Source
	normalizer Normalizer
	classifier Classifier
	estimator  Estimator
	observer   Observer
}

type Option func(*Pipeline)

func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

func New(log *slog.Logger, source Source, n Normalizer, c Classifier, e Estimator, opts ...Option) *Pipeline {
	p := &Pipeline{
		log:        log,
		source:     source,
		normalizer: n,
		classifier: c,
		estimator:  e,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromArtifacts wires a Pipeline from the startup artifact bundle.
func FromArtifacts(log *slog.Logger, source Source, a *inference.Artifacts, opts ...Option) *Pipeline {
	return New(log, source, a.Scaler, a.Classifier, rul.NewEstimator(a.Profiles), opts...)
}

// Run diagnoses r. A nil reading yields the No Data sentinel, not an error.
func (p *Pipeline) Run(ctx context.Context, r *model.Reading) (model.Diagnosis, error) {
	if r == nil {
		return model.NoData(), nil
	}

	start := time.Now()
	features := r.Features.Slice()

	normalized, err := p.normalizer.Transform(features)
	if err != nil {
		p.observer.ObserveFailure(StageNormalize)
		return model.Diagnosis{}, fmt.Errorf("failed to normalize reading %s: %w", r.ID, err)
	}

	class, err := p.classifier.Classify(ctx, normalized)
	if err != nil {
		p.observer.ObserveFailure(StageClassify)
		return model.Diagnosis{}, fmt.Errorf("failed to classify reading %s: %w", r.ID, err)
	}

	remaining, severity := p.estimator.EstimateDetailed(class.Label, r.Features)

	d := model.Diagnosis{
		Data:       features,
		FaultType:  class.Label,
		RUL:        remaining,
		ReadingID:  r.ID,
		Confidence: class.Confidence,
	}

	elapsed := time.Since(start)
	p.observer.ObserveDiagnosis(d, elapsed)
	p.log.Debug("reading diagnosed",
		slog.String("reading_id", r.ID),
		slog.String("fault_type", d.FaultType),
		slog.Float64("confidence", d.Confidence),
		slog.Int("rul", d.RUL),
		slog.Float64("severity", severity.Total()),
		slog.Duration("elapsed", elapsed),
	)

	return d, nil
}

// Latest diagnoses the most recent reading of the source.
func (p *Pipeline) Latest(ctx context.Context) (model.Diagnosis, error) {
	r, err := p.source.Latest(ctx)
	if err != nil {
		p.observer.ObserveFailure(StageFetch)
		return model.Diagnosis{}, fmt.Errorf("failed to fetch latest reading: %w", err)
	}
	return p.Run(ctx, r)
}

// Probe pushes a zero vector through the normalizer and classifier. It backs
// the artifacts health check and records nothing.
func (p *Pipeline) Probe(ctx context.Context) error {
	normalized, err := p.normalizer.Transform(make([]float64, model.FeatureCount))
	if err != nil {
		return fmt.Errorf("failed to normalize probe: %w", err)
	}
	if _, err := p.classifier.Classify(ctx, normalized); err != nil {
		return fmt.Errorf("failed to classify probe: %w", err)
	}
	return nil
}
