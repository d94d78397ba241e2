package inference

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/speedwagon-io/motordiag/internal/artifact"
	"github.com/speedwagon-io/motordiag/internal/model"
	"github.com/speedwagon-io/motordiag/internal/rul"
)

const (
	BackendLocal     = "local"
	BackendSageMaker = "sagemaker"
)

type LoadOptions struct {
	Backend   string
	ScalerURI string
	ModelURI  string
	LabelsURI string
	// ProfilesPath is an optional YAML overlay for the fault profile table.
	ProfilesPath string
	PadWindow    bool

	SageMaker SageMakerOptions
}

type SageMakerOptions struct {
	Region   string
	Endpoint string
	Shape    Shape
}

// Artifacts bundles everything the diagnosis pipeline reads. It is built
// once at startup and never mutated, so handlers share it without locks.
type Artifacts struct {
	Scaler     *Scaler
	Classifier Classifier
	Labels     []string
	Profiles   *rul.Table
}

// Load fetches and validates every artifact named in opts.
func Load(ctx context.Context, log *slog.Logger, fetcher artifact.Fetcher, opts LoadOptions) (*Artifacts, error) {
	scalerRaw, err := fetcher.Fetch(ctx, opts.ScalerURI)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scaler: %w", err)
	}
	scaler, err := ParseScaler(scalerRaw, model.FeatureCount)
	if err != nil {
		return nil, err
	}

	labelsRaw, err := fetcher.Fetch(ctx, opts.LabelsURI)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch labels: %w", err)
	}
	labels, err := ParseLabels(labelsRaw)
	if err != nil {
		return nil, err
	}

	var classifier Classifier
	switch opts.Backend {
	case BackendLocal, "":
		modelRaw, err := fetcher.Fetch(ctx, opts.ModelURI)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch model: %w", err)
		}
		classifier, err = ParseNetwork(modelRaw, labels, opts.PadWindow)
		if err != nil {
			return nil, err
		}
	case BackendSageMaker:
		classifier, err = NewSageMakerClassifier(opts.SageMaker.Region, opts.SageMaker.Endpoint, opts.SageMaker.Shape, labels, opts.PadWindow)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown inference backend %q", opts.Backend)
	}

	profiles, err := rul.LoadProfiles(opts.ProfilesPath)
	if err != nil {
		return nil, err
	}

	shape := classifier.InputShape()
	if shape.Size() != scaler.Width() {
		log.Warn("model input shape does not match feature count",
			slog.String("input_shape", shape.String()),
			slog.Int("features", scaler.Width()),
			slog.Bool("pad_window", opts.PadWindow),
		)
	}
	for _, l := range labels {
		if _, ok := profiles.Lookup(l); !ok {
			log.Warn("label has no fault profile, default applies", slog.String("label", l))
		}
	}

	log.Info("artifacts loaded",
		slog.String("backend", backendName(opts.Backend)),
		slog.String("input_shape", shape.String()),
		slog.Int("labels", len(labels)),
		slog.Int("profiles", profiles.Len()),
	)

	return &Artifacts{
		Scaler:     scaler,
		Classifier: classifier,
		Labels:     labels,
		Profiles:   profiles,
	}, nil
}

func backendName(b string) string {
	if b == "" {
		return BackendLocal
	}
	return b
}
