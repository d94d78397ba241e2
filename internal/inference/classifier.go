package inference

import (
	"context"
	"fmt"
	"math"

	"github.com/speedwagon-io/motordiag/internal/model"
)

// Shape is the (window, channels) input the trained model was built for.
type Shape struct {
	Window   int `json:"window"`
	Channels int `json:"channels"`
}

// DefaultShape is the window the fault model was trained on. It is one
// element wider than the feature vector.
var DefaultShape = Shape{Window: 12, Channels: 1}

func (s Shape) Size() int {
	return s.Window * s.Channels
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Window, s.Channels)
}

func (s Shape) validate() error {
	if s.Window <= 0 || s.Channels <= 0 {
		return fmt.Errorf("invalid input shape %s", s)
	}
	return nil
}

type Classification struct {
	Label      string
	Index      int
	Confidence float64
}

type Classifier interface {
	Classify(ctx context.Context, normalized []float64) (Classification, error)
	InputShape() Shape
}

// window lays x out as shape.Window rows of shape.Channels values. When the
// sizes differ it fails unless pad is set, in which case x is right-padded
// with zeros; a vector longer than the window is always rejected.
func window(x []float64, shape Shape, pad bool) ([][]float64, error) {
	size := shape.Size()
	if len(x) != size {
		if !pad || len(x) > size {
			return nil, fmt.Errorf("%w: model input shape %s needs %d values, got %d (set inference.pad_window to zero-pad)",
				model.ErrInference, shape, size, len(x))
		}
		padded := make([]float64, size)
		copy(padded, x)
		x = padded
	}

	rows := make([][]float64, shape.Window)
	for i := range rows {
		rows[i] = x[i*shape.Channels : (i+1)*shape.Channels]
	}
	return rows, nil
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func argmax(scores []float64) (int, float64) {
	best, bestScore := -1, math.Inf(-1)
	for i, s := range scores {
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}

func pick(labels []string, scores []float64) (Classification, error) {
	if len(scores) != len(labels) {
		return Classification{}, fmt.Errorf("%w: model returned %d scores for %d labels", model.ErrInference, len(scores), len(labels))
	}
	idx, score := argmax(scores)
	if idx < 0 || math.IsNaN(score) {
		return Classification{}, fmt.Errorf("%w: model returned no usable score", model.ErrInference)
	}
	return Classification{Label: labels[idx], Index: idx, Confidence: score}, nil
}
