package inference

import (
	"encoding/json"
	"fmt"

	"github.com/speedwagon-io/motordiag/internal/model"
)

// Scaler standardizes features with statistics fitted offline: the
// mean_ and scale_ of a StandardScaler.
type Scaler struct {
	mean  []float64
	scale []float64
}

type scalerFile struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func NewScaler(mean, scale []float64) (*Scaler, error) {
	if len(mean) == 0 {
		return nil, fmt.Errorf("scaler has no fitted features")
	}
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("scaler mean has %d entries but scale has %d", len(mean), len(scale))
	}

	s := &Scaler{
		mean:  append([]float64(nil), mean...),
		scale: append([]float64(nil), scale...),
	}
	// Constant features were fitted with zero variance; leave them unscaled.
	for i, v := range s.scale {
		if v == 0 {
			s.scale[i] = 1
		}
	}
	return s, nil
}

// ParseScaler decodes a scaler artifact and checks it was fitted on
// exactly width features.
func ParseScaler(data []byte, width int) (*Scaler, error) {
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scaler: %w", err)
	}
	s, err := NewScaler(f.Mean, f.Scale)
	if err != nil {
		return nil, err
	}
	if s.Width() != width {
		return nil, fmt.Errorf("scaler fitted on %d features, expected %d", s.Width(), width)
	}
	return s, nil
}

func (s *Scaler) Width() int {
	return len(s.mean)
}

// Transform returns (x - mean) / scale for a single row.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.mean) {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d", model.ErrShapeMismatch, len(s.mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}
