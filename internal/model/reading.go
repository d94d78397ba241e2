package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const FeatureCount = 11

// Positions of each sensor in a FeatureVector.
const (
	MotorTemp = iota
	AmbientTemp
	VibX
	VibY
	VibZ
	VoltA
	VoltB
	VoltC
	CurrA
	CurrB
	CurrC
)

// FeatureNames lists the payload field of every feature in canonical order.
var FeatureNames = [FeatureCount]string{
	"motor_temp", "ambient_temp",
	"vib_x", "vib_y", "vib_z",
	"volt_a", "volt_b", "volt_c",
	"curr_a", "curr_b", "curr_c",
}

type FeatureVector [FeatureCount]float64

func (f FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, f[:])
	return out
}

// FeatureVectorFromSlice fails with ErrShapeMismatch unless values holds
// exactly FeatureCount entries.
func FeatureVectorFromSlice(values []float64) (FeatureVector, error) {
	var f FeatureVector
	if len(values) != FeatureCount {
		return f, fmt.Errorf("%w: expected %d features, got %d", ErrShapeMismatch, FeatureCount, len(values))
	}
	copy(f[:], values)
	return f, nil
}

type Reading struct {
	ID         string
	Seq        int64
	ReceivedAt time.Time
	Features   FeatureVector
	// Extra keeps every non-feature field of the ingested payload.
	Extra map[string]any
}

func NewReading(features FeatureVector, extra map[string]any) *Reading {
	return &Reading{
		ID:         uuid.New().String(),
		ReceivedAt: time.Now().UTC(),
		Features:   features,
		Extra:      extra,
	}
}

// ParseReading decodes an ingest payload. The body must be a JSON object
// carrying every feature as a number; other fields are kept in Extra.
func ParseReading(data []byte) (*Reading, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrMalformedInput)
	}

	var features FeatureVector
	for i, name := range FeatureNames {
		value, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformedInput, name)
		}
		var f float64
		if err := json.Unmarshal(value, &f); err != nil || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return nil, fmt.Errorf("%w: field %q must be a number", ErrMalformedInput, name)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: field %q must be finite", ErrMalformedInput, name)
		}
		features[i] = f
		delete(raw, name)
	}

	var extra map[string]any
	if len(raw) > 0 {
		extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var decoded any
			if err := json.Unmarshal(v, &decoded); err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", ErrMalformedInput, k, err)
			}
			extra[k] = decoded
		}
	}

	return NewReading(features, extra), nil
}

// ExtraJSON encodes Extra for persistence; an empty map encodes as "{}".
func (r *Reading) ExtraJSON() ([]byte, error) {
	if len(r.Extra) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Extra)
}

func ExtraFromJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var extra map[string]any
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return nil, nil
	}
	return extra, nil
}
