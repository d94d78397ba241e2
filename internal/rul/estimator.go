package rul

import (
	"math"

	"github.com/speedwagon-io/motordiag/internal/model"
)

// Physical thresholds above (or, for voltage, below) which a reading
// starts eating into the remaining life.
const (
	vibrationLimit    = 2.5
	vibrationSpan     = 10.0
	motorTempLimit    = 60.0
	motorTempSpan     = 100.0
	currentLimit      = 12.0
	currentSpan       = 10.0
	undervoltageLimit = 218.5
	undervoltageSpan  = 50.0
)

// Severity is the per-signal breakdown behind an estimate.
type Severity struct {
	Vibration   float64 `json:"vibration"`
	Temperature float64 `json:"temperature"`
	Current     float64 `json:"current"`
	Voltage     float64 `json:"voltage"`
}

// Total is the sum of all terms capped at 1.
func (s Severity) Total() float64 {
	return math.Min(1.0, s.Vibration+s.Temperature+s.Current+s.Voltage)
}

func ComputeSeverity(f model.FeatureVector) Severity {
	vib := max(f[model.VibX], f[model.VibY], f[model.VibZ])
	curr := max(f[model.CurrA], f[model.CurrB], f[model.CurrC])
	volt := min(f[model.VoltA], f[model.VoltB], f[model.VoltC])

	s := Severity{
		Vibration:   math.Max(0, (vib-vibrationLimit)/vibrationSpan),
		Temperature: math.Max(0, (f[model.MotorTemp]-motorTempLimit)/motorTempSpan),
		Current:     math.Max(0, (curr-currentLimit)/currentSpan),
	}
	if volt < undervoltageLimit {
		s.Voltage = math.Max(0, (undervoltageLimit-volt)/undervoltageSpan)
	}
	return s
}

type Estimator struct {
	table *Table
}

func NewEstimator(table *Table) *Estimator {
	if table == nil {
		table = DefaultTable()
	}
	return &Estimator{table: table}
}

func (e *Estimator) Table() *Table {
	return e.table
}

// Estimate returns the remaining useful life for faultType given the raw
// features. The result is truncated toward zero and never negative.
func (e *Estimator) Estimate(faultType string, f model.FeatureVector) int {
	rul, _ := e.EstimateDetailed(faultType, f)
	return rul
}

func (e *Estimator) EstimateDetailed(faultType string, f model.FeatureVector) (int, Severity) {
	profile, _ := e.table.Lookup(faultType)
	severity := ComputeSeverity(f)

	rul := profile.BaseRUL * (1 - profile.ImpactFactor) * (1 - severity.Total())
	if rul <= 0 || math.IsNaN(rul) {
		return 0, severity
	}
	return int(math.Trunc(rul)), severity
}
