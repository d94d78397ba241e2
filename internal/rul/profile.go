package rul

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile is the prior for a fault class: the life a motor is rated for
// under that fault and how much of it the fault consumes.
type Profile struct {
	BaseRUL      float64 `yaml:"base_rul"`
	ImpactFactor float64 `yaml:"impact_factor"`
}

// DefaultProfile applies to labels missing from the table.
var DefaultProfile = Profile{BaseRUL: 20000, ImpactFactor: 0.5}

var builtinProfiles = map[string]Profile{
	"Healthy":                  {40000, 0.0},
	"Bearing Defects":          {10000, 0.75},
	"Radial Misalignment":      {12000, 0.7},
	"Mechanical Looseness":     {11000, 0.725},
	"Rotor Imbalance":          {10000, 0.75},
	"Axial Shaft Misalignment": {13000, 0.675},
	"Shaft Bending":            {9000, 0.775},
	"Thermal Expansion":        {14000, 0.65},
	"Loose Coupling":           {11000, 0.725},
	"Foundation Issues":        {12000, 0.7},
	"Structural Looseness":     {11500, 0.7125},
	"Resonance":                {8000, 0.8},
	"Overheating":              {15000, 0.625},
	"Overcurrent":              {8000, 0.8},
	"Undervoltage":             {10000, 0.75},
	"Phase Imbalance":          {9000, 0.775},
	"Phase Loss":               {2000, 0.95},
	"Phase Reversal":           {5000, 0.875},
	"Unbalanced Load":          {8500, 0.7875},
}

// Table is an immutable fault-type to Profile mapping with a fallback.
type Table struct {
	profiles map[string]Profile
	fallback Profile
}

// DefaultTable returns the compiled-in fault profiles.
func DefaultTable() *Table {
	profiles := make(map[string]Profile, len(builtinProfiles))
	for name, p := range builtinProfiles {
		profiles[name] = p
	}
	return &Table{profiles: profiles, fallback: DefaultProfile}
}

// Lookup never fails: unknown fault types resolve to the fallback.
func (t *Table) Lookup(faultType string) (Profile, bool) {
	p, ok := t.profiles[faultType]
	if !ok {
		return t.fallback, false
	}
	return p, true
}

func (t *Table) Fallback() Profile {
	return t.fallback
}

func (t *Table) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) Len() int {
	return len(t.profiles)
}

type overlayFile struct {
	Default  *Profile           `yaml:"default"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadProfiles reads a YAML overlay and merges it over the compiled table.
// An empty path yields DefaultTable.
func LoadProfiles(path string) (*Table, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}

	if overlay.Default != nil {
		if err := overlay.Default.validate(); err != nil {
			return nil, fmt.Errorf("default profile: %w", err)
		}
		table.fallback = *overlay.Default
	}
	for name, p := range overlay.Profiles {
		if name == "" {
			return nil, fmt.Errorf("profile with empty fault name")
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		table.profiles[name] = p
	}

	return table, nil
}

func (p Profile) validate() error {
	if p.BaseRUL <= 0 {
		return fmt.Errorf("base_rul must be positive, got %v", p.BaseRUL)
	}
	if p.ImpactFactor < 0 || p.ImpactFactor > 1 {
		return fmt.Errorf("impact_factor must be within [0,1], got %v", p.ImpactFactor)
	}
	return nil
}
