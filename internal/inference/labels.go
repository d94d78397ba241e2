package inference

import (
	"encoding/json"
	"fmt"
)

type labelsFile struct {
	Classes []string `json:"classes"`
}

// ParseLabels decodes the label encoder artifact. Index i of the returned
// slice names output i of the classifier.
func ParseLabels(data []byte) ([]string, error) {
	var f labelsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	if len(f.Classes) == 0 {
		return nil, fmt.Errorf("label set is empty")
	}
	seen := make(map[string]struct{}, len(f.Classes))
	for i, c := range f.Classes {
		if c == "" {
			return nil, fmt.Errorf("label %d is empty", i)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("duplicate label %q", c)
		}
		seen[c] = struct{}{}
	}
	return f.Classes, nil
}
