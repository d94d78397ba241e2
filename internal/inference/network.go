package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Layer is a dense layer. Weights follow the Keras kernel layout:
// Weights[i][j] connects input i to unit j.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

type networkFile struct {
	InputShape []int   `json:"input_shape"`
	Layers     []Layer `json:"layers"`
}

// Network evaluates an exported feed-forward model in-process.
type Network struct {
	shape  Shape
	layers []Layer
	labels []string
	pad    bool
}

var activations = map[string]func([]float64){
	"":        func([]float64) {},
	"linear":  func([]float64) {},
	"relu":    relu,
	"tanh":    tanh,
	"sigmoid": sigmoid,
	"softmax": softmax,
}

// ParseNetwork decodes a network artifact and checks that its layers chain
// from the declared input shape down to one output per label.
func ParseNetwork(data []byte, labels []string, pad bool) (*Network, error) {
	var f networkFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse network: %w", err)
	}

	shape := DefaultShape
	switch len(f.InputShape) {
	case 0:
	case 2:
		shape = Shape{Window: f.InputShape[0], Channels: f.InputShape[1]}
	default:
		return nil, fmt.Errorf("input_shape must be [window, channels], got %v", f.InputShape)
	}

	return NewNetwork(shape, f.Layers, labels, pad)
}

func NewNetwork(shape Shape, layers []Layer, labels []string, pad bool) (*Network, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("network has no layers")
	}

	width := shape.Size()
	for n, l := range layers {
		if _, ok := activations[l.Activation]; !ok {
			return nil, fmt.Errorf("layer %d: unknown activation %q", n, l.Activation)
		}
		if len(l.Weights) != width {
			return nil, fmt.Errorf("layer %d: expects %d inputs, kernel has %d rows", n, width, len(l.Weights))
		}
		units := len(l.Bias)
		if units == 0 {
			return nil, fmt.Errorf("layer %d: no units", n)
		}
		for i, row := range l.Weights {
			if len(row) != units {
				return nil, fmt.Errorf("layer %d: kernel row %d has %d columns, want %d", n, i, len(row), units)
			}
		}
		width = units
	}
	if width != len(labels) {
		return nil, fmt.Errorf("network has %d outputs but label set has %d classes", width, len(labels))
	}

	return &Network{shape: shape, layers: layers, labels: labels, pad: pad}, nil
}

func (n *Network) InputShape() Shape {
	return n.shape
}

func (n *Network) Classify(_ context.Context, normalized []float64) (Classification, error) {
	rows, err := window(normalized, n.shape, n.pad)
	if err != nil {
		return Classification{}, err
	}
	return pick(n.labels, n.forward(flatten(rows)))
}

func (n *Network) forward(x []float64) []float64 {
	for _, l := range n.layers {
		out := make([]float64, len(l.Bias))
		copy(out, l.Bias)
		for i, xi := range x {
			for j, w := range l.Weights[i] {
				out[j] += xi * w
			}
		}
		activations[l.Activation](out)
		x = out
	}
	return x
}

func relu(v []float64) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

func tanh(v []float64) {
	for i, x := range v {
		v[i] = math.Tanh(x)
	}
}

func sigmoid(v []float64) {
	for i, x := range v {
		v[i] = 1 / (1 + math.Exp(-x))
	}
}

func softmax(v []float64) {
	peak := math.Inf(-1)
	for _, x := range v {
		peak = math.Max(peak, x)
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - peak)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
