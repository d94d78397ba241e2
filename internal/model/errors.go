package model

import "errors"

// Error kinds surfaced by the diagnosis core and its stores. Callers match
// them with errors.Is; the HTTP layer maps ErrMalformedInput to 400 and
// everything else to 500.
var (
	ErrShapeMismatch  = errors.New("shape mismatch")
	ErrInference      = errors.New("inference error")
	ErrStorage        = errors.New("storage error")
	ErrMalformedInput = errors.New("malformed input")
)
