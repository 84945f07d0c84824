package model

import "errors"

var (
	// ErrUnknownFormat is returned when a model path has an unsupported extension.
	ErrUnknownFormat = errors.New("model: unknown model format")

	// ErrInputShape is returned when a tensor does not match the network input.
	ErrInputShape = errors.New("model: input tensor shape mismatch")

	// ErrNoOutputs is returned when a graph declares no outputs.
	ErrNoOutputs = errors.New("model: graph has no outputs")
)
