package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Network runs a forward pass over a normalized tensor.
// Implementations must allow concurrent Predict calls.
type Network interface {
	Predict(t Tensor) (*RawPrediction, error)
	Info() Info
	// Save persists the network to path. Saving twice to the same path
	// produces the same file.
	Save(path string) error
	// Close releases native resources. The network is unusable afterwards.
	Close() error
}

// Load opens the network stored at path. The backend is chosen by extension:
// .onnx files run through ONNX Runtime, .json files are native networks.
func Load(path string) (Network, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return LoadONNX(path)
	case ".json":
		return LoadNative(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}
