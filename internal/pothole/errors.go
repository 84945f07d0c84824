package pothole

import (
	"errors"
	"fmt"
)

var (
	// ErrNoModel is returned by lifecycle operations that need a loaded model.
	ErrNoModel = errors.New("pothole: no model loaded")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("pothole: too many images in batch")

	// ErrInferenceFailure wraps panics and errors raised by a network.
	ErrInferenceFailure = errors.New("pothole: inference failed")
)

// PreprocessingError means the input could not be turned into an image tensor.
type PreprocessingError struct {
	Reason string
	Err    error
}

func (e *PreprocessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pothole: preprocessing failed: %s: %v", e.Reason, e.Err)
	}
	return "pothole: preprocessing failed: " + e.Reason
}

func (e *PreprocessingError) Unwrap() error {
	return e.Err
}

// DegradedModelError means the network output lacks the five-head structure.
// It never leaves this package; the detector answers it with a fallback.
type DegradedModelError struct {
	Reason string
}

func (e *DegradedModelError) Error() string {
	return "pothole: degraded model output: " + e.Reason
}
