package pothole

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/cyclopcam/logs"
	"github.com/roadguard/pothole-api/internal/model"
)

// Options configures a Detector.
type Options struct {
	// ModelPath is where the model is loaded from and saved to by default.
	ModelPath string

	// InputSize of networks created with CreateModel. Zero means model.DefaultInputSize.
	InputSize int

	// InitSeed fixes the weights of networks created with CreateModel.
	InitSeed uint64

	// Fallback generator. Nil means one seeded from the clock.
	Fallback *Fallback

	// CreateIfMissing builds and saves a fresh network when ModelPath does not exist.
	CreateIfMissing bool
}

// Detector analyzes pothole images with the loaded network, or with the
// fallback generator when no usable prediction is available.
type Detector struct {
	log      logs.Log
	opts     Options
	state    StateHandle
	fallback *Fallback
}

// New creates a detector and attempts to load opts.ModelPath. A missing or
// broken model is not an error: the detector starts without one.
func New(log logs.Log, opts Options) *Detector {
	if opts.InputSize <= 0 {
		opts.InputSize = model.DefaultInputSize
	}
	d := &Detector{
		log:      log,
		opts:     opts,
		fallback: opts.Fallback,
	}
	if d.fallback == nil {
		d.fallback = NewSeededFallback(clockSeed())
	}

	if opts.ModelPath == "" {
		log.Warnf("No model path configured, analysis will use fallback results")
		return d
	}
	if _, err := os.Stat(opts.ModelPath); err == nil {
		if _, err := d.LoadModel(opts.ModelPath); err != nil {
			log.Errorf("Failed to load model %v: %v", opts.ModelPath, err)
		}
	} else if opts.CreateIfMissing {
		log.Infof("No model at %v, creating a new one", opts.ModelPath)
		if _, err := d.CreateModel(); err != nil {
			log.Errorf("Failed to create model: %v", err)
		} else if err := d.SaveModel(""); err != nil {
			log.Errorf("Failed to save model: %v", err)
		}
	} else {
		log.Warnf("No model at %v, analysis will use fallback results", opts.ModelPath)
	}
	return d
}

// Analyze returns an analysis of img. It only fails when img is nil; every
// other problem produces a fallback result.
func (d *Detector) Analyze(img image.Image) (AnalysisResult, error) {
	if img == nil {
		return AnalysisResult{}, &PreprocessingError{Reason: "no image"}
	}

	var (
		result AnalysisResult
		err    error
	)
	d.state.With(func(s State) {
		result, err = d.predict(s, img)
	})
	if err != nil {
		var degraded *DegradedModelError
		if errors.As(err, &degraded) {
			d.log.Debugf("Using fallback: %v", err)
		} else {
			d.log.Warnf("Using fallback: %v", err)
		}
		return d.fallback.Generate(), nil
	}
	return result, nil
}

func (d *Detector) predict(s State, img image.Image) (result AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInferenceFailure, r)
		}
	}()

	if !s.Loaded() {
		return AnalysisResult{}, &DegradedModelError{Reason: "no model loaded"}
	}
	tensor, err := Normalize(img, s.InputSize)
	if err != nil {
		return AnalysisResult{}, err
	}
	raw, err := s.Network.Predict(tensor)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}
	decoded, err := DecodePrediction(raw)
	if err != nil {
		return AnalysisResult{}, err
	}
	return Compose(decoded), nil
}

// ModelAvailable reports whether a network is loaded.
func (d *Detector) ModelAvailable() bool {
	return d.state.Current().Loaded()
}

// ModelInfo describes the loaded network. The boolean is false when there is none.
func (d *Detector) ModelInfo() (model.Info, bool) {
	var (
		info model.Info
		ok   bool
	)
	d.state.With(func(s State) {
		if s.Loaded() {
			info, ok = s.Network.Info(), true
			if info.Path == "" {
				info.Path = s.Path
			}
		}
	})
	return info, ok
}

// CreateModel replaces the current network with a freshly initialized one.
// The new network is untrained and analysis keeps returning fallback results
// until a trained network is loaded.
func (d *Detector) CreateModel() (model.Info, error) {
	n := model.CreateNative(d.opts.InputSize, d.opts.InitSeed)
	d.install(State{Network: n, Path: d.opts.ModelPath, InputSize: n.InputSize})
	d.log.Infof("Created model with input size %v", n.InputSize)
	info := n.Info()
	info.Path = d.opts.ModelPath
	return info, nil
}

// LoadModel loads the network at path, or the configured path when empty,
// and swaps it in. On failure the current network is kept.
func (d *Detector) LoadModel(path string) (model.Info, error) {
	if path == "" {
		path = d.opts.ModelPath
	}
	n, err := model.Load(path)
	if err != nil {
		return model.Info{}, err
	}
	info := n.Info()
	size := info.InputSize
	if size <= 0 {
		size = model.DefaultInputSize
	}
	d.install(State{Network: n, Path: path, InputSize: size})
	d.log.Infof("Loaded %v model from %v", info.Backend, path)
	return info, nil
}

// SaveModel writes the current network to path, or to where it came from when empty.
func (d *Detector) SaveModel(path string) error {
	var err error
	d.state.With(func(s State) {
		if !s.Loaded() {
			err = ErrNoModel
			return
		}
		if path == "" {
			path = s.Path
		}
		if path == "" {
			path = d.opts.ModelPath
		}
		err = s.Network.Save(path)
	})
	if err == nil {
		d.log.Infof("Saved model to %v", path)
	}
	return err
}

func (d *Detector) install(next State) {
	prev := d.state.Swap(next)
	if prev.Loaded() {
		if err := prev.Network.Close(); err != nil {
			d.log.Warnf("Failed to close previous model: %v", err)
		}
	}
}

// Close releases the loaded network.
func (d *Detector) Close() error {
	prev := d.state.Swap(State{})
	if prev.Loaded() {
		return prev.Network.Close()
	}
	return nil
}
