package detections

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/live-detection-service/models"
)

// autoOrder is the fallback ladder for AccelerationAuto. The last entry must
// always be constructible.
var autoOrder = []models.AccelerationMode{
	models.AccelerationDSP,
	models.AccelerationGPU,
	models.AccelerationNone,
}

var (
	ErrBackendLibrariesMissing = errors.New("backend libraries are missing on this platform")
	ErrModelNotQuantized       = errors.New("model is not quantized")
)

// ConfigurationError reports why a backend could not be constructed for Mode.
type ConfigurationError struct {
	Mode   models.AccelerationMode
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acceleration mode %s: %s: %v", e.Mode, e.Reason, e.Err)
	}
	return fmt.Sprintf("acceleration mode %s: %s", e.Mode, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Selector turns a requested acceleration mode into a working Detector.
type Selector struct {
	runtime  Runtime
	readFile func(string) ([]byte, error)
	log      *logrus.Entry
}

func NewSelector(rt Runtime, log *logrus.Entry) *Selector {
	return &Selector{
		runtime:  rt,
		readFile: os.ReadFile,
		log:      log.WithField("component", "selector"),
	}
}

// Resolve closes previous, then builds a detector for cfg.Acceleration. A
// concrete mode gets exactly one attempt. Auto walks autoOrder and returns
// only the error of the last candidate when every candidate fails.
func (s *Selector) Resolve(cfg models.ModelConfig, previous *Detector) (*Detector, error) {
	if previous != nil {
		if err := previous.Close(); err != nil {
			s.log.WithError(err).Warn("releasing previous detector")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Mode: cfg.Acceleration, Reason: "invalid model configuration", Err: err}
	}
	model, err := s.readFile(cfg.ModelPath)
	if err != nil {
		return nil, &ConfigurationError{Mode: cfg.Acceleration, Reason: "loading model file", Err: err}
	}
	var labels []string
	if cfg.LabelPath != "" {
		if labels, err = LoadLabels(cfg.LabelPath); err != nil {
			return nil, &ConfigurationError{Mode: cfg.Acceleration, Reason: "loading label file", Err: err}
		}
	}

	if cfg.Acceleration.IsConcrete() {
		return s.construct(cfg.Acceleration, cfg, model, labels)
	}

	var lastErr error
	for _, mode := range autoOrder {
		det, err := s.construct(mode, cfg, model, labels)
		if err == nil {
			return det, nil
		}
		lastErr = err
		s.log.WithError(err).WithField("mode", mode.Name()).Debug("auto candidate rejected")
	}
	return nil, lastErr
}

func (s *Selector) construct(mode models.AccelerationMode, cfg models.ModelConfig, model []byte, labels []string) (*Detector, error) {
	if mode != models.AccelerationNone {
		if err := s.runtime.CheckSupport(mode); err != nil {
			return nil, &ConfigurationError{Mode: mode, Reason: "backend unavailable", Err: err}
		}
	}
	if mode == models.AccelerationDSP && !cfg.Quantized {
		return nil, &ConfigurationError{Mode: mode, Reason: "DSP execution requires a quantized model", Err: ErrModelNotQuantized}
	}

	session, err := s.runtime.Load(model, LoadOptions{
		Mode:          mode,
		NumThreads:    cfg.NumThreads,
		InputSize:     cfg.InputSize,
		MaxDetections: cfg.MaxDetections,
		Quantized:     cfg.Quantized,
		Backend: BackendOptions{
			QuantizedModels: cfg.Quantized,
			AllowFP16:       cfg.AllowFP16,
		},
	})
	if err != nil {
		return nil, &ConfigurationError{Mode: mode, Reason: "backend construction failed", Err: err}
	}

	s.log.WithFields(logrus.Fields{
		"mode":       mode.Name(),
		"input_size": cfg.InputSize,
		"quantized":  cfg.Quantized,
	}).Debug("backend constructed")
	return newDetector(session, append([]string(nil), labels...), cfg.WithAcceleration(mode), mode), nil
}
