package models

import (
	"errors"
	"fmt"
	"time"
)

// Rect is a box in [left, top, right, bottom] order.
type Rect struct {
	Left   float32 `json:"left"`
	Top    float32 `json:"top"`
	Right  float32 `json:"right"`
	Bottom float32 `json:"bottom"`
}

// Detection is one record produced by a single inference call. Location is
// relative to the crop region and is not clamped.
type Detection struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	Location   Rect    `json:"location"`
}

// ModelConfig is treated as immutable; derive variants with the With* helpers.
type ModelConfig struct {
	ModelPath     string
	LabelPath     string
	InputSize     int
	MaxDetections int
	NumThreads    int
	AllowFP16     bool
	Quantized     bool
	Acceleration  AccelerationMode
}

// WithAcceleration returns a copy using mode.
func (c ModelConfig) WithAcceleration(mode AccelerationMode) ModelConfig {
	c.Acceleration = mode
	return c
}

// BytesPerChannel is 1 for quantized models and 4 for float32 models.
func (c ModelConfig) BytesPerChannel() int {
	if c.Quantized {
		return 1
	}
	return 4
}

func (c ModelConfig) Validate() error {
	var errs []error
	if c.ModelPath == "" {
		errs = append(errs, errors.New("model path is required"))
	}
	if c.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("input size must be positive, got %d", c.InputSize))
	}
	if c.MaxDetections <= 0 {
		errs = append(errs, fmt.Errorf("max detections must be positive, got %d", c.MaxDetections))
	}
	if c.NumThreads <= 0 {
		errs = append(errs, fmt.Errorf("thread count must be positive, got %d", c.NumThreads))
	}
	if !c.Acceleration.valid() {
		errs = append(errs, fmt.Errorf("invalid acceleration mode %d", int(c.Acceleration)))
	}
	return errors.Join(errs...)
}

const (
	DefaultConfidence   float32 = 0.5
	DefaultAcceleration         = AccelerationAuto
)

// Preferences are the user-chosen knobs persisted by the preference store.
type Preferences struct {
	Confidence   float32          `json:"confidence"`
	Acceleration AccelerationMode `json:"accelerationType"`
}

func DefaultPreferences() Preferences {
	return Preferences{Confidence: DefaultConfidence, Acceleration: DefaultAcceleration}
}

func (p Preferences) Validate() error {
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0,1], got %v", p.Confidence)
	}
	if !p.Acceleration.valid() {
		return fmt.Errorf("invalid acceleration mode %d", int(p.Acceleration))
	}
	return nil
}

// InferenceStats is published alongside each annotated frame.
type InferenceStats struct {
	InferenceTimeMs          int64   `json:"inferenceTime"`
	FramesPerSecond          float64 `json:"framesProcessedPerSecond"`
	RequestedFramesPerSecond float64 `json:"requestedFramesPerSecond"`
	Acceleration             string  `json:"accelerationType"`
}

// ConfigurationStatus is the single record produced by every configuration attempt.
type ConfigurationStatus struct {
	ID      string           `json:"id"`
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Mode    AccelerationMode `json:"resolvedAccelerationType"`
}

type ProcessingTimings struct {
	Seq       uint64
	Prepare   time.Duration
	Inference time.Duration
	Annotate  time.Duration
	Total     time.Duration
}
