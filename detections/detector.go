package detections

import (
	"fmt"
	"image"
	"strconv"

	"github.com/Tutortoise/live-detection-service/models"
)

// Detector owns one loaded model and the backend it runs on. It is not safe
// for concurrent use; the pipeline worker is its only caller.
type Detector struct {
	session Session
	labels  []string
	mode    models.AccelerationMode
	config  models.ModelConfig
	encoder *Encoder
	outputs *Outputs
}

func newDetector(session Session, labels []string, cfg models.ModelConfig, mode models.AccelerationMode) *Detector {
	return &Detector{
		session: session,
		labels:  labels,
		mode:    mode,
		config:  cfg,
		encoder: NewEncoder(cfg.InputSize, cfg.Quantized),
		outputs: NewOutputs(cfg.MaxDetections),
	}
}

// Mode is the resolved, concrete acceleration mode.
func (d *Detector) Mode() models.AccelerationMode { return d.mode }

func (d *Detector) Config() models.ModelConfig { return d.config }

// InputSize is the square model input as a point.
func (d *Detector) InputSize() image.Point {
	return image.Pt(d.config.InputSize, d.config.InputSize)
}

// Loaded reports whether a model is ready to run.
func (d *Detector) Loaded() bool {
	return d != nil && d.session != nil
}

// Detect runs one synchronous inference on an N x N image. Without a loaded
// model it returns an empty result.
func (d *Detector) Detect(img image.Image) ([]models.Detection, error) {
	if !d.Loaded() {
		return []models.Detection{}, nil
	}

	input, err := d.encoder.Encode(img)
	if err != nil {
		return nil, err
	}
	if err := d.session.Run(input, d.outputs); err != nil {
		return nil, &ProcessingError{Message: "model inference", Cause: err}
	}
	return d.mapOutputs(), nil
}

func (d *Detector) mapOutputs() []models.Detection {
	n := len(d.outputs.Locations)
	// Compared as float so NaN, +Inf and huge counts never reach int conversion.
	if cnt := d.outputs.Count; cnt >= 0 && cnt < float32(n) {
		n = int(cnt)
	}

	out := make([]models.Detection, 0, n)
	for i := 0; i < n; i++ {
		loc := d.outputs.Locations[i]
		out = append(out, models.Detection{
			ID:         strconv.Itoa(i),
			Label:      d.label(d.outputs.Classes[i]),
			Confidence: d.outputs.Scores[i],
			Location: models.Rect{
				Left:   loc[1],
				Top:    loc[0],
				Right:  loc[3],
				Bottom: loc[2],
			},
		})
	}
	return out
}

func (d *Detector) label(class float32) string {
	idx := int(class)
	if idx < 0 || idx >= len(d.labels) {
		return unknownLabel
	}
	return d.labels[idx]
}

// Close releases the model and backend. It is safe to call more than once.
func (d *Detector) Close() error {
	if d == nil || d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	d.labels = nil
	if err != nil {
		return fmt.Errorf("close %s session: %w", d.mode, err)
	}
	return nil
}

// ProcessingError wraps a failure inside the inference call.
type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error { return e.Cause }
