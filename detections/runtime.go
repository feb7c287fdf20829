package detections

import (
	"github.com/Tutortoise/live-detection-service/models"
)

// BackendOptions are passed explicitly to every accelerated backend; no
// backend default is relied on for quantized-model support.
type BackendOptions struct {
	QuantizedModels bool
	AllowFP16       bool
}

// LoadOptions describe one backend construction attempt.
type LoadOptions struct {
	Mode          models.AccelerationMode
	NumThreads    int
	InputSize     int
	MaxDetections int
	Quantized     bool
	Backend       BackendOptions
}

// Outputs are the four SSD-style output tensors of one inference call.
// Locations are [top, left, bottom, right].
type Outputs struct {
	Locations [][4]float32
	Classes   []float32
	Scores    []float32
	Count     float32
}

func NewOutputs(maxDetections int) *Outputs {
	return &Outputs{
		Locations: make([][4]float32, maxDetections),
		Classes:   make([]float32, maxDetections),
		Scores:    make([]float32, maxDetections),
	}
}

// Runtime is the inference engine collaborator. Implementations must make
// AccelerationNone always loadable when the model itself is valid.
type Runtime interface {
	// CheckSupport reports whether the native pieces a backend needs are
	// present, without constructing it.
	CheckSupport(mode models.AccelerationMode) error
	Load(model []byte, opts LoadOptions) (Session, error)
}

// Session is a loaded model bound to one backend. Run is synchronous.
type Session interface {
	Run(input *InputTensor, out *Outputs) error
	Close() error
}
