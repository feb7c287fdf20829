package detections

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Tutortoise/live-detection-service/models"
)

// TensorNames are the graph input and the four outputs in
// locations, classes, scores, count order.
type TensorNames struct {
	Input   string
	Outputs [4]string
}

// DefaultTensorNames match an SSD detector exported with its post-processing op.
func DefaultTensorNames() TensorNames {
	return TensorNames{
		Input: "normalized_input_image_tensor",
		Outputs: [4]string{
			"TFLite_Detection_PostProcess",
			"TFLite_Detection_PostProcess:1",
			"TFLite_Detection_PostProcess:2",
			"TFLite_Detection_PostProcess:3",
		},
	}
}

// ONNXRuntime implements Runtime on top of ONNX Runtime. The environment must
// be initialized by the caller before Load.
type ONNXRuntime struct {
	platform Platform
	names    TensorNames
}

func NewONNXRuntime(platform Platform, names TensorNames) *ONNXRuntime {
	return &ONNXRuntime{platform: platform, names: names}
}

func (r *ONNXRuntime) CheckSupport(mode models.AccelerationMode) error {
	switch mode {
	case models.AccelerationNone:
		return nil
	case models.AccelerationDSP:
		return r.platform.HasProvider("openvino")
	case models.AccelerationGPU:
		return r.platform.HasProvider("tensorrt")
	case models.AccelerationNNAPI:
		if r.platform.GOOS == "darwin" || r.platform.GOOS == "windows" {
			return nil
		}
		return fmt.Errorf("%w: no platform neural network API on %s", ErrBackendLibrariesMissing, r.platform.GOOS)
	default:
		return fmt.Errorf("mode %s cannot be loaded directly", mode)
	}
}

func (r *ONNXRuntime) Load(model []byte, opts LoadOptions) (Session, error) {
	if !ort.IsInitialized() {
		return nil, errors.New("onnx runtime environment is not initialized")
	}

	options, err := r.sessionOptions(opts)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	s := &ModelSession{}
	n := int64(opts.InputSize)
	inputShape := ort.NewShape(1, n, n, channels)
	var input ort.ArbitraryTensor
	if opts.Quantized {
		s.inputU8, err = ort.NewEmptyTensor[uint8](inputShape)
		input = s.inputU8
	} else {
		s.inputF32, err = ort.NewEmptyTensor[float32](inputShape)
		input = s.inputF32
	}
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	k := int64(opts.MaxDetections)
	shapes := []ort.Shape{ort.NewShape(1, k, 4), ort.NewShape(1, k), ort.NewShape(1, k), ort.NewShape(1)}
	outputs := make([]ort.ArbitraryTensor, 0, len(shapes))
	for i, shape := range shapes {
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("error creating output tensor %d: %w", i, err)
		}
		s.outputs[i] = t
		outputs = append(outputs, t)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		model,
		[]string{r.names.Input},
		r.names.Outputs[:],
		[]ort.ArbitraryTensor{input},
		outputs,
		options,
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	s.session = session
	return s, nil
}

func (r *ONNXRuntime) sessionOptions(opts LoadOptions) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	if err := r.configure(options, opts); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func (r *ONNXRuntime) configure(options *ort.SessionOptions, opts LoadOptions) error {
	if err := options.SetIntraOpNumThreads(opts.NumThreads); err != nil {
		return fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return fmt.Errorf("set inter-op threads: %w", err)
	}

	switch opts.Mode {
	case models.AccelerationNone:
		return nil
	case models.AccelerationDSP:
		return options.AppendExecutionProviderOpenVINO(map[string]string{"device_type": "NPU"})
	case models.AccelerationGPU:
		trt, err := ort.NewTensorRTProviderOptions()
		if err != nil {
			return fmt.Errorf("create TensorRT options: %w", err)
		}
		defer trt.Destroy()
		// Quantized support is always set explicitly.
		err = trt.Update(map[string]string{
			"device_id":       "0",
			"trt_int8_enable": onOff(opts.Backend.QuantizedModels),
			"trt_fp16_enable": onOff(opts.Backend.AllowFP16),
		})
		if err != nil {
			return fmt.Errorf("update TensorRT options: %w", err)
		}
		return options.AppendExecutionProviderTensorRT(trt)
	case models.AccelerationNNAPI:
		switch r.platform.GOOS {
		case "darwin":
			return options.AppendExecutionProviderCoreML(0)
		case "windows":
			return options.AppendExecutionProviderDirectML(0)
		}
		return fmt.Errorf("%w: no platform neural network API on %s", ErrBackendLibrariesMissing, r.platform.GOOS)
	}
	return fmt.Errorf("mode %s cannot be loaded directly", opts.Mode)
}

func onOff(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ModelSession binds an ONNX Runtime session to its pre-allocated tensors.
type ModelSession struct {
	session  *ort.AdvancedSession
	inputU8  *ort.Tensor[uint8]
	inputF32 *ort.Tensor[float32]
	outputs  [4]*ort.Tensor[float32]
}

func (m *ModelSession) Run(input *InputTensor, out *Outputs) error {
	switch {
	case m.inputU8 != nil && input.Quantized:
		copy(m.inputU8.GetData(), input.Bytes)
	case m.inputF32 != nil && !input.Quantized:
		copy(m.inputF32.GetData(), input.Floats)
	default:
		return errors.New("input encoding does not match the loaded model")
	}

	if err := m.session.Run(); err != nil {
		return err
	}

	locations := m.outputs[0].GetData()
	for i := range out.Locations {
		copy(out.Locations[i][:], locations[i*4:i*4+4])
	}
	copy(out.Classes, m.outputs[1].GetData())
	copy(out.Scores, m.outputs[2].GetData())
	out.Count = m.outputs[3].GetData()[0]
	return nil
}

func (m *ModelSession) Close() error {
	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.inputU8 != nil {
		errs = append(errs, m.inputU8.Destroy())
		m.inputU8 = nil
	}
	if m.inputF32 != nil {
		errs = append(errs, m.inputF32.Destroy())
		m.inputF32 = nil
	}
	for i, t := range m.outputs {
		if t != nil {
			errs = append(errs, t.Destroy())
			m.outputs[i] = nil
		}
	}
	return errors.Join(errs...)
}
