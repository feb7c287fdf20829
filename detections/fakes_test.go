package detections

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/Tutortoise/live-detection-service/models"
)

var errNoBackend = errors.New("backend not present")

type stubSession struct {
	fill   func(*Outputs)
	err    error
	closed int
	inputs int
}

func (s *stubSession) Run(_ *InputTensor, out *Outputs) error {
	s.inputs++
	if s.err != nil {
		return s.err
	}
	if s.fill != nil {
		s.fill(out)
	}
	return nil
}

func (s *stubSession) Close() error {
	s.closed++
	return nil
}

type stubRuntime struct {
	available map[models.AccelerationMode]bool
	loadErr   map[models.AccelerationMode]error
	loads     []LoadOptions
	sessions  []*stubSession
}

func (r *stubRuntime) CheckSupport(mode models.AccelerationMode) error {
	if r.available[mode] {
		return nil
	}
	return errNoBackend
}

func (r *stubRuntime) Load(_ []byte, opts LoadOptions) (Session, error) {
	r.loads = append(r.loads, opts)
	if err := r.loadErr[opts.Mode]; err != nil {
		return nil, err
	}
	s := &stubSession{}
	r.sessions = append(r.sessions, s)
	return s, nil
}

func newTestSelector(rt Runtime) (*Selector, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewSelector(rt, logrus.NewEntry(logger)), hook
}

func testModelConfig(t *testing.T, mode models.AccelerationMode, quantized bool) models.ModelConfig {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "detect.onnx")
	labels := filepath.Join(dir, "labelmap.txt")
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0o600))
	require.NoError(t, os.WriteFile(labels, []byte("???\nperson\nbicycle\n"), 0o600))
	return models.ModelConfig{
		ModelPath:     model,
		LabelPath:     labels,
		InputSize:     DefaultInputSize,
		MaxDetections: DefaultMaxDetections,
		NumThreads:    2,
		Quantized:     quantized,
		Acceleration:  mode,
	}
}
