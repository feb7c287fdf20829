package pipeline

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/Tutortoise/live-detection-service/models"
)

// Frame is one capture from the video source. Ownership passes to the
// scheduler when Submit accepts it.
type Frame struct {
	Image    image.Image
	Seq      uint64
	Captured time.Time
}

// Output is what the worker publishes for every handled frame. Stats is nil
// while no detector is configured and the image is passed through.
type Output struct {
	Seq        uint64
	Image      []byte
	Stats      *models.InferenceStats
	Detections []models.Detection
}

// Sink receives worker output. Publish is called from the worker goroutine
// and should not block for long.
type Sink interface {
	Publish(Output) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Output) error

func (f SinkFunc) Publish(o Output) error { return f(o) }

// MultiSink publishes to every sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Publish(o Output) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PreferenceSource is read by the worker at dequeue time.
type PreferenceSource interface {
	Preferences() models.Preferences
}

// FrameRate reports the frame rate requested from the video source.
type FrameRate interface {
	RequestedFramesPerSecond() float64
}

// Metrics tracks scheduler throughput.
type Metrics struct {
	mu             sync.RWMutex
	submitted      int64
	dropped        int64
	rejected       int64
	processed      int64
	failed         int64
	configurations int64
	configFailures int64
}

// MetricsSnapshot is a copy of Metrics safe to serialize.
type MetricsSnapshot struct {
	Submitted      int64 `json:"frames_submitted"`
	Dropped        int64 `json:"frames_dropped"`
	Rejected       int64 `json:"frames_rejected"`
	Processed      int64 `json:"frames_processed"`
	Failed         int64 `json:"frames_failed"`
	Configurations int64 `json:"configurations"`
	ConfigFailures int64 `json:"configuration_failures"`
}

func (m *Metrics) add(field *int64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		Submitted:      m.submitted,
		Dropped:        m.dropped,
		Rejected:       m.rejected,
		Processed:      m.processed,
		Failed:         m.failed,
		Configurations: m.configurations,
		ConfigFailures: m.configFailures,
	}
}
