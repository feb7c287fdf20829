package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelConfigValidate(t *testing.T) {
	valid := ModelConfig{ModelPath: "detect.onnx", InputSize: 300, MaxDetections: 10, NumThreads: 4}

	tests := []struct {
		name    string
		mutate  func(*ModelConfig)
		wantErr string
	}{
		{"valid", func(*ModelConfig) {}, ""},
		{"no model", func(c *ModelConfig) { c.ModelPath = "" }, "model path is required"},
		{"input size", func(c *ModelConfig) { c.InputSize = 0 }, "input size must be positive"},
		{"max detections", func(c *ModelConfig) { c.MaxDetections = -1 }, "max detections must be positive"},
		{"threads", func(c *ModelConfig) { c.NumThreads = 0 }, "thread count must be positive"},
		{"mode", func(c *ModelConfig) { c.Acceleration = 12 }, "invalid acceleration mode 12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestModelConfigDerived(t *testing.T) {
	cfg := ModelConfig{Quantized: true, Acceleration: AccelerationAuto}
	gpu := cfg.WithAcceleration(AccelerationGPU)

	assert.Equal(t, AccelerationAuto, cfg.Acceleration)
	assert.Equal(t, AccelerationGPU, gpu.Acceleration)
	assert.Equal(t, 1, cfg.BytesPerChannel())
	cfg.Quantized = false
	assert.Equal(t, 4, cfg.BytesPerChannel())
}

func TestPreferencesValidate(t *testing.T) {
	assert.NoError(t, DefaultPreferences().Validate())
	assert.NoError(t, Preferences{Confidence: 0}.Validate())
	assert.NoError(t, Preferences{Confidence: 1, Acceleration: AccelerationNNAPI}.Validate())
	assert.Error(t, Preferences{Confidence: 1.01}.Validate())
	assert.Error(t, Preferences{Confidence: -0.1}.Validate())
	assert.Error(t, Preferences{Confidence: 0.5, Acceleration: 7}.Validate())
}
