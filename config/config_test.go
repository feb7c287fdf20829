package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tutortoise/live-detection-service/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, image.Pt(1920, 1080), cfg.CaptureSize())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
server:
  addr: ":9090"
  configure_timeout: 10s
model:
  path: /opt/models/ssd.onnx
  input_size: 320
  quantized: false
  allow_fp16: true
capture:
  width: 1280
  height: 720
  fps: 30
mqtt:
  broker: localhost:1883
  topic: cams/front
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ConfigureTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, image.Pt(1280, 720), cfg.CaptureSize())
	assert.Equal(t, "cams/front", cfg.MQTT.Topic)

	want := models.ModelConfig{
		ModelPath:     "/opt/models/ssd.onnx",
		LabelPath:     "models/labelmap.txt",
		InputSize:     320,
		MaxDetections: 10,
		NumThreads:    4,
		AllowFP16:     true,
		Quantized:     false,
		Acceleration:  models.AccelerationAuto,
	}
	if diff := cmp.Diff(want, cfg.ModelConfig()); diff != "" {
		t.Errorf("ModelConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DETECT_MODEL_PATH", "/env/model.onnx")
	t.Setenv("DETECT_THREADS", "2")
	t.Setenv("DETECT_CAPTURE_FPS", "7.5")
	t.Setenv("DETECT_PREFERENCES_DB", "/var/lib/detect/prefs.db")

	cfg, err := Load(writeConfig(t, "model:\n  path: /file/model.onnx\n"))
	require.NoError(t, err)

	assert.Equal(t, "/env/model.onnx", cfg.Model.Path)
	assert.Equal(t, 2, cfg.Model.Threads)
	assert.Equal(t, 7.5, cfg.Capture.FPS)
	assert.Equal(t, "/var/lib/detect/prefs.db", cfg.Preferences.DBPath)
}

func TestEnvironmentOverrideMustParse(t *testing.T) {
	t.Setenv("DETECT_THREADS", "many")

	_, err := Load("")
	assert.ErrorContains(t, err, "DETECT_THREADS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero capture", func(c *Config) { c.Capture.Width = 0 }, "capture size"},
		{"zero fps", func(c *Config) { c.Capture.FPS = 0 }, "capture.fps"},
		{"bad quality", func(c *Config) { c.Output.JPEGQuality = 101 }, "jpeg_quality"},
		{"broker without topic", func(c *Config) { c.MQTT.Broker = "x:1883"; c.MQTT.Topic = "" }, "mqtt.topic"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"no model", func(c *Config) { c.Model.Path = "" }, "model path"},
		{"no threads", func(c *Config) { c.Model.Threads = 0 }, "thread count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config")
}
