// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tutortoise/live-detection-service/detections"
	"github.com/Tutortoise/live-detection-service/models"
)

// Config is the complete service configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Server      ServerConfig      `yaml:"server"`
	Model       ModelConfig       `yaml:"model"`
	Capture     CaptureConfig     `yaml:"capture"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Preferences PreferencesConfig `yaml:"preferences"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Output      OutputConfig      `yaml:"output"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ConfigureTimeout bounds how long a preferences request waits for the
	// detector to report its status.
	ConfigureTimeout time.Duration `yaml:"configure_timeout"`
}

type ModelConfig struct {
	Path          string      `yaml:"path"`
	Labels        string      `yaml:"labels"`
	InputSize     int         `yaml:"input_size"`
	MaxDetections int         `yaml:"max_detections"`
	Threads       int         `yaml:"threads"`
	AllowFP16     bool        `yaml:"allow_fp16"`
	Quantized     bool        `yaml:"quantized"`
	Tensors       TensorNames `yaml:"tensors"`
}

type TensorNames struct {
	Input   string    `yaml:"input"`
	Outputs [4]string `yaml:"outputs"` // locations, classes, scores, count
}

type CaptureConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
	Dir    string  `yaml:"dir"` // frames replayed by the file source
	Loop   bool    `yaml:"loop"`
}

type RuntimeConfig struct {
	LibraryPath string `yaml:"library_path"`
}

type PreferencesConfig struct {
	// DBPath selects the sqlite store; empty keeps preferences in memory.
	DBPath string `yaml:"db_path"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables the emitter
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

type OutputConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	names := detections.DefaultTensorNames()
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:             "127.0.0.1:8080",
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     60 * time.Second,
			ShutdownTimeout:  5 * time.Second,
			ConfigureTimeout: 30 * time.Second,
		},
		Model: ModelConfig{
			Path:          "models/detect.onnx",
			Labels:        "models/labelmap.txt",
			InputSize:     detections.DefaultInputSize,
			MaxDetections: detections.DefaultMaxDetections,
			Threads:       detections.DefaultNumThreads,
			Quantized:     true,
			Tensors:       TensorNames{Input: names.Input, Outputs: names.Outputs},
		},
		Capture: CaptureConfig{
			Width:  1920,
			Height: 1080,
			FPS:    15,
			Dir:    "frames",
			Loop:   true,
		},
		MQTT: MQTTConfig{
			Topic: "detections/live",
			QoS:   0,
		},
		Output: OutputConfig{JPEGQuality: 85},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("DETECT_LOG_LEVEL", c.LogLevel)
	c.Server.Addr = getEnv("DETECT_ADDR", c.Server.Addr)
	c.Model.Path = getEnv("DETECT_MODEL_PATH", c.Model.Path)
	c.Model.Labels = getEnv("DETECT_LABELS_PATH", c.Model.Labels)
	c.Capture.Dir = getEnv("DETECT_CAPTURE_DIR", c.Capture.Dir)
	c.Runtime.LibraryPath = getEnv("DETECT_ORT_LIBRARY", c.Runtime.LibraryPath)
	c.Preferences.DBPath = getEnv("DETECT_PREFERENCES_DB", c.Preferences.DBPath)
	c.MQTT.Broker = getEnv("DETECT_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Topic = getEnv("DETECT_MQTT_TOPIC", c.MQTT.Topic)

	var err error
	if c.Model.Threads, err = getEnvInt("DETECT_THREADS", c.Model.Threads); err != nil {
		return err
	}
	if c.Capture.FPS, err = getEnvFloat("DETECT_CAPTURE_FPS", c.Capture.FPS); err != nil {
		return err
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		errs = append(errs, fmt.Errorf("capture size must be positive, got %dx%d", c.Capture.Width, c.Capture.Height))
	}
	if c.Capture.FPS <= 0 {
		errs = append(errs, fmt.Errorf("capture.fps must be positive, got %v", c.Capture.FPS))
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("output.jpeg_quality must be within [1,100], got %d", c.Output.JPEGQuality))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic is required when a broker is set"))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Server.ConfigureTimeout <= 0 {
		errs = append(errs, errors.New("server.configure_timeout must be positive"))
	}
	if err := c.ModelConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ModelConfig converts the model section; the acceleration mode is filled in
// per configuration attempt from the preferences.
func (c *Config) ModelConfig() models.ModelConfig {
	return models.ModelConfig{
		ModelPath:     c.Model.Path,
		LabelPath:     c.Model.Labels,
		InputSize:     c.Model.InputSize,
		MaxDetections: c.Model.MaxDetections,
		NumThreads:    c.Model.Threads,
		AllowFP16:     c.Model.AllowFP16,
		Quantized:     c.Model.Quantized,
		Acceleration:  models.DefaultAcceleration,
	}
}

func (c *Config) CaptureSize() image.Point {
	return image.Pt(c.Capture.Width, c.Capture.Height)
}

func (c *Config) TensorNames() detections.TensorNames {
	return detections.TensorNames{Input: c.Model.Tensors.Input, Outputs: c.Model.Tensors.Outputs}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
