// Package config loads the senyasd YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
type Config struct {
	InstanceID       string           `yaml:"instance_id"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // default 5
	Camera           CameraConfig     `yaml:"camera"`
	Recognizer       RecognizerConfig `yaml:"recognizer"`
	MQTT             MQTTConfig       `yaml:"mqtt"`
	History          HistoryConfig    `yaml:"history"`
	Health           HealthConfig     `yaml:"health"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Device          string `yaml:"device"` // e.g. /dev/video0
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	FPS             int    `yaml:"fps"`
	RotationDegrees int    `yaml:"rotation_degrees"` // 0, 90, 180, 270
	// Synthetic replaces the camera with a generated pattern (no hardware).
	Synthetic bool `yaml:"synthetic"`
	// WarmupS measures capture FPS for this long before recognition starts. 0 disables.
	WarmupS int `yaml:"warmup_s"`
}

// Recognizer backends.
const (
	BackendSubprocess = "subprocess"
	BackendONNX       = "onnx"
)

// RecognizerConfig configures the recognition engine.
type RecognizerConfig struct {
	Backend         string   `yaml:"backend"` // subprocess | onnx
	ModelAssetPath  string   `yaml:"model_asset_path"`
	NumHands        int      `yaml:"num_hands"`
	MinScore        float32  `yaml:"min_score"`
	WorkerCommand   []string `yaml:"worker_command"`    // subprocess
	Labels          []string `yaml:"labels"`            // onnx, optional
	ONNXLibraryPath string   `yaml:"onnx_library_path"` // onnx, optional
	ONNXInputSize   int      `yaml:"onnx_input_size"`   // onnx, default 224
	ReadyTimeoutS   int      `yaml:"ready_timeout_s"`   // subprocess, default 15
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics are the topics used by the daemon.
type MQTTTopics struct {
	Control  string `yaml:"control"`
	Gestures string `yaml:"gestures"`
	Health   string `yaml:"health"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// History backends.
const (
	HistoryMemory = "memory"
	HistoryRedis  = "redis"
)

// HistoryConfig configures the translation history.
type HistoryConfig struct {
	Backend      string  `yaml:"backend"` // memory | redis
	RedisAddr    string  `yaml:"redis_addr"`
	Key          string  `yaml:"key"`
	MaxItems     int     `yaml:"max_items"`     // default 50
	MinScore     float32 `yaml:"min_score"`     // default 0.6
	StableFrames int     `yaml:"stable_frames"` // default 5
}

// HealthConfig configures the HTTP health server. An empty addr disables it.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, then defaults and validates them.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
