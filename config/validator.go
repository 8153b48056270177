package config

import (
	"fmt"
	"regexp"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/recognizer"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate fills defaults and checks the configuration.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := validateRecognizer(&cfg.Recognizer); err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	validateMQTT(&cfg.MQTT, cfg.InstanceID)
	if err := validateHistory(&cfg.History, cfg.InstanceID); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

func validateCamera(c *CameraConfig) error {
	if c.Device == "" {
		c.Device = "/dev/video0"
	}
	// Analysis resolution of the live preview.
	if c.Width == 0 && c.Height == 0 {
		c.Width, c.Height = 640, 480
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be > 0")
	}
	if c.FPS == 0 {
		c.FPS = 15
	}
	if c.FPS < 0 {
		return fmt.Errorf("fps must be > 0")
	}
	if !frame.ValidRotation(c.RotationDegrees) {
		return fmt.Errorf("rotation_degrees must be 0, 90, 180 or 270, got %d", c.RotationDegrees)
	}
	if c.WarmupS < 0 {
		return fmt.Errorf("warmup_s must be >= 0")
	}
	return nil
}

func validateRecognizer(r *RecognizerConfig) error {
	if r.Backend == "" {
		r.Backend = BackendSubprocess
	}
	if r.ModelAssetPath == "" {
		r.ModelAssetPath = recognizer.DefaultModelAssetPath
	}
	if r.NumHands == 0 {
		r.NumHands = 1
	}
	if r.NumHands < 0 {
		return fmt.Errorf("num_hands must be >= 1")
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1]")
	}

	switch r.Backend {
	case BackendSubprocess:
		if len(r.WorkerCommand) == 0 {
			return fmt.Errorf("worker_command is required for the subprocess backend")
		}
		if r.ReadyTimeoutS <= 0 {
			r.ReadyTimeoutS = 15
		}
	case BackendONNX:
		if r.ONNXInputSize <= 0 {
			r.ONNXInputSize = 224
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", r.Backend, BackendSubprocess, BackendONNX)
	}
	return nil
}

func validateMQTT(m *MQTTConfig, instanceID string) {
	if m.Topics.Control == "" {
		m.Topics.Control = fmt.Sprintf("senyas/control/%s", instanceID)
	}
	if m.Topics.Gestures == "" {
		m.Topics.Gestures = fmt.Sprintf("senyas/gestures/%s", instanceID)
	}
	if m.Topics.Health == "" {
		m.Topics.Health = fmt.Sprintf("senyas/health/%s", instanceID)
	}
	if m.QoS == nil {
		m.QoS = map[string]byte{
			"control":  1,
			"gestures": 0,
			"health":   0,
		}
	}
}

func validateHistory(h *HistoryConfig, instanceID string) error {
	if h.Backend == "" {
		h.Backend = HistoryMemory
	}
	switch h.Backend {
	case HistoryMemory:
	case HistoryRedis:
		if h.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", h.Backend, HistoryMemory, HistoryRedis)
	}
	if h.Key == "" {
		h.Key = fmt.Sprintf("senyas:history:%s", instanceID)
	}
	if h.MaxItems <= 0 {
		h.MaxItems = 50
	}
	if h.MinScore == 0 {
		h.MinScore = 0.6
	}
	if h.MinScore < 0 || h.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1]")
	}
	if h.StableFrames <= 0 {
		h.StableFrames = 5
	}
	return nil
}
