package framesource

import (
	"fmt"
	"time"

	"github.com/e7canasta/senyas-gesture/framesource/internal/v4l2"
)

// Stats contains current capture statistics.
type Stats struct {
	// FrameCount is the number of frames published.
	FrameCount uint64
	// Faults is the number of capture faults reported.
	Faults uint64
	// FPSTarget is the configured frame rate.
	FPSTarget float64
	// FPSReal is FrameCount over uptime.
	FPSReal float64
	// LatencyMS is the time since the last frame.
	LatencyMS int64
	// Resolution is "WxH".
	Resolution string
	// RotationDegrees is the rotation currently stamped on frames.
	RotationDegrees int
	// Reconnects is the number of pipeline restart attempts.
	Reconnects uint32
	// BytesRead is the total payload captured.
	BytesRead uint64
	// IsRunning indicates capture is active.
	IsRunning bool

	// Fault breakdown by category (camera only).
	ErrorsDevice     uint64
	ErrorsFormat     uint64
	ErrorsPermission uint64
	ErrorsUnknown    uint64
}

// CameraConfig configures a V4L2 camera capture.
type CameraConfig struct {
	// Device is the V4L2 node, e.g. "/dev/video0".
	Device string
	// Width and Height are the analysis resolution.
	Width  int
	Height int
	// TargetFPS is the capture rate (1-60).
	TargetFPS float64
	// RotationDegrees is the initial rotation metadata.
	RotationDegrees int

	// Reconnect policy. Zero values use defaults (5 retries, 1s, 30s).
	MaxReconnectAttempts  int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// DefaultCameraConfig returns 640x480 at 15 fps on /dev/video0.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Device:    "/dev/video0",
		Width:     640,
		Height:    480,
		TargetFPS: 15,
	}
}

// SyntheticConfig configures the generated test-pattern source.
type SyntheticConfig struct {
	Width           int
	Height          int
	TargetFPS       float64
	RotationDegrees int
	// FailEvery makes every Nth capture report a fault instead of a frame.
	// Zero disables injected faults.
	FailEvery uint64
}

// WarmupStats contains statistics collected during a warmup window.
type WarmupStats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	// IsStable is true if stddev < 15% of mean and jitter < 20% of interval.
	IsStable     bool
	JitterMean   float64
	JitterStdDev float64
	JitterMax    float64
}

// ErrorCategory classifies capture faults.
type ErrorCategory = v4l2.ErrorCategory

// Fault categories.
const (
	ErrCategoryDevice     = v4l2.ErrCategoryDevice
	ErrCategoryFormat     = v4l2.ErrCategoryFormat
	ErrCategoryPermission = v4l2.ErrCategoryPermission
	ErrCategoryUnknown    = v4l2.ErrCategoryUnknown
)

// CaptureError is the fault reported for one failed capture.
type CaptureError = v4l2.CaptureError

func resolution(w, h int) string { return fmt.Sprintf("%dx%d", w, h) }
