package v4l2

import (
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory represents the classification of capture errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryDevice indicates the camera node is missing, busy or unplugged
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryFormat indicates caps negotiation or conversion failures
	ErrCategoryFormat
	// ErrCategoryPermission indicates the process cannot open the device
	ErrCategoryPermission
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// CaptureError is the fault reported for one failed capture.
type CaptureError struct {
	Category ErrorCategory
	Seq      uint64
	Err      error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("framesource: capture failed [%s]: %v", e.Category, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// ClassifyGStreamerError categorizes a bus error.
//
// go-gst's GError does not expose the error domain, so classification is
// keyword based on the message and debug string.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return Classify(gerr.Error(), gerr.DebugString())
}

// Classify categorizes an error from its message and debug text.
//
// Priority: permission > format > device.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, permissionKeywords):
		return ErrCategoryPermission
	case containsAny(combined, formatKeywords):
		return ErrCategoryFormat
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

var (
	permissionKeywords = []string{
		"permission denied",
		"not permitted",
		"eacces",
		"eperm",
	}

	formatKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"no converter",
		"missing plugin",
	}

	deviceKeywords = []string{
		"/dev/video",
		"v4l2",
		"device",
		"busy",
		"no such file",
		"could not open",
		"failed to allocate",
		"resource",
		"disconnected",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
