// Package frame defines the unit of work flowing through the gesture pipeline.
//
// A Frame carries one captured image plus the metadata the recognizer needs
// (rotation, acquisition timestamp). Frames are exclusively owned: whoever
// holds a *Frame is responsible for calling Close exactly once, on every exit
// path, so the underlying capture buffer can be returned to its producer.
//
// Ownership chain:
//
//	FrameSource (creates) → Gate slot → drain goroutine → Coordinator.Submit → Close
//	                          ↓ (superseded)
//	                        Close
package frame

import (
	"fmt"
	"sync/atomic"
)

// Frame is a captured image with its acquisition metadata.
//
// Data MUST NOT be modified by consumers. After Close, Data must not be read:
// the buffer may already be back in the producer's pool.
type Frame struct {
	// Data holds raw pixel bytes in Format layout.
	Data []byte

	Width  int
	Height int

	// Format is the pixel layout of Data ("RGB", "GRAY8").
	Format string

	// RotationDegrees is the clockwise rotation (0, 90, 180, 270) the consumer
	// must apply to bring the image upright.
	RotationDegrees int

	// AcquiredAtMs is the monotonic acquisition time in milliseconds. Zero means
	// "not stamped"; the coordinator stamps such frames on submission.
	AcquiredAtMs int64

	// Seq is the producer's sequence number (1-based, monotonically increasing).
	Seq uint64

	// TraceID correlates log lines for this frame across stages.
	TraceID string

	release func()
	closed  atomic.Bool
}

// Option configures a Frame at construction time.
type Option func(*Frame)

// WithRelease attaches the hook invoked by Close.
func WithRelease(fn func()) Option {
	return func(f *Frame) { f.release = fn }
}

// WithRotation sets the rotation metadata.
func WithRotation(deg int) Option {
	return func(f *Frame) { f.RotationDegrees = deg }
}

// WithTimestamp sets the monotonic acquisition time.
func WithTimestamp(ms int64) Option {
	return func(f *Frame) { f.AcquiredAtMs = ms }
}

// WithSeq sets the producer sequence number.
func WithSeq(seq uint64) Option {
	return func(f *Frame) { f.Seq = seq }
}

// WithTraceID sets the trace identifier.
func WithTraceID(id string) Option {
	return func(f *Frame) { f.TraceID = id }
}

// WithFormat sets the pixel layout.
func WithFormat(format string) Option {
	return func(f *Frame) { f.Format = format }
}

// New creates a frame over data. Format defaults to "RGB".
func New(data []byte, width, height int, opts ...Option) *Frame {
	f := &Frame{
		Data:   data,
		Width:  width,
		Height: height,
		Format: FormatRGB,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Pixel formats understood by the recognizers.
const (
	FormatRGB   = "RGB"
	FormatGray8 = "GRAY8"
)

// Close releases the frame's buffer. Only the first call has an effect;
// later calls return nil. Safe on a nil *Frame.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	if f.release != nil {
		f.release()
	}
	return nil
}

// Closed reports whether Close has been called.
func (f *Frame) Closed() bool {
	if f == nil {
		return true
	}
	return f.closed.Load()
}

// BytesPerPixel returns the pixel stride for Format, or 0 if unknown.
func (f *Frame) BytesPerPixel() int {
	switch f.Format {
	case FormatRGB:
		return 3
	case FormatGray8:
		return 1
	default:
		return 0
	}
}

// Validate checks that Data is consistent with the declared geometry.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("frame: invalid size %dx%d", f.Width, f.Height)
	}
	bpp := f.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("frame: unsupported format %q", f.Format)
	}
	if want := f.Width * f.Height * bpp; len(f.Data) < want {
		return fmt.Errorf("frame: short buffer: have %d bytes, need %d", len(f.Data), want)
	}
	if !ValidRotation(f.RotationDegrees) {
		return fmt.Errorf("frame: invalid rotation %d", f.RotationDegrees)
	}
	return nil
}

// ValidRotation reports whether deg is one of 0, 90, 180, 270.
func ValidRotation(deg int) bool {
	switch deg {
	case 0, 90, 180, 270:
		return true
	}
	return false
}
