package v4l2

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/internal/clock"
)

// BufferPool recycles frame buffers of one size.
//
// The camera produces fixed-size RGB buffers, so a frame's release hook
// can hand its buffer back for the next sample instead of reallocating
// ~900KB per frame at 640x480.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of size-byte buffers.
func NewBufferPool(size int) *BufferPool {
	p := &BufferPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of exactly n bytes. Pooled when n matches the pool size.
func (p *BufferPool) Get(n int) (*[]byte, bool) {
	if n != p.size {
		b := make([]byte, n)
		return &b, false
	}
	return p.pool.Get().(*[]byte), true
}

// Put returns a buffer obtained from Get.
func (p *BufferPool) Put(b *[]byte) {
	if b == nil || len(*b) != p.size {
		return
	}
	p.pool.Put(b)
}

// CallbackContext holds state needed by appsink callbacks.
type CallbackContext struct {
	Publish func(*frame.Frame)
	OnFault func(error)

	Pool     *BufferPool
	Clock    clock.Clock
	Rotation *atomic.Int32

	FrameCounter *atomic.Uint64
	BytesRead    *atomic.Uint64
	LastFrameMs  *atomic.Int64

	Width  int
	Height int
	Logger *zap.Logger
}

var (
	errNoSample = errors.New("appsink returned no sample")
	errNoBuffer = errors.New("sample has no buffer")
	errEmpty    = errors.New("empty buffer")
)

// OnNewSample is called on the GStreamer streaming thread for each sample.
//
// This callback:
//  1. Pulls the sample and maps its buffer read-only
//  2. Copies the pixels into a pooled buffer (GStreamer reuses its own)
//  3. Stamps the frame with the monotonic clock and current rotation
//  4. Publishes it; the frame's release hook returns the buffer to the pool
//
// A bad sample is reported as a fault and the stream continues
// (returns gst.FlowOK).
func OnNewSample(sink *app.Sink, ctx *CallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		ctx.fault(errNoSample)
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		ctx.fault(errNoBuffer)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		ctx.fault(errEmpty)
		return gst.FlowOK
	}

	want := ctx.Width * ctx.Height * 3
	if len(data) < want {
		buffer.Unmap()
		ctx.fault(fmt.Errorf("short buffer: got %d bytes, caps need %d", len(data), want))
		return gst.FlowOK
	}

	buf, _ := ctx.Pool.Get(want)
	copy(*buf, data[:want])
	buffer.Unmap()

	ctx.publish(buf)
	return gst.FlowOK
}

// publish wraps buf in a frame and hands it to the publisher.
func (ctx *CallbackContext) publish(buf *[]byte) {
	seq := ctx.FrameCounter.Add(1)
	ctx.BytesRead.Add(uint64(len(*buf)))
	now := ctx.Clock.NowMs()
	ctx.LastFrameMs.Store(now)

	pool := ctx.Pool
	f := frame.New(*buf, ctx.Width, ctx.Height,
		frame.WithSeq(seq),
		frame.WithTimestamp(now),
		frame.WithRotation(int(ctx.Rotation.Load())),
		frame.WithTraceID(uuid.New().String()),
		frame.WithRelease(func() { pool.Put(buf) }),
	)

	ctx.Publish(f)
}

func (ctx *CallbackContext) fault(err error) {
	ctx.Logger.Warn("v4l2: dropping bad sample", zap.Error(err))
	ctx.OnFault(&CaptureError{
		Category: ErrCategoryUnknown,
		Seq:      ctx.FrameCounter.Load() + 1,
		Err:      err,
	})
}
