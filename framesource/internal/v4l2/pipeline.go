package v4l2

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"go.uber.org/zap"
)

// PipelineConfig selects the device and the frame shape delivered to appsink.
type PipelineConfig struct {
	Device    string
	Width     int
	Height    int
	TargetFPS float64
}

// PipelineElements are the handles the camera keeps after creation.
type PipelineElements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
}

// CheckAvailable verifies GStreamer is initialised and v4l2src is installed.
func CheckAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("v4l2src not available (install gstreamer1.0-plugins-good): %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}

// CreatePipeline builds, but does not start, the camera pipeline:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
//
// The capsfilter pins RGB at the analysis resolution so appsink buffers are
// tightly packed Width*Height*3 bytes. appsink keeps one buffer and drops the
// rest, so the capture side already behaves keep-only-latest.
func CreatePipeline(cfg PipelineConfig, logger *zap.Logger) (*PipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", cfg.Device)
	src.SetProperty("do-timestamp", true)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(BuildCaps(cfg.Width, cfg.Height, cfg.TargetFPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)

	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	logger.Debug("v4l2: pipeline created",
		zap.String("device", cfg.Device),
		zap.String("caps", BuildCaps(cfg.Width, cfg.Height, cfg.TargetFPS)),
	)

	return &PipelineElements{Pipeline: pipeline, AppSink: appsink}, nil
}

// DestroyPipeline sets the pipeline to NULL, releasing the device.
// Safe to call with nil elements.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// BuildCaps returns the appsink caps string.
//
// Fractional rates below 1 fps are expressed as 1/N.
func BuildCaps(width, height int, fps float64) string {
	num, den := int(fps), 1
	if fps < 1.0 {
		num, den = 1, int(1.0/fps)
	}
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d", width, height, num, den)
}
