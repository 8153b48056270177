// Command senyas-capture exercises a frame source without recognition: it
// runs the optional warm-up, prints capture statistics and can save frames
// to disk for checking framing and rotation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/framesource"
	"github.com/e7canasta/senyas-gesture/internal/logging"
)

const version = "v0.1.0"

// channelPublisher hands frames to the main loop, dropping when it lags.
type channelPublisher struct {
	frames  chan *frame.Frame
	dropped atomic.Uint64
}

func (p *channelPublisher) Publish(f *frame.Frame) {
	select {
	case p.frames <- f:
	default:
		p.dropped.Add(1)
		f.Close()
	}
}

func main() {
	device := flag.String("device", "/dev/video0", "V4L2 device")
	width := flag.Int("width", 640, "Capture width")
	height := flag.Int("height", 480, "Capture height")
	fps := flag.Float64("fps", 15, "Target FPS (1-60)")
	rotation := flag.Int("rotation", 0, "Rotation metadata: 0, 90, 180, 270")
	synthetic := flag.Bool("synthetic", false, "Use the generated test pattern instead of a camera")
	outputDir := flag.String("output", "", "Directory to save captured frames (optional)")
	outputFormat := flag.String("format", "png", "Output format: png, jpeg")
	jpegQuality := flag.Int("jpeg-quality", 90, "JPEG quality (1-100, only for jpeg format)")
	upright := flag.Bool("upright", true, "Rotate saved frames upright using the rotation metadata")
	maxFrames := flag.Int("max-frames", 0, "Maximum frames to capture (0 = unlimited)")
	statsInterval := flag.Int("stats-interval", 10, "Seconds between stats reports")
	warmupS := flag.Int("warmup", 5, "Warm-up seconds before capture (0 = skip)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("senyas-capture %s\n", version)
		return
	}

	logger, err := logging.NewLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	saver, err := newFrameSaver(*outputDir, *outputFormat, *jpegQuality, *upright)
	if err != nil {
		logger.Fatal("invalid output settings", zap.Error(err))
	}

	source, err := newSource(*synthetic, framesource.CameraConfig{
		Device:          *device,
		Width:           *width,
		Height:          *height,
		TargetFPS:       *fps,
		RotationDegrees: *rotation,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create frame source", zap.Error(err))
	}

	printBanner(*device, *synthetic, *width, *height, *fps, *outputDir, *maxFrames)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if *warmupS > 0 {
		fmt.Printf("Warming up for %ds...\n", *warmupS)
		stats, err := framesource.Warmup(ctx, source, time.Duration(*warmupS)*time.Second, logger)
		if err != nil {
			logger.Warn("warm-up failed", zap.Error(err))
		} else {
			printWarmup(stats)
		}
	}

	pub := &channelPublisher{frames: make(chan *frame.Frame, 4)}
	var faults atomic.Uint64
	onFault := func(err error) {
		faults.Add(1)
		logger.Warn("capture fault", zap.Error(err))
	}

	startTime := time.Now()
	if err := source.Start(ctx, pub, onFault); err != nil {
		logger.Fatal("failed to start capture", zap.Error(err))
	}

	statsTicker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
	defer statsTicker.Stop()

	frameCount := 0
loop:
	for {
		select {
		case sig := <-sigChan:
			fmt.Printf("\n\nReceived %s, shutting down...\n", sig)
			break loop

		case <-statsTicker.C:
			printStats(source.Stats(), time.Since(startTime), saver, pub.dropped.Load())

		case f := <-pub.frames:
			frameCount++
			fmt.Printf("[%s] Frame #%-6d | Seq: %-8d | %dx%d %s | Rotation: %3d | t=%dms\n",
				time.Now().Format("15:04:05"),
				frameCount,
				f.Seq,
				f.Width, f.Height, f.Format,
				f.RotationDegrees,
				f.AcquiredAtMs,
			)
			if saver != nil {
				if err := saver.save(f); err != nil {
					logger.Error("failed to save frame", zap.Error(err), zap.Uint64("seq", f.Seq))
				}
			}
			f.Close()

			if *maxFrames > 0 && frameCount >= *maxFrames {
				fmt.Printf("\nReached maximum frames (%d), stopping...\n", *maxFrames)
				break loop
			}
		}
	}

	cancel()
	if err := source.Stop(); err != nil {
		logger.Error("error stopping capture", zap.Error(err))
	}
	// Release anything still buffered.
drain:
	for {
		select {
		case f := <-pub.frames:
			f.Close()
		default:
			break drain
		}
	}

	printFinal(source.Stats(), time.Since(startTime), saver, pub.dropped.Load(), faults.Load())
}

func newSource(synthetic bool, cam framesource.CameraConfig, logger *zap.Logger) (framesource.Provider, error) {
	if synthetic {
		return framesource.NewSynthetic(framesource.SyntheticConfig{
			Width:           cam.Width,
			Height:          cam.Height,
			TargetFPS:       cam.TargetFPS,
			RotationDegrees: cam.RotationDegrees,
		}, framesource.WithLogger(logger))
	}
	return framesource.NewCamera(cam, framesource.WithLogger(logger))
}
