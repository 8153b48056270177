package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/e7canasta/senyas-gesture/frame"
)

// frameSaver writes frames as image files. Used only from the main loop.
type frameSaver struct {
	dir     string
	format  string
	quality int
	upright bool

	saved  int
	failed int
}

// newFrameSaver returns nil when dir is empty.
func newFrameSaver(dir, format string, quality int, upright bool) (*frameSaver, error) {
	if dir == "" {
		return nil, nil
	}
	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("invalid output format %q (must be png or jpeg)", format)
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("invalid jpeg quality %d (must be 1-100)", quality)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &frameSaver{dir: dir, format: format, quality: quality, upright: upright}, nil
}

func (s *frameSaver) save(f *frame.Frame) error {
	if err := s.write(f); err != nil {
		s.failed++
		return err
	}
	s.saved++
	return nil
}

func (s *frameSaver) write(f *frame.Frame) error {
	img, err := f.Image()
	if err != nil {
		return err
	}
	if s.upright {
		img = frame.Upright(img, f.RotationDegrees)
	}
	name := fmt.Sprintf("frame_%06d_%dms.%s", f.Seq, f.AcquiredAtMs, s.format)
	path := filepath.Join(s.dir, name)
	if err := imaging.Save(img, path, imaging.JPEGQuality(s.quality)); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}
