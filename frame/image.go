package frame

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Image copies the frame pixels into an image.Image. The result does not
// alias f.Data and stays valid after Close.
func (f *Frame) Image() (image.Image, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Format {
	case FormatRGB:
		img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
		src := f.Data
		dst := img.Pix
		for i, j := 0, 0; i+2 < len(src) && j+3 < len(dst); i, j = i+3, j+4 {
			dst[j] = src[i]
			dst[j+1] = src[i+1]
			dst[j+2] = src[i+2]
			dst[j+3] = 0xff
		}
		return img, nil
	case FormatGray8:
		img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
		copy(img.Pix, f.Data)
		return img, nil
	default:
		return nil, fmt.Errorf("frame: unsupported pixel format %q", f.Format)
	}
}

// Upright rotates img clockwise by deg (0, 90, 180, 270), the correction a
// frame's RotationDegrees asks for. Other values return img unchanged.
func Upright(img image.Image, deg int) image.Image {
	switch deg {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
