package onnx

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/recognizer"
)

// fillTensor resizes img to size x size and writes it to dst as planar
// RGB in [0,1].
func fillTensor(img image.Image, size int, dst []float32) error {
	plane := size * size
	if len(dst) < 3*plane {
		return fmt.Errorf("onnx: tensor too small: %d < %d", len(dst), 3*plane)
	}
	resized := imaging.Resize(img, size, size, imaging.Linear)
	pix := resized.Pix
	for i := 0; i < plane; i++ {
		p := pix[i*4 : i*4+3]
		dst[i] = float32(p[0]) / 255.0
		dst[plane+i] = float32(p[1]) / 255.0
		dst[2*plane+i] = float32(p[2]) / 255.0
	}
	return nil
}

// preprocess turns a frame into the model input.
func preprocess(f *frame.Frame, size int, dst []float32) error {
	img, err := f.Image()
	if err != nil {
		return err
	}
	return fillTensor(frame.Upright(img, f.RotationDegrees), size, dst)
}

// softmax returns a new slice of probabilities for logits.
func softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// classify builds sorted candidates from logits. It returns nil when the
// best probability is below minScore.
func classify(logits []float32, labels []string, minScore float32) []recognizer.Category {
	probs := softmax(logits)
	cats := make([]recognizer.Category, len(probs))
	for i, p := range probs {
		cats[i] = recognizer.Category{Name: labelFor(labels, i), Score: p, Index: i}
	}
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Score > cats[j].Score })
	if len(cats) == 0 || cats[0].Score < minScore {
		return nil
	}
	return cats
}

func labelFor(labels []string, i int) string {
	if i < len(labels) && labels[i] != "" {
		return labels[i]
	}
	return fmt.Sprintf("class_%d", i)
}
