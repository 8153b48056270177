package onnx

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LabelsPath is the label file that accompanies a model:
// "gestures.onnx" → "gestures.labels".
func LabelsPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".labels"
}

// LoadLabels reads one label per line. Blank lines and '#' comments are
// skipped.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("onnx: read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("onnx: no labels in %s", path)
	}
	return labels, nil
}
