package vision

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	"gocv.io/x/gocv"

	"github.com/BrandonDHaskell/facegate/internal/facegate/pipeline"
)

const (
	ScaleFactor  = 1.1
	MinNeighbors = 5
)

var ErrCascadeNotFound = errors.New("cascade file not found")

type CascadeDetector struct {
	classifier gocv.CascadeClassifier
}

func NewCascadeDetector(path string) (*CascadeDetector, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCascadeNotFound, path)
	}

	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		_ = c.Close()
		return nil, fmt.Errorf("load cascade %s: unreadable", path)
	}
	return &CascadeDetector{classifier: c}, nil
}

func (d *CascadeDetector) Detect(frame pipeline.Frame) ([]image.Rectangle, error) {
	f, ok := frame.(*Frame)
	if !ok {
		return nil, ErrForeignFrame
	}
	return d.classifier.DetectMultiScaleWithParams(
		f.gray, ScaleFactor, MinNeighbors, 0, image.Point{}, image.Point{},
	), nil
}

func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}
