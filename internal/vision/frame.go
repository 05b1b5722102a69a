package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	ErrEmptyRegion  = errors.New("face region outside frame")
	ErrForeignFrame = errors.New("frame was not captured by this package")
)

// Frame is a captured BGR image plus its grayscale conversion, which both
// detection and face normalization read from.
type Frame struct {
	img  gocv.Mat
	gray gocv.Mat
}

// NewFrame takes ownership of img.
func NewFrame(img gocv.Mat) (*Frame, error) {
	if img.Empty() {
		return nil, errors.New("empty frame")
	}
	gray := gocv.NewMat()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return &Frame{img: img, gray: gray}, nil
}

func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.img.Cols(), f.img.Rows())
}

func (f *Frame) Face(r image.Rectangle, size image.Point) (*image.Gray, error) {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return nil, ErrEmptyRegion
	}

	roi := f.gray.Region(r)
	defer roi.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(roi, &resized, size, 0, 0, gocv.InterpolationLinear)

	img, err := resized.ToImage()
	if err != nil {
		return nil, fmt.Errorf("face to image: %w", err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("face to image: got %T", img)
	}
	return g, nil
}

func (f *Frame) Annotate(r image.Rectangle, label string, c color.RGBA) {
	gocv.Rectangle(&f.img, r, c, 2)
	gocv.PutText(&f.img, label, image.Pt(r.Min.X, r.Min.Y-10), gocv.FontHersheySimplex, 0.7, c, 2)
}

func (f *Frame) JPEG() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.img)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	// The native buffer is freed on Close; copy out.
	return append([]byte(nil), buf.GetBytes()...), nil
}

func (f *Frame) Close() error {
	if err := f.gray.Close(); err != nil {
		_ = f.img.Close()
		return err
	}
	return f.img.Close()
}
