// Package pipeline runs detection, classification, identity resolution and
// access control over one frame at a time.
package pipeline

import (
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

// FaceSize is the normalized face region handed to the classifier: 90 wide,
// 120 high.
var FaceSize = image.Pt(90, 120)

var (
	ColorGranted        = color.RGBA{R: 77, G: 255, B: 136, A: 255}
	ColorDenied         = color.RGBA{R: 255, G: 77, B: 77, A: 255}
	ColorAlreadyGranted = color.RGBA{R: 77, G: 166, B: 255, A: 255}
)

// Frame is a captured image the pipeline can read faces from and draw on.
type Frame interface {
	Bounds() image.Rectangle
	// Face returns the grayscale region bounded by r resized to size.
	Face(r image.Rectangle, size image.Point) (*image.Gray, error)
	Annotate(r image.Rectangle, label string, c color.RGBA)
}

type Detector interface {
	Detect(frame Frame) ([]image.Rectangle, error)
}

// Classifier predicts the enrolled label closest to face.  The score is a
// distance: lower means a closer match.
type Classifier interface {
	Predict(face *image.Gray) (label int, score float64, err error)
}

type Resolver interface {
	Resolve(label int, score float64) string
}

type AccessGate interface {
	Decide(name string, t time.Time) types.Decision
}

// Recorder receives per-frame measurements.  A nil Recorder is allowed.
type Recorder interface {
	ObserveFrame(faces int, took time.Duration)
	ObserveDecision(d types.Decision)
}

type Dependencies struct {
	Logger     *slog.Logger
	Detector   Detector
	Classifier Classifier
	Resolver   Resolver
	Access     AccessGate
	Recorder   Recorder
	Now        func() time.Time
}

type Pipeline struct {
	logger     *slog.Logger
	detector   Detector
	classifier Classifier
	resolver   Resolver
	access     AccessGate
	recorder   Recorder
	now        func() time.Time
}

// Result is what one frame produced.  Decision is the decision of the last
// face processed, or DecisionNone when no face was found.
type Result struct {
	Decision   types.Decision
	Detections []types.Detection
}

func New(d Dependencies) *Pipeline {
	p := &Pipeline{
		logger:     d.Logger,
		detector:   d.Detector,
		classifier: d.Classifier,
		resolver:   d.Resolver,
		access:     d.Access,
		recorder:   d.Recorder,
		now:        d.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Process annotates frame in place and returns the frame's decision.  Errors
// from any stage stay inside the frame: a failed detection counts as no
// faces, a failed normalization or prediction resolves to Unknown.
func (p *Pipeline) Process(frame Frame) Result {
	start := time.Now()

	rects, err := p.detector.Detect(frame)
	if err != nil {
		p.logger.Warn("face detection failed", "err", err)
		rects = nil
	}

	res := Result{Decision: types.DecisionNone}
	if len(rects) > 0 {
		res.Detections = make([]types.Detection, 0, len(rects))
	}

	for _, r := range rects {
		det := p.processFace(frame, r)
		res.Detections = append(res.Detections, det)
		res.Decision = det.Decision
	}

	if p.recorder != nil {
		p.recorder.ObserveFrame(len(rects), time.Since(start))
	}
	return res
}

func (p *Pipeline) processFace(frame Frame, r image.Rectangle) types.Detection {
	det := types.Detection{Rect: r, Label: -1, Name: types.Unknown}

	face, err := frame.Face(r, FaceSize)
	if err != nil {
		p.logger.Debug("face normalization failed", "rect", r.String(), "err", err)
	} else {
		det.Face = face
		label, score, err := p.classifier.Predict(face)
		if err != nil {
			p.logger.Debug("face prediction failed", "rect", r.String(), "err", err)
		} else {
			det.Label = label
			det.Score = score
			det.Name = p.resolver.Resolve(label, score)
		}
	}

	det.Decision = p.access.Decide(det.Name, p.now())
	frame.Annotate(r, det.Name, DecisionColor(det.Decision))

	if p.recorder != nil {
		p.recorder.ObserveDecision(det.Decision)
	}
	p.logger.Debug("face processed",
		"name", det.Name,
		"label", det.Label,
		"score", det.Score,
		"decision", det.Decision.String(),
	)
	return det
}

// DecisionColor is the annotation colour for a decision.
func DecisionColor(d types.Decision) color.RGBA {
	switch d {
	case types.DecisionGranted:
		return ColorGranted
	case types.DecisionAlreadyGranted:
		return ColorAlreadyGranted
	default:
		return ColorDenied
	}
}
