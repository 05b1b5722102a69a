package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"strings"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/BrandonDHaskell/facegate/internal/facegate/pipeline"
	"github.com/BrandonDHaskell/facegate/internal/vision/subspace"
)

type Algorithm string

const (
	AlgorithmEigenfaces  Algorithm = "eigenfaces"
	AlgorithmFisherfaces Algorithm = "fisherfaces"
	AlgorithmLBPH        Algorithm = "lbph"
)

// ErrModelNotFound is returned when the trained model file does not exist.
var ErrModelNotFound = subspace.ErrModelNotFound

var ErrUnknownAlgorithm = errors.New("unknown classifier algorithm")

func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case AlgorithmEigenfaces, AlgorithmFisherfaces, AlgorithmLBPH:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Classifier is a loaded face recognizer.  Predict scores are distances.
type Classifier interface {
	pipeline.Classifier
	Algorithm() Algorithm
	Close() error
}

// LoadClassifier builds the recognizer for alg from a model trained with
// OpenCV's face module.
func LoadClassifier(alg Algorithm, path string) (Classifier, error) {
	switch alg {
	case AlgorithmEigenfaces, AlgorithmFisherfaces:
		m, err := subspace.Load(subspace.Kind(alg), path)
		if err != nil {
			return nil, err
		}
		return &subspaceClassifier{alg: alg, model: m}, nil
	case AlgorithmLBPH:
		return loadLBPH(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

type subspaceClassifier struct {
	alg   Algorithm
	model *subspace.Model
}

func (c *subspaceClassifier) Predict(face *image.Gray) (int, float64, error) {
	return c.model.Predict(face)
}

func (c *subspaceClassifier) Algorithm() Algorithm { return c.alg }

func (c *subspaceClassifier) Close() error { return nil }

type lbphClassifier struct {
	recognizer *contrib.LBPHFaceRecognizer
}

func loadLBPH(path string) (*lbphClassifier, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	// OpenCV aborts on a malformed model instead of reporting it, so check
	// the root node before handing the file over.
	if !bytes.Contains(b, []byte("opencv_lbphfaces")) {
		return nil, fmt.Errorf("model %s is not an LBPH model", path)
	}

	r := contrib.NewLBPHFaceRecognizer()
	r.LoadFile(path)
	return &lbphClassifier{recognizer: r}, nil
}

func (c *lbphClassifier) Predict(face *image.Gray) (int, float64, error) {
	m, err := gocv.ImageGrayToMatGray(face)
	if err != nil {
		return -1, 0, fmt.Errorf("face to mat: %w", err)
	}
	defer m.Close()

	resp := c.recognizer.PredictExtendedResponse(m)
	return int(resp.Label), float64(resp.Confidence), nil
}

func (c *lbphClassifier) Algorithm() Algorithm { return AlgorithmLBPH }

func (c *lbphClassifier) Close() error { return nil }
