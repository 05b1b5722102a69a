// Package subspace predicts with eigenfaces and fisherfaces models saved by
// OpenCV's face module.  Both store a mean face, a projection basis and the
// projected training samples; prediction is nearest neighbour in the
// projected space, so the score is a Euclidean distance.
package subspace

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	Eigenfaces  Kind = "eigenfaces"
	Fisherfaces Kind = "fisherfaces"
)

var (
	ErrModelNotFound = errors.New("model file not found")
	ErrMalformed     = errors.New("malformed subspace model")
	ErrSizeMismatch  = errors.New("face size does not match model")
)

// OpenCV writes the model under a node named after the algorithm.
var rootNodes = map[Kind]string{
	Eigenfaces:  "opencv_eigenfaces",
	Fisherfaces: "opencv_fisherfaces",
}

type matrix struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	DT   string    `yaml:"dt"`
	Data []float64 `yaml:"data"`
}

func (m matrix) check(name string) error {
	if m.Rows <= 0 || m.Cols <= 0 || len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("%w: %s is %dx%d with %d values", ErrMalformed, name, m.Rows, m.Cols, len(m.Data))
	}
	return nil
}

type modelNode struct {
	Threshold    *float64 `yaml:"threshold"`
	Mean         matrix   `yaml:"mean"`
	Eigenvectors matrix   `yaml:"eigenvectors"`
	Projections  []matrix `yaml:"projections"`
	Labels       matrix   `yaml:"labels"`
}

type Model struct {
	kind        Kind
	threshold   float64
	mean        []float64
	basis       *mat.Dense
	projections [][]float64
	labels      []int
}

// Load reads a model of the given kind from path.
func Load(kind Kind, path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	return Parse(kind, b)
}

func Parse(kind Kind, b []byte) (*Model, error) {
	root, ok := rootNodes[kind]
	if !ok {
		return nil, fmt.Errorf("unknown subspace kind %q", kind)
	}

	var doc map[string]modelNode
	if err := yaml.Unmarshal(cleanOpenCVYAML(b), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	node, ok := doc[root]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s node", ErrMalformed, root)
	}
	return build(kind, node)
}

// cleanOpenCVYAML drops the "%YAML:1.0" directive, which is not valid YAML,
// and the !!opencv-matrix tags.
func cleanOpenCVYAML(b []byte) []byte {
	lines := bytes.Split(b, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, l := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(l), []byte("%YAML")) {
			continue
		}
		out = append(out, bytes.ReplaceAll(l, []byte("!!opencv-matrix"), nil))
	}
	return bytes.Join(out, []byte("\n"))
}

func build(kind Kind, n modelNode) (*Model, error) {
	if err := n.Mean.check("mean"); err != nil {
		return nil, err
	}
	if err := n.Eigenvectors.check("eigenvectors"); err != nil {
		return nil, err
	}
	dim := len(n.Mean.Data)
	if n.Eigenvectors.Rows != dim {
		return nil, fmt.Errorf("%w: eigenvectors have %d rows, mean has %d values", ErrMalformed, n.Eigenvectors.Rows, dim)
	}
	k := n.Eigenvectors.Cols

	if len(n.Projections) == 0 {
		return nil, fmt.Errorf("%w: no projections", ErrMalformed)
	}
	if len(n.Labels.Data) != len(n.Projections) {
		return nil, fmt.Errorf("%w: %d labels for %d projections", ErrMalformed, len(n.Labels.Data), len(n.Projections))
	}

	m := &Model{
		kind:        kind,
		threshold:   math.MaxFloat64,
		mean:        n.Mean.Data,
		basis:       mat.NewDense(dim, k, n.Eigenvectors.Data),
		projections: make([][]float64, len(n.Projections)),
		labels:      make([]int, len(n.Labels.Data)),
	}
	if n.Threshold != nil && *n.Threshold > 0 {
		m.threshold = *n.Threshold
	}
	for i, p := range n.Projections {
		if err := p.check(fmt.Sprintf("projection %d", i)); err != nil {
			return nil, err
		}
		if len(p.Data) != k {
			return nil, fmt.Errorf("%w: projection %d has %d components, want %d", ErrMalformed, i, len(p.Data), k)
		}
		m.projections[i] = p.Data
	}
	for i, l := range n.Labels.Data {
		m.labels[i] = int(l)
	}
	return m, nil
}

func (m *Model) Kind() Kind { return m.kind }

// Dim is the number of pixels a face must have.
func (m *Model) Dim() int { return len(m.mean) }

// Predict projects face into the model subspace and returns the label of the
// nearest training sample and its distance.  Lower is better.  When no sample
// lies within the model's own threshold the label is -1.
func (m *Model) Predict(face *image.Gray) (int, float64, error) {
	b := face.Bounds()
	if b.Dx()*b.Dy() != len(m.mean) {
		return -1, 0, fmt.Errorf("%w: %dx%d face, model expects %d pixels", ErrSizeMismatch, b.Dx(), b.Dy(), len(m.mean))
	}

	x := make([]float64, 0, len(m.mean))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := face.Pix[face.PixOffset(b.Min.X, y):face.PixOffset(b.Max.X, y)]
		for _, p := range row {
			x = append(x, float64(p))
		}
	}
	floats.Sub(x, m.mean)

	_, k := m.basis.Dims()
	var q mat.Dense
	q.Mul(mat.NewDense(1, len(x), x), m.basis)
	proj := q.RawRowView(0)[:k]

	label, best := -1, math.MaxFloat64
	for i, p := range m.projections {
		d := floats.Distance(p, proj, 2)
		if d < best && d < m.threshold {
			best = d
			label = m.labels[i]
		}
	}
	return label, best, nil
}
