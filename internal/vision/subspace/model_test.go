package subspace_test

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/facegate/internal/vision/subspace"
)

// A 2x2 model whose basis keeps the first two pixels.  Label 10 sits at the
// origin, label 20 at (100, 100).
const eigenModel = `%YAML:1.0
---
opencv_eigenfaces:
   threshold: 1.7976931348623157e+308
   num_components: 2
   mean: !!opencv-matrix
      rows: 1
      cols: 4
      dt: d
      data: [ 0., 0., 0., 0. ]
   eigenvalues: !!opencv-matrix
      rows: 2
      cols: 1
      dt: d
      data: [ 1., 1. ]
   eigenvectors: !!opencv-matrix
      rows: 4
      cols: 2
      dt: d
      data: [ 1., 0., 0., 1., 0., 0., 0., 0. ]
   projections:
      - !!opencv-matrix
         rows: 1
         cols: 2
         dt: d
         data: [ 0., 0. ]
      - !!opencv-matrix
         rows: 1
         cols: 2
         dt: d
         data: [ 100., 100. ]
   labels: !!opencv-matrix
      rows: 2
      cols: 1
      dt: i
      data: [ 10, 20 ]
   labelsInfo:
      []
`

func face(pixels ...uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, 2, 2))
	copy(g.Pix, pixels)
	return g
}

func TestParse_OpenCVEigenModel(t *testing.T) {
	m, err := subspace.Parse(subspace.Eigenfaces, []byte(eigenModel))
	require.NoError(t, err)
	assert.Equal(t, subspace.Eigenfaces, m.Kind())
	assert.Equal(t, 4, m.Dim())
}

func TestPredict_NearestSampleWins(t *testing.T) {
	m, err := subspace.Parse(subspace.Eigenfaces, []byte(eigenModel))
	require.NoError(t, err)

	label, score, err := m.Predict(face(3, 4, 200, 200))
	require.NoError(t, err)
	assert.Equal(t, 10, label)
	assert.InDelta(t, 5.0, score, 1e-9)

	label, _, err = m.Predict(face(97, 96, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 20, label)
}

func TestPredict_LowerScoreIsCloser(t *testing.T) {
	m, err := subspace.Parse(subspace.Eigenfaces, []byte(eigenModel))
	require.NoError(t, err)

	_, near, err := m.Predict(face(1, 1, 0, 0))
	require.NoError(t, err)
	_, far, err := m.Predict(face(30, 30, 0, 0))
	require.NoError(t, err)

	assert.Less(t, near, far, "a face closer to the enrolled sample must score lower")
}

func TestPredict_ModelThresholdRejects(t *testing.T) {
	tight := []byte(strings.Replace(eigenModel, "threshold: 1.7976931348623157e+308", "threshold: 2.", 1))
	m, err := subspace.Parse(subspace.Eigenfaces, tight)
	require.NoError(t, err)

	label, _, err := m.Predict(face(50, 50, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, -1, label)
}

func TestPredict_SizeMismatch(t *testing.T) {
	m, err := subspace.Parse(subspace.Eigenfaces, []byte(eigenModel))
	require.NoError(t, err)

	_, _, err = m.Predict(image.NewGray(image.Rect(0, 0, 90, 120)))
	assert.ErrorIs(t, err, subspace.ErrSizeMismatch)
}

func TestParse_WrongKind(t *testing.T) {
	_, err := subspace.Parse(subspace.Fisherfaces, []byte(eigenModel))
	assert.ErrorIs(t, err, subspace.ErrMalformed)
}

func TestParse_Fisherfaces(t *testing.T) {
	doc := strings.Replace(eigenModel, "opencv_eigenfaces:", "opencv_fisherfaces:", 1)
	m, err := subspace.Parse(subspace.Fisherfaces, []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, subspace.Fisherfaces, m.Kind())
}

func TestParse_MismatchedBasis(t *testing.T) {
	doc := strings.Replace(eigenModel, "rows: 4\n      cols: 2", "rows: 3\n      cols: 2", 1)
	_, err := subspace.Parse(subspace.Eigenfaces, []byte(doc))
	assert.ErrorIs(t, err, subspace.ErrMalformed)
}

func TestLoad_Missing(t *testing.T) {
	_, err := subspace.Load(subspace.Eigenfaces, filepath.Join(t.TempDir(), "nope.yml"))
	assert.True(t, errors.Is(err, subspace.ErrModelNotFound), "got %v", err)
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eigen.yml")
	require.NoError(t, os.WriteFile(path, []byte(eigenModel), 0o644))

	m, err := subspace.Load(subspace.Eigenfaces, path)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Dim())
}
