// Package vision adapts OpenCV (through gocv) to the recognition pipeline:
// camera capture, Haar cascade face detection, face normalization, frame
// annotation and the face classifiers.
//
// Everything here needs cgo and an OpenCV install with the contrib modules.
// The pipeline and access logic live elsewhere and are tested without it.
package vision
