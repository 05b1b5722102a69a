package types

import "image"

// Unknown is the name given to faces that fail the threshold gate or whose
// label is not enrolled.
const Unknown = "Unknown"

// Detection is one face found in one frame.  It never outlives the frame.
type Detection struct {
	Rect     image.Rectangle
	Face     *image.Gray
	Label    int
	Score    float64
	Name     string
	Decision Decision
}

// Enrollment maps identity name to the label the classifier was trained with.
type Enrollment map[string]int
