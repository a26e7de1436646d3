// Package postprocess decodes raw detection model outputs into scored,
// suppressed bounding box results.
package postprocess

// BoxRect are the dimensions of the bounding box of a detected object in
// network input pixel coordinates
type BoxRect struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// DetectResult defines the attributes of a single object detected
type DetectResult struct {
	// Class is the label index the Model was trained on defining the
	// Class of the detected object
	Class int
	// Box are the bounding box dimensions of the object location
	Box BoxRect
	// Probability is the confidence score of the object detected
	Probability float32
	// ID is a unique ID assigned to the detection result
	ID int64
}
