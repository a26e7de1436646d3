package preprocess

import (
	"image"

	"gocv.io/x/gocv"
)

// Resizer defines the struct used for scaling image windows to the
// model input bounds whilst maintaining image aspect
type Resizer struct {
	// minSide is the length the smallest image side is scaled up to
	minSide int
	// maxSide is the length the largest image side is capped at
	maxSide int
}

// NewResizer returns a resizer that scales an image so its smallest
// side equals minSide, unless doing so would push the largest side over
// maxSide, in which case the largest side is scaled to maxSide instead
func NewResizer(minSide, maxSide int) *Resizer {
	return &Resizer{
		minSide: minSide,
		maxSide: maxSide,
	}
}

// ComputeScale returns the scaling factor applied to an image of the
// given dimensions
func (r *Resizer) ComputeScale(srcWidth, srcHeight int) float32 {

	smallest := srcWidth
	largest := srcHeight

	if srcHeight < srcWidth {
		smallest = srcHeight
		largest = srcWidth
	}

	scale := float32(r.minSide) / float32(smallest)

	// cap the scale so the largest side does not exceed maxSide
	if float32(largest)*scale > float32(r.maxSide) {
		scale = float32(r.maxSide) / float32(largest)
	}

	return scale
}

// Resize scales the source image into dest and returns the scale factor
// used, so detections on the resized image can be mapped back to source
// coordinates
func (r *Resizer) Resize(src gocv.Mat, dest *gocv.Mat) float32 {

	scale := r.ComputeScale(src.Cols(), src.Rows())

	width := int(float32(src.Cols()) * scale)
	height := int(float32(src.Rows()) * scale)

	gocv.Resize(src, dest, image.Pt(width, height), 0, 0,
		gocv.InterpolationLinear)

	return scale
}

// MinSide returns the minimum side bound
func (r *Resizer) MinSide() int {
	return r.minSide
}

// MaxSide returns the maximum side bound
func (r *Resizer) MaxSide() int {
	return r.maxSide
}
