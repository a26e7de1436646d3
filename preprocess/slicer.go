package preprocess

import "math"

// Slicer defines the struct used for slicing a large raw imagery tile
// into a grid of overlapping evaluation windows
type Slicer struct {
	// windowWidth is the width of each window
	windowWidth int
	// windowHeight is the height of each window
	windowHeight int
	// overlapWidth is a ratio from 0.0 to 1.0 of windowWidth pixels to
	// overlap adjacent windows by
	overlapWidth float32
	// overlapHeight is a ratio from 0.0 to 1.0 of windowHeight pixels to
	// overlap adjacent windows by
	overlapHeight float32
}

// Window defines the coordinates of one window within the source tile
type Window struct {
	// X is the coordinate of the windows left corner
	X int
	// Y is the coordinate of the windows top corner
	Y int
	// X2 is the coordinate of the windows right corner
	X2 int
	// Y2 is the coordinate of the windows bottom corner
	Y2 int
}

// NewSlicer returns a Slicer instance for cutting a source tile into a
// series of windows for inference
func NewSlicer(windowWidth, windowHeight int, overlapWidth,
	overlapHeight float32) *Slicer {

	return &Slicer{
		windowWidth:   windowWidth,
		windowHeight:  windowHeight,
		overlapWidth:  overlapWidth,
		overlapHeight: overlapHeight,
	}
}

// computePositions returns the start coordinates (0 based) of each
// window along one axis, and the computed window length.  It guarantees:
//
//   - you get the smallest n windows so that n*winLen - (n-1)*step >= srcLen
//   - step = (srcLen-winLen)/(n-1) is =< sliceLen
//   - thus overlap = winLen - step >= sliceLen*overlapRatio
//
// any leftover pixels to cover the tile get spread evenly via rounding
func computePositions(srcLen, sliceLen int, overlapRatio float32) ([]int, int) {

	// minimum pixel overlap
	minOv := int(math.Ceil(float64(sliceLen) * float64(overlapRatio)))

	// window length = sliceLen + that minimum overlap
	winLen := sliceLen + minOv

	if winLen >= srcLen {
		// tile fits in a single window
		return []int{0}, srcLen
	}

	// how many windows are needed if stepping by sliceLen each time,
	// this ensures step =< sliceLen and so overlap >= minOv
	n := int(math.Ceil(float64(srcLen-winLen)/float64(sliceLen))) + 1

	if n < 1 {
		n = 1
	}

	// actual step (evenly spread)
	denom := n - 1
	var step float64

	if denom > 0 {
		step = float64(srcLen-winLen) / float64(denom)
	}

	// build positions, rounding to distribute leftovers
	positions := make([]int, n)

	for i := 0; i < n; i++ {
		p := int(math.Round(step * float64(i)))

		// clamp to [0, srcLen-winLen]
		if p < 0 {
			p = 0
		} else if p > srcLen-winLen {
			p = srcLen - winLen
		}

		positions[i] = p
	}

	return positions, winLen
}

// Windows cuts a tile of the given dimensions into the grid of windows,
// ordered row major from the tile origin
func (s *Slicer) Windows(srcWidth, srcHeight int) []Window {

	xs, winW := computePositions(srcWidth, s.windowWidth, s.overlapWidth)
	ys, winH := computePositions(srcHeight, s.windowHeight, s.overlapHeight)

	windows := make([]Window, 0, len(xs)*len(ys))

	for _, y := range ys {
		for _, x := range xs {
			windows = append(windows, Window{
				X:  x,
				Y:  y,
				X2: x + winW,
				Y2: y + winH,
			})
		}
	}

	return windows
}
