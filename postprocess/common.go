package postprocess

import (
	"math"
	"sort"
)

// candidate is a scored box considered during decoding and suppression
type candidate struct {
	box   [4]float32 // xmin, ymin, xmax, ymax
	score float32
	class int
}

// calculateOverlap works out the Intersection over Union (IoU) value of
// two box dimensions
func calculateOverlap(a, b [4]float32) float32 {

	w := math.Max(0.0, math.Min(float64(a[2]), float64(b[2]))-math.Max(float64(a[0]), float64(b[0])))
	h := math.Max(0.0, math.Min(float64(a[3]), float64(b[3]))-math.Max(float64(a[1]), float64(b[1])))
	intersection := w * h

	area0 := (a[2] - a[0]) * (a[3] - a[1])
	area1 := (b[2] - b[0]) * (b[3] - b[1])

	union := float64(area0+area1) - intersection

	if union <= 0 {
		return 0.0
	}

	return float32(intersection / union)
}

// nms implements a Non-Maximum Suppression algorithm over the
// candidates of a single image.  Candidates are ranked by confidence
// and any lower ranked candidate of the same class overlapping a kept
// one by more than threshold IoU is suppressed
func nms(cands []candidate, threshold float32) []candidate {

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	suppressed := make([]bool, len(cands))
	keep := make([]candidate, 0, len(cands))

	for i := 0; i < len(cands); i++ {

		if suppressed[i] {
			continue
		}

		keep = append(keep, cands[i])

		for j := i + 1; j < len(cands); j++ {

			if suppressed[j] || cands[j].class != cands[i].class {
				continue
			}

			if calculateOverlap(cands[i].box, cands[j].box) > threshold {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// clampBox restricts box coordinates to the image dimensions
func clampBox(box [4]float32, width, height int) [4]float32 {

	box[0] = clampF(box[0], 0, float32(width))
	box[1] = clampF(box[1], 0, float32(height))
	box[2] = clampF(box[2], 0, float32(width))
	box[3] = clampF(box[3], 0, float32(height))

	return box
}

// clampF restricts the value to be within the range min and max
func clampF(val, min, max float32) float32 {

	if val < min {
		return min
	}

	if val > max {
		return max
	}

	return val
}
