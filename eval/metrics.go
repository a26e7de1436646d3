package eval

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrNoAnnotations is returned when mean average precision is requested
// but no class has a single annotated instance, which indicates the
// evaluation partition carries no usable ground truth
var ErrNoAnnotations = errors.New("no class has annotated instances")

// ClassResult is the evaluation outcome of a single class.  Results are
// carried as an ordered slice, not a map, so print order and logged
// values are reproducible between runs
type ClassResult struct {
	// Label is the class index in the generators label mapping
	Label int
	// Name is the class name
	Name string
	// AveragePrecision is the area under the class precision/recall
	// curve
	AveragePrecision float64
	// Annotations is the number of annotated instances of the class
	Annotations int
}

// MeanAveragePrecision computes the unweighted mean of the average
// precision over every class with at least one annotated instance.
// Classes without annotations are excluded.  When no class has any
// annotations ErrNoAnnotations is returned rather than dividing by
// zero, the caller decides whether that is fatal
func MeanAveragePrecision(results []ClassResult) (float64, error) {

	presentClasses := 0
	precision := 0.0

	for _, res := range results {

		if res.Annotations == 0 {
			continue
		}

		presentClasses++
		precision += res.AveragePrecision
	}

	if presentClasses == 0 {
		return 0, ErrNoAnnotations
	}

	return precision / float64(presentClasses), nil
}

// averagePrecision integrates the precision/recall curve of one class
// over its confidence ranked detections using all point interpolation
func averagePrecision(dets []scoredDetection, numAnnotations int) float64 {

	if numAnnotations == 0 || len(dets) == 0 {
		return 0
	}

	ranked := make([]scoredDetection, len(dets))
	copy(ranked, dets)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	tps := make([]float64, len(ranked))
	fps := make([]float64, len(ranked))

	for i, d := range ranked {
		if d.tp {
			tps[i] = 1
		} else {
			fps[i] = 1
		}
	}

	cumTP := make([]float64, len(tps))
	cumFP := make([]float64, len(fps))

	floats.CumSum(cumTP, tps)
	floats.CumSum(cumFP, fps)

	recall := make([]float64, 0, len(ranked)+2)
	precision := make([]float64, 0, len(ranked)+2)

	// sentinel start point
	recall = append(recall, 0)
	precision = append(precision, 0)

	for i := range ranked {
		recall = append(recall, cumTP[i]/float64(numAnnotations))
		precision = append(precision, cumTP[i]/(cumTP[i]+cumFP[i]))
	}

	// sentinel end point
	recall = append(recall, 1)
	precision = append(precision, 0)

	// make precision monotonically decreasing from the right
	for i := len(precision) - 2; i >= 0; i-- {
		precision[i] = math.Max(precision[i], precision[i+1])
	}

	// sum the areas under every recall step
	ap := 0.0

	for i := 1; i < len(recall); i++ {
		ap += (recall[i] - recall[i-1]) * precision[i]
	}

	return ap
}
