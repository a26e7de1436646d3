// Package eval runs a loaded detection model over the evaluation
// generator and computes the reported metrics: per class average
// precision, mean average precision, the field polygon mean IoU
// comparison, and plot level recall.
package eval

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"gocv.io/x/gocv"

	"github.com/canopyml/crowneval/generator"
	"github.com/canopyml/crowneval/postprocess"
	"github.com/canopyml/crowneval/render"
)

// Detector runs the model over a batch of image windows and returns the
// confidence ranked detections of each window
type Detector interface {
	DetectBatch(imgs []gocv.Mat) ([][]postprocess.DetectResult, error)
}

// Source is the evaluation batch source, satisfied by
// generator.OnTheFly.  Iteration order must be fixed between passes
type Source interface {
	Size() int
	Steps() int
	Batch(step int) []int
	WindowName(i int) string
	WindowAnnotations(i int) []generator.Annotation
	LoadWindow(i int) (gocv.Mat, float32, error)
	LabelToName(label int) string
	NumClasses() int
	AnnotationCounts() []int
}

// Params holds the evaluation settings
type Params struct {
	// IoUThreshold is the minimum overlap for a detection to count as a
	// true positive
	IoUThreshold float64
	// ScoreThreshold filters detections below this confidence
	ScoreThreshold float64
	// MaxDetections caps the detections considered per window
	MaxDetections int
	// SavePath, when set, receives annotated copies of each window
	SavePath string
}

// scoredDetection is one detection with its matching outcome, used to
// build the precision/recall curve
type scoredDetection struct {
	score float64
	tp    bool
}

// Evaluate iterates the generator exactly once, matching the model
// detections of every window against its ground truth, and returns the
// per class average precision results in label order
func Evaluate(src Source, det Detector, p Params) ([]ClassResult, error) {

	numClasses := src.NumClasses()

	perClass := make([][]scoredDetection, numClasses)
	annCounts := make([]int, numClasses)

	var classNames []string

	for c := 0; c < numClasses; c++ {
		classNames = append(classNames, src.LabelToName(c))
	}

	for step := 0; step < src.Steps(); step++ {

		idxs := src.Batch(step)

		imgs := make([]gocv.Mat, 0, len(idxs))
		scales := make([]float32, 0, len(idxs))

		for _, idx := range idxs {

			img, scale, err := src.LoadWindow(idx)

			if err != nil {
				closeAll(imgs)
				return nil, fmt.Errorf("error loading window %s: %w",
					src.WindowName(idx), err)
			}

			imgs = append(imgs, img)
			scales = append(scales, scale)
		}

		dets, err := det.DetectBatch(imgs)

		if err != nil {
			closeAll(imgs)
			return nil, fmt.Errorf("inference failed at step %d: %w", step, err)
		}

		if len(dets) != len(idxs) {
			closeAll(imgs)
			return nil, fmt.Errorf("detector returned %d results for %d windows",
				len(dets), len(idxs))
		}

		for k, idx := range idxs {

			kept := filterDetections(dets[k], p.ScoreThreshold, p.MaxDetections)

			if p.SavePath != "" {

				out := filepath.Join(p.SavePath, src.WindowName(idx)+".png")
				render.DetectionBoxes(&imgs[k], kept, classNames,
					render.DefaultFont(), 2)

				if !gocv.IMWrite(out, imgs[k]) {
					closeAll(imgs)
					return nil, fmt.Errorf("error writing annotated image %s", out)
				}
			}

			gt := src.WindowAnnotations(idx)

			for _, a := range gt {
				annCounts[a.Label]++
			}

			matchWindow(kept, gt, float64(scales[k]), p.IoUThreshold, perClass)
		}

		closeAll(imgs)
	}

	results := make([]ClassResult, 0, numClasses)

	for c := 0; c < numClasses; c++ {
		results = append(results, ClassResult{
			Label:            c,
			Name:             classNames[c],
			AveragePrecision: averagePrecision(perClass[c], annCounts[c]),
			Annotations:      annCounts[c],
		})
	}

	return results, nil
}

// filterDetections drops detections below the score threshold, ranks
// the remainder by confidence, and caps them at maxDetections
func filterDetections(dets []postprocess.DetectResult, scoreThreshold float64,
	maxDetections int) []postprocess.DetectResult {

	kept := make([]postprocess.DetectResult, 0, len(dets))

	for _, d := range dets {
		if float64(d.Probability) >= scoreThreshold {
			kept = append(kept, d)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Probability > kept[j].Probability
	})

	if maxDetections > 0 && len(kept) > maxDetections {
		kept = kept[:maxDetections]
	}

	return kept
}

// matchWindow greedily matches the confidence ranked detections of one
// window against its ground truth.  Detections are mapped back to
// window coordinates through the resize scale, a detection is a true
// positive when it overlaps an unclaimed ground truth box of its class
// by at least iouThreshold, and each ground truth box is claimed at
// most once
func matchWindow(dets []postprocess.DetectResult, gt []generator.Annotation,
	scale, iouThreshold float64, perClass [][]scoredDetection) {

	claimed := make([]bool, len(gt))

	for _, d := range dets {

		if d.Class < 0 || d.Class >= len(perClass) {
			continue
		}

		box := [4]float64{
			float64(d.Box.Left) / scale,
			float64(d.Box.Top) / scale,
			float64(d.Box.Right) / scale,
			float64(d.Box.Bottom) / scale,
		}

		best := -1
		bestIoU := 0.0

		for g, a := range gt {

			if claimed[g] || a.Label != d.Class {
				continue
			}

			iou := boxIoU(box, a.Box)

			if iou >= iouThreshold && iou > bestIoU {
				best = g
				bestIoU = iou
			}
		}

		tp := best >= 0

		if tp {
			claimed[best] = true
		}

		perClass[d.Class] = append(perClass[d.Class], scoredDetection{
			score: float64(d.Probability),
			tp:    tp,
		})
	}
}

// boxIoU returns the Intersection over Union of two boxes in xmin,
// ymin, xmax, ymax order
func boxIoU(a, b [4]float64) float64 {

	w := math.Max(0, math.Min(a[2], b[2])-math.Max(a[0], b[0]))
	h := math.Max(0, math.Min(a[3], b[3])-math.Max(a[1], b[1]))
	intersection := w * h

	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

func closeAll(imgs []gocv.Mat) {
	for i := range imgs {
		imgs[i].Close()
	}
}
