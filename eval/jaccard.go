package eval

import (
	"fmt"
	"math"
	"path/filepath"

	clipper "github.com/ctessum/go.clipper"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/canopyml/crowneval/postprocess"
	"github.com/canopyml/crowneval/preprocess"
)

// clipperScale converts sub pixel polygon coordinates to the integer
// grid the clipper library works on
const clipperScale = 100

// Jaccard compares model predictions against the field collected crown
// polygons of each plot and returns the mean IoU over all field trees.
// Only sites with digitized crown polygons carry the data this needs
func Jaccard(plots []Plot, baseDir string, det Detector,
	rz *preprocess.Resizer, scoreThreshold float64) (float64, error) {

	if len(plots) == 0 {
		return 0, fmt.Errorf("no field plots with crown polygons supplied")
	}

	var plotMeans []float64

	for _, plot := range plots {

		dets, img, err := detectPlot(plot, baseDir, det, rz)

		if err != nil {
			return 0, err
		}

		img.Close()

		dets = filterDetections(dets, scoreThreshold, 0)

		plotMeans = append(plotMeans, plotMeanIoU(plot.Trees, dets))
	}

	return stat.Mean(plotMeans, nil), nil
}

// detectPlot loads a plot image, runs the detector over it, and maps
// the detections back to plot pixel coordinates
func detectPlot(plot Plot, baseDir string, det Detector,
	rz *preprocess.Resizer) ([]postprocess.DetectResult, gocv.Mat, error) {

	path := filepath.Join(baseDir, plot.Image)

	img := gocv.IMRead(path, gocv.IMReadColor)

	if img.Empty() {
		return nil, gocv.Mat{}, fmt.Errorf("error reading plot image %s", path)
	}

	resized := gocv.NewMat()
	scale := rz.Resize(img, &resized)
	defer resized.Close()

	batches, err := det.DetectBatch([]gocv.Mat{resized})

	if err != nil {
		img.Close()
		return nil, gocv.Mat{}, fmt.Errorf("inference failed on plot %s: %w",
			plot.Name, err)
	}

	dets := batches[0]

	// map detections back to plot coordinates
	for i := range dets {
		dets[i].Box.Left = int(float32(dets[i].Box.Left) / scale)
		dets[i].Box.Top = int(float32(dets[i].Box.Top) / scale)
		dets[i].Box.Right = int(float32(dets[i].Box.Right) / scale)
		dets[i].Box.Bottom = int(float32(dets[i].Box.Bottom) / scale)
	}

	return dets, img, nil
}

// plotMeanIoU matches each field tree crown polygon to its best
// overlapping predicted box and returns the mean IoU over the plots
// trees.  A tree no prediction overlaps contributes zero
func plotMeanIoU(trees []FieldTree, dets []postprocess.DetectResult) float64 {

	if len(trees) == 0 {
		return 0
	}

	ious := make([]float64, 0, len(trees))

	for _, tree := range trees {

		if len(tree.Polygon) < 3 {
			continue
		}

		best := 0.0

		for _, d := range dets {

			iou := polygonIoU(tree.Polygon, boxPolygon(d.Box))

			if iou > best {
				best = iou
			}
		}

		ious = append(ious, best)
	}

	if len(ious) == 0 {
		return 0
	}

	return stat.Mean(ious, nil)
}

// boxPolygon converts a detection box to a closed polygon
func boxPolygon(box postprocess.BoxRect) []Point {
	return []Point{
		{X: float64(box.Left), Y: float64(box.Top)},
		{X: float64(box.Right), Y: float64(box.Top)},
		{X: float64(box.Right), Y: float64(box.Bottom)},
		{X: float64(box.Left), Y: float64(box.Bottom)},
	}
}

// toPath converts a polygon to a clipper path on the scaled integer
// grid
func toPath(poly []Point) clipper.Path {

	path := make(clipper.Path, 0, len(poly))

	for _, pt := range poly {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(math.Round(pt.X * clipperScale)),
			Y: clipper.CInt(math.Round(pt.Y * clipperScale)),
		})
	}

	return path
}

// pathsArea sums the unsigned area of the clip solution paths
func pathsArea(paths clipper.Paths) float64 {

	area := 0.0

	for _, path := range paths {
		area += math.Abs(clipper.Area(path))
	}

	return area
}

// polygonIoU returns the Intersection over Union of two polygons
func polygonIoU(a, b []Point) float64 {

	if len(a) < 3 || len(b) < 3 {
		return 0
	}

	pa := toPath(a)
	pb := toPath(b)

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(pa, clipper.PtSubject, true)
	c.AddPath(pb, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero,
		clipper.PftNonZero)

	if !ok {
		return 0
	}

	intersection := pathsArea(solution)

	union := math.Abs(clipper.Area(pa)) + math.Abs(clipper.Area(pb)) - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}
