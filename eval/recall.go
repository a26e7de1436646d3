package eval

import (
	"fmt"
	"image"
	"path/filepath"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"gonum.org/v1/gonum/stat"

	"github.com/canopyml/crowneval/postprocess"
	"github.com/canopyml/crowneval/preprocess"
	"github.com/canopyml/crowneval/render"
)

// PlotRecall computes the plot level recall for a site: the fraction of
// field collected tree stems within each survey plot that fall inside a
// predicted crown box, averaged over the sites plots.  With no plots
// for the site the recall is zero.  When savePath is set an annotated
// copy of each plot image is written there, titled with the plot name
// when a label font is supplied
func PlotRecall(site string, plots []Plot, baseDir string, det Detector,
	rz *preprocess.Resizer, scoreThreshold float64,
	savePath string, labelFont font.Face) (float64, error) {

	sitePlots := PlotsForSite(plots, site)

	if len(sitePlots) == 0 {
		return 0, nil
	}

	var fractions []float64

	for _, plot := range sitePlots {

		dets, img, err := detectPlot(plot, baseDir, det, rz)

		if err != nil {
			return 0, err
		}

		dets = filterDetections(dets, scoreThreshold, 0)

		if savePath != "" {

			render.DetectionBoxes(&img, dets, []string{"Tree"},
				render.DefaultFont(), 2)
			render.StemMarkers(&img, stemPoints(plot.Trees), 4)

			if labelFont != nil {
				if err := render.TTFText(&img, plot.Name, 10, 28,
					labelFont, render.White); err != nil {
					img.Close()
					return 0, err
				}
			}

			out := filepath.Join(savePath,
				fmt.Sprintf("plot_%s.png", plot.Name))

			if !gocv.IMWrite(out, img) {
				img.Close()
				return 0, fmt.Errorf("error writing annotated plot image %s", out)
			}
		}

		img.Close()

		fractions = append(fractions, plotFraction(plot.Trees, dets))
	}

	return stat.Mean(fractions, nil), nil
}

// stemPoints converts the plot trees stem positions to pixel points
func stemPoints(trees []FieldTree) []image.Point {

	pts := make([]image.Point, 0, len(trees))

	for _, tree := range trees {
		pts = append(pts, image.Pt(int(tree.Stem.X), int(tree.Stem.Y)))
	}

	return pts
}

// plotFraction returns the fraction of plot trees whose stem position
// is covered by a predicted box
func plotFraction(trees []FieldTree, dets []postprocess.DetectResult) float64 {

	if len(trees) == 0 {
		return 0
	}

	recalled := 0

	for _, tree := range trees {
		if stemCovered(tree.Stem, dets) {
			recalled++
		}
	}

	return float64(recalled) / float64(len(trees))
}

// stemCovered reports whether the stem point falls inside any predicted
// box
func stemCovered(stem Point, dets []postprocess.DetectResult) bool {

	for _, d := range dets {

		if stem.X >= float64(d.Box.Left) && stem.X <= float64(d.Box.Right) &&
			stem.Y >= float64(d.Box.Top) && stem.Y <= float64(d.Box.Bottom) {
			return true
		}
	}

	return false
}
