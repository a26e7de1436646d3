package eval

import (
	"fmt"
	"io"

	"golang.org/x/image/font"

	"github.com/canopyml/crowneval/preprocess"
)

// GroundTruthSite is the one site whose field crews digitized full
// crown polygons, enabling the mean IoU comparison.  Stem mapped sites
// only support the plot level recall metric
const GroundTruthSite = "OSBS"

// Recorder receives the parameters and metrics of an evaluation run,
// satisfied by tracking.Experiment
type Recorder interface {
	LogMetric(name string, value float64) error
	LogParameter(name string, value any) error
}

// ReportParams holds the reporting settings
type ReportParams struct {
	// Site the evaluation imagery belongs to
	Site string
	// BaseDir is the evaluation imagery directory holding plot images
	BaseDir string
	// ScoreThreshold filters detections for the field comparisons
	ScoreThreshold float64
	// SavePath, when set, receives annotated plot images
	SavePath string
	// LabelFont, when set, titles saved plot images with the plot name
	LabelFont font.Face
}

// Report prints the per class evaluation results, aggregates and logs
// mean average precision, runs the site gated field polygon comparison,
// computes plot level recall, and logs the per window tree counts.
//
// The polygon mean IoU runs when and only when the site is
// GroundTruthSite.  Recall and tree count logging run for every site
func Report(w io.Writer, results []ClassResult, src Source, det Detector,
	plots []Plot, rz *preprocess.Resizer, p ReportParams, rec Recorder) error {

	for _, res := range results {
		fmt.Fprintf(w, "%d instances of class %s with average precision: %.4f\n",
			res.Annotations, res.Name, res.AveragePrecision)
	}

	mAP, err := MeanAveragePrecision(results)

	if err != nil {
		return fmt.Errorf("mean average precision undefined: %w", err)
	}

	fmt.Fprintf(w, "mAP: %.4f\n", mAP)

	if err := rec.LogMetric("mAP", mAP); err != nil {
		return err
	}

	// field collected crown polygons exist for one site only
	if p.Site == GroundTruthSite {

		jaccard, err := Jaccard(PlotsForSite(plots, p.Site), p.BaseDir, det,
			rz, p.ScoreThreshold)

		if err != nil {
			return err
		}

		fmt.Fprintf(w, " Mean IoU: %.2f\n", jaccard)

		if err := rec.LogMetric("Mean IoU", jaccard); err != nil {
			return err
		}
	}

	recall, err := PlotRecall(p.Site, plots, p.BaseDir, det, rz,
		p.ScoreThreshold, p.SavePath, p.LabelFont)

	if err != nil {
		return err
	}

	if err := rec.LogMetric("Recall", recall); err != nil {
		return err
	}

	fmt.Fprintf(w, " Recall: %.2f\n", recall)

	// per window counts of annotated trees
	if err := rec.LogParameter("Number of Trees", src.AnnotationCounts()); err != nil {
		return err
	}

	return nil
}
