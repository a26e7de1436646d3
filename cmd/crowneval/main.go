// crowneval evaluates a trained tree crown detection model against
// hand annotated imagery and field collected ground truth.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/image/font"

	"github.com/canopyml/crowneval"
	"github.com/canopyml/crowneval/annotations"
	"github.com/canopyml/crowneval/config"
	"github.com/canopyml/crowneval/eval"
	"github.com/canopyml/crowneval/generator"
	"github.com/canopyml/crowneval/postprocess"
	"github.com/canopyml/crowneval/preprocess"
	"github.com/canopyml/crowneval/render"
	"github.com/canopyml/crowneval/tracking"
)

// evaluationCSV is where the evaluation partition gets written for
// later inspection
const evaluationCSV = "data/training/evaluation.csv"

// recorder is the tracking surface the run needs, satisfied by both
// tracking.Experiment and tracking.Noop
type recorder interface {
	LogMetric(name string, value float64) error
	LogParameter(name string, value any) error
	LogParameters(params map[string]any) error
}

func main() {

	// disable logging timestamps
	log.SetFlags(0)

	rootCmd := &cobra.Command{
		Use:          "crowneval",
		Short:        "Tree crown detection model evaluation",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Int("batch-size", 1, "windows per inference batch")
	rootCmd.PersistentFlags().StringP("config", "c", "deepforest.yml", "config file path")

	rootCmd.AddCommand(ontheflyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func ontheflyCmd() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "onthefly <annotations-csv> <model>",
		Short: "Evaluate a model over windows cropped on the fly from annotated tiles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnTheFly(cmd, args[0], args[1])
		},
	}

	cmd.Flags().Float64("score-threshold", 0.05, "minimum detection confidence")
	cmd.Flags().Float64("iou-threshold", 0.5, "minimum overlap for a true positive")
	cmd.Flags().Int("max-detections", 100, "detections considered per window")
	cmd.Flags().Float64("suppression-threshold", 0.2, "non maximum suppression overlap")
	cmd.Flags().Int("image-min-side", 800, "resize so the short image side is at least this")
	cmd.Flags().Int("image-max-side", 1333, "cap the long image side at this after resize")
	cmd.Flags().String("backbone", "resnet50", "model backbone name")
	cmd.Flags().Bool("convert-model", false, "model is a training graph, convert its raw outputs to detections")
	cmd.Flags().String("gpu", "", "CUDA device to run on, CPU when unset")
	cmd.Flags().String("save-path", "", "directory to write annotated images under")

	return cmd
}

func runOnTheFly(cmd *cobra.Command, annotationsCSV, modelFile string) error {

	batchSize, _ := cmd.Flags().GetInt("batch-size")
	configPath, _ := cmd.Flags().GetString("config")
	scoreThreshold, _ := cmd.Flags().GetFloat64("score-threshold")
	iouThreshold, _ := cmd.Flags().GetFloat64("iou-threshold")
	maxDetections, _ := cmd.Flags().GetInt("max-detections")
	suppression, _ := cmd.Flags().GetFloat64("suppression-threshold")
	minSide, _ := cmd.Flags().GetInt("image-min-side")
	maxSide, _ := cmd.Flags().GetInt("image-max-side")
	backbone, _ := cmd.Flags().GetString("backbone")
	convertModel, _ := cmd.Flags().GetBool("convert-model")
	gpu, _ := cmd.Flags().GetString("gpu")
	savePath, _ := cmd.Flags().GetString("save-path")

	cfg, err := config.Load(configPath)

	if err != nil {
		return err
	}

	startTime := time.Now().Format("20060102_150405")

	var rec recorder = tracking.Noop{}

	if !cfg.Tracking.Disabled {

		exp, err := tracking.NewExperiment(cfg.Tracking.BaseURL,
			cfg.Tracking.APIKey, cfg.Tracking.Project)

		if err != nil {
			return err
		}

		rec = exp
	}

	if err := rec.LogParameters(cfg.Params()); err != nil {
		return err
	}

	if err := rec.LogParameter("Start Time", startTime); err != nil {
		return err
	}

	if err := rec.LogParameter("Site", cfg.Site()); err != nil {
		return err
	}

	records, err := annotations.Load(annotationsCSV, cfg.RGBRes)

	if err != nil {
		return err
	}

	if cfg.Preprocess.ZeroArea {
		records = annotations.ZeroArea(records)
	}

	_, test := annotations.Split(records, cfg.SingleTile)

	if err := annotations.WriteCSV(evaluationCSV, test); err != nil {
		return err
	}

	// device selection must happen before the model is created
	target := crowneval.TargetCPU

	if gpu != "" {

		if err := crowneval.SetVisibleDevice(gpu); err != nil {
			return err
		}

		target = crowneval.TargetCUDA
	}

	saveDir := ""

	if savePath != "" {

		saveDir = filepath.Join(savePath, startTime)

		if err := os.MkdirAll(saveDir, 0755); err != nil {
			return fmt.Errorf("error creating save directory: %w", err)
		}
	}

	gen, err := generator.NewOnTheFly(test, generator.Config{
		BaseDir:       cfg.RGBTileDir,
		TileWidth:     cfg.TileWidth,
		TileHeight:    cfg.TileHeight,
		WindowSize:    cfg.WindowSize,
		WindowOverlap: cfg.WindowOverlap,
		BatchSize:     batchSize,
		ImageMinSide:  minSide,
		ImageMaxSide:  maxSide,
	})

	if err != nil {
		return err
	}

	defer gen.Close()

	rt, err := crowneval.LoadModel(modelFile, backbone, convertModel, target)

	if err != nil {
		return err
	}

	defer rt.Close()

	if err := rt.Summary(os.Stdout); err != nil {
		return err
	}

	params := postprocess.RetinaNetTreeParams()
	params.ConvertModel = convertModel
	params.ScoreThreshold = float32(scoreThreshold)
	params.NMSThreshold = float32(suppression)
	params.MaxDetections = maxDetections
	params.ObjectClassNum = gen.NumClasses()

	det := &eval.ModelDetector{
		Runtime: rt,
		Post:    postprocess.NewRetinaNet(params),
	}

	results, err := eval.Evaluate(gen, det, eval.Params{
		IoUThreshold:   iouThreshold,
		ScoreThreshold: scoreThreshold,
		MaxDetections:  maxDetections,
		SavePath:       saveDir,
	})

	if err != nil {
		return err
	}

	var plots []eval.Plot

	if cfg.FieldPolygons != "" {

		plots, err = eval.LoadPlots(cfg.FieldPolygons)

		if err != nil {
			return err
		}
	}

	var labelFont font.Face

	if cfg.LabelFont != "" {

		labelFont, err = render.LoadFontFace(cfg.LabelFont, 24)

		if err != nil {
			return err
		}
	}

	rz := preprocess.NewResizer(minSide, maxSide)

	return eval.Report(os.Stdout, results, gen, det, plots, rz,
		eval.ReportParams{
			Site:           cfg.Site(),
			BaseDir:        cfg.EvaluationTileDir,
			ScoreThreshold: scoreThreshold,
			SavePath:       saveDir,
			LabelFont:      labelFont,
		}, rec)
}
