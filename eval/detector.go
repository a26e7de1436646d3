package eval

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/canopyml/crowneval"
	"github.com/canopyml/crowneval/postprocess"
)

// ModelDetector runs a loaded model runtime and decodes its outputs
// through the RetinaNet post processor
type ModelDetector struct {
	Runtime *crowneval.Runtime
	Post    *postprocess.RetinaNet
}

// DetectBatch runs the model over the given windows.  Windows of equal
// dimensions are batched through a single blob, otherwise each window
// gets its own forward pass
func (d *ModelDetector) DetectBatch(imgs []gocv.Mat) ([][]postprocess.DetectResult, error) {

	if len(imgs) == 0 {
		return nil, nil
	}

	if len(imgs) > 1 && sameShape(imgs) {
		return d.detectBatched(imgs)
	}

	results := make([][]postprocess.DetectResult, 0, len(imgs))

	for _, img := range imgs {

		outputs, err := d.Runtime.Infer(img)

		if err != nil {
			return nil, err
		}

		dets, err := d.Post.DetectObjects(outputs, 0, img.Cols(), img.Rows())

		if err != nil {
			return nil, err
		}

		results = append(results, dets)
	}

	return results, nil
}

// detectBatched concatenates the windows into one blob and splits the
// outputs per window
func (d *ModelDetector) detectBatched(imgs []gocv.Mat) ([][]postprocess.DetectResult, error) {

	rows := imgs[0].Rows()
	cols := imgs[0].Cols()

	batch := crowneval.NewBatch(len(imgs), rows, cols, imgs[0].Channels())
	defer batch.Close()

	for i, img := range imgs {
		if err := batch.Add(img); err != nil {
			return nil, fmt.Errorf("error adding window %d to batch: %w", i, err)
		}
	}

	outputs, err := d.Runtime.InferBatch(batch)

	if err != nil {
		return nil, err
	}

	results := make([][]postprocess.DetectResult, 0, len(imgs))

	for i := range imgs {

		dets, err := d.Post.DetectObjects(outputs, i, cols, rows)

		if err != nil {
			return nil, err
		}

		results = append(results, dets)
	}

	return results, nil
}

// sameShape reports whether all windows share dimensions and channels
func sameShape(imgs []gocv.Mat) bool {

	for i := 1; i < len(imgs); i++ {
		if imgs[i].Rows() != imgs[0].Rows() ||
			imgs[i].Cols() != imgs[0].Cols() ||
			imgs[i].Channels() != imgs[0].Channels() {
			return false
		}
	}

	return true
}
