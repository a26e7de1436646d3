package crowneval

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"gocv.io/x/gocv"
)

// Target selects the compute device the model is run on
type Target int

const (
	// TargetCPU runs the model on the CPU
	TargetCPU Target = iota
	// TargetCUDA runs the model on the CUDA device selected with
	// SetVisibleDevice
	TargetCUDA
)

// inputMean are the caffe-style channel means subtracted from BGR input
// pixels, matching the preprocessing the RetinaNet backbones were
// trained with
var inputMean = [3]float32{103.939, 116.779, 123.68}

// Runtime wraps a serialized detection model deserialized through
// OpenCV's DNN module.  The model is immutable once loaded and is
// consumed only through Infer and InferBatch
type Runtime struct {
	// net is the loaded network
	net gocv.Net
	// modelFile is the path the model was loaded from
	modelFile string
	// backbone is the feature extraction architecture the model was
	// built on, eg. resnet50
	backbone string
	// convert indicates the file holds a training graph whose raw
	// regression and classification outputs must be converted by
	// decoding and suppressing in postprocess.  Unset means an inference
	// graph with decoding and non-max suppression baked into the network
	convert bool
	// outNames are the unconnected output layer names of the network,
	// forwarded in graph order
	outNames []string
	// target compute device
	target Target
}

// SetVisibleDevice restricts the visible CUDA compute devices to the
// given id by setting CUDA_VISIBLE_DEVICES.  It must be called before
// any model is loaded as the backend reads the variable when the first
// device bound object is created
func SetVisibleDevice(id string) error {
	return os.Setenv("CUDA_VISIBLE_DEVICES", id)
}

// LoadModel deserializes a detection model from the given file.
// backbone names the feature extractor the model was built on.  convert
// flags that the file holds a raw training graph needing conversion to
// inference results in postprocess, unset means an inference graph.
// Deserialization errors from the backend are returned unmodified
func LoadModel(modelFile, backbone string, convert bool,
	target Target) (*Runtime, error) {

	// check file exists
	if _, err := os.Stat(modelFile); err != nil {
		return nil, fmt.Errorf("model file does not exist at %s: %w",
			modelFile, err)
	}

	net := gocv.ReadNet(modelFile, "")

	if net.Empty() {
		return nil, fmt.Errorf("error reading model from %s", modelFile)
	}

	r := &Runtime{
		net:       net,
		modelFile: modelFile,
		backbone:  backbone,
		convert:   convert,
		target:    target,
	}

	if target == TargetCUDA {
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
			return nil, fmt.Errorf("error setting CUDA backend: %w", err)
		}

		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
			return nil, fmt.Errorf("error setting CUDA target: %w", err)
		}
	}

	// resolve the output layer names so forward passes return all heads
	for _, idx := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(idx)
		r.outNames = append(r.outNames, layer.GetName())
		layer.Close()
	}

	if len(r.outNames) == 0 {
		return nil, fmt.Errorf("model at %s has no output layers", modelFile)
	}

	return r, nil
}

// ModelFile returns the path the model was loaded from
func (r *Runtime) ModelFile() string {
	return r.modelFile
}

// Backbone returns the feature extractor architecture name
func (r *Runtime) Backbone() string {
	return r.backbone
}

// Convert returns whether the model is a training graph whose outputs
// are converted in postprocess
func (r *Runtime) Convert() bool {
	return r.convert
}

// Infer runs the model over a single image window.  The window is
// converted to a network input blob with channel mean subtraction
// applied
func (r *Runtime) Infer(img gocv.Mat) (*Outputs, error) {

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(img.Cols(), img.Rows()),
		gocv.NewScalar(float64(inputMean[0]), float64(inputMean[1]),
			float64(inputMean[2]), 0),
		false, false)
	defer blob.Close()

	return r.forward(blob)
}

// InferBatch runs the model over a prepared batch blob
func (r *Runtime) InferBatch(b *Batch) (*Outputs, error) {
	return r.forward(b.Mat())
}

// forward feeds the blob through the network and copies each output
// head into a float32 buffer
func (r *Runtime) forward(blob gocv.Mat) (*Outputs, error) {

	r.net.SetInput(blob, "")

	mats := r.net.ForwardLayers(r.outNames)

	// the forward pass owns every head Mat, release them all even when
	// copying one of them out fails
	defer func() {
		for i := range mats {
			mats[i].Close()
		}
	}()

	if len(mats) != len(r.outNames) {
		return nil, fmt.Errorf("model returned %d outputs, expected %d",
			len(mats), len(r.outNames))
	}

	outputs := &Outputs{
		Output: make([]Output, 0, len(mats)),
	}

	for i := range mats {

		buf, err := matToFloat32(mats[i])

		if err != nil {
			return nil, fmt.Errorf("error reading output %s: %w",
				r.outNames[i], err)
		}

		outputs.Output = append(outputs.Output, Output{
			Name:     r.outNames[i],
			Dims:     mats[i].Size(),
			BufFloat: buf,
		})
	}

	return outputs, nil
}

// Summary writes a human readable summary of the loaded model
func (r *Runtime) Summary(w io.Writer) error {

	graph := "inference (decoding and suppression baked in)"

	if r.convert {
		graph = "training (raw heads converted in postprocess)"
	}

	_, err := fmt.Fprintf(w, "Model: %s\nBackbone: %s\nGraph: %s\nOutput Layers: %s\n",
		r.modelFile, r.backbone, graph, strings.Join(r.outNames, ", "))

	return err
}

// Close releases the loaded network
func (r *Runtime) Close() error {
	return r.net.Close()
}
