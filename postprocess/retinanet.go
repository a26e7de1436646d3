package postprocess

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/canopyml/crowneval"
)

// RetinaNet defines the struct for RetinaNet model inference post
// processing
type RetinaNet struct {
	// Params are the Model configuration parameters
	Params RetinaNetParams
	// anchorCache holds generated anchor boxes keyed on input size
	anchorCache map[[2]int][][4]float32
	idGen       *IDGenerator
}

// RetinaNetParams defines the struct containing the RetinaNet
// parameters to use for post processing operations
type RetinaNetParams struct {
	// ConvertModel indicates the loaded file is a training graph whose
	// raw regression and classification heads must be converted here by
	// decoding against the anchor pyramid and suppressing.  Unset means
	// an inference graph emitting decoded boxes, scores and labels heads
	ConvertModel bool
	// ScoreThreshold is the minimum confidence score required for a
	// detection to be considered
	ScoreThreshold float32
	// NMSThreshold is the Non-Maximum Suppression threshold defining the
	// permitted overlap among predictions for both to be kept
	NMSThreshold float32
	// MaxDetections is the maximum number of detections returned per
	// image
	MaxDetections int
	// ObjectClassNum is the number of different object classes the
	// Model has been trained with
	ObjectClassNum int
	// Anchors describe the anchor box pyramid of the training graph
	Anchors AnchorParams
}

// AnchorParams defines the anchor box pyramid used when decoding raw
// training graph outputs
type AnchorParams struct {
	// Sizes are the base anchor sizes of each pyramid level
	Sizes []int
	// Strides are the feature map strides of each pyramid level
	Strides []int
	// Ratios are the aspect ratios applied to each base anchor
	Ratios []float32
	// Scales are the scale multipliers applied to each base anchor
	Scales []float32
}

// RetinaNetTreeParams returns an instance of RetinaNetParams configured
// for a single class tree-crown model featuring:
//   - Object Classes: 1
//   - Pyramid levels P3-P7 with strides 8, 16, 32, 64, 128 and base
//     anchor sizes 32, 64, 128, 256, 512
//   - Aspect ratios 0.5, 1, 2 and scales 2^0, 2^(1/3), 2^(2/3)
//   - Score Threshold: 0.05
//   - NMS Threshold: 0.2
//   - Maximum Detections: 100
func RetinaNetTreeParams() RetinaNetParams {
	return RetinaNetParams{
		ScoreThreshold: 0.05,
		NMSThreshold:   0.2,
		MaxDetections:  100,
		ObjectClassNum: 1,
		Anchors: AnchorParams{
			Sizes:   []int{32, 64, 128, 256, 512},
			Strides: []int{8, 16, 32, 64, 128},
			Ratios:  []float32{0.5, 1, 2},
			Scales: []float32{1,
				float32(math.Pow(2, 1.0/3.0)),
				float32(math.Pow(2, 2.0/3.0))},
		},
	}
}

// NewRetinaNet returns an instance of the RetinaNet post processor
func NewRetinaNet(p RetinaNetParams) *RetinaNet {
	return &RetinaNet{
		Params:      p,
		anchorCache: make(map[[2]int][][4]float32),
		idGen:       NewIDGenerator(),
	}
}

// DetectObjects takes the Outputs of a forward pass and produces the
// suppressed, confidence ranked detections for the image at imgIdx of
// the batch.  With ConvertModel set the outputs are the raw regression
// and classification heads of a training graph and are decoded against
// the anchor pyramid for the given input size, otherwise the graph is
// an inference graph whose three heads (boxes, scores, labels) are read
// directly.  The head count is checked against the selected path so a
// mis-flagged model fails loudly instead of decoding garbage
func (r *RetinaNet) DetectObjects(outputs *crowneval.Outputs, imgIdx,
	inputWidth, inputHeight int) ([]DetectResult, error) {

	if r.Params.ConvertModel {

		if len(outputs.Output) != 2 {
			return nil, fmt.Errorf("training graph conversion expects 2 raw heads, model emitted %d",
				len(outputs.Output))
		}

		return r.rawDetections(outputs, imgIdx, inputWidth, inputHeight)
	}

	if len(outputs.Output) < 3 {
		return nil, fmt.Errorf("inference graph expects boxes, scores and labels heads, model emitted %d",
			len(outputs.Output))
	}

	return r.decodedDetections(outputs, imgIdx)
}

// decodedDetections reads the boxes, scores, and labels heads of an
// inference graph
func (r *RetinaNet) decodedDetections(outputs *crowneval.Outputs,
	imgIdx int) ([]DetectResult, error) {

	var boxesOut, scoresOut, labelsOut *crowneval.Output

	// match heads by layer name first, fall back to the conventional
	// boxes/scores/labels emit order
	var rest []*crowneval.Output

	for i := range outputs.Output {
		out := &outputs.Output[i]

		switch {
		case strings.Contains(out.Name, "boxes"):
			boxesOut = out
		case strings.Contains(out.Name, "scores"):
			scoresOut = out
		case strings.Contains(out.Name, "labels"):
			labelsOut = out
		default:
			rest = append(rest, out)
		}
	}

	for _, out := range rest {
		switch {
		case boxesOut == nil:
			boxesOut = out
		case scoresOut == nil:
			scoresOut = out
		case labelsOut == nil:
			labelsOut = out
		}
	}

	if boxesOut == nil || scoresOut == nil || labelsOut == nil {
		return nil, fmt.Errorf("inference graph did not emit boxes, scores, and labels heads")
	}

	boxes, err := boxesOut.ImageSlice(imgIdx)

	if err != nil {
		return nil, err
	}

	scores, err := scoresOut.ImageSlice(imgIdx)

	if err != nil {
		return nil, err
	}

	labels, err := labelsOut.ImageSlice(imgIdx)

	if err != nil {
		return nil, err
	}

	if len(boxes) != len(scores)*4 || len(scores) != len(labels) {
		return nil, fmt.Errorf("mismatched detection head sizes: %d boxes, %d scores, %d labels",
			len(boxes)/4, len(scores), len(labels))
	}

	cands := make([]candidate, 0, len(scores))

	for i, score := range scores {

		// the graph pads unused detection slots with label -1
		if score < r.Params.ScoreThreshold || labels[i] < 0 {
			continue
		}

		cands = append(cands, candidate{
			box: [4]float32{boxes[i*4+0], boxes[i*4+1],
				boxes[i*4+2], boxes[i*4+3]},
			score: score,
			class: int(labels[i]),
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	return r.results(cands), nil
}

// rawDetections decodes the regression and classification heads of a
// training graph against the anchor pyramid and suppresses the result
func (r *RetinaNet) rawDetections(outputs *crowneval.Outputs, imgIdx,
	inputWidth, inputHeight int) ([]DetectResult, error) {

	var regOut, clsOut *crowneval.Output

	for i := range outputs.Output {
		out := &outputs.Output[i]

		if len(out.Dims) == 0 {
			continue
		}

		switch out.Dims[len(out.Dims)-1] {
		case 4:
			regOut = out
		case r.Params.ObjectClassNum:
			clsOut = out
		}
	}

	if regOut == nil || clsOut == nil {
		return nil, fmt.Errorf("training graph did not emit regression and classification heads")
	}

	reg, err := regOut.ImageSlice(imgIdx)

	if err != nil {
		return nil, err
	}

	cls, err := clsOut.ImageSlice(imgIdx)

	if err != nil {
		return nil, err
	}

	anchors := r.anchors(inputWidth, inputHeight)

	if len(reg)/4 != len(anchors) || len(cls)/r.Params.ObjectClassNum != len(anchors) {
		return nil, fmt.Errorf("model heads cover %d anchors, input size %dx%d generates %d",
			len(reg)/4, inputWidth, inputHeight, len(anchors))
	}

	numClasses := r.Params.ObjectClassNum
	var cands []candidate

	for i, anchor := range anchors {

		// best scoring class for this anchor
		bestClass := 0
		bestScore := cls[i*numClasses]

		for c := 1; c < numClasses; c++ {
			if cls[i*numClasses+c] > bestScore {
				bestScore = cls[i*numClasses+c]
				bestClass = c
			}
		}

		if bestScore < r.Params.ScoreThreshold {
			continue
		}

		box := decodeBox(anchor, reg[i*4:i*4+4])
		box = clampBox(box, inputWidth, inputHeight)

		cands = append(cands, candidate{
			box:   box,
			score: bestScore,
			class: bestClass,
		})
	}

	cands = nms(cands, r.Params.NMSThreshold)

	return r.results(cands), nil
}

// results caps the suppressed candidates at MaxDetections and converts
// them into DetectResults with assigned IDs
func (r *RetinaNet) results(cands []candidate) []DetectResult {

	if r.Params.MaxDetections > 0 && len(cands) > r.Params.MaxDetections {
		cands = cands[:r.Params.MaxDetections]
	}

	group := make([]DetectResult, 0, len(cands))

	for _, c := range cands {
		group = append(group, DetectResult{
			Class: c.class,
			Box: BoxRect{
				Left:   int(c.box[0]),
				Top:    int(c.box[1]),
				Right:  int(c.box[2]),
				Bottom: int(c.box[3]),
			},
			Probability: c.score,
			ID:          r.idGen.GetNext(),
		})
	}

	return group
}

// regressionStd is the standard deviation the training graph normalises
// regression deltas with
const regressionStd = 0.2

// decodeBox applies the regression deltas of one anchor to produce the
// predicted box
func decodeBox(anchor [4]float32, deltas []float32) [4]float32 {

	width := anchor[2] - anchor[0]
	height := anchor[3] - anchor[1]

	return [4]float32{
		anchor[0] + deltas[0]*regressionStd*width,
		anchor[1] + deltas[1]*regressionStd*height,
		anchor[2] + deltas[2]*regressionStd*width,
		anchor[3] + deltas[3]*regressionStd*height,
	}
}

// anchors returns the anchor pyramid for the given input size,
// generating and caching it on first use
func (r *RetinaNet) anchors(width, height int) [][4]float32 {

	key := [2]int{width, height}

	if cached, ok := r.anchorCache[key]; ok {
		return cached
	}

	generated := generateAnchors(width, height, r.Params.Anchors)
	r.anchorCache[key] = generated

	return generated
}

// generateAnchors produces the anchor boxes of every pyramid level in
// feature map order: level, then row major grid position, then ratio
// and scale
func generateAnchors(width, height int, p AnchorParams) [][4]float32 {

	var anchors [][4]float32

	for level, stride := range p.Strides {

		size := float32(p.Sizes[level])

		// feature map dimensions at this stride
		fw := (width + stride - 1) / stride
		fh := (height + stride - 1) / stride

		// base anchor shapes for this level
		shapes := make([][2]float32, 0, len(p.Ratios)*len(p.Scales))

		for _, ratio := range p.Ratios {
			for _, scale := range p.Scales {
				w := size * scale
				h := size * scale

				// adjust the square anchor to the aspect ratio while
				// preserving its area
				w /= float32(math.Sqrt(float64(ratio)))
				h *= float32(math.Sqrt(float64(ratio)))

				shapes = append(shapes, [2]float32{w, h})
			}
		}

		for y := 0; y < fh; y++ {
			for x := 0; x < fw; x++ {

				cx := (float32(x) + 0.5) * float32(stride)
				cy := (float32(y) + 0.5) * float32(stride)

				for _, s := range shapes {
					anchors = append(anchors, [4]float32{
						cx - s[0]/2, cy - s[1]/2,
						cx + s[0]/2, cy + s[1]/2,
					})
				}
			}
		}
	}

	return anchors
}
