package crowneval

import (
	"fmt"

	"gocv.io/x/gocv"
)

// matDepthFloat16 is the OpenCV CV_16F depth value, not yet wrapped by
// a gocv MatType constant
const matDepthFloat16 = 7

// Output holds a single output head copied out of a forward pass
type Output struct {
	// Name of the output layer the buffer came from
	Name string
	// Dims are the tensor dimensions of the output, the first dimension
	// is the batch size
	Dims []int
	// BufFloat is the tensor contents as float32
	BufFloat []float32
}

// Outputs holds all output heads of a forward pass in graph order
type Outputs struct {
	Output []Output
}

// ByName returns the output head with the given layer name
func (o *Outputs) ByName(name string) (Output, bool) {

	for _, out := range o.Output {
		if out.Name == name {
			return out, true
		}
	}

	return Output{}, false
}

// BatchSize returns the leading dimension of the first output head
func (o *Outputs) BatchSize() int {

	if len(o.Output) == 0 || len(o.Output[0].Dims) == 0 {
		return 0
	}

	return o.Output[0].Dims[0]
}

// ImageSlice returns the portion of the output buffer belonging to
// image idx of a batched forward pass
func (o Output) ImageSlice(idx int) ([]float32, error) {

	if len(o.Dims) == 0 || o.Dims[0] <= 0 {
		return nil, fmt.Errorf("output %s has no batch dimension", o.Name)
	}

	batch := o.Dims[0]

	if idx < 0 || idx >= batch {
		return nil, fmt.Errorf("index %d out of range [0-%d)", idx, batch)
	}

	size := len(o.BufFloat) / batch
	offset := idx * size

	return o.BufFloat[offset : offset+size], nil
}

// matToFloat32 copies the contents of an output Mat into a float32
// slice, converting half precision tensors through the float16 lookup
// table
func matToFloat32(m gocv.Mat) ([]float32, error) {

	depth := int(m.Type()) & 7

	switch {
	case m.Type() == gocv.MatTypeCV32F:
		src, err := m.DataPtrFloat32()

		if err != nil {
			return nil, fmt.Errorf("error accessing float32 output: %w", err)
		}

		buf := make([]float32, len(src))
		copy(buf, src)
		return buf, nil

	case depth == matDepthFloat16:
		src, err := m.DataPtrUint16()

		if err != nil {
			return nil, fmt.Errorf("error accessing float16 output: %w", err)
		}

		return convertFloat16BufferToFloat32(src), nil

	default:
		// convert any other depth through a temporary float32 Mat
		tmp := gocv.NewMat()
		defer tmp.Close()

		m.ConvertTo(&tmp, gocv.MatTypeCV32F)

		src, err := tmp.DataPtrFloat32()

		if err != nil {
			return nil, fmt.Errorf("error converting output to float32: %w", err)
		}

		buf := make([]float32, len(src))
		copy(buf, src)
		return buf, nil
	}
}
