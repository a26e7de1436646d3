package crowneval

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Batch concatenates a batch of equally sized image windows into a
// single NCHW float32 input blob with channel mean subtraction applied
type Batch struct {
	mat gocv.Mat
	// size of the batch
	size int
	// width is the input width in pixels
	width int
	// height is the input height in pixels
	height int
	// channels is the number of image channels
	channels int
	// matCnt is a counter for how many windows have been added with Add()
	matCnt int
	// planeSize is the element count of one channel plane
	planeSize int
}

// NewBatch creates a batch blob for the given window dimensions and
// batch size
func NewBatch(batchSize, height, width, channels int) *Batch {

	shape := []int{batchSize, channels, height, width}

	return &Batch{
		size:      batchSize,
		height:    height,
		width:     width,
		channels:  channels,
		mat:       gocv.NewMatWithSizes(shape, gocv.MatTypeCV32F),
		matCnt:    0,
		planeSize: height * width,
	}
}

// Add a window to the batch
func (b *Batch) Add(img gocv.Mat) error {

	// check if batch is full
	if b.matCnt >= b.size {
		return fmt.Errorf("batch full")
	}

	res := b.addAt(b.matCnt, img)

	if res != nil {
		return res
	}

	// increment window counter
	b.matCnt++
	return nil
}

// AddAt adds a window to the batch at the specific index location
func (b *Batch) AddAt(idx int, img gocv.Mat) error {

	if idx < 0 || idx >= b.size {
		return fmt.Errorf("index %d out of range [0-%d)", idx, b.size)
	}

	return b.addAt(idx, img)
}

// addAt copies the window into the blob at the given index as mean
// subtracted channel planes
func (b *Batch) addAt(idx int, img gocv.Mat) error {

	// validate mat dimensions
	if img.Rows() != b.height || img.Cols() != b.width ||
		img.Channels() != b.channels {
		return fmt.Errorf("window does not match batch shape")
	}

	img32 := gocv.NewMat()
	defer img32.Close()

	img.ConvertTo(&img32, gocv.MatTypeCV32F)

	chans := gocv.Split(img32)

	dst, err := b.mat.DataPtrFloat32()

	if err != nil {
		for _, ch := range chans {
			ch.Close()
		}
		return fmt.Errorf("error accessing batch memory: %w", err)
	}

	for c, ch := range chans {

		src, err := ch.DataPtrFloat32()

		if err != nil {
			ch.Close()
			return fmt.Errorf("error getting channel data from window: %w", err)
		}

		var mean float32

		if c < len(inputMean) {
			mean = inputMean[c]
		}

		offset := idx*b.channels*b.planeSize + c*b.planeSize

		for i, v := range src {
			dst[offset+i] = v - mean
		}

		ch.Close()
	}

	return nil
}

// Count returns the number of windows added since the last Clear
func (b *Batch) Count() int {
	return b.matCnt
}

// Mat returns the concatenated blob
func (b *Batch) Mat() gocv.Mat {
	return b.mat
}

// Clear the batch so it can be reused again
func (b *Batch) Clear() {
	// just reset the counter, the underlying blob is overwritten when
	// Add() is called with new windows
	b.matCnt = 0
}

// Close the batch and free allocated memory
func (b *Batch) Close() error {
	return b.mat.Close()
}
