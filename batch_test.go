package crowneval

import (
	"math"
	"testing"

	"gocv.io/x/gocv"
)

func almostEqual32(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

// windowOfColor returns a BGR window filled with the given channel
// values
func windowOfColor(rows, cols int, b, g, r float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0),
		rows, cols, gocv.MatTypeCV8UC3)
}

func TestBatchPlaneLayoutAndMeanSubtraction(t *testing.T) {

	batch := NewBatch(2, 2, 2, 3)
	defer batch.Close()

	first := windowOfColor(2, 2, 110, 120, 130)
	defer first.Close()

	second := windowOfColor(2, 2, 50, 60, 70)
	defer second.Close()

	if err := batch.Add(first); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := batch.Add(second); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	blob := batch.Mat()

	dims := blob.Size()

	if len(dims) != 4 || dims[0] != 2 || dims[1] != 3 || dims[2] != 2 || dims[3] != 2 {
		t.Fatalf("blob dimensions = %v, want [2 3 2 2]", dims)
	}

	data, err := blob.DataPtrFloat32()

	if err != nil {
		t.Fatalf("error accessing blob memory: %v", err)
	}

	// each window contributes three mean subtracted channel planes of
	// four elements in BGR order
	planeSize := 4

	wants := []struct {
		offset int
		value  float32
	}{
		{0 * planeSize, 110 - inputMean[0]},
		{1 * planeSize, 120 - inputMean[1]},
		{2 * planeSize, 130 - inputMean[2]},
		{3 * planeSize, 50 - inputMean[0]},
		{4 * planeSize, 60 - inputMean[1]},
		{5 * planeSize, 70 - inputMean[2]},
	}

	for _, w := range wants {
		for i := 0; i < planeSize; i++ {
			if !almostEqual32(data[w.offset+i], w.value) {
				t.Errorf("blob[%d] = %f, want %f", w.offset+i,
					data[w.offset+i], w.value)
			}
		}
	}
}

func TestBatchFullAndClear(t *testing.T) {

	batch := NewBatch(1, 2, 2, 3)
	defer batch.Close()

	img := windowOfColor(2, 2, 10, 20, 30)
	defer img.Close()

	if err := batch.Add(img); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if got := batch.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}

	if err := batch.Add(img); err == nil {
		t.Error("expected error adding to a full batch")
	}

	batch.Clear()

	if got := batch.Count(); got != 0 {
		t.Errorf("Count() after Clear = %d, want 0", got)
	}

	if err := batch.Add(img); err != nil {
		t.Errorf("Add after Clear failed: %v", err)
	}
}

func TestBatchAddAt(t *testing.T) {

	batch := NewBatch(2, 2, 2, 3)
	defer batch.Close()

	img := windowOfColor(2, 2, 10, 20, 30)
	defer img.Close()

	if err := batch.AddAt(1, img); err != nil {
		t.Fatalf("AddAt failed: %v", err)
	}

	if err := batch.AddAt(2, img); err == nil {
		t.Error("expected error for index beyond batch size")
	}

	if err := batch.AddAt(-1, img); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestBatchRejectsMismatchedWindow(t *testing.T) {

	batch := NewBatch(1, 2, 2, 3)
	defer batch.Close()

	wrong := windowOfColor(3, 3, 10, 20, 30)
	defer wrong.Close()

	if err := batch.Add(wrong); err == nil {
		t.Error("expected error for window not matching the batch shape")
	}
}
