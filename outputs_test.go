package crowneval

import (
	"math"
	"os"
	"testing"
)

func TestSetVisibleDevice(t *testing.T) {

	orig, had := os.LookupEnv("CUDA_VISIBLE_DEVICES")
	defer func() {
		if had {
			os.Setenv("CUDA_VISIBLE_DEVICES", orig)
		} else {
			os.Unsetenv("CUDA_VISIBLE_DEVICES")
		}
	}()

	if err := SetVisibleDevice("1"); err != nil {
		t.Fatalf("SetVisibleDevice failed: %v", err)
	}

	if got := os.Getenv("CUDA_VISIBLE_DEVICES"); got != "1" {
		t.Errorf("CUDA_VISIBLE_DEVICES = %q, want 1", got)
	}
}

func TestOutputsByName(t *testing.T) {

	outputs := &Outputs{
		Output: []Output{
			{Name: "boxes"},
			{Name: "scores"},
		},
	}

	out, ok := outputs.ByName("scores")

	if !ok || out.Name != "scores" {
		t.Errorf("ByName(scores) = %v, %v", out, ok)
	}

	if _, ok := outputs.ByName("labels"); ok {
		t.Error("ByName(labels) found a head that does not exist")
	}
}

func TestImageSlice(t *testing.T) {

	out := Output{
		Name:     "scores",
		Dims:     []int{2, 3},
		BufFloat: []float32{0, 1, 2, 10, 11, 12},
	}

	second, err := out.ImageSlice(1)

	if err != nil {
		t.Fatalf("ImageSlice failed: %v", err)
	}

	if len(second) != 3 || second[0] != 10 || second[2] != 12 {
		t.Errorf("ImageSlice(1) = %v, want [10 11 12]", second)
	}

	if _, err := out.ImageSlice(2); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestConvertFloat16Buffer(t *testing.T) {

	// 0x3C00 is 1.0, 0xC000 is -2.0 in IEEE half precision
	got := convertFloat16BufferToFloat32([]uint16{0x3C00, 0xC000, 0x0000})

	want := []float32{1.0, -2.0, 0.0}

	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("value %d = %f, want %f", i, got[i], want[i])
		}
	}
}
