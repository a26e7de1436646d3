package eval

import (
	"testing"

	"github.com/canopyml/crowneval/postprocess"
)

func TestStemCovered(t *testing.T) {

	dets := []postprocess.DetectResult{
		{Box: postprocess.BoxRect{Left: 10, Top: 10, Right: 20, Bottom: 20}},
	}

	tests := []struct {
		stem Point
		want bool
	}{
		{Point{X: 15, Y: 15}, true},
		// box edges count as covered
		{Point{X: 10, Y: 20}, true},
		{Point{X: 5, Y: 15}, false},
		{Point{X: 15, Y: 25}, false},
	}

	for _, tc := range tests {

		if got := stemCovered(tc.stem, dets); got != tc.want {
			t.Errorf("stemCovered(%v) = %v, want %v", tc.stem, got, tc.want)
		}
	}
}

func TestPlotFraction(t *testing.T) {

	trees := []FieldTree{
		{Stem: Point{X: 15, Y: 15}},
		{Stem: Point{X: 50, Y: 50}},
		{Stem: Point{X: 12, Y: 18}},
		{Stem: Point{X: 90, Y: 90}},
	}

	dets := []postprocess.DetectResult{
		{Box: postprocess.BoxRect{Left: 10, Top: 10, Right: 20, Bottom: 20}},
	}

	if got := plotFraction(trees, dets); !almostEqual(got, 0.5) {
		t.Errorf("plot fraction = %f, want 0.5", got)
	}

	if got := plotFraction(nil, dets); got != 0 {
		t.Errorf("plot fraction with no trees = %f, want 0", got)
	}
}

func TestPlotsForSite(t *testing.T) {

	plots := []Plot{
		{Name: "p1", Site: "OSBS"},
		{Name: "p2", Site: "TEAK"},
		{Name: "p3", Site: "OSBS"},
	}

	got := PlotsForSite(plots, "OSBS")

	if len(got) != 2 || got[0].Name != "p1" || got[1].Name != "p3" {
		t.Errorf("PlotsForSite returned %+v, want p1 and p3", got)
	}
}
