package eval

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestMeanAveragePrecision(t *testing.T) {

	results := []ClassResult{
		{Label: 0, Name: "A", AveragePrecision: 0.8, Annotations: 10},
		{Label: 1, Name: "B", AveragePrecision: 0.0, Annotations: 0},
		{Label: 2, Name: "C", AveragePrecision: 0.4, Annotations: 5},
	}

	got, err := MeanAveragePrecision(results)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// class B has no annotations so only A and C contribute
	if !almostEqual(got, 0.6) {
		t.Errorf("mAP = %f, want 0.6", got)
	}
}

func TestMeanAveragePrecisionNoAnnotations(t *testing.T) {

	results := []ClassResult{
		{Label: 0, Name: "A", AveragePrecision: 0.0, Annotations: 0},
		{Label: 1, Name: "B", AveragePrecision: 0.0, Annotations: 0},
	}

	_, err := MeanAveragePrecision(results)

	if !errors.Is(err, ErrNoAnnotations) {
		t.Errorf("expected ErrNoAnnotations, got %v", err)
	}
}

func TestAveragePrecisionPerfectDetector(t *testing.T) {

	dets := []scoredDetection{
		{score: 0.9, tp: true},
		{score: 0.8, tp: true},
		{score: 0.7, tp: true},
	}

	got := averagePrecision(dets, 3)

	if !almostEqual(got, 1.0) {
		t.Errorf("AP = %f, want 1.0", got)
	}
}

func TestAveragePrecisionMixed(t *testing.T) {

	// ranked detections: tp, fp, tp against 3 annotated instances
	dets := []scoredDetection{
		{score: 0.9, tp: true},
		{score: 0.8, tp: false},
		{score: 0.7, tp: true},
	}

	got := averagePrecision(dets, 3)

	// recall steps of 1/3 at precision 1.0 and 2/3
	want := 1.0/3.0 + (1.0/3.0)*(2.0/3.0)

	if !almostEqual(got, want) {
		t.Errorf("AP = %f, want %f", got, want)
	}
}

func TestAveragePrecisionNoDetections(t *testing.T) {

	if got := averagePrecision(nil, 5); got != 0 {
		t.Errorf("AP = %f, want 0", got)
	}

	if got := averagePrecision([]scoredDetection{{score: 0.9, tp: false}}, 0); got != 0 {
		t.Errorf("AP with zero annotations = %f, want 0", got)
	}
}
