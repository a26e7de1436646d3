package eval

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/canopyml/crowneval/generator"
)

// fakeRecorder captures logged metrics and parameters
type fakeRecorder struct {
	metrics map[string]float64
	params  map[string]any
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		metrics: make(map[string]float64),
		params:  make(map[string]any),
	}
}

func (r *fakeRecorder) LogMetric(name string, value float64) error {
	r.metrics[name] = value
	return nil
}

func (r *fakeRecorder) LogParameter(name string, value any) error {
	r.params[name] = value
	return nil
}

func reportFixture() ([]ClassResult, *fakeSource) {

	results := []ClassResult{
		{Label: 0, Name: "Tree", AveragePrecision: 0.5, Annotations: 2},
	}

	src := &fakeSource{
		names: []string{"w0", "w1"},
		annots: [][]generator.Annotation{
			{{Label: 0}, {Label: 0}},
			{},
		},
		labels:    []string{"Tree"},
		batchSize: 1,
	}

	return results, src
}

func TestReportSkipsMeanIoUForOtherSites(t *testing.T) {

	results, src := reportFixture()
	rec := newFakeRecorder()

	var buf bytes.Buffer

	err := Report(&buf, results, src, &fakeDetector{}, nil, nil,
		ReportParams{Site: "TEAK"}, rec)

	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if _, ok := rec.metrics["Mean IoU"]; ok {
		t.Error("Mean IoU must not be logged for sites without crown polygons")
	}

	if got, ok := rec.metrics["mAP"]; !ok || !almostEqual(got, 0.5) {
		t.Errorf("mAP metric = %f (logged %v), want 0.5", got, ok)
	}

	if _, ok := rec.metrics["Recall"]; !ok {
		t.Error("Recall must be logged for every site")
	}

	if _, ok := rec.params["Number of Trees"]; !ok {
		t.Error("Number of Trees must be logged for every site")
	}

	out := buf.String()

	if !strings.Contains(out, "2 instances of class Tree with average precision: 0.5000") {
		t.Errorf("missing per class line in output:\n%s", out)
	}

	if !strings.Contains(out, "mAP: 0.5000") {
		t.Errorf("missing mAP line in output:\n%s", out)
	}

	if !strings.Contains(out, " Recall: 0.00") {
		t.Errorf("missing recall line in output:\n%s", out)
	}

	if strings.Contains(out, "Mean IoU") {
		t.Errorf("unexpected Mean IoU line in output:\n%s", out)
	}
}

func TestReportRunsMeanIoUForGroundTruthSite(t *testing.T) {

	results, src := reportFixture()
	rec := newFakeRecorder()

	var buf bytes.Buffer

	// the gate fires for the ground truth site and the polygon
	// comparison rejects the missing plot data
	err := Report(&buf, results, src, &fakeDetector{}, nil, nil,
		ReportParams{Site: GroundTruthSite}, rec)

	if err == nil {
		t.Fatal("expected an error from the polygon comparison without plots")
	}

	if !strings.Contains(err.Error(), "field plots") {
		t.Errorf("error = %v, want field plot complaint", err)
	}
}

func TestReportNoAnnotations(t *testing.T) {

	_, src := reportFixture()

	results := []ClassResult{
		{Label: 0, Name: "Tree", AveragePrecision: 0, Annotations: 0},
	}

	err := Report(&bytes.Buffer{}, results, src, &fakeDetector{}, nil, nil,
		ReportParams{Site: "TEAK"}, newFakeRecorder())

	if !errors.Is(err, ErrNoAnnotations) {
		t.Errorf("expected ErrNoAnnotations, got %v", err)
	}
}
