package annotations

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, dir, name, contents string) string {
	t.Helper()

	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestLoad(t *testing.T) {

	dir := t.TempDir()

	writeCSV(t, dir, "site_a.csv",
		"image_path,xmin,ymin,xmax,ymax,label\n"+
			"tile1.tif,1.0,2.0,3.0,4.0,Tree\n")
	writeCSV(t, dir, "site_b.csv",
		"image_path,xmin,ymin,xmax,ymax,label\n"+
			"tile2.tif,0.5,0.5,1.5,1.5,Tree\n")

	records, err := Load(filepath.Join(dir, "*.csv"), 0.1)

	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Load() returned %d records, want 2", len(records))
	}

	// files are read in sorted order and coordinates divided by the
	// ground resolution
	first := records[0]

	if first.Image != "tile1.tif" || first.XMin != 10 || first.YMax != 40 {
		t.Errorf("unexpected first record: %+v", first)
	}

	if first.Label != "Tree" {
		t.Errorf("unexpected label %q", first.Label)
	}
}

func TestLoadRejectsBadResolution(t *testing.T) {

	if _, err := Load("*.csv", 0); err == nil {
		t.Error("Load() accepted zero resolution")
	}
}

func TestLoadNoMatches(t *testing.T) {

	if _, err := Load(filepath.Join(t.TempDir(), "*.csv"), 0.1); err == nil {
		t.Error("Load() accepted an empty glob")
	}
}

func TestZeroArea(t *testing.T) {

	records := []Record{
		{Image: "a", XMin: 0, YMin: 0, XMax: 10, YMax: 10},
		{Image: "b", XMin: 5, YMin: 0, XMax: 5, YMax: 10},
		{Image: "c", XMin: 0, YMin: 7, XMax: 10, YMax: 7},
	}

	kept := ZeroArea(records)

	if len(kept) != 1 || kept[0].Image != "a" {
		t.Errorf("ZeroArea() kept %+v, want only record a", kept)
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "out", "evaluation.csv")

	records := []Record{
		{Image: "tile1.tif", XMin: 1, YMin: 2, XMax: 3, YMax: 4, Label: "Tree"},
	}

	if err := WriteCSV(path, records); err != nil {
		t.Fatalf("WriteCSV() error: %v", err)
	}

	got, err := Load(path, 1.0)

	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(got) != 1 || got[0] != records[0] {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestSplitTiles(t *testing.T) {

	var records []Record

	for _, tile := range []string{"t1.tif", "t2.tif", "t3.tif"} {
		for i := 0; i < 4; i++ {
			records = append(records, Record{Image: tile, XMin: float64(i),
				YMin: 0, XMax: float64(i + 1), YMax: 1, Label: "Tree"})
		}
	}

	train, test := Split(records, false)

	if len(train) != 8 || len(test) != 4 {
		t.Fatalf("Split() = %d train / %d test, want 8/4", len(train), len(test))
	}

	// the last sorted tile is held out whole
	for _, rec := range test {
		if rec.Image != "t3.tif" {
			t.Errorf("test partition contains tile %s", rec.Image)
		}
	}

	// determinism
	train2, test2 := Split(records, false)

	if len(train2) != len(train) || len(test2) != len(test) {
		t.Error("Split() is not deterministic")
	}
}

func TestSplitSingleTile(t *testing.T) {

	var records []Record

	for i := 0; i < 20; i++ {
		records = append(records, Record{Image: "t1.tif", XMin: 0,
			YMin: float64(i * 10), XMax: 10, YMax: float64(i*10 + 5)})
	}

	train, test := Split(records, true)

	if len(test) != 2 || len(train) != 18 {
		t.Fatalf("Split() = %d train / %d test, want 18/2", len(train), len(test))
	}

	// hold out is the bottom band of the tile
	for _, rec := range test {
		if rec.YMin < 180 {
			t.Errorf("test record %+v not from the bottom band", rec)
		}
	}
}
