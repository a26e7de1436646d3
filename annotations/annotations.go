package annotations

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Record is one hand annotated object: the raw imagery tile it was
// drawn on, its class label, and its bounding box in tile pixel
// coordinates
type Record struct {
	// Image is the raw imagery tile file name
	Image string
	// bounding box in pixel coordinates
	XMin float64
	YMin float64
	XMax float64
	YMax float64
	// Label is the object class name
	Label string
}

// header columns expected in an annotation CSV
var header = []string{"image_path", "xmin", "ymin", "xmax", "ymax", "label"}

// Load reads every annotation CSV matching the glob pattern.  Box
// coordinates are stored in the ground units the field crews annotated
// in and are divided by res (ground resolution in units per pixel) to
// produce pixel coordinates
func Load(pattern string, res float64) ([]Record, error) {

	if res <= 0 {
		return nil, fmt.Errorf("ground resolution must be positive, got %v", res)
	}

	files, err := filepath.Glob(pattern)

	if err != nil {
		return nil, fmt.Errorf("invalid annotation glob %q: %w", pattern, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no annotation files match %q", pattern)
	}

	sort.Strings(files)

	var records []Record

	for _, file := range files {

		recs, err := loadFile(file, res)

		if err != nil {
			return nil, err
		}

		records = append(records, recs...)
	}

	return records, nil
}

// loadFile reads a single annotation CSV
func loadFile(file string, res float64) ([]Record, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening annotations: %w", err)
	}

	defer f.Close()

	r := csv.NewReader(f)

	rows, err := r.ReadAll()

	if err != nil {
		return nil, fmt.Errorf("error reading annotations from %s: %w", file, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("annotation file %s is empty", file)
	}

	if len(rows[0]) != len(header) {
		return nil, fmt.Errorf("annotation file %s has %d columns, want %d",
			file, len(rows[0]), len(header))
	}

	records := make([]Record, 0, len(rows)-1)

	for i, row := range rows[1:] {

		coords := make([]float64, 4)

		for c := 0; c < 4; c++ {

			v, err := strconv.ParseFloat(row[c+1], 64)

			if err != nil {
				return nil, fmt.Errorf("annotation %s row %d: bad coordinate %q: %w",
					file, i+2, row[c+1], err)
			}

			coords[c] = v / res
		}

		records = append(records, Record{
			Image: row[0],
			XMin:  coords[0],
			YMin:  coords[1],
			XMax:  coords[2],
			YMax:  coords[3],
			Label: row[5],
		})
	}

	return records, nil
}

// ZeroArea drops annotations whose bounding box has no area, these are
// digitizing artifacts in the hand annotated data
func ZeroArea(records []Record) []Record {

	kept := make([]Record, 0, len(records))

	for _, rec := range records {

		if rec.XMin == rec.XMax || rec.YMin == rec.YMax {
			continue
		}

		kept = append(kept, rec)
	}

	return kept
}

// WriteCSV writes records to an annotation CSV at path, creating parent
// directories as needed
func WriteCSV(path string, records []Record) error {

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating annotation directory: %w", err)
	}

	f, err := os.Create(path)

	if err != nil {
		return fmt.Errorf("error creating annotation file: %w", err)
	}

	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write(header); err != nil {
		return fmt.Errorf("error writing annotation header: %w", err)
	}

	for _, rec := range records {

		row := []string{
			rec.Image,
			strconv.FormatFloat(rec.XMin, 'f', -1, 64),
			strconv.FormatFloat(rec.YMin, 'f', -1, 64),
			strconv.FormatFloat(rec.XMax, 'f', -1, 64),
			strconv.FormatFloat(rec.YMax, 'f', -1, 64),
			rec.Label,
		}

		if err := w.Write(row); err != nil {
			return fmt.Errorf("error writing annotation row: %w", err)
		}
	}

	w.Flush()

	return w.Error()
}
