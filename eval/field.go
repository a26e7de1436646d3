package eval

import (
	"encoding/json"
	"fmt"
	"os"
)

// Point is a 2D coordinate in plot image pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FieldTree is one field collected tree within a survey plot: the
// mapped stem position and, where crews digitized them, the crown
// polygon
type FieldTree struct {
	// Stem is the mapped stem position
	Stem Point `json:"stem"`
	// Polygon is the field collected crown outline, may be empty for
	// sites surveyed with stem maps only
	Polygon []Point `json:"polygon,omitempty"`
}

// Plot is one field survey plot with its imagery window and collected
// trees
type Plot struct {
	// Name identifies the plot
	Name string `json:"name"`
	// Site is the site the plot belongs to
	Site string `json:"site"`
	// Image is the plot imagery file, relative to the evaluation tile
	// directory
	Image string `json:"image"`
	// Trees are the field collected trees of the plot
	Trees []FieldTree `json:"trees"`
}

// LoadPlots reads the field collected plot ground truth from a JSON
// file
func LoadPlots(path string) ([]Plot, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("error reading field plots: %w", err)
	}

	var plots []Plot

	if err := json.Unmarshal(data, &plots); err != nil {
		return nil, fmt.Errorf("error parsing field plots from %s: %w", path, err)
	}

	return plots, nil
}

// PlotsForSite returns the plots belonging to the given site
func PlotsForSite(plots []Plot, site string) []Plot {

	var matched []Plot

	for _, plot := range plots {
		if plot.Site == site {
			matched = append(matched, plot)
		}
	}

	return matched
}
