// Package generator builds the evaluation batch source consumed by the
// evaluation driver.  Windows are cropped out of the raw imagery tiles
// on the fly, in a fixed deterministic order with no shuffling or
// grouping, so two passes over the same annotation set enumerate
// identical batches.
package generator

import (
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	"github.com/canopyml/crowneval/annotations"
	"github.com/canopyml/crowneval/preprocess"
)

// Config holds the generator settings
type Config struct {
	// BaseDir is the raw imagery tile directory
	BaseDir string
	// TileWidth and TileHeight are the pixel dimensions of the raw
	// tiles, all tiles of a site share the same dimensions
	TileWidth  int
	TileHeight int
	// WindowSize is the square evaluation window size cut from a tile
	WindowSize int
	// WindowOverlap is the ratio of WindowSize adjacent windows overlap
	WindowOverlap float32
	// BatchSize is the number of windows per evaluation batch
	BatchSize int
	// ImageMinSide and ImageMaxSide bound the window resize before
	// inference
	ImageMinSide int
	ImageMaxSide int
}

// Annotation is a ground truth box in window pixel coordinates with its
// label index
type Annotation struct {
	// Box is xmin, ymin, xmax, ymax
	Box [4]float64
	// Label is the class index in the generators label mapping
	Label int
}

// Window is one evaluation window cut from a raw tile together with the
// annotations falling inside it
type Window struct {
	// Tile is the raw tile file name the window is cropped from
	Tile string
	// Rect is the window position within the tile
	Rect preprocess.Window
	// annots are the ground truth boxes in window coordinates
	annots []Annotation
}

// Name returns a stable identifier for the window used for saved
// annotated images and count logging
func (w Window) Name() string {

	base := strings.TrimSuffix(w.Tile, filepath.Ext(w.Tile))

	return fmt.Sprintf("%s_%d_%d", base, w.Rect.X, w.Rect.Y)
}

// OnTheFly is the evaluation generator.  It owns the label index to
// name mapping and the ordered window to annotation mapping
type OnTheFly struct {
	cfg     Config
	windows []Window
	// labels are the class names, sorted, index position is the label
	// index
	labels     []string
	labelIndex map[string]int
	resizer    *preprocess.Resizer

	// cache of the most recently read tile, windows are ordered by tile
	// so sequential iteration reads each tile once
	lastTile string
	lastMat  gocv.Mat
}

// NewOnTheFly builds a generator over the given annotation records,
// cutting each annotated tile into windows and assigning every record
// to the window containing its box center.  Windows with no
// annotations are dropped
func NewOnTheFly(records []annotations.Record, cfg Config) (*OnTheFly, error) {

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", cfg.WindowSize)
	}

	if cfg.TileWidth <= 0 || cfg.TileHeight <= 0 {
		return nil, fmt.Errorf("tile dimensions must be positive, got %dx%d",
			cfg.TileWidth, cfg.TileHeight)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no annotation records supplied")
	}

	g := &OnTheFly{
		cfg:        cfg,
		labelIndex: make(map[string]int),
		resizer:    preprocess.NewResizer(cfg.ImageMinSide, cfg.ImageMaxSide),
		lastMat:    gocv.NewMat(),
	}

	// label mapping: sorted unique class names
	seen := map[string]bool{}

	for _, rec := range records {
		if !seen[rec.Label] {
			seen[rec.Label] = true
			g.labels = append(g.labels, rec.Label)
		}
	}

	sort.Strings(g.labels)

	for i, name := range g.labels {
		g.labelIndex[name] = i
	}

	// group records by tile in sorted tile order
	byTile := map[string][]annotations.Record{}

	for _, rec := range records {
		byTile[rec.Image] = append(byTile[rec.Image], rec)
	}

	tiles := make([]string, 0, len(byTile))

	for tile := range byTile {
		tiles = append(tiles, tile)
	}

	sort.Strings(tiles)

	slicer := preprocess.NewSlicer(cfg.WindowSize, cfg.WindowSize,
		cfg.WindowOverlap, cfg.WindowOverlap)

	grid := slicer.Windows(cfg.TileWidth, cfg.TileHeight)

	for _, tile := range tiles {
		for _, rect := range grid {

			win := Window{Tile: tile, Rect: rect}

			for _, rec := range byTile[tile] {

				if !containsCenter(rect, rec) {
					continue
				}

				win.annots = append(win.annots, Annotation{
					Box: [4]float64{
						clampTo(rec.XMin-float64(rect.X), 0, float64(rect.X2-rect.X)),
						clampTo(rec.YMin-float64(rect.Y), 0, float64(rect.Y2-rect.Y)),
						clampTo(rec.XMax-float64(rect.X), 0, float64(rect.X2-rect.X)),
						clampTo(rec.YMax-float64(rect.Y), 0, float64(rect.Y2-rect.Y)),
					},
					Label: g.labelIndex[rec.Label],
				})
			}

			if len(win.annots) > 0 {
				g.windows = append(g.windows, win)
			}
		}
	}

	if len(g.windows) == 0 {
		return nil, fmt.Errorf("no evaluation windows contain annotations")
	}

	return g, nil
}

// containsCenter reports whether the records box center falls within
// the window
func containsCenter(rect preprocess.Window, rec annotations.Record) bool {

	cx := (rec.XMin + rec.XMax) / 2
	cy := (rec.YMin + rec.YMax) / 2

	return cx >= float64(rect.X) && cx < float64(rect.X2) &&
		cy >= float64(rect.Y) && cy < float64(rect.Y2)
}

// clampTo restricts v to the range [min, max]
func clampTo(v, min, max float64) float64 {

	if v < min {
		return min
	}

	if v > max {
		return max
	}

	return v
}

// Size returns the number of evaluation windows
func (g *OnTheFly) Size() int {
	return len(g.windows)
}

// Steps returns the number of batches one pass over the generator
// produces
func (g *OnTheFly) Steps() int {
	return (len(g.windows) + g.cfg.BatchSize - 1) / g.cfg.BatchSize
}

// BatchSize returns the configured batch size
func (g *OnTheFly) BatchSize() int {
	return g.cfg.BatchSize
}

// Batch returns the window indices of the given batch step
func (g *OnTheFly) Batch(step int) []int {

	start := step * g.cfg.BatchSize
	end := start + g.cfg.BatchSize

	if start >= len(g.windows) {
		return nil
	}

	if end > len(g.windows) {
		end = len(g.windows)
	}

	idxs := make([]int, 0, end-start)

	for i := start; i < end; i++ {
		idxs = append(idxs, i)
	}

	return idxs
}

// WindowName returns the stable identifier of window i
func (g *OnTheFly) WindowName(i int) string {
	return g.windows[i].Name()
}

// WindowAnnotations returns the ground truth boxes of window i in
// window pixel coordinates
func (g *OnTheFly) WindowAnnotations(i int) []Annotation {
	return g.windows[i].annots
}

// AnnotationCounts returns the number of annotated objects per window
// in window order
func (g *OnTheFly) AnnotationCounts() []int {

	counts := make([]int, len(g.windows))

	for i, win := range g.windows {
		counts[i] = len(win.annots)
	}

	return counts
}

// LabelToName maps a label index to its class name
func (g *OnTheFly) LabelToName(label int) string {

	if label < 0 || label >= len(g.labels) {
		return fmt.Sprintf("label-%d", label)
	}

	return g.labels[label]
}

// NumClasses returns the number of classes in the annotation set
func (g *OnTheFly) NumClasses() int {
	return len(g.labels)
}

// LoadWindow reads window i from its raw tile, resizes it to the model
// input bounds, and returns the resized window along with the scale
// factor applied
func (g *OnTheFly) LoadWindow(i int) (gocv.Mat, float32, error) {

	if i < 0 || i >= len(g.windows) {
		return gocv.NewMat(), 0, fmt.Errorf("window index %d out of range [0-%d)",
			i, len(g.windows))
	}

	win := g.windows[i]

	if win.Tile != g.lastTile {

		tile := gocv.IMRead(filepath.Join(g.cfg.BaseDir, win.Tile), gocv.IMReadColor)

		if tile.Empty() {
			return gocv.NewMat(), 0, fmt.Errorf("error reading tile %s", win.Tile)
		}

		g.lastMat.Close()
		g.lastMat = tile
		g.lastTile = win.Tile
	}

	rect := image.Rect(win.Rect.X, win.Rect.Y, win.Rect.X2, win.Rect.Y2)

	// clamp the window to the actual tile bounds in case the configured
	// tile dimensions overstate the raster
	bounds := image.Rect(0, 0, g.lastMat.Cols(), g.lastMat.Rows())
	rect = rect.Intersect(bounds)

	if rect.Empty() {
		return gocv.NewMat(), 0, fmt.Errorf("window %s lies outside tile bounds", win.Name())
	}

	region := g.lastMat.Region(rect)
	defer region.Close()

	resized := gocv.NewMat()
	scale := g.resizer.Resize(region, &resized)

	return resized, scale, nil
}

// Close frees the cached tile
func (g *OnTheFly) Close() error {
	return g.lastMat.Close()
}
