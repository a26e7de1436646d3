package annotations

import "sort"

// Split partitions the annotation records into deterministic train and
// test sets.
//
// With singleTile unset, whole tiles are held out: the records are
// grouped by tile, tile names sorted, and the last tenth of tiles (at
// least one) become the test partition.  With singleTile set the data
// covers one raw tile only, so the hold out is spatial instead: records
// are ordered by position and the bottom tenth of the tile (at least
// one record) becomes the test partition
func Split(records []Record, singleTile bool) (train, test []Record) {

	if len(records) == 0 {
		return nil, nil
	}

	if singleTile {
		return splitSpatial(records)
	}

	return splitTiles(records)
}

// splitTiles holds out whole tiles
func splitTiles(records []Record) (train, test []Record) {

	tiles := map[string]bool{}

	for _, rec := range records {
		tiles[rec.Image] = true
	}

	names := make([]string, 0, len(tiles))

	for name := range tiles {
		names = append(names, name)
	}

	sort.Strings(names)

	holdOut := len(names) / 10

	if holdOut < 1 {
		holdOut = 1
	}

	testTiles := map[string]bool{}

	for _, name := range names[len(names)-holdOut:] {
		testTiles[name] = true
	}

	for _, rec := range records {
		if testTiles[rec.Image] {
			test = append(test, rec)
		} else {
			train = append(train, rec)
		}
	}

	return train, test
}

// splitSpatial holds out the bottom band of the single tile
func splitSpatial(records []Record) (train, test []Record) {

	ordered := make([]Record, len(records))
	copy(ordered, records)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].YMin != ordered[j].YMin {
			return ordered[i].YMin < ordered[j].YMin
		}
		return ordered[i].XMin < ordered[j].XMin
	})

	holdOut := len(ordered) / 10

	if holdOut < 1 {
		holdOut = 1
	}

	split := len(ordered) - holdOut

	train = ordered[:split]
	test = ordered[split:]

	return train, test
}
