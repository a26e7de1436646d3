package preprocess

import "testing"

func TestComputePositions(t *testing.T) {

	positions, winLen := computePositions(1000, 400, 0.05)

	if winLen != 420 {
		t.Fatalf("computePositions() window length = %d, want 420", winLen)
	}

	want := []int{0, 290, 580}

	if len(positions) != len(want) {
		t.Fatalf("computePositions() produced %d positions, want %d",
			len(positions), len(want))
	}

	for i := range want {
		if positions[i] != want[i] {
			t.Errorf("position[%d] = %d, want %d", i, positions[i], want[i])
		}
	}

	// last window must end exactly at the tile edge
	if positions[len(positions)-1]+winLen != 1000 {
		t.Errorf("final window ends at %d, want 1000",
			positions[len(positions)-1]+winLen)
	}
}

func TestComputePositionsSmallTile(t *testing.T) {

	positions, winLen := computePositions(300, 400, 0.05)

	if len(positions) != 1 || positions[0] != 0 || winLen != 300 {
		t.Errorf("small tile expected a single full window, got positions=%v winLen=%d",
			positions, winLen)
	}
}

func TestWindowsGrid(t *testing.T) {

	s := NewSlicer(400, 400, 0.05, 0.05)

	windows := s.Windows(1000, 1000)

	if len(windows) != 9 {
		t.Fatalf("Windows() produced %d windows, want 9", len(windows))
	}

	// row major order from the origin
	if windows[0].X != 0 || windows[0].Y != 0 {
		t.Errorf("first window = %+v, want origin", windows[0])
	}

	if windows[1].Y != 0 || windows[1].X <= windows[0].X {
		t.Errorf("second window not to the right of the first: %+v", windows[1])
	}

	// determinism: a second cut enumerates the identical grid
	again := s.Windows(1000, 1000)

	for i := range windows {
		if windows[i] != again[i] {
			t.Fatalf("window grid not deterministic at index %d", i)
		}
	}
}
