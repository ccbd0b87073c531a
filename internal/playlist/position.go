package playlist

import "sort"

// positionCalculator computes the dense position shifts needed to move a
// set of playlist entries by a fixed delta, without touching the
// database. Adapted near-verbatim from the teacher's playlists package;
// the math is domain-independent of what Apollo's tracks/albums look
// like, only the positions matter.
type positionCalculator struct {
	sorted []int
	count  int
	delta  int
}

func newPositionCalculator(positions []int, count, delta int) *positionCalculator {
	sorted := make([]int, len(positions))
	copy(sorted, positions)
	sort.Ints(sorted)
	return &positionCalculator{sorted: sorted, count: count, delta: delta}
}

// canMove reports whether shifting by delta stays within [0, count).
func (c *positionCalculator) canMove() bool {
	if len(c.sorted) == 0 || c.delta == 0 {
		return false
	}
	if c.delta < 0 {
		return c.sorted[0]+c.delta >= 0
	}
	return c.sorted[len(c.sorted)-1]+c.delta < c.count
}

func (c *positionCalculator) newPositions(original []int) []int {
	result := make([]int, len(original))
	for i, pos := range original {
		result[i] = pos + c.delta
	}
	return result
}

// shiftRange is a half-open [start, end) range of non-moving entries
// whose position must shift by delta to make room.
type shiftRange struct {
	start int
	end   int
	delta int
}

func (c *positionCalculator) shiftRanges() []shiftRange {
	if !c.canMove() {
		return nil
	}
	var ranges []shiftRange
	if c.delta < 0 {
		for _, pos := range c.sorted {
			ranges = append(ranges, shiftRange{start: pos + c.delta, end: pos, delta: 1})
		}
	} else {
		for i := len(c.sorted) - 1; i >= 0; i-- {
			pos := c.sorted[i]
			ranges = append(ranges, shiftRange{start: pos + 1, end: pos + c.delta + 1, delta: -1})
		}
	}
	return ranges
}

func (c *positionCalculator) sortedPositions() []int {
	return c.sorted
}
