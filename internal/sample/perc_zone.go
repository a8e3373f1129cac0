package sample

import (
	"fmt"
	"sort"
)

// percZone is a half-open, direction-signed range of sample positions for
// which the percussive envelope has already been computed, plus the
// filter state needed to resume computation exactly at its end.
//
// Per direction, zones are kept strictly ascending by start position,
// pairwise non-overlapping, and never zero-length: a would-be zero-length
// zone is deleted immediately.
type percZone struct {
	start int
	// end can run one past the waveform (or to -1 when reversed).
	end int
	// replaceLen is how many samples at the start of this zone an
	// earlier fill may overwrite while its filters settle.
	replaceLen int

	// Resumable filter state, valid at end.
	lastSampleRead int32
	lastAngle      int32
	lpf            [numAngleLPFStages]int32
}

// resetEnd trims the zone's end. The filter state described the old end,
// so it is cleared; the next fill resuming here restarts its filters and
// relies on replaceLen downstream to paper over the settling.
func (z *percZone) resetEnd(end int) {
	z.end = end
	z.lastSampleRead = 0
	z.lastAngle = 0
	z.lpf = [numAngleLPFStages]int32{}
}

// zoneSearchGE returns the first index whose zone starts at or after pos,
// or len(zones) if none does.
func zoneSearchGE(zones []percZone, pos int) int {
	return sort.Search(len(zones), func(i int) bool { return zones[i].start >= pos })
}

// zoneSearchLT returns the last index whose zone starts before pos, or -1
// if none does.
func zoneSearchLT(zones []percZone, pos int) int {
	return zoneSearchGE(zones, pos) - 1
}

// insertZone inserts z at index i, keeping the slice sorted by start.
func insertZone(zones []percZone, i int, z percZone) []percZone {
	zones = append(zones, percZone{})
	copy(zones[i+1:], zones[i:])
	zones[i] = z
	return zones
}

// deleteZones removes n zones starting at index i.
func deleteZones(zones []percZone, i, n int) []percZone {
	return append(zones[:i], zones[i+n:]...)
}

// checkZoneOrder verifies the per-direction ordering invariant after a
// mutation. Positions ascend by start, and each zone's occupied range
// must not overlap its successor's in the playback direction.
func (s *Sample) checkZoneOrder(dir Direction) {
	zones := s.perc[dir.index()].zones
	d := int(dir)
	for i := 1; i < len(zones); i++ {
		prev, cur := &zones[i-1], &zones[i]
		if prev.start >= cur.start {
			s.cfg.Fatal(FatalZoneOrder, fmt.Sprintf("%s zones %d and %d of %s out of order: starts %d, %d",
				dir, i-1, i, s.Name, prev.start, cur.start))
			return
		}
		// In the playback direction the earlier zone must end before
		// the later zone starts.
		var earlier, later *percZone
		if d == 1 {
			earlier, later = prev, cur
		} else {
			earlier, later = cur, prev
		}
		if (later.start-earlier.end)*d < 0 {
			s.cfg.Fatal(FatalZoneOrder, fmt.Sprintf("%s zones of %s overlap: [%d,%d) then [%d,%d)",
				dir, s.Name, earlier.start, earlier.end, later.start, later.end))
			return
		}
	}
}
