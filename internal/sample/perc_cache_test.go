package sample

import (
	"errors"
	"testing"

	"github.com/dgnsrekt/samplebank/internal/arena"
)

func requireZones(t *testing.T, s *Sample, dir Direction, want []percZone) {
	t.Helper()
	zones := s.perc[dir.index()].zones
	if len(zones) != len(want) {
		t.Fatalf("got %d zones, want %d: %+v", len(zones), len(want), zones)
	}
	for i := range want {
		if zones[i].start != want[i].start || zones[i].end != want[i].end {
			t.Errorf("zone %d = [%d,%d), want [%d,%d)",
				i, zones[i].start, zones[i].end, want[i].start, want[i].end)
		}
		if want[i].replaceLen != 0 && zones[i].replaceLen != want[i].replaceLen {
			t.Errorf("zone %d replaceLen = %d, want %d", i, zones[i].replaceLen, want[i].replaceLen)
		}
	}
}

func TestFillPercCacheFlatForward(t *testing.T) {
	env := newTestEnv(t, 16<<10)
	s := newTestSample(t, env, 2000, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 5000, Forward, 1<<20); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	defer pins.ReleaseAll()

	// The request past the waveform end clamps to the full length.
	requireZones(t, s, Forward, []percZone{{start: 0, end: 2000}})

	pc := &s.perc[Forward.index()]
	if pc.flat == nil {
		t.Fatal("short sample did not get a flat envelope buffer")
	}
	if pc.clusters != nil {
		t.Error("short sample got an envelope cluster table")
	}

	view, ok := s.LookupPercCache(5, Forward)
	if !ok {
		t.Fatal("LookupPercCache failed on a filled range")
	}
	if view.EarliestPos != 0 || view.LatestPos != 15 {
		t.Errorf("view bounds = [%d, %d], want [0, 15]", view.EarliestPos, view.LatestPos)
	}
	_ = view.ByteAt(5)
}

func TestFillPercCacheIdempotent(t *testing.T) {
	env := newTestEnv(t, 16<<10)
	s := newTestSample(t, env, 2000, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	for range 3 {
		if err := s.FillPercCache(&pins, 0, 2000, Forward, 1<<20); err != nil {
			t.Fatalf("FillPercCache: %v", err)
		}
	}
	pins.ReleaseAll()

	requireZones(t, s, Forward, []percZone{{start: 0, end: 2000}})
}

func TestFillPercCacheBudget(t *testing.T) {
	env := newTestEnv(t, 16<<10)
	s := newTestSample(t, env, 2000, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 2000, Forward, 500); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	requireZones(t, s, Forward, []percZone{{start: 0, end: 500}})

	// The next call resumes from the zone's end.
	if err := s.FillPercCache(&pins, 0, 2000, Forward, 500); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	requireZones(t, s, Forward, []percZone{{start: 0, end: 1000}})
	pins.ReleaseAll()
}

func TestFillPercCacheCoalescesNearbyStart(t *testing.T) {
	env := newTestEnv(t, 32<<10)
	s := newTestSample(t, env, 8000, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 5000, Forward, 1<<20); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	// Starts 100 samples before the zone's end: resumes it rather than
	// minting a second zone.
	if err := s.FillPercCache(&pins, 4900, 6000, Forward, 1<<20); err != nil {
		t.Fatalf("second fill: %v", err)
	}
	pins.ReleaseAll()

	requireZones(t, s, Forward, []percZone{{start: 0, end: 6000}})
}

func TestFillPercCacheSeparateZonesAndPartialMerge(t *testing.T) {
	env := newTestEnv(t, 32<<10)
	s := newTestSample(t, env, 8000, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 1000, Forward, 1<<20); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if err := s.FillPercCache(&pins, 5000, 6000, Forward, 1<<20); err != nil {
		t.Fatalf("second fill: %v", err)
	}
	requireZones(t, s, Forward, []percZone{
		{start: 0, end: 1000},
		{start: 5000, end: 6000},
	})

	// Bridging the gap stops partway into the later zone's replaceable
	// lead-in; the later zone is trimmed forward to meet the fill.
	if err := s.FillPercCache(&pins, 900, 5200, Forward, 1<<20); err != nil {
		t.Fatalf("bridging fill: %v", err)
	}
	pins.ReleaseAll()

	requireZones(t, s, Forward, []percZone{
		{start: 0, end: 5200},
		{start: 5200, end: 6000},
	})
}

func TestFillPercCacheAbsorbsNextZone(t *testing.T) {
	env := newTestEnv(t, 32<<10)
	s := newTestSample(t, env, 8000, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 2000, 3000, Forward, 1<<20); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if err := s.FillPercCache(&pins, 0, 1000, Forward, 1<<20); err != nil {
		t.Fatalf("second fill: %v", err)
	}

	// Refilling through the later zone's whole replaceable lead-in
	// absorbs it into the extended zone.
	if err := s.FillPercCache(&pins, 900, 6000, Forward, 1<<20); err != nil {
		t.Fatalf("absorbing fill: %v", err)
	}
	pins.ReleaseAll()

	requireZones(t, s, Forward, []percZone{{start: 0, end: 3000}})
}

func TestFillPercCacheStartAtWaveformEnd(t *testing.T) {
	env := newTestEnv(t, 16<<10)
	s := newTestSample(t, env, 2000, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 2000, 3000, Forward, 1<<20); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := s.FillPercCache(&pins, -1, -100, Reversed, 1<<20); err != nil {
		t.Fatalf("reversed: %v", err)
	}
	requireZones(t, s, Forward, nil)
	requireZones(t, s, Reversed, nil)
}

func TestFillPercCacheReversed(t *testing.T) {
	env := newTestEnv(t, 16<<10)
	s := newTestSample(t, env, 2000, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 1999, -10, Reversed, 1<<20); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	pins.ReleaseAll()

	requireZones(t, s, Reversed, []percZone{{start: 1999, end: -1}})

	view, ok := s.LookupPercCache(5, Reversed)
	if !ok {
		t.Fatal("LookupPercCache failed on a filled range")
	}
	if view.EarliestPos != 15 || view.LatestPos != 0 {
		t.Errorf("view bounds = [%d, %d], want [15, 0]", view.EarliestPos, view.LatestPos)
	}
}

func TestFillPercCacheReversedStopsAtClusterStart(t *testing.T) {
	env := newTestEnv(t, 16<<10)
	s := newTestSample(t, env, 2000, 1, 2)
	loadAllAudio(t, s)

	// Positions 300 down to 232 end one frame short of a source cluster
	// boundary, so the last chunk must shrink rather than read before
	// the cluster's first byte.
	var pins PinSet
	if err := s.FillPercCache(&pins, 300, 232, Reversed, 1<<20); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	pins.ReleaseAll()

	requireZones(t, s, Reversed, []percZone{{start: 300, end: 232}})
}

func TestLookupPercCacheMisses(t *testing.T) {
	env := newTestEnv(t, 16<<10)
	s := newTestSample(t, env, 2000, 1, 2)
	loadAllAudio(t, s)

	if _, ok := s.LookupPercCache(5, Forward); ok {
		t.Error("lookup succeeded with no envelope computed")
	}

	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 500, Forward, 1<<20); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	pins.ReleaseAll()

	// Pixel 10's center sample (1344) is past the zone's end.
	if _, ok := s.LookupPercCache(10, Forward); ok {
		t.Error("lookup succeeded past the filled range")
	}
	if _, ok := s.LookupPercCache(10, Reversed); ok {
		t.Error("reversed lookup succeeded with only a forward zone")
	}
}

func TestFillPercCacheSourceNotResident(t *testing.T) {
	env := newTestEnv(t, 16<<10)
	s := newTestSample(t, env, 2000, 1, 2)

	// No audio loaded: the fill gives up without an error and leaves no
	// empty zone behind.
	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 2000, Forward, 1<<20); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	pins.ReleaseAll()
	requireZones(t, s, Forward, nil)
}

func TestFillPercCacheInsufficientRAM(t *testing.T) {
	env := newTestEnv(t, 4232)
	s := newTestSample(t, env, 2000, 1, 2)

	// Keep every audio cluster pinned so nothing can be stolen to make
	// room for the envelope buffer.
	var held []*Cluster
	for i := 0; i < s.NumClusters(); i++ {
		c, err := s.GetCluster(i, LoadImmediate)
		if err != nil {
			t.Fatalf("load cluster %d: %v", i, err)
		}
		held = append(held, c)
	}

	var pins PinSet
	err := s.FillPercCache(&pins, 0, 2000, Forward, 1<<20)
	if !errors.Is(err, ErrInsufficientRAM) {
		t.Fatalf("err = %v, want ErrInsufficientRAM", err)
	}

	for _, c := range held {
		c.ReleaseReason()
	}
}

func TestFillPercCacheClusterBacked(t *testing.T) {
	env := newTestEnv(t, 512<<10)
	s := newTestSample(t, env, 131072, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 131072, Forward, 1<<30); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}

	pc := &s.perc[Forward.index()]
	if pc.flat != nil {
		t.Error("long sample got a flat envelope buffer")
	}
	if len(pc.clusters) != 2 {
		t.Fatalf("envelope cluster table length = %d, want 2", len(pc.clusters))
	}
	if pc.clusters[0] == nil || pc.clusters[1] == nil {
		t.Fatal("envelope clusters not allocated by the fill")
	}
	if got := pins.Held(); got != 2 {
		t.Errorf("pinned envelope clusters = %d, want 2", got)
	}
	requireZones(t, s, Forward, []percZone{{start: 0, end: 131072}})
	pins.ReleaseAll()

	// A fill over an already-covered partial span pins the cluster it
	// resumes at.
	var pins2 PinSet
	s.perc[Forward.index()].zones[0].end = 70000 // pretend the tail was never computed
	if err := s.FillPercCache(&pins2, 60000, 70000, Forward, 0); err != nil {
		t.Fatalf("covered fill: %v", err)
	}
	if got := pins2.Held(); got != 1 {
		t.Errorf("pinned clusters after covered fill = %d, want 1", got)
	}
	pins2.ReleaseAll()
}

func TestPercClusterStolenTrimsZone(t *testing.T) {
	env := newTestEnv(t, 512<<10)
	s := newTestSample(t, env, 131072, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 131072, Forward, 1<<30); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	pins.ReleaseAll()

	// With no free space left, a stealing allocation takes the oldest
	// forward envelope cluster (ranked above raw audio).
	exhaustFreeSpace(t, env.arena)
	if _, err := env.arena.Allocate(64, arena.AllocOptions{
		Kind:          arena.KindGeneral,
		AllowStealing: true,
	}); err != nil {
		t.Fatalf("stealing allocation: %v", err)
	}

	pc := &s.perc[Forward.index()]
	if pc.clusters[0] != nil {
		t.Error("stolen envelope cluster still in table")
	}

	// The zone no longer claims the stolen cluster's sample range.
	requireZones(t, s, Forward, []percZone{{start: 65536, end: 131072}})

	if _, ok := s.LookupPercCache(100, Forward); ok {
		t.Error("lookup succeeded over the stolen range")
	}
	if _, ok := s.LookupPercCache(600, Forward); !ok {
		t.Error("lookup failed over the surviving range")
	}
}

func TestPercClusterStolenSplitsZone(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	s := newTestSample(t, env, 262144, 1, 2)
	loadAllAudio(t, s)

	var pins PinSet
	if err := s.FillPercCache(&pins, 0, 262144, Forward, 1<<30); err != nil {
		t.Fatalf("FillPercCache: %v", err)
	}
	pins.ReleaseAll()

	// Pin the first envelope cluster so the steal lands on the second,
	// punching a hole through the middle of the zone.
	pc := &s.perc[Forward.index()]
	if len(pc.clusters) != 4 {
		t.Fatalf("envelope cluster table length = %d, want 4", len(pc.clusters))
	}
	pc.clusters[0].AddReason()

	exhaustFreeSpace(t, env.arena)
	if _, err := env.arena.Allocate(64, arena.AllocOptions{
		Kind:          arena.KindGeneral,
		AllowStealing: true,
	}); err != nil {
		t.Fatalf("stealing allocation: %v", err)
	}
	pc.clusters[0].ReleaseReason()

	if pc.clusters[1] != nil {
		t.Error("stolen envelope cluster still in table")
	}
	requireZones(t, s, Forward, []percZone{
		{start: 0, end: 65536},
		{start: 131072, end: 262144},
	})
}
