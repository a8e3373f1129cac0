package arena

import (
	"errors"
	"testing"
)

// testOwner records steal notifications and optionally misbehaves inside
// the callback to exercise the reentrancy guard.
type testOwner struct {
	stolen  []*Block
	onSteal func(*Block)
}

func (o *testOwner) AboutToSteal(b *Block) {
	o.stolen = append(o.stolen, b)
	if o.onSteal != nil {
		o.onSteal(b)
	}
}

// newTestArena builds an arena whose fatal handler records codes instead
// of panicking.
func newTestArena(t *testing.T, size int) (*Arena, *[]string) {
	t.Helper()
	var codes []string
	a, err := New(Config{
		Size: size,
		Fatal: func(code, detail string) {
			codes = append(codes, code)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, &codes
}

func TestAllocateBasic(t *testing.T) {
	a, _ := newTestArena(t, 1024)

	b, err := a.Allocate(256, AllocOptions{Kind: KindGeneral})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got := len(b.Bytes()); got != 256 {
		t.Errorf("len(Bytes()) = %d, want 256", got)
	}

	if _, err := a.Allocate(0, AllocOptions{}); !errors.Is(err, ErrBadSize) {
		t.Errorf("Allocate(0) error = %v, want ErrBadSize", err)
	}
	if _, err := a.Allocate(2048, AllocOptions{}); !errors.Is(err, ErrInsufficientRAM) {
		t.Errorf("oversized Allocate error = %v, want ErrInsufficientRAM", err)
	}
}

func TestZeroFill(t *testing.T) {
	a, _ := newTestArena(t, 64)

	b, err := a.Allocate(64, AllocOptions{})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for i := range b.Bytes() {
		b.Bytes()[i] = 0xAA
	}
	a.Deallocate(b)

	b2, err := a.Allocate(64, AllocOptions{ZeroFill: true})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	for i, v := range b2.Bytes() {
		if v != 0 {
			t.Fatalf("byte %d = %#x after zero-fill, want 0", i, v)
		}
	}
}

func TestCoalescing(t *testing.T) {
	a, _ := newTestArena(t, 300)

	b1, _ := a.Allocate(100, AllocOptions{})
	b2, _ := a.Allocate(100, AllocOptions{})
	b3, _ := a.Allocate(100, AllocOptions{})

	// Free out of order so coalescing has to merge both neighbors.
	a.Deallocate(b1)
	a.Deallocate(b3)
	a.Deallocate(b2)

	if got := a.LargestFree(); got != 300 {
		t.Fatalf("LargestFree() = %d after freeing everything, want 300", got)
	}
	if _, err := a.Allocate(300, AllocOptions{}); err != nil {
		t.Fatalf("full-size Allocate after coalesce: %v", err)
	}
}

func TestStealingPrefersDerivedData(t *testing.T) {
	a, _ := newTestArena(t, 200)

	audioOwner := &testOwner{}
	cacheOwner := &testOwner{}

	if _, err := a.Allocate(100, AllocOptions{Kind: KindAudio, Stealable: true, Owner: audioOwner}); err != nil {
		t.Fatalf("audio Allocate: %v", err)
	}
	if _, err := a.Allocate(100, AllocOptions{Kind: KindRenderCache, Stealable: true, Owner: cacheOwner}); err != nil {
		t.Fatalf("cache Allocate: %v", err)
	}

	// One steal should be enough, and the render cache must go first.
	if _, err := a.Allocate(100, AllocOptions{AllowStealing: true}); err != nil {
		t.Fatalf("stealing Allocate: %v", err)
	}
	if len(cacheOwner.stolen) != 1 {
		t.Errorf("render-cache owner notified %d times, want 1", len(cacheOwner.stolen))
	}
	if len(audioOwner.stolen) != 0 {
		t.Errorf("audio owner notified %d times, want 0", len(audioOwner.stolen))
	}
}

func TestStealingNeverTakesPinnedBlocks(t *testing.T) {
	a, _ := newTestArena(t, 100)

	owner := &testOwner{}
	b, err := a.Allocate(100, AllocOptions{Kind: KindRenderCache, Stealable: true, Owner: owner})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b.Pin()

	if _, err := a.Allocate(50, AllocOptions{AllowStealing: true}); !errors.Is(err, ErrInsufficientRAM) {
		t.Fatalf("Allocate with only pinned candidates: err = %v, want ErrInsufficientRAM", err)
	}
	if len(owner.stolen) != 0 {
		t.Errorf("pinned block's owner was notified %d times", len(owner.stolen))
	}

	// Once unpinned, the same block becomes fair game.
	b.Unpin()
	if _, err := a.Allocate(50, AllocOptions{AllowStealing: true}); err != nil {
		t.Fatalf("Allocate after unpin: %v", err)
	}
	if len(owner.stolen) != 1 {
		t.Errorf("owner notified %d times after unpin, want 1", len(owner.stolen))
	}
}

func TestStealingHonorsAvoid(t *testing.T) {
	a, _ := newTestArena(t, 100)

	owner := &testOwner{}
	avoidMe, err := a.Allocate(100, AllocOptions{Kind: KindPercForward, Stealable: true, Owner: owner})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	_, err = a.Allocate(50, AllocOptions{
		AllowStealing: true,
		Avoid:         func(b *Block) bool { return b == avoidMe },
	})
	if !errors.Is(err, ErrInsufficientRAM) {
		t.Fatalf("Allocate avoiding only candidate: err = %v, want ErrInsufficientRAM", err)
	}
	if len(owner.stolen) != 0 {
		t.Errorf("avoided block was stolen")
	}
}

func TestStealingRepeatsUntilRequestFits(t *testing.T) {
	a, _ := newTestArena(t, 300)

	owner := &testOwner{}
	for i := 0; i < 3; i++ {
		if _, err := a.Allocate(100, AllocOptions{Kind: KindPercForward, Stealable: true, Owner: owner}); err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
	}

	if _, err := a.Allocate(250, AllocOptions{AllowStealing: true}); err != nil {
		t.Fatalf("Allocate needing multiple steals: %v", err)
	}
	if len(owner.stolen) != 3 {
		t.Errorf("owner notified %d times, want 3", len(owner.stolen))
	}
}

func TestReentrantAllocationDuringStealIsFatal(t *testing.T) {
	a, codes := newTestArena(t, 100)

	owner := &testOwner{}
	owner.onSteal = func(*Block) {
		// Misbehave: allocate from inside the steal notification.
		_, _ = a.Allocate(10, AllocOptions{})
	}
	if _, err := a.Allocate(100, AllocOptions{Kind: KindPercForward, Stealable: true, Owner: owner}); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	_, _ = a.Allocate(50, AllocOptions{AllowStealing: true})

	found := false
	for _, c := range *codes {
		if c == FatalReentrantAlloc {
			found = true
		}
	}
	if !found {
		t.Errorf("fatal codes = %v, want %q", *codes, FatalReentrantAlloc)
	}
}

func TestUnpinBelowZeroIsFatal(t *testing.T) {
	a, codes := newTestArena(t, 64)

	b, err := a.Allocate(64, AllocOptions{})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b.Unpin()

	if len(*codes) != 1 || (*codes)[0] != FatalNegativePins {
		t.Errorf("fatal codes = %v, want [%q]", *codes, FatalNegativePins)
	}
}

func TestDoubleFreeIsFatal(t *testing.T) {
	a, codes := newTestArena(t, 64)

	b, _ := a.Allocate(64, AllocOptions{})
	a.Deallocate(b)
	a.Deallocate(b)

	if len(*codes) != 1 || (*codes)[0] != FatalDoubleFree {
		t.Errorf("fatal codes = %v, want [%q]", *codes, FatalDoubleFree)
	}
}

func TestStats(t *testing.T) {
	a, _ := newTestArena(t, 200)

	b, _ := a.Allocate(150, AllocOptions{})
	if got := a.Stats().InUse; got != 150 {
		t.Errorf("InUse = %d, want 150", got)
	}
	a.Deallocate(b)

	s := a.Stats()
	if s.InUse != 0 || s.Peak != 150 || s.Allocations != 1 || s.Frees != 1 {
		t.Errorf("Stats = %+v, want InUse 0, Peak 150, 1 alloc, 1 free", s)
	}
}
