package arena

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// BlockKind classifies what a block holds. The steal policy ranks kinds
// against each other, so the classification decides eviction order.
type BlockKind uint8

const (
	// KindGeneral is bookkeeping or scratch memory. Never stolen.
	KindGeneral BlockKind = iota
	// KindAudio holds raw sample bytes streamed from a file.
	KindAudio
	// KindPercForward holds forward percussive-envelope bytes.
	KindPercForward
	// KindPercReversed holds reversed percussive-envelope bytes.
	KindPercReversed
	// KindRenderCache holds fully pitch/time-adjusted render output.
	KindRenderCache

	numBlockKinds = 5
)

// String returns a short name for the kind.
func (k BlockKind) String() string {
	switch k {
	case KindGeneral:
		return "general"
	case KindAudio:
		return "audio"
	case KindPercForward:
		return "perc-forward"
	case KindPercReversed:
		return "perc-reversed"
	case KindRenderCache:
		return "render-cache"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultRanking is the order kinds are considered for stealing: derived
// data first, since it can be recomputed from the raw audio, then raw
// audio last. KindGeneral never appears in a ranking.
var DefaultRanking = []BlockKind{KindRenderCache, KindPercReversed, KindPercForward, KindAudio}

// StealOwner is notified synchronously before the arena reclaims one of
// its stealable blocks. The callback runs inside the allocation path of
// some unrelated request; it must not allocate from the arena.
type StealOwner interface {
	AboutToSteal(b *Block)
}

// Block is a live allocation. Blocks are handed out by Allocate and stay
// valid until Deallocate or, for stealable blocks with zero pins, until
// the arena steals them.
type Block struct {
	arena     *Arena
	off       int
	size      int
	kind      BlockKind
	stealable bool
	owner     StealOwner
	pins      int
	freed     bool
}

// Bytes returns the block's backing memory.
func (b *Block) Bytes() []byte { return b.arena.mem[b.off : b.off+b.size] }

// Size returns the block's length in bytes.
func (b *Block) Size() int { return b.size }

// Kind returns the block's classification.
func (b *Block) Kind() BlockKind { return b.kind }

// Owner returns the steal owner registered at allocation, or nil.
func (b *Block) Owner() StealOwner { return b.owner }

// Pins returns the number of outstanding pins.
func (b *Block) Pins() int { return b.pins }

// Pin marks the block as in use. A pinned block is never stolen.
func (b *Block) Pin() {
	if b.freed {
		b.arena.fatal(FatalPinAfterFree, fmt.Sprintf("pin on freed %s block at %d", b.kind, b.off))
		return
	}
	b.pins++
}

// Unpin releases one pin. Unpinning below zero is an internal
// inconsistency and is fatal.
func (b *Block) Unpin() {
	b.pins--
	if b.pins < 0 {
		b.arena.fatal(FatalNegativePins, fmt.Sprintf("%s block at %d unpinned below zero", b.kind, b.off))
	}
}

// AllocOptions controls a single allocation.
type AllocOptions struct {
	// Kind classifies the block for the steal policy.
	Kind BlockKind
	// Stealable marks the block as reclaimable when unpinned.
	Stealable bool
	// AllowStealing lets this request evict other blocks to make room.
	AllowStealing bool
	// ZeroFill clears the block before returning it.
	ZeroFill bool
	// Owner receives the about-to-steal notification. Required when
	// Stealable is set.
	Owner StealOwner
	// Avoid excludes candidate blocks from stealing for this request.
	// Used to keep eviction callbacks from mutating state the caller is
	// in the middle of working on.
	Avoid func(*Block) bool
}

// Stats summarizes arena activity.
type Stats struct {
	Size        int
	InUse       int
	Peak        int
	Allocations uint64
	Frees       uint64
	Steals      uint64
}

// String formats the stats with human-readable sizes.
func (s Stats) String() string {
	return fmt.Sprintf("in use %s of %s (peak %s), %d allocs, %d frees, %d steals",
		humanize.IBytes(uint64(s.InUse)), humanize.IBytes(uint64(s.Size)),
		humanize.IBytes(uint64(s.Peak)), s.Allocations, s.Frees, s.Steals)
}

// span is a free region. The free list is kept sorted by offset so
// neighboring spans can coalesce on free.
type span struct {
	off, size int
}

// Config configures a new arena.
type Config struct {
	// Size is the arena capacity in bytes.
	Size int
	// Ranking overrides DefaultRanking for steal selection.
	Ranking []BlockKind
	// Fatal handles internal-consistency violations. Defaults to a
	// handler that logs and panics.
	Fatal FatalFunc
	// Logger receives debug logging. Defaults to log.Default().
	Logger *log.Logger
}

// Arena is a fixed pool of bytes carved into blocks. It is not safe for
// concurrent use; the engine owns it from a single cooperative context.
type Arena struct {
	mem     []byte
	free    []span
	queues  [numBlockKinds][]*Block // steal candidates per kind, oldest first
	ranking []BlockKind
	fatal   FatalFunc
	logger  *log.Logger

	// stealing guards against reentrant allocation from inside a steal
	// notification, which could corrupt the very state being evicted.
	stealing bool

	stats Stats
}

// New creates an arena with the given configuration.
func New(cfg Config) (*Arena, error) {
	if cfg.Size <= 0 {
		return nil, ErrBadSize
	}
	ranking := cfg.Ranking
	if len(ranking) == 0 {
		ranking = DefaultRanking
	}
	fatal := cfg.Fatal
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if fatal == nil {
		fatal = func(code, detail string) {
			logger.Error("fatal arena condition", "code", code, "detail", detail)
			panic(code)
		}
	}
	return &Arena{
		mem:     make([]byte, cfg.Size),
		free:    []span{{0, cfg.Size}},
		ranking: ranking,
		fatal:   fatal,
		logger:  logger,
		stats:   Stats{Size: cfg.Size},
	}, nil
}

// Stats returns a snapshot of arena activity counters.
func (a *Arena) Stats() Stats { return a.stats }

// Allocate carves a block of size bytes out of the arena. When the free
// list cannot satisfy the request and AllowStealing is set, unpinned
// stealable blocks are reclaimed, best victims first, until the request
// fits or no candidate remains. Returns ErrInsufficientRAM when beaten.
func (a *Arena) Allocate(size int, opts AllocOptions) (*Block, error) {
	if size <= 0 {
		return nil, ErrBadSize
	}
	if a.stealing {
		a.fatal(FatalReentrantAlloc, fmt.Sprintf("allocation of %d bytes from inside a steal notification", size))
		return nil, ErrInsufficientRAM
	}
	for {
		if off, ok := a.takeFree(size); ok {
			b := &Block{
				arena:     a,
				off:       off,
				size:      size,
				kind:      opts.Kind,
				stealable: opts.Stealable,
				owner:     opts.Owner,
			}
			if opts.ZeroFill {
				clear(a.mem[off : off+size])
			}
			if b.stealable {
				a.queues[b.kind] = append(a.queues[b.kind], b)
			}
			a.stats.Allocations++
			a.stats.InUse += size
			if a.stats.InUse > a.stats.Peak {
				a.stats.Peak = a.stats.InUse
			}
			return b, nil
		}

		if !opts.AllowStealing {
			return nil, ErrInsufficientRAM
		}
		victim := a.pickVictim(opts.Avoid)
		if victim == nil {
			return nil, ErrInsufficientRAM
		}
		a.steal(victim)
	}
}

// Deallocate returns a block to the free pool, coalescing it with free
// neighbors.
func (a *Arena) Deallocate(b *Block) {
	if b == nil {
		return
	}
	if b.arena != a {
		a.fatal(FatalForeignBlock, fmt.Sprintf("deallocating block at %d owned by another arena", b.off))
		return
	}
	if b.freed {
		a.fatal(FatalDoubleFree, fmt.Sprintf("double free of %s block at %d", b.kind, b.off))
		return
	}
	a.release(b)
	a.stats.Frees++
}

// pickVictim finds the best unpinned stealable block per the ranking,
// oldest allocation first within a kind.
func (a *Arena) pickVictim(avoid func(*Block) bool) *Block {
	for _, kind := range a.ranking {
		for _, b := range a.queues[kind] {
			if b.pins != 0 {
				continue
			}
			if avoid != nil && avoid(b) {
				continue
			}
			return b
		}
	}
	return nil
}

// steal reclaims a block after notifying its owner. The notification runs
// with the reentrancy guard raised: allocating from the arena inside it
// is fatal.
func (a *Arena) steal(b *Block) {
	if b.pins != 0 {
		a.fatal(FatalStealPinned, fmt.Sprintf("stealing %s block at %d with %d pins", b.kind, b.off, b.pins))
		return
	}
	if !b.stealable {
		a.fatal(FatalStealUnstealable, fmt.Sprintf("stealing unstealable %s block at %d", b.kind, b.off))
		return
	}
	a.logger.Debug("stealing block", "kind", b.kind.String(), "size", b.size)
	a.stealing = true
	if b.owner != nil {
		b.owner.AboutToSteal(b)
	}
	a.stealing = false
	a.release(b)
	a.stats.Steals++
}

// release frees the block's memory and drops it from the steal queue.
func (a *Arena) release(b *Block) {
	b.freed = true
	if b.stealable {
		q := a.queues[b.kind]
		for i, cand := range q {
			if cand == b {
				a.queues[b.kind] = append(q[:i], q[i+1:]...)
				break
			}
		}
	}
	a.insertFree(b.off, b.size)
	a.stats.InUse -= b.size
}

// takeFree removes size bytes from the first free span that fits.
func (a *Arena) takeFree(size int) (int, bool) {
	for i := range a.free {
		if a.free[i].size < size {
			continue
		}
		off := a.free[i].off
		a.free[i].off += size
		a.free[i].size -= size
		if a.free[i].size == 0 {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		return off, true
	}
	return 0, false
}

// insertFree puts a region back on the free list, merging with adjacent
// free neighbors.
func (a *Arena) insertFree(off, size int) {
	// Find insertion point: first span starting after off.
	i := 0
	for i < len(a.free) && a.free[i].off < off {
		i++
	}

	mergedPrev := false
	if i > 0 && a.free[i-1].off+a.free[i-1].size == off {
		a.free[i-1].size += size
		mergedPrev = true
	} else if i > 0 && a.free[i-1].off+a.free[i-1].size > off {
		a.fatal(FatalFreeListCorrupt, fmt.Sprintf("freed region at %d overlaps free span at %d", off, a.free[i-1].off))
		return
	}

	if i < len(a.free) && off+size == a.free[i].off {
		if mergedPrev {
			a.free[i-1].size += a.free[i].size
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i].off = off
			a.free[i].size += size
		}
		return
	}
	if i < len(a.free) && off+size > a.free[i].off {
		a.fatal(FatalFreeListCorrupt, fmt.Sprintf("freed region at %d overlaps free span at %d", off, a.free[i].off))
		return
	}
	if mergedPrev {
		return
	}

	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{off, size}
}

// LargestFree returns the size of the largest contiguous free region.
func (a *Arena) LargestFree() int {
	largest := 0
	for _, s := range a.free {
		if s.size > largest {
			largest = s.size
		}
	}
	return largest
}
