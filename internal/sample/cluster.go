package sample

import (
	"fmt"

	"github.com/dgnsrekt/samplebank/internal/arena"
)

// ClusterType says what a cluster's bytes are.
type ClusterType uint8

const (
	// ClusterAudio holds raw sample bytes streamed from the file.
	ClusterAudio ClusterType = iota
	// ClusterPercForward holds forward percussive-envelope bytes.
	ClusterPercForward
	// ClusterPercReversed holds reversed percussive-envelope bytes.
	ClusterPercReversed
	// ClusterRenderCache holds pitch/time-adjusted render output.
	ClusterRenderCache
)

// String returns a short name for the type.
func (t ClusterType) String() string {
	switch t {
	case ClusterAudio:
		return "audio"
	case ClusterPercForward:
		return "perc-forward"
	case ClusterPercReversed:
		return "perc-reversed"
	case ClusterRenderCache:
		return "render-cache"
	default:
		return fmt.Sprintf("cluster(%d)", int(t))
	}
}

func (t ClusterType) blockKind() arena.BlockKind {
	switch t {
	case ClusterAudio:
		return arena.KindAudio
	case ClusterPercForward:
		return arena.KindPercForward
	case ClusterPercReversed:
		return arena.KindPercReversed
	default:
		return arena.KindRenderCache
	}
}

// Cluster is one fixed-size block of sample or derived-cache bytes: the
// unit of loading, pinning and eviction. A cluster with outstanding
// reasons is never reclaimed; once the reasons drop to zero the arena may
// steal it at any time, notifying the owning Sample first.
type Cluster struct {
	// Type says what the bytes are.
	Type ClusterType
	// Index is the cluster's position within its owner's table.
	Index int
	// Loaded reports whether the bytes are valid yet.
	Loaded bool

	sample *Sample
	cache  *RenderCache // only for ClusterRenderCache
	block  *arena.Block
	queued bool // waiting in the background load queue
}

// Data returns the cluster's bytes. Audio clusters carry a few overlap
// bytes past the nominal cluster size so a frame straddling the boundary
// decodes without touching the next cluster.
func (c *Cluster) Data() []byte { return c.block.Bytes() }

// Sample returns the owning sample. Never ownership, just a back-pointer.
func (c *Cluster) Sample() *Sample { return c.sample }

// Reasons returns the number of outstanding reasons to stay loaded.
func (c *Cluster) Reasons() int { return c.block.Pins() }

// AddReason marks the cluster as in use, preventing stealing.
func (c *Cluster) AddReason() { c.block.Pin() }

// ReleaseReason drops one reason. At zero the cluster becomes eligible
// for stealing but is not freed.
func (c *Cluster) ReleaseReason() { c.block.Unpin() }

// AboutToSteal implements arena.StealOwner. It runs synchronously inside
// the arena's steal path, before the memory is reused, and routes the
// notification to whoever's bookkeeping covers this cluster.
func (c *Cluster) AboutToSteal(*arena.Block) {
	switch c.Type {
	case ClusterAudio:
		c.sample.audioClusterStolen(c)
	case ClusterPercForward, ClusterPercReversed:
		c.sample.percClusterStolen(c)
	case ClusterRenderCache:
		c.cache.clusterStolen(c)
	}
}
