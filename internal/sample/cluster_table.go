package sample

import (
	"fmt"

	"github.com/dgnsrekt/samplebank/internal/arena"
)

// LoadMode selects how GetCluster brings missing bytes in.
type LoadMode uint8

const (
	// LoadNone allocates the cluster without reading anything.
	LoadNone LoadMode = iota
	// LoadImmediate reads the bytes synchronously before returning.
	LoadImmediate
	// LoadEnqueue hands the cluster to the background load queue.
	LoadEnqueue
)

// Loader is the file-loading subsystem the engine streams through. It is
// an external collaborator; the engine never touches files itself.
type Loader interface {
	// LoadCluster synchronously reads the cluster's bytes from the
	// backing file into c.Data().
	LoadCluster(s *Sample, c *Cluster) error
	// EnqueueLoad queues the cluster for a background read.
	EnqueueLoad(s *Sample, c *Cluster)
	// CancelLoad removes a queued cluster, reporting whether it was
	// still in the queue.
	CancelLoad(c *Cluster) bool
}

// GetCluster returns the cluster covering the given table index, adding a
// reason that the caller must release. A missing cluster is allocated
// lazily; allocation failure is soft, the caller skips this render
// quantum and retries later.
func (s *Sample) GetCluster(index int, mode LoadMode) (*Cluster, error) {
	if index < 0 || index >= len(s.clusters) {
		return nil, fmt.Errorf("cluster %d of %d: %w", index, len(s.clusters), ErrClusterOutOfRange)
	}

	if c := s.clusters[index]; c != nil {
		c.AddReason()
		if !c.Loaded && !s.unloadable {
			switch mode {
			case LoadImmediate:
				if c.queued && s.cfg.Loader.CancelLoad(c) {
					c.queued = false
				}
				if err := s.loadNow(c); err != nil {
					c.ReleaseReason()
					return nil, err
				}
			case LoadEnqueue:
				if !c.queued {
					c.queued = true
					s.cfg.Loader.EnqueueLoad(s, c)
				}
			}
		}
		return c, nil
	}

	if s.unloadable && mode != LoadNone {
		return nil, ErrUnloadable
	}

	c, err := s.allocateCluster(ClusterAudio, index, false, nil)
	if err != nil {
		return nil, err
	}
	c.AddReason()
	s.clusters[index] = c

	switch mode {
	case LoadImmediate:
		if err := s.loadNow(c); err != nil {
			c.ReleaseReason()
			return nil, err
		}
	case LoadEnqueue:
		c.queued = true
		s.cfg.Loader.EnqueueLoad(s, c)
	}
	return c, nil
}

func (s *Sample) loadNow(c *Cluster) error {
	if err := s.cfg.Loader.LoadCluster(s, c); err != nil {
		return fmt.Errorf("%w: cluster %d of %s: %v", ErrLoadFailed, c.Index, s.Name, err)
	}
	c.Loaded = true
	return nil
}

// MarkLoaded is called by the loader when a background read completes.
func (s *Sample) MarkLoaded(c *Cluster) {
	c.queued = false
	c.Loaded = true
}

// allocateCluster carves a cluster out of the arena. All clusters are
// stealable; only derived-cache clusters are zero-filled, raw audio gets
// overwritten by the load anyway.
func (s *Sample) allocateCluster(t ClusterType, index int, zeroFill bool, avoid func(*arena.Block) bool) (*Cluster, error) {
	c := &Cluster{Type: t, Index: index, sample: s}
	size := s.cfg.clusterSize()
	if t == ClusterAudio {
		size += clusterOverlapBytes
	}
	block, err := s.cfg.Arena.Allocate(size, arena.AllocOptions{
		Kind:          t.blockKind(),
		Stealable:     true,
		AllowStealing: true,
		ZeroFill:      zeroFill,
		Owner:         c,
		Avoid:         avoid,
	})
	if err != nil {
		return nil, err
	}
	c.block = block
	return c, nil
}

// audioClusterStolen clears the owning table slot before the arena
// reuses the memory. Raw audio is cheap to reload, nothing else to fix.
func (s *Sample) audioClusterStolen(c *Cluster) {
	if c.queued {
		if s.cfg.Loader.CancelLoad(c) {
			c.queued = false
		}
	}
	s.clusters[c.Index] = nil
}

// firstClusterIndexWithAudioData returns the index of the first cluster
// containing payload bytes (earlier clusters hold only the header).
func (s *Sample) firstClusterIndexWithAudioData() int {
	return s.AudioDataStartBytes >> s.cfg.ClusterSizeMagnitude
}

// firstClusterIndexWithNoAudioData returns one past the last cluster
// containing payload bytes, clamped to the table length.
func (s *Sample) firstClusterIndexWithNoAudioData() int {
	index := ((s.AudioDataStartBytes+s.AudioDataLengthBytes-1)>>s.cfg.ClusterSizeMagnitude + 1)
	if index > len(s.clusters) {
		index = len(s.clusters)
	}
	return index
}
