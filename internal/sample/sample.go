package sample

import (
	"fmt"
)

// Direction is the playback direction. The sign doubles as the position
// increment, so direction-dependent comparisons multiply by it.
type Direction int

const (
	// Forward plays from low positions to high.
	Forward Direction = 1
	// Reversed plays from high positions to low.
	Reversed Direction = -1
)

// index maps a direction to a per-direction array slot.
func (d Direction) index() int {
	if d == Reversed {
		return 1
	}
	return 0
}

// String returns "forward" or "reversed".
func (d Direction) String() string {
	if d == Reversed {
		return "reversed"
	}
	return "forward"
}

// Metadata describes a backing file's byte layout, as read from its
// header by the loader.
type Metadata struct {
	Name                 string
	SampleRate           int
	NumChannels          int
	ByteDepth            int
	FileSizeBytes        int
	AudioDataStartBytes  int
	AudioDataLengthBytes int
}

// Sample is the streaming state of one audio file: the cluster table
// spanning its bytes plus derived caches built from them. A Sample owns
// its table slots and zone lists exclusively; the clusters themselves are
// shared with the arena's eviction policy through reason counts.
type Sample struct {
	cfg *Config

	Name                 string
	SampleRate           int
	NumChannels          int
	ByteDepth            int
	AudioDataStartBytes  int
	AudioDataLengthBytes int
	LengthInSamples      int

	// Extremes found while scanning, for normalization by consumers.
	MinValueFound int32
	MaxValueFound int32

	clusters []*Cluster
	caches   map[renderKey]*RenderCache

	perc            [2]percCache
	percNumClusters int
	// percLock guards every zone-list mutation. The steal path calls
	// back into zone code synchronously, so entering twice means the
	// list is being mutated mid-mutation: fatal, never recoverable.
	percLock bool

	unloadable bool
}

// New creates a Sample for the described file and sizes its cluster table
// to cover it exactly. No cluster memory is allocated yet.
func New(cfg *Config, meta Metadata) (*Sample, error) {
	cfg.applyDefaults()

	bytesPerSample := meta.NumChannels * meta.ByteDepth
	if bytesPerSample <= 0 {
		return nil, fmt.Errorf("%w: %d channels at byte depth %d", ErrBadFormat, meta.NumChannels, meta.ByteDepth)
	}
	if meta.AudioDataLengthBytes%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: payload of %d bytes is not a whole number of %d-byte frames",
			ErrBadFormat, meta.AudioDataLengthBytes, bytesPerSample)
	}

	s := &Sample{
		cfg:                  cfg,
		Name:                 meta.Name,
		SampleRate:           meta.SampleRate,
		NumChannels:          meta.NumChannels,
		ByteDepth:            meta.ByteDepth,
		AudioDataStartBytes:  meta.AudioDataStartBytes,
		AudioDataLengthBytes: meta.AudioDataLengthBytes,
		LengthInSamples:      meta.AudioDataLengthBytes / bytesPerSample,
		MinValueFound:        1<<31 - 1,
		MaxValueFound:        -1 << 31,
		caches:               make(map[renderKey]*RenderCache),
	}

	fileSize := meta.FileSizeBytes
	if end := meta.AudioDataStartBytes + meta.AudioDataLengthBytes; fileSize < end {
		fileSize = end
	}
	s.Initialize(((fileSize - 1) >> cfg.ClusterSizeMagnitude) + 1)
	return s, nil
}

// Initialize sizes the cluster table to numClusters empty slots. The
// table is never resized afterwards.
func (s *Sample) Initialize(numClusters int) {
	s.clusters = make([]*Cluster, numClusters)
}

// NumClusters returns the cluster table length.
func (s *Sample) NumClusters() int { return len(s.clusters) }

// BytesPerSample returns the size of one frame across all channels.
func (s *Sample) BytesPerSample() int { return s.NumChannels * s.ByteDepth }

// ClusterSizeMagnitude returns the configured cluster size as a power of
// two, for callers mapping cluster indexes to file offsets.
func (s *Sample) ClusterSizeMagnitude() int { return s.cfg.ClusterSizeMagnitude }

// Unloadable reports whether the backing file has gone away.
func (s *Sample) Unloadable() bool { return s.unloadable }

// MarkAsUnloadable flags the sample after its backing file became
// invalid, and pulls any clusters still waiting in the load queue.
// Already-resident data is left alone.
func (s *Sample) MarkAsUnloadable() {
	s.unloadable = true
	for _, c := range s.clusters {
		if c != nil && c.queued {
			if s.cfg.Loader.CancelLoad(c) {
				c.queued = false
			}
		}
	}
	s.cfg.Logger.Debug("sample marked unloadable", "sample", s.Name)
}

// Release returns every cluster and cache to the arena. The sample must
// no longer be referenced by any clip or voice; an outstanding reason at
// this point is an ownership bug.
func (s *Sample) Release() {
	for i, c := range s.clusters {
		if c == nil {
			continue
		}
		if c.queued {
			s.cfg.Loader.CancelLoad(c)
			c.queued = false
		}
		if c.Reasons() != 0 {
			s.cfg.Fatal(FatalReleaseWhilePinned,
				fmt.Sprintf("audio cluster %d of %s released with %d reasons", i, s.Name, c.Reasons()))
		}
		s.cfg.Arena.Deallocate(c.block)
		s.clusters[i] = nil
	}

	s.deletePercCache()

	for key, cache := range s.caches {
		cache.release()
		delete(s.caches, key)
	}
}

// NoteValue folds a decoded sample value into the running extremes.
func (s *Sample) NoteValue(v int32) {
	if v < s.MinValueFound {
		s.MinValueFound = v
	}
	if v > s.MaxValueFound {
		s.MaxValueFound = v
	}
}

// LengthMSec returns the sample's duration in milliseconds, rounded up.
func (s *Sample) LengthMSec() int {
	if s.LengthInSamples == 0 || s.SampleRate == 0 {
		return 0
	}
	return (s.LengthInSamples-1)*1000/s.SampleRate + 1
}

// enterPercLock raises the zone-mutation guard, reporting false (after a
// fatal diagnostic) when it is already held.
func (s *Sample) enterPercLock(where string) bool {
	if s.percLock {
		s.cfg.Fatal(FatalZoneReentry, fmt.Sprintf("%s on %s while zone list already being mutated", where, s.Name))
		return false
	}
	s.percLock = true
	return true
}

func (s *Sample) exitPercLock() { s.percLock = false }
