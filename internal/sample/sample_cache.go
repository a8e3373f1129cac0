package sample

import (
	"fmt"

	"github.com/dgnsrekt/samplebank/internal/arena"
)

// Render caches store already-pitched (and possibly time-stretched)
// output at this depth, one value per channel per output sample.
const cacheByteDepth = 3

// renderKey identifies one render cache: caches are only reused on an
// exact parameter match, a near-miss still sounds different.
type renderKey struct {
	phaseIncrement     int32
	timeStretchRatio   int32
	skipSamplesAtStart int
	reversed           bool
}

// RenderCache accumulates rendered output for one parameter combination
// so later playbacks can skip the pitch and stretch work. It is written
// strictly left to right; writeBytePos marks how much is valid. Its
// clusters are the first to be stolen under memory pressure, losing a
// cache only costs CPU.
type RenderCache struct {
	sample *Sample
	key    renderKey

	clusters     []*Cluster
	writeBytePos int
	totalBytes   int
}

// GetOrCreateRenderCache returns the cache for the given playback
// parameters. When mayCreate is false only an existing cache is
// returned; readers probing for reusable output must not allocate on a
// miss. Returns nil when the estimated rendered size exceeds the
// configured limit; such playbacks render uncached every time.
func (s *Sample) GetOrCreateRenderCache(phaseIncrement, timeStretchRatio int32, skipSamplesAtStart int, reversed, mayCreate bool) (cache *RenderCache, created bool) {
	key := renderKey{
		phaseIncrement:     phaseIncrement,
		timeStretchRatio:   timeStretchRatio,
		skipSamplesAtStart: skipSamplesAtStart,
		reversed:           reversed,
	}
	if cache, ok := s.caches[key]; ok {
		return cache, false
	}
	if !mayCreate {
		return nil, false
	}

	length := s.LengthInSamples - skipSamplesAtStart
	if length <= 0 {
		return nil, false
	}

	// Estimate the rendered length: repitching scales by the inverse of
	// the phase increment, stretching by the inverse of the ratio, and a
	// stretched render rings out past the waveform's end.
	outSamples := uint64(length) * neutralIncrement / uint64(uint32(phaseIncrement))
	outSamples = outSamples * neutralIncrement / uint64(uint32(timeStretchRatio))
	outSamples += interpolationMaxNumSamples
	if timeStretchRatio != neutralIncrement {
		outSamples += timeStretchRingOutSamples
	}

	totalBytes := outSamples * uint64(s.NumChannels) * cacheByteDepth
	if totalBytes > uint64(s.cfg.MaxRenderCacheBytes) {
		s.cfg.Logger.Debug("render cache refused", "sample", s.Name,
			"estimatedBytes", totalBytes, "limit", s.cfg.MaxRenderCacheBytes)
		return nil, false
	}

	cache = &RenderCache{
		sample:     s,
		key:        key,
		totalBytes: int(totalBytes),
		clusters:   make([]*Cluster, ((int(totalBytes)-1)>>s.cfg.ClusterSizeMagnitude)+1),
	}
	s.caches[key] = cache
	return cache, true
}

// WriteBytePos returns how many bytes of the cache hold valid rendered
// output.
func (rc *RenderCache) WriteBytePos() int { return rc.writeBytePos }

// TotalBytes returns the cache's estimated full size.
func (rc *RenderCache) TotalBytes() int { return rc.totalBytes }

// SetWriteBytePos moves the valid-output watermark. Moving it backwards
// discards clusters that no longer hold any valid bytes.
func (rc *RenderCache) SetWriteBytePos(pos int) {
	s := rc.sample
	if pos < 0 || pos > rc.totalBytes || pos%(s.NumChannels*cacheByteDepth) != 0 {
		s.cfg.Fatal(FatalCacheWritePos,
			fmt.Sprintf("write pos %d of %d on cache of %s", pos, rc.totalBytes, s.Name))
		return
	}

	if pos < rc.writeBytePos {
		firstDead := ((pos - 1) >> s.cfg.ClusterSizeMagnitude) + 1
		if pos == 0 {
			firstDead = 0
		}
		rc.dropClustersFrom(firstDead)
	}
	rc.writeBytePos = pos
}

// Cluster returns the cache cluster at index, or nil if it is not
// currently allocated.
func (rc *RenderCache) Cluster(index int) *Cluster {
	if index < 0 || index >= len(rc.clusters) {
		return nil
	}
	return rc.clusters[index]
}

// GetClusterForWriting returns the cluster the watermark sits in,
// allocating it if needed, with a reason added for the writer. Soft
// failure on memory pressure, the render just goes uncached.
func (rc *RenderCache) GetClusterForWriting() (*Cluster, error) {
	s := rc.sample
	index := rc.writeBytePos >> s.cfg.ClusterSizeMagnitude
	if index >= len(rc.clusters) {
		return nil, fmt.Errorf("cache cluster %d of %d: %w", index, len(rc.clusters), ErrClusterOutOfRange)
	}

	c := rc.clusters[index]
	if c == nil {
		// Stealing this cache's own earlier clusters to feed its tail
		// would truncate the watermark mid-write.
		var err error
		c, err = s.allocateCluster(ClusterRenderCache, index, false, func(b *arena.Block) bool {
			owner, ok := b.Owner().(*Cluster)
			return ok && owner.cache == rc
		})
		if err != nil {
			return nil, err
		}
		c.cache = rc
		c.Loaded = true
		rc.clusters[index] = c
	}
	c.AddReason()
	return c, nil
}

// clusterStolen truncates the cache when the arena reclaims one of its
// clusters: everything from the stolen cluster on is invalid, since the
// cache is only readable as a contiguous prefix.
func (rc *RenderCache) clusterStolen(c *Cluster) {
	s := rc.sample
	if c.Index >= len(rc.clusters) || rc.clusters[c.Index] != c {
		s.cfg.Fatal(FatalCacheStolenUnknown,
			fmt.Sprintf("stolen cache cluster %d not in cache of %s", c.Index, s.Name))
		return
	}
	rc.clusters[c.Index] = nil

	if boundary := c.Index << s.cfg.ClusterSizeMagnitude; rc.writeBytePos > boundary {
		// Snap back to a whole frame.
		frame := s.NumChannels * cacheByteDepth
		rc.writeBytePos = boundary - boundary%frame
	}
	rc.dropClustersFrom(c.Index + 1)

	s.cfg.Logger.Debug("render cache truncated", "sample", s.Name,
		"cluster", c.Index, "writeBytePos", rc.writeBytePos)
}

// dropClustersFrom returns every cluster at or after index to the arena.
func (rc *RenderCache) dropClustersFrom(index int) {
	s := rc.sample
	for i := index; i < len(rc.clusters); i++ {
		c := rc.clusters[i]
		if c == nil {
			continue
		}
		if c.Reasons() != 0 {
			s.cfg.Fatal(FatalReleaseWhilePinned,
				fmt.Sprintf("cache cluster %d of %s dropped with %d reasons", i, s.Name, c.Reasons()))
		}
		s.cfg.Arena.Deallocate(c.block)
		rc.clusters[i] = nil
	}
}

// release returns all of the cache's memory. Called when the owning
// sample is released.
func (rc *RenderCache) release() {
	rc.dropClustersFrom(0)
	rc.writeBytePos = 0
}
