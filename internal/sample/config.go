package sample

import (
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/samplebank/internal/arena"
)

// Engine constants. The reduction values define the percussive envelope's
// granularity: one envelope byte summarizes one window of raw samples.
const (
	// DefaultClusterSizeMagnitude gives 32 KiB clusters.
	DefaultClusterSizeMagnitude = 15

	// DefaultMaxRenderCacheBytes rejects render caches whose estimated
	// size makes caching pointless.
	DefaultMaxRenderCacheBytes = 32 << 20

	// percReductionMagnitude: 128 raw samples per envelope byte.
	percReductionMagnitude = 7
	percReductionSize      = 1 << percReductionMagnitude

	// zoneCoalesceSlack is how far behind an existing zone's end a fill
	// may start and still resume that zone instead of minting a new one.
	// Keeps the zone list from exploding under fast time-stretch.
	zoneCoalesceSlack = 2048

	// minReplaceLen is the minimum lead-in of a zone that a preceding
	// fill is allowed to overwrite, so filter state has room to settle.
	minReplaceLen = 2048

	numAngleLPFStages = 3
	angleLPFShift     = 9

	// clusterOverlapBytes pads each audio cluster so reads running a
	// frame or two past the nominal boundary stay in bounds. Must cover
	// two of the largest frames (32-bit stereo).
	clusterOverlapBytes = 16

	// neutralIncrement is a phase increment or stretch ratio of exactly
	// 1.0 in 8.24 fixed point.
	neutralIncrement = 1 << 24

	// Ring-out padding added to render cache length estimates.
	interpolationMaxNumSamples = 16
	timeStretchRingOutSamples  = 16384
)

// Config carries the collaborators and tuning shared by every Sample in
// a bank.
type Config struct {
	// Arena supplies all cluster and cache memory.
	Arena *arena.Arena

	// Loader reads cluster bytes from the backing file.
	Loader Loader

	// ClusterSizeMagnitude sets the cluster size as a power of two.
	// Defaults to DefaultClusterSizeMagnitude.
	ClusterSizeMagnitude int

	// MaxRenderCacheBytes rejects render cache creation above this
	// estimated size. Defaults to DefaultMaxRenderCacheBytes.
	MaxRenderCacheBytes int

	// Fatal handles internal-consistency violations. Defaults to a
	// handler that logs and panics.
	Fatal FatalFunc

	// Logger receives debug logging. Defaults to log.Default().
	Logger *log.Logger
}

func (c *Config) applyDefaults() {
	if c.ClusterSizeMagnitude == 0 {
		c.ClusterSizeMagnitude = DefaultClusterSizeMagnitude
	}
	if c.MaxRenderCacheBytes == 0 {
		c.MaxRenderCacheBytes = DefaultMaxRenderCacheBytes
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Fatal == nil {
		logger := c.Logger
		c.Fatal = func(code, detail string) {
			logger.Error("fatal engine condition", "code", code, "detail", detail)
			panic(code)
		}
	}
}

func (c *Config) clusterSize() int { return 1 << c.ClusterSizeMagnitude }
