package sample

import (
	"errors"

	"github.com/dgnsrekt/samplebank/internal/arena"
)

// Common errors for the sample engine.
var (
	// ErrInsufficientRAM mirrors the arena's soft out-of-memory result.
	// Callers skip the current render quantum and retry later.
	ErrInsufficientRAM = arena.ErrInsufficientRAM

	// ErrUnloadable means the backing file went away (media removed) and
	// no further loads will be attempted.
	ErrUnloadable = errors.New("sample is unloadable")

	// ErrClusterOutOfRange means a cluster index beyond the sample's
	// table was requested.
	ErrClusterOutOfRange = errors.New("cluster index out of range")

	// ErrBadFormat means the declared byte layout is inconsistent, e.g.
	// the payload length is not a multiple of the frame size.
	ErrBadFormat = errors.New("invalid sample format")

	// ErrLoadFailed wraps an I/O failure from the loader.
	ErrLoadFailed = errors.New("cluster load failed")
)

// Diagnostic codes passed to the fatal handler. Continuing past any of
// these risks silently corrupting other samples' data.
const (
	FatalZoneReentry        = "perc-zone-reentry"
	FatalZoneOrder          = "perc-zone-order"
	FatalPercIndexRange     = "perc-cluster-index-range"
	FatalPercMissingCluster = "perc-cluster-missing"
	FatalPercStaleCoverage  = "perc-zone-stale-coverage"
	FatalReleaseWhilePinned = "release-while-pinned"
	FatalStolenWrongType    = "stolen-wrong-cluster-type"
	FatalCacheWritePos      = "cache-write-pos-invalid"
	FatalCacheStolenUnknown = "cache-stolen-unknown-cluster"
)

// FatalFunc reports an unrecoverable internal-consistency violation.
type FatalFunc func(code, detail string)
