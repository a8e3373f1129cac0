package arena

import "errors"

// Common errors for the arena.
var (
	// ErrInsufficientRAM means the arena could not satisfy a request, even
	// after stealing every eligible block. It is a soft condition; callers
	// are expected to degrade and retry on a later invocation.
	ErrInsufficientRAM = errors.New("insufficient RAM")

	// ErrBadSize means a zero or negative allocation size was requested.
	ErrBadSize = errors.New("invalid allocation size")
)

// Diagnostic codes passed to the fatal handler. These indicate internal
// consistency violations that cannot be recovered from.
const (
	FatalNegativePins     = "arena-negative-pins"
	FatalStealPinned      = "arena-steal-pinned"
	FatalReentrantAlloc   = "arena-reentrant-alloc"
	FatalDoubleFree       = "arena-double-free"
	FatalForeignBlock     = "arena-foreign-block"
	FatalFreeListCorrupt  = "arena-free-list-corrupt"
	FatalPinAfterFree     = "arena-pin-after-free"
	FatalStealUnstealable = "arena-steal-unstealable"
)

// FatalFunc reports an unrecoverable internal-consistency violation.
// The default handler logs the code and panics; tests inject their own
// handler to intercept the condition as a typed failure instead.
type FatalFunc func(code, detail string)
