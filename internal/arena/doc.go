// Package arena manages the fixed memory pool that sample and cache data
// lives in. It provides ordinary allocation with free-neighbor coalescing
// plus "stealable" allocations that the arena may forcibly reclaim under
// memory pressure, after notifying the owner. Eviction candidates are
// chosen by an explicit, configurable ranking over block kinds and never
// include a block with outstanding pins.
package arena
