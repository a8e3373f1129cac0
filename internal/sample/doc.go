// Package sample implements the streaming state of one audio file: the
// table of lazily loaded clusters spanning its bytes, derived render
// caches keyed by playback parameters, and the percussive-envelope cache
// the time-stretcher uses to find splice points. All memory comes from a
// shared arena that may steal unpinned blocks back under pressure; the
// package keeps its bookkeeping consistent across those evictions.
package sample
