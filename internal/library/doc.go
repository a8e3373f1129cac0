// Package library manages a bank of samples on disk: opening WAV files
// (plain or zstd-compressed), streaming their clusters through a shared
// arena, watching backing media for removal, and draining the background
// load queue at cooperative checkpoints.
package library
