package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// MockDevice implements Device for testing. It drains each source
// reader synchronously instead of producing sound.
type MockDevice struct {
	state atomic.Int32 // PlayerState

	mu       sync.Mutex
	played   []byte // data from the most recent Play
	failPlay error

	callbacks MockCallbacks

	playCount  atomic.Int64
	pauseCount atomic.Int64
	stopCount  atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay  func(data []byte)
	OnPause func()
	OnStop  func()
	OnClose func()
}

// NewMockDevice creates a mock device.
func NewMockDevice(callbacks MockCallbacks) *MockDevice {
	md := &MockDevice{callbacks: callbacks}
	md.state.Store(int32(StateStopped))
	return md
}

// Play reads the source to EOF and records the bytes.
func (md *MockDevice) Play(src io.Reader) error {
	md.mu.Lock()
	defer md.mu.Unlock()

	if PlayerState(md.state.Load()) == StateClosed {
		return errors.New("player is closed")
	}
	if md.failPlay != nil {
		return md.failPlay
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	if closer, ok := src.(interface{ Close() }); ok {
		closer.Close()
	}

	md.played = data
	md.state.Store(int32(StatePlaying))
	md.playCount.Add(1)

	if md.callbacks.OnPlay != nil {
		md.callbacks.OnPlay(data)
	}
	return nil
}

// Pause pauses the simulated playback.
func (md *MockDevice) Pause() error {
	if state := PlayerState(md.state.Load()); state != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", state)
	}
	md.state.Store(int32(StatePaused))
	md.pauseCount.Add(1)
	if md.callbacks.OnPause != nil {
		md.callbacks.OnPause()
	}
	return nil
}

// Resume resumes a paused simulated playback.
func (md *MockDevice) Resume() error {
	if state := PlayerState(md.state.Load()); state != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", state)
	}
	md.state.Store(int32(StatePlaying))
	return nil
}

// Stop ends the simulated playback.
func (md *MockDevice) Stop() error {
	state := PlayerState(md.state.Load())
	if state == StateStopped || state == StateClosed {
		return nil
	}
	md.state.Store(int32(StateStopped))
	md.stopCount.Add(1)
	if md.callbacks.OnStop != nil {
		md.callbacks.OnStop()
	}
	return nil
}

// IsPlaying reports whether the mock is in the playing state.
func (md *MockDevice) IsPlaying() bool {
	return PlayerState(md.state.Load()) == StatePlaying
}

// Close closes the mock device.
func (md *MockDevice) Close() error {
	md.Stop()
	md.state.Store(int32(StateClosed))
	if md.callbacks.OnClose != nil {
		md.callbacks.OnClose()
	}
	return nil
}

// Test helper methods.

// GetState returns the current state.
func (md *MockDevice) GetState() PlayerState {
	return PlayerState(md.state.Load())
}

// PlayedData returns a copy of the bytes from the most recent Play.
func (md *MockDevice) PlayedData() []byte {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.played == nil {
		return nil
	}
	data := make([]byte, len(md.played))
	copy(data, md.played)
	return data
}

// FailNextPlay makes subsequent Play calls return err.
func (md *MockDevice) FailNextPlay(err error) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.failPlay = err
}

// PlayCount returns how many times Play succeeded.
func (md *MockDevice) PlayCount() int64 { return md.playCount.Load() }

var _ Device = (*MockDevice)(nil)
var _ Device = (*Player)(nil)
