package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Device is the playback surface the rest of the program talks to.
// Player implements it on real hardware; MockDevice implements it for
// tests.
type Device interface {
	Play(src io.Reader) error
	Pause() error
	Resume() error
	Stop() error
	IsPlaying() bool
	Close() error
}

// PlayerState represents the current state of a device.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns a lower-case state name.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // output rate in Hz
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // device buffer in bytes
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
		BufferSize: 4096,
	}
}

// validateConfig validates the player configuration.
func validateConfig(config PlayerConfig) error {
	if config.SampleRate < 8000 || config.SampleRate > 192000 {
		return fmt.Errorf("sample rate must be between 8000 and 192000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	// The engine always hands the device 16-bit little-endian frames.
	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}

// Player plays 16-bit little-endian PCM through the system device using
// oto. The source reader is held until Stop so anything it keeps pinned
// stays pinned for the whole playback.
type Player struct {
	context *oto.Context
	player  *oto.Player
	source  io.Reader

	state atomic.Int32 // PlayerState

	mu      sync.Mutex
	stateMu sync.Mutex

	sampleRate int
	channels   int
}

// NewPlayer opens the audio device and waits for it to become ready.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize: time.Duration(config.BufferSize) * time.Second /
			time.Duration(config.SampleRate*config.Channels*2),
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	p := &Player{
		context:    ctx,
		sampleRate: config.SampleRate,
		channels:   config.Channels,
	}
	p.state.Store(int32(StateStopped))
	return p, nil
}

// Play starts playback from the reader, replacing any current playback.
func (p *Player) Play(src io.Reader) error {
	if src == nil {
		return errors.New("source is nil")
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if PlayerState(p.state.Load()) == StateClosed {
		return errors.New("player is closed")
	}
	if err := p.stopInternal(); err != nil {
		return fmt.Errorf("failed to stop current playback: %w", err)
	}

	player := p.context.NewPlayer(src)
	if player == nil {
		return errors.New("failed to create oto player")
	}

	p.mu.Lock()
	p.player = player
	p.source = src
	p.mu.Unlock()

	player.Play()
	p.state.Store(int32(StatePlaying))
	return nil
}

// Pause pauses the current playback.
func (p *Player) Pause() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if state := PlayerState(p.state.Load()); state != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", state)
	}

	p.mu.Lock()
	if p.player != nil {
		p.player.Pause()
	}
	p.mu.Unlock()

	p.state.Store(int32(StatePaused))
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if state := PlayerState(p.state.Load()); state != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", state)
	}

	p.mu.Lock()
	if p.player != nil {
		p.player.Play()
	}
	p.mu.Unlock()

	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop stops playback and releases the source reader.
func (p *Player) Stop() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.stopInternal()
}

func (p *Player) stopInternal() error {
	state := PlayerState(p.state.Load())
	if state == StateStopped || state == StateClosed {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player != nil {
		p.player.Pause()
		p.player.Close()
		p.player = nil
	}
	if closer, ok := p.source.(interface{ Close() }); ok {
		closer.Close()
	}
	p.source = nil

	p.state.Store(int32(StateStopped))
	return nil
}

// IsPlaying reports whether the device is still consuming the source.
// A playback that ran to the end of its reader counts as stopped.
func (p *Player) IsPlaying() bool {
	if PlayerState(p.state.Load()) != StatePlaying {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.player != nil && p.player.IsPlaying()
}

// GetState returns the current player state.
func (p *Player) GetState() PlayerState {
	return PlayerState(p.state.Load())
}

// Close stops playback and releases the audio device.
func (p *Player) Close() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if err := p.stopInternal(); err != nil {
		return err
	}

	p.mu.Lock()
	// oto.Context has no Close in v3; dropping the reference is all
	// there is to do.
	p.context = nil
	p.mu.Unlock()

	p.state.Store(int32(StateClosed))
	return nil
}
