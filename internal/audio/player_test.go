package audio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  PlayerConfig
		wantErr string
	}{
		{
			name:   "default config is valid",
			config: DefaultPlayerConfig(),
		},
		{
			name:   "mono 48k",
			config: PlayerConfig{SampleRate: 48000, Channels: 1, BitDepth: 16, BufferSize: 4096},
		},
		{
			name:    "sample rate too low",
			config:  PlayerConfig{SampleRate: 4000, Channels: 1, BitDepth: 16, BufferSize: 4096},
			wantErr: "sample rate",
		},
		{
			name:    "too many channels",
			config:  PlayerConfig{SampleRate: 44100, Channels: 5, BitDepth: 16, BufferSize: 4096},
			wantErr: "channels",
		},
		{
			name:    "unsupported bit depth",
			config:  PlayerConfig{SampleRate: 44100, Channels: 2, BitDepth: 24, BufferSize: 4096},
			wantErr: "bit depth",
		},
		{
			name:    "zero buffer",
			config:  PlayerConfig{SampleRate: 44100, Channels: 2, BitDepth: 16},
			wantErr: "buffer size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.config)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateConfig() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateConfig() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMockDevicePlayback(t *testing.T) {
	var played []byte
	stopped := 0
	md := NewMockDevice(MockCallbacks{
		OnPlay: func(data []byte) { played = data },
		OnStop: func() { stopped++ },
	})

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := md.Play(bytes.NewReader(pcm)); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !md.IsPlaying() {
		t.Error("not playing after Play")
	}
	if !bytes.Equal(played, pcm) {
		t.Errorf("OnPlay saw %v, want %v", played, pcm)
	}
	if !bytes.Equal(md.PlayedData(), pcm) {
		t.Errorf("PlayedData = %v, want %v", md.PlayedData(), pcm)
	}

	if err := md.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if md.IsPlaying() {
		t.Error("still playing after Pause")
	}
	if err := md.Pause(); err == nil {
		t.Error("second Pause succeeded")
	}
	if err := md.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if err := md.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped != 1 {
		t.Errorf("OnStop ran %d times, want 1", stopped)
	}
	if got := md.GetState(); got != StateStopped {
		t.Errorf("state = %v, want stopped", got)
	}

	if err := md.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := md.Play(bytes.NewReader(pcm)); err == nil {
		t.Error("Play succeeded on a closed device")
	}
}

func TestMockDeviceFailNextPlay(t *testing.T) {
	md := NewMockDevice(MockCallbacks{})
	want := errors.New("no device")
	md.FailNextPlay(want)

	if err := md.Play(bytes.NewReader([]byte{0, 0})); !errors.Is(err, want) {
		t.Errorf("Play = %v, want %v", err, want)
	}
	if md.PlayCount() != 0 {
		t.Errorf("PlayCount = %d, want 0", md.PlayCount())
	}
}
