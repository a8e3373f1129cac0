package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/samplebank/internal/library"
	"github.com/dgnsrekt/samplebank/internal/sample"
	"github.com/dgnsrekt/samplebank/internal/wavfile"
)

func writeEnvelopeWAV(t *testing.T, numFrames int) string {
	t.Helper()
	payload := make([]byte, numFrames*2)
	for i := range payload {
		payload[i] = byte(i*13 + 5)
	}
	var buf bytes.Buffer
	err := wavfile.Write(&buf, wavfile.Info{
		SampleRate:    44100,
		NumChannels:   1,
		BitsPerSample: 16,
	}, payload)
	if err != nil {
		t.Fatalf("wavfile.Write: %v", err)
	}
	path := filepath.Join(t.TempDir(), "loop.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestBuildEnvelopeCoversWaveform(t *testing.T) {
	path := writeEnvelopeWAV(t, 2000)

	for _, tc := range []struct {
		name string
		dir  sample.Direction
	}{
		{"forward", sample.Forward},
		{"reversed", sample.Reversed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bank, err := library.NewBank(library.Options{
				ArenaSize:            64 << 10,
				ClusterSizeMagnitude: 9,
				Logger:               log.New(io.Discard),
			})
			if err != nil {
				t.Fatalf("NewBank: %v", err)
			}
			defer bank.Close()

			s, err := bank.Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			// Nothing is resident yet; the builder has to page the
			// source clusters in itself.
			var pins sample.PinSet
			defer pins.ReleaseAll()
			if err := buildEnvelope(bank, s, &pins, tc.dir); err != nil {
				t.Fatalf("buildEnvelope: %v", err)
			}

			numPix := ((s.LengthInSamples - 1) >> 7) + 1
			for pix := 0; pix < numPix; pix++ {
				view, ok := s.LookupPercCache(pix, tc.dir)
				if !ok {
					t.Fatalf("pixel %d of %d not covered", pix, numPix)
				}
				_ = view.ByteAt(pix)
			}
		})
	}
}
