package audio

import (
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/samplebank/internal/arena"
	"github.com/dgnsrekt/samplebank/internal/sample"
)

// fillByOffset writes every cluster byte, overlap included, as a
// function of its file offset, so overlapping regions agree between
// neighboring clusters.
func fillByOffset(mag int) func(s *sample.Sample, c *sample.Cluster) {
	return func(s *sample.Sample, c *sample.Cluster) {
		base := c.Index << mag
		data := c.Data()
		for i := range data {
			data[i] = byte((base+i)*7 + 3)
		}
	}
}

func newStreamSample(t *testing.T, byteDepth, numFrames int) (*sample.Sample, *sample.MockLoader) {
	t.Helper()
	const mag = 9

	a, err := arena.New(arena.Config{Size: 64 << 10, Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}

	mock := &sample.MockLoader{Fill: fillByOffset(mag)}
	cfg := &sample.Config{
		Arena:                a,
		Loader:               mock,
		ClusterSizeMagnitude: mag,
		Logger:               log.New(io.Discard),
	}
	s, err := sample.New(cfg, sample.Metadata{
		Name:                 "stream-test",
		SampleRate:           44100,
		NumChannels:          1,
		ByteDepth:            byteDepth,
		FileSizeBytes:        44 + byteDepth*numFrames,
		AudioDataStartBytes:  44,
		AudioDataLengthBytes: byteDepth * numFrames,
	})
	if err != nil {
		t.Fatalf("sample.New: %v", err)
	}
	t.Cleanup(s.Release)
	return s, mock
}

func TestStreamReads16Bit(t *testing.T) {
	const numFrames = 1000
	s, _ := newStreamSample(t, 2, numFrames)

	st := NewStream(s)
	out, err := io.ReadAll(st)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(out) != numFrames*2 {
		t.Fatalf("read %d bytes, want %d", len(out), numFrames*2)
	}

	// 16-bit sources pass through unchanged.
	for _, frame := range []int{0, 1, 233, 500, numFrames - 1} {
		off := 44 + frame*2
		wantLo := byte(off*7 + 3)
		wantHi := byte((off+1)*7 + 3)
		if out[frame*2] != wantLo || out[frame*2+1] != wantHi {
			t.Errorf("frame %d = %#x %#x, want %#x %#x",
				frame, out[frame*2], out[frame*2+1], wantLo, wantHi)
		}
	}

	if s.MinValueFound > s.MaxValueFound {
		t.Errorf("extremes never noted: min %d, max %d", s.MinValueFound, s.MaxValueFound)
	}
}

func TestStreamReads24BitAcrossClusters(t *testing.T) {
	// 600 frames of 3 bytes put frame 326 at file offset 1022, straddling
	// the 512-byte cluster boundary into the overlap region.
	const numFrames = 600
	s, _ := newStreamSample(t, 3, numFrames)

	st := NewStream(s)
	out, err := io.ReadAll(st)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(out) != numFrames*2 {
		t.Fatalf("read %d bytes, want %d", len(out), numFrames*2)
	}

	// 24-bit values keep their top two bytes.
	for _, frame := range []int{0, 155, 326, numFrames - 1} {
		off := 44 + frame*3
		wantLo := byte((off+1)*7 + 3)
		wantHi := byte((off+2)*7 + 3)
		if out[frame*2] != wantLo || out[frame*2+1] != wantHi {
			t.Errorf("frame %d = %#x %#x, want %#x %#x",
				frame, out[frame*2], out[frame*2+1], wantLo, wantHi)
		}
	}
}

func TestStreamReleasesPins(t *testing.T) {
	s, _ := newStreamSample(t, 2, 1000)

	st := NewStream(s)
	if _, err := io.ReadAll(st); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	assertNoPins(t, s)

	// A stream abandoned mid-read releases its pin on Close.
	st = NewStream(s)
	buf := make([]byte, 64)
	if _, err := st.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	st.Close()
	assertNoPins(t, s)

	if _, err := st.Read(buf); err != io.EOF {
		t.Errorf("Read after Close = %v, want EOF", err)
	}
}

func assertNoPins(t *testing.T, s *sample.Sample) {
	t.Helper()
	for i := 0; i < s.NumClusters(); i++ {
		c, err := s.GetCluster(i, sample.LoadNone)
		if err != nil {
			t.Fatalf("GetCluster(%d): %v", i, err)
		}
		if got := c.Reasons(); got != 1 {
			t.Errorf("cluster %d has %d reasons, want 1 (ours)", i, got)
		}
		c.ReleaseReason()
	}
}

func TestStreamLoadFailure(t *testing.T) {
	s, mock := newStreamSample(t, 2, 1000)
	mock.FailLoad = errors.New("disk gone")

	st := NewStream(s)
	if _, err := st.Read(make([]byte, 64)); err == nil {
		t.Fatal("Read succeeded with a failing loader")
	}
}
