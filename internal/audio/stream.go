package audio

import (
	"io"

	"github.com/dgnsrekt/samplebank/internal/sample"
)

// Stream reads a sample's payload through its cluster table as 16-bit
// little-endian PCM, loading clusters on demand and holding a reason
// only on the cluster currently being read. Any source byte depth is
// reduced or widened to 16 bits.
type Stream struct {
	s       *sample.Sample
	bytePos int // within the payload
	cur     *sample.Cluster
}

// NewStream starts a forward stream at the top of the sample.
func NewStream(s *sample.Sample) *Stream {
	return &Stream{s: s}
}

// Read implements io.Reader. Output is always whole 16-bit values.
func (st *Stream) Read(p []byte) (int, error) {
	if len(p) < 2 {
		return 0, nil
	}
	total := st.s.AudioDataLengthBytes
	if st.bytePos >= total {
		st.Close()
		return 0, io.EOF
	}

	depth := st.s.ByteDepth
	mag := st.s.ClusterSizeMagnitude()
	clusterSize := 1 << mag

	n := 0
	for n+2 <= len(p) && st.bytePos < total {
		fileOff := st.s.AudioDataStartBytes + st.bytePos
		index := fileOff >> mag

		if st.cur == nil || st.cur.Index != index {
			c, err := st.s.GetCluster(index, sample.LoadImmediate)
			if err != nil {
				st.Close()
				if n > 0 {
					return n, nil
				}
				return 0, err
			}
			if st.cur != nil {
				st.cur.ReleaseReason()
			}
			st.cur = c
		}

		// A value may run past the nominal boundary; the cluster's
		// overlap bytes cover it as long as it starts inside.
		off := fileOff & (clusterSize - 1)
		v := decode16(st.cur.Data(), off, depth)
		st.s.NoteValue(int32(v) << 16)
		p[n] = byte(v)
		p[n+1] = byte(v >> 8)
		n += 2
		st.bytePos += depth
	}
	return n, nil
}

// Close releases the stream's cluster reason. Further reads return EOF.
func (st *Stream) Close() {
	if st.cur != nil {
		st.cur.ReleaseReason()
		st.cur = nil
	}
	st.bytePos = st.s.AudioDataLengthBytes
}

// decode16 reads one channel value and scales it to 16 bits.
func decode16(data []byte, off, depth int) int16 {
	switch depth {
	case 1:
		return int16(int(data[off])-128) << 8
	case 2:
		return int16(uint16(data[off]) | uint16(data[off+1])<<8)
	case 3:
		return int16(uint16(data[off+1]) | uint16(data[off+2])<<8)
	default:
		return int16(uint16(data[off+2]) | uint16(data[off+3])<<8)
	}
}
