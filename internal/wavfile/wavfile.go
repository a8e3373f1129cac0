package wavfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const formatPCM = 1

var (
	// ErrNotWave means the file does not carry a RIFF/WAVE signature.
	ErrNotWave = errors.New("not a RIFF/WAVE file")

	// ErrMissingChunk means a required fmt or data chunk never appeared.
	ErrMissingChunk = errors.New("missing fmt or data chunk")

	// ErrUnsupported means the format is structurally valid but not
	// linear PCM at a byte depth the engine handles.
	ErrUnsupported = errors.New("unsupported wave format")
)

// Info describes a WAVE file's PCM layout without holding its payload.
type Info struct {
	SampleRate    int
	NumChannels   int
	BitsPerSample int

	// AudioDataStart and AudioDataLength locate the payload within the
	// file, in bytes.
	AudioDataStart  int
	AudioDataLength int
	FileSize        int
}

// ByteDepth returns the payload bytes per channel per sample.
func (i Info) ByteDepth() int { return i.BitsPerSample >> 3 }

// ReadInfo parses the header chunks, stopping once both the fmt and data
// chunks are known. Unknown chunks are skipped.
func ReadInfo(r io.ReadSeeker) (Info, error) {
	var info Info

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return info, fmt.Errorf("reading signature: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return info, ErrNotWave
	}
	info.FileSize = int(binary.LittleEndian.Uint32(riff[4:8])) + 8

	var haveFormat, haveData bool
	for !haveFormat || !haveData {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return info, ErrMissingChunk
			}
			return info, fmt.Errorf("reading chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int(binary.LittleEndian.Uint32(chunk[4:8]))

		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return info, err
		}

		switch id {
		case "fmt ":
			var fm struct {
				Format        uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(r, binary.LittleEndian, &fm); err != nil {
				return info, fmt.Errorf("reading fmt chunk: %w", err)
			}
			if fm.Format != formatPCM {
				return info, fmt.Errorf("%w: format tag %d", ErrUnsupported, fm.Format)
			}
			if fm.BitsPerSample%8 != 0 || fm.BitsPerSample == 0 || fm.BitsPerSample > 32 {
				return info, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, fm.BitsPerSample)
			}
			if fm.NumChannels != 1 && fm.NumChannels != 2 {
				return info, fmt.Errorf("%w: %d channels", ErrUnsupported, fm.NumChannels)
			}
			info.SampleRate = int(fm.SampleRate)
			info.NumChannels = int(fm.NumChannels)
			info.BitsPerSample = int(fm.BitsPerSample)
			haveFormat = true

		case "data":
			info.AudioDataStart = int(pos)
			info.AudioDataLength = size
			haveData = true
		}

		// Chunks are word-aligned.
		if _, err := r.Seek(pos+int64(size+size&1), io.SeekStart); err != nil {
			return info, err
		}
	}
	return info, nil
}

// Write emits a minimal PCM file: RIFF header, fmt chunk, data chunk.
func Write(w io.Writer, info Info, payload []byte) error {
	blockAlign := info.NumChannels * info.ByteDepth()
	header := struct {
		RIFF     [4]byte
		RIFFSize uint32
		WAVE     [4]byte
		Fmt      [4]byte
		FmtSize  uint32
		Format   uint16
		Channels uint16
		Rate     uint32
		ByteRate uint32
		Align    uint16
		Bits     uint16
		Data     [4]byte
		DataSize uint32
	}{
		RIFF:     [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize: uint32(36 + len(payload)),
		WAVE:     [4]byte{'W', 'A', 'V', 'E'},
		Fmt:      [4]byte{'f', 'm', 't', ' '},
		FmtSize:  16,
		Format:   formatPCM,
		Channels: uint16(info.NumChannels),
		Rate:     uint32(info.SampleRate),
		ByteRate: uint32(info.SampleRate * blockAlign),
		Align:    uint16(blockAlign),
		Bits:     uint16(info.BitsPerSample),
		Data:     [4]byte{'d', 'a', 't', 'a'},
		DataSize: uint32(len(payload)),
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
