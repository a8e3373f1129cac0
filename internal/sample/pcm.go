package sample

import "encoding/binary"

// decodeValue reads one channel's sample at off and returns it scaled to
// the full 32-bit range, so downstream arithmetic is depth-independent.
func decodeValue(data []byte, off, byteDepth int) int32 {
	switch byteDepth {
	case 1:
		// 8-bit WAV data is unsigned.
		return (int32(data[off]) - 128) << 24
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(data[off:]))) << 16
	case 3:
		v := int32(data[off]) | int32(data[off+1])<<8 | int32(data[off+2])<<16
		return (v << 8) // sign lands in bit 31
	default:
		return int32(binary.LittleEndian.Uint32(data[off:]))
	}
}

// readFrame sums a frame's channels, each pre-shifted down two bits so
// the rectified delta against the previous frame cannot overflow.
func readFrame(data []byte, off, byteDepth, numChannels int) int32 {
	v := decodeValue(data, off, byteDepth) >> 2
	if numChannels == 2 {
		v += decodeValue(data, off+byteDepth, byteDepth) >> 2
	}
	return v
}
