// Package audio plays engine-streamed PCM through the system audio
// device. A Stream adapts a sample's cluster table into an io.Reader of
// 16-bit little-endian frames; a Player feeds it to the device.
package audio
