// Package wavsink implements a streaming RIFF/WAVE PCM sink: frames
// are written as they arrive and the header is patched with the final
// sizes on Close (§4.7, §6 "WAV layout"). Generalized from the
// teacher's EncodeWAVFloat32LE (which built one full float32 buffer
// up front, IEEE-float format tag 3) to a streaming int16 PCM writer
// (format tag 1) so a rendering run never holds the whole program's
// audio in memory at once.
package wavsink

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	formatPCM   = 1
	headerBytes = 44
)

// Sink writes interleaved int16 frames to w as a WAV file, patching
// the RIFF/data chunk sizes once the frame count is known at Close.
// w must be positioned at the start when Open is called, since Close
// seeks w back to offset 0 to rewrite the header; the common case is
// an *os.File.
type Sink struct {
	w        io.WriteSeeker
	channels int
	rate     int
	frames   int64
}

// New wraps w. Open must be called before Write.
func New(w io.WriteSeeker) *Sink {
	return &Sink{w: w}
}

// Open writes a placeholder 44-byte header (patched in Close) and
// records the format. The sample rate is never renegotiated by a file
// sink, so it is returned unchanged.
func (s *Sink) Open(channels, sampleRate int) (int, error) {
	s.channels = channels
	s.rate = sampleRate
	if _, err := s.w.Write(make([]byte, headerBytes)); err != nil {
		return 0, fmt.Errorf("wavsink: writing placeholder header: %w", err)
	}
	return sampleRate, nil
}

// Write appends one block of interleaved int16 frames.
func (s *Sink) Write(frames []int16) error {
	buf := make([]byte, len(frames)*2)
	for i, v := range frames {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	n, err := s.w.Write(buf)
	if err != nil {
		return fmt.Errorf("wavsink: writing samples: %w", err)
	}
	s.frames += int64(n / 2)
	return nil
}

// Close patches the RIFF and data chunk sizes now that the total
// sample count is known, then closes the underlying writer if it
// implements io.Closer.
func (s *Sink) Close() error {
	dataSize := s.frames * 2
	byteRate := s.rate * s.channels * 2
	blockAlign := s.channels * 2

	header := make([]byte, headerBytes)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+dataSize))
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], formatPCM)
	binary.LittleEndian.PutUint16(header[22:], uint16(s.channels))
	binary.LittleEndian.PutUint32(header[24:], uint32(s.rate))
	binary.LittleEndian.PutUint32(header[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(dataSize))

	if _, err := s.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wavsink: seeking to patch header: %w", err)
	}
	if _, err := s.w.Write(header); err != nil {
		return fmt.Errorf("wavsink: patching header: %w", err)
	}
	if c, ok := s.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("wavsink: closing file: %w", err)
		}
	}
	return nil
}
