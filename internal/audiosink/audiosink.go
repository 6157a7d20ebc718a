// Package audiosink adapts the synthesis engine's int16 block output
// to the platform audio device, via ebiten's audio subsystem (§4.7,
// §6 "Audio device"). It is a generalization of the teacher's
// internal/audio.StreamReader: the teacher pulls float32 frames
// straight from a running VoiceEngine (audio.SampleSource.Process);
// here the engine instead pushes finished int16 blocks through Write,
// so a bounded channel sits between producer and consumer and the
// int16-to-float32 conversion happens only at this final boundary
// (§6 "the audiosink's int16->float32 conversion only at the final
// ebiten boundary").
package audiosink

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// queueDepth bounds how many blocks may be buffered ahead of
// playback; Write blocks once it is full, giving the engine natural
// backpressure (§5 "a sink is free to block until buffer space is
// available").
const queueDepth = 8

// Sink is a synth.Sink backed by the platform audio device.
type Sink struct {
	ctx    *ebitaudio.Context
	player *ebitaudio.Player
	reader *streamReader
}

var (
	sharedOnce sync.Once
	sharedCtx  *ebitaudio.Context
	sharedErr  error
	sharedRate int
)

// sharedAudioContext mirrors the teacher's singleton: ebiten permits
// only one audio.Context per process, constructed at its first
// requested sample rate.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	sharedOnce.Do(func() {
		sharedRate = sampleRate
		sharedCtx = ebitaudio.NewContext(sampleRate)
	})
	if sharedErr != nil {
		return nil, sharedErr
	}
	if sharedRate != sampleRate {
		return nil, fmt.Errorf("audiosink: audio context already initialized at %d Hz (requested %d Hz)", sharedRate, sampleRate)
	}
	return sharedCtx, nil
}

// New returns a device sink. Open negotiates the actual sample rate.
func New() *Sink {
	return &Sink{}
}

// Open starts device playback at sampleRate (ebiten device contexts
// are not resampled by this sink, so the rate is always honored
// exactly and returned unchanged).
func (s *Sink) Open(channels, sampleRate int) (int, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return 0, err
	}
	s.ctx = ctx
	s.reader = newStreamReader(channels)
	player, err := ctx.NewPlayerF32(s.reader)
	if err != nil {
		return 0, fmt.Errorf("audiosink: creating player: %w", err)
	}
	s.player = player
	s.player.Play()
	return sampleRate, nil
}

// Write converts one block of interleaved int16 frames to float32 and
// enqueues it for playback, blocking if the queue is full.
func (s *Sink) Write(frames []int16) error {
	out := make([]float32, len(frames))
	for i, v := range frames {
		out[i] = float32(v) / 32768
	}
	s.reader.push(out)
	return nil
}

// Close signals that no further blocks are coming and waits for the
// device to finish draining what has already been queued.
func (s *Sink) Close() error {
	s.reader.finish()
	for s.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	s.player.Close()
	return nil
}

// streamReader is ebiten's pull-based io.Reader wired to the engine's
// push-based Write calls.
type streamReader struct {
	channels int

	mu      sync.Mutex
	pending []float32
	closed  bool

	blocks chan []float32
}

func newStreamReader(channels int) *streamReader {
	return &streamReader{
		channels: channels,
		blocks:   make(chan []float32, queueDepth),
	}
}

func (r *streamReader) push(block []float32) {
	r.blocks <- block
}

func (r *streamReader) finish() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	close(r.blocks)
}

// Read implements io.Reader for ebiten's NewPlayerF32: p holds
// interleaved 32-bit-float stereo samples, 8 bytes per frame. On
// underrun (no block ready yet and playback has not been finished)
// the gap is filled with silence so the device stream never stalls
// (§4.7 "On underrun, the device sink recovers transparently").
func (r *streamReader) Read(p []byte) (int, error) {
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	out := make([]float32, 0, need)

	r.mu.Lock()
	take := min(need, len(r.pending))
	out = append(out, r.pending[:take]...)
	r.pending = r.pending[take:]
	r.mu.Unlock()

	for len(out) < need {
		select {
		case block, ok := <-r.blocks:
			if !ok {
				for len(out) < need {
					out = append(out, 0)
				}
			} else {
				take := min(need-len(out), len(block))
				out = append(out, block[:take]...)
				if take < len(block) {
					r.mu.Lock()
					r.pending = append(r.pending, block[take:]...)
					r.mu.Unlock()
				}
			}
		default:
			for len(out) < need {
				out = append(out, 0)
			}
		}
	}

	for i, v := range out {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	n := frames * 8
	if r.finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *streamReader) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed && len(r.pending) == 0 && len(r.blocks) == 0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
