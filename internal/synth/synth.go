// Package synth is the synthesis engine (§4.6): it drives a
// program.Program event by event, maintaining per-voice and
// per-operator runtime state, and renders interleaved stereo int16
// blocks to a Sink.
package synth

import (
	"context"
	"fmt"

	"github.com/saugns/sgscore-go/internal/program"
)

// blockLen is the default number of frames rendered per Sink.Write
// call (§4.6 "typically 256-1024").
const blockLen = 512

// Sink receives rendered audio. Open negotiates the sample rate (a
// sink may report back a reduced, device-supported rate), Write
// accepts one block of interleaved stereo int16 frames, and Close
// flushes and finalizes the sink.
type Sink interface {
	Open(channels, sampleRate int) (int, error)
	Write(frames []int16) error
	Close() error
}

// opState is one operator's runtime state between events. Residual
// time/silence are tracked directly in frames rather than
// milliseconds: converting once at the ms-denominated event boundary
// and then decrementing by the exact integer frame count rendered
// each block avoids the rounding drift that repeatedly converting
// ms<->frames across thousands of blocks would accumulate (§8 exact
// sample-count invariant).
type opState struct {
	wave              program.Wave
	phase             float64 // cycles, [0,1)
	residualFrames    int32   // program.TimeInf for unbounded
	residualSilence   int32

	freq, dynFreq float64
	isRatio       bool
	amp, dynAmp   float64

	freqRamp        *program.Ramp
	freqRampElapsed float64
	ampRamp         *program.Ramp
	ampRampElapsed  float64

	adjacency program.Adjacency
}

// voiceState is one voice's runtime state between events.
type voiceState struct {
	graph []int32

	pan            float64
	panRamp        *program.Ramp
	panRampElapsed float64
}

// Engine holds the operator/voice state arrays for one rendering run
// and the scratch buffer pool used by recursive modulation.
type Engine struct {
	sampleRate   int
	voices       []voiceState
	ops          []opState
	voiceCount   int32
	ampDivVoices bool

	// scratchPools holds per-recursion-depth scratch buffers: a
	// per-operator working frequency buffer (lives for the whole
	// call), a phase-offset buffer (computed early, read again at
	// final wave evaluation, so it needs its own pool), and a
	// transient buffer reused in turn for combining fmod and amod
	// output (those two stages never overlap in time, so one buffer
	// per depth suffices for both). Buffers are grown on demand rather
	// than precomputed from the graph's maximum recursion depth up
	// front (§4.6 "Buffer depth", simplified here).
	scratchPools [3][][]float64

	mono      []float64
	stereoAcc []int32
	out       []int16
}

const (
	scratchFreq = iota
	scratchPhase
	scratchCombine
)

// New creates an engine targeting the given preferred sample rate; the
// actual rate used is whatever Run's Sink.Open negotiates.
func New(sampleRate int) *Engine {
	return &Engine{sampleRate: sampleRate}
}

// Run drives prog to completion against sink, returning once every
// event has been applied and every voice has finished (or ctx is
// cancelled, or the sink reports a fatal write error). Cancellation is
// observed only between blocks, never mid-block (§5).
func (e *Engine) Run(ctx context.Context, prog *program.Program, sink Sink) error {
	rate, err := sink.Open(2, e.sampleRate)
	if err != nil {
		return fmt.Errorf("synth: opening sink: %w", err)
	}
	e.sampleRate = rate
	e.voices = make([]voiceState, prog.VoiceCount)
	e.ops = make([]opState, prog.OperatorCount)
	e.voiceCount = prog.VoiceCount
	e.ampDivVoices = prog.AmpDivVoices

	events := prog.Events
	i := 0
	pendingFrames := int32(-1)

	for {
		for i < len(events) {
			if pendingFrames < 0 {
				pendingFrames = framesForMs(events[i].WaitMs, e.sampleRate)
			}
			if pendingFrames > 0 {
				break
			}
			e.applyEvent(&events[i])
			i++
			pendingFrames = -1
		}

		if i >= len(events) && !e.anyActive() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		limit := blockLen
		if i < len(events) {
			if int(pendingFrames) < limit {
				limit = int(pendingFrames)
			}
		} else if frames, unbounded := e.residualFrames(); !unbounded && int(frames) < limit {
			// No more events to wait for: once every operator's own
			// residual time is known and finite, the final block is
			// clipped to exactly that many frames so the program's
			// total output length is exact rather than padded out to
			// the next block boundary (§8 "exactly 44100 stereo
			// samples").
			limit = int(frames)
		}
		if limit <= 0 {
			limit = blockLen
		}

		buf := e.renderBlock(limit)
		if err := sink.Write(buf); err != nil {
			return fmt.Errorf("synth: writing block: %w", err)
		}
		if i < len(events) {
			pendingFrames -= int32(limit)
		}
	}

	if err := sink.Close(); err != nil {
		return fmt.Errorf("synth: closing sink: %w", err)
	}
	return nil
}

// anyActive reports whether any operator still has residual time (so
// rendering must continue past the last applied event).
func (e *Engine) anyActive() bool {
	for i := range e.ops {
		if e.ops[i].residualFrames != 0 {
			return true
		}
	}
	return false
}

// residualFrames returns the longest remaining residual time among
// active operators, in frames. unbounded is true if any active
// operator has program.TimeInf residual time, in which case frames is
// meaningless and rendering should proceed one full block at a time
// until cancelled.
func (e *Engine) residualFrames() (frames int32, unbounded bool) {
	for i := range e.ops {
		rf := e.ops[i].residualFrames
		switch {
		case rf == 0:
			continue
		case rf == program.TimeInf:
			unbounded = true
		case rf > frames:
			frames = rf
		}
	}
	return frames, unbounded
}

// applyEvent merges one program.Event's voice/operator update into
// runtime state (§4.6 "Executing an event").
func (e *Engine) applyEvent(ev *program.Event) {
	if ev.VoiceUpdate != nil {
		e.mergeVoice(ev.VoiceUpdate)
	}
	if ev.OperatorUpdate != nil {
		e.mergeOperator(ev.OperatorUpdate)
	}
}

func (e *Engine) mergeVoice(u *program.VoiceUpdate) {
	v := &e.voices[u.VoiceID]
	if u.Params&program.ParamGraph != 0 {
		v.graph = u.Graph
	}
	if u.Params&program.ParamPan != 0 {
		v.pan = u.Pan
		v.panRamp = nil
	}
	if u.Params&program.ParamPanRamp != 0 {
		r := u.PanRamp
		v.panRamp = &r
		v.panRampElapsed = 0
	}
}

func (e *Engine) mergeOperator(u *program.OperatorUpdate) {
	op := &e.ops[u.OperatorID]
	if u.Params&program.ParamWave != 0 {
		op.wave = u.Wave
	}
	if u.Params&program.ParamTime != 0 {
		op.residualFrames = framesForMs(u.TimeMs, e.sampleRate)
		op.residualSilence = 0
	}
	if u.Params&program.ParamSilence != 0 {
		op.residualSilence = framesForMs(u.SilenceMs, e.sampleRate)
	}
	if u.Params&program.ParamFreq != 0 {
		op.freq = u.Freq
		op.isRatio = u.Params&program.ParamRatio != 0
		if u.Params&program.ParamFreqRamp == 0 {
			op.freqRamp = nil
		}
	}
	if u.Params&program.ParamDynFreq != 0 {
		op.dynFreq = u.DynFreq
	}
	if u.Params&program.ParamPhase != 0 {
		op.phase = u.Phase
	}
	if u.Params&program.ParamAmp != 0 {
		op.amp = u.Amp
		if u.Params&program.ParamAmpRamp == 0 {
			op.ampRamp = nil
		}
	}
	if u.Params&program.ParamDynAmp != 0 {
		op.dynAmp = u.DynAmp
	}
	if u.Params&program.ParamFreqRamp != 0 {
		r := u.FreqRamp
		op.freqRamp = &r
		op.freqRampElapsed = 0
	}
	if u.Params&program.ParamAmpRamp != 0 {
		r := u.AmpRamp
		op.ampRamp = &r
		op.ampRampElapsed = 0
	}
	if u.Params&program.ParamAdjacency != 0 {
		op.adjacency = u.Adjacency
	}
}

// framesForMs converts a millisecond duration to a sample-frame count
// at sampleRate. program.TimeInf maps to itself so callers can keep
// comparing against it without a special case.
func framesForMs(ms int32, sampleRate int) int32 {
	if ms == program.TimeInf {
		return program.TimeInf
	}
	return int32(int64(ms) * int64(sampleRate) / 1000)
}

// msForFrames is framesForMs's inverse, converting a frame count back
// to whole milliseconds (rounded down).
func msForFrames(frames int, sampleRate int) int32 {
	return int32(int64(frames) * 1000 / int64(sampleRate))
}

func (e *Engine) scratchBuf(kind, depth, n int) []float64 {
	pool := &e.scratchPools[kind]
	for len(*pool) <= depth {
		*pool = append(*pool, nil)
	}
	if len((*pool)[depth]) < n {
		(*pool)[depth] = make([]float64, n)
	}
	return (*pool)[depth][:n]
}
