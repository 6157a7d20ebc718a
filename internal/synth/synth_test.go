package synth

import (
	"context"
	"testing"

	"github.com/saugns/sgscore-go/internal/program"
)

type recordSink struct {
	channels, rate int
	blocks         [][]int16
	closed         bool
}

func (r *recordSink) Open(channels, sampleRate int) (int, error) {
	r.channels, r.rate = channels, sampleRate
	return sampleRate, nil
}

func (r *recordSink) Write(frames []int16) error {
	cp := make([]int16, len(frames))
	copy(cp, frames)
	r.blocks = append(r.blocks, cp)
	return nil
}

func (r *recordSink) Close() error {
	r.closed = true
	return nil
}

func (r *recordSink) frameCount() int {
	n := 0
	for _, b := range r.blocks {
		n += len(b) / 2
	}
	return n
}

// oneVoiceProgram builds a minimal program: one voice with a single
// sine carrier operator at freq/amp/timeMs, pan 0.
func oneVoiceProgram(freq, amp float64, timeMs int32) *program.Program {
	return &program.Program{
		VoiceCount:    1,
		OperatorCount: 1,
		Events: []program.Event{
			{
				VoiceUpdate: &program.VoiceUpdate{
					VoiceID: 0,
					Params:  program.ParamGraph,
					Graph:   []int32{0},
				},
				OperatorUpdate: &program.OperatorUpdate{
					OperatorID: 0,
					Params:     program.ParamWave | program.ParamTime | program.ParamFreq | program.ParamAmp,
					Wave:       program.WaveSine,
					TimeMs:     timeMs,
					Freq:       freq,
					Amp:        amp,
				},
			},
		},
	}
}

func TestRunProducesExactSampleCount(t *testing.T) {
	prog := oneVoiceProgram(440, 0.5, 1000)
	sink := &recordSink{}
	e := New(44100)
	if err := e.Run(context.Background(), prog, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sink.closed {
		t.Fatal("sink was never closed")
	}
	if got := sink.frameCount(); got != 44100 {
		t.Fatalf("frame count = %d, want 44100", got)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	prog := oneVoiceProgram(440, 0.5, program.TimeInf)
	sink := &recordSink{}
	e := New(1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx, prog, sink); err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
}

func TestRunStopsWhenCarrierTimeElapses(t *testing.T) {
	prog := oneVoiceProgram(440, 1.0, 10)
	sink := &recordSink{}
	e := New(1000)
	if err := e.Run(context.Background(), prog, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sink.frameCount(); got != 10 {
		t.Fatalf("frame count = %d, want 10", got)
	}
}

func TestWaveSampleShapes(t *testing.T) {
	if got := waveSample(program.WaveSine, 0.25); got < 0.999 || got > 1.001 {
		t.Errorf("sine at phase 0.25 = %v, want ~1", got)
	}
	if got := waveSample(program.WaveSquare, 0.1); got != 1 {
		t.Errorf("square at phase 0.1 = %v, want 1", got)
	}
	if got := waveSample(program.WaveSquare, 0.6); got != -1 {
		t.Errorf("square at phase 0.6 = %v, want -1", got)
	}
	if got := waveSample(program.WaveSawtooth, 0); got != -1 {
		t.Errorf("sawtooth at phase 0 = %v, want -1", got)
	}
	if got := waveSample(program.WaveTriangle, 0.5); got != 1 {
		t.Errorf("triangle at phase 0.5 = %v, want 1", got)
	}
}

// Mirrors scenario 5 (panning law) but checks the bit-exact invariant
// from §8: left+right must reproduce the quantized mono sample exactly,
// not just agree with it to within a rounding LSB.
func TestPanSplitIsBitExact(t *testing.T) {
	samples := []float64{0, 0.25, -0.25, 0.5, -0.5, 0.75, -0.75, 0.9999, -0.9999, 1, -1}
	pans := []float64{-1, -0.5, -0.3, 0, 0.3, 0.5, 0.7, 1}
	for _, s := range samples {
		want := toInt16(s)
		for _, pan := range pans {
			left, right := panSplit(s, pan)
			if left+right != want {
				t.Errorf("panSplit(%v, %v): left+right = %d, want %d (toInt16(s))", s, pan, left+right, want)
			}
		}
	}
}
