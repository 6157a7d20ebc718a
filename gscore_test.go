package sgscore

import (
	"context"
	"testing"

	"github.com/saugns/sgscore-go/internal/program"
)

// captureSink buffers every block written to it as one flat slice of
// interleaved stereo frames, for inspecting the engine's output
// directly in tests.
type captureSink struct {
	channels, rate int
	frames         []int16
}

func (c *captureSink) Open(channels, sampleRate int) (int, error) {
	c.channels = channels
	c.rate = sampleRate
	return sampleRate, nil
}

func (c *captureSink) Write(frames []int16) error {
	c.frames = append(c.frames, frames...)
	return nil
}

func (c *captureSink) Close() error { return nil }

func render(t *testing.T, script string, sampleRate int) *captureSink {
	t.Helper()
	prog, _, err := Compile("t", script)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	sink := &captureSink{}
	r := NewRenderer(WithSampleRate(sampleRate))
	if err := r.RenderToSink(context.Background(), prog, sink); err != nil {
		t.Fatalf("RenderToSink: %v", err)
	}
	return sink
}

// Scenario 1: single sine beep, 440 Hz, 1 s, amp 0.5.
func TestSingleSineBeep(t *testing.T) {
	sink := render(t, "W sin f 440 t 1000 a 0.5", 44100)
	frameCount := len(sink.frames) / 2
	if frameCount != 44100 {
		t.Fatalf("frame count = %d, want 44100", frameCount)
	}
	var peak int16
	for i := 0; i < len(sink.frames); i += 2 {
		left, right := sink.frames[i], sink.frames[i+1]
		if left != right {
			t.Fatalf("pan 0 should equal left/right at frame %d: %d != %d", i/2, left, right)
		}
		if left > peak {
			peak = left
		}
		if -left > peak {
			peak = -left
		}
	}
	if peak > 16384 {
		t.Fatalf("peak = %d, want <= 16384", peak)
	}
}

// Scenario 2: two-operator FM produces a 1-voice, 2-operator program
// with the carrier's own duration honored.
func TestTwoOperatorFM(t *testing.T) {
	prog, _, err := Compile("t", "W sin f 200 t 500 f!{ W sin f 50 r 2 a 0.8 }")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if prog.VoiceCount != 1 {
		t.Fatalf("VoiceCount = %d, want 1", prog.VoiceCount)
	}
	if prog.OperatorCount != 2 {
		t.Fatalf("OperatorCount = %d, want 2", prog.OperatorCount)
	}
}

// Scenario 3: a '|' duration-scope boundary makes the following
// event's wait equal to the group's total duration, and the voice
// slot is reused.
func TestDurationGrouping(t *testing.T) {
	prog, _, err := Compile("t", "W sin f 300 t 200 | W sin f 400 t 300")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if prog.VoiceCount != 1 {
		t.Fatalf("VoiceCount = %d, want 1 (voice id reused)", prog.VoiceCount)
	}
	var waits []int32
	for _, ev := range prog.Events {
		if ev.VoiceUpdate != nil {
			waits = append(waits, ev.WaitMs)
		}
	}
	if len(waits) != 2 {
		t.Fatalf("got %d voice events, want 2", len(waits))
	}
	if waits[0] != 0 {
		t.Fatalf("first voice event wait = %d, want 0", waits[0])
	}
	if waits[1] != 200 {
		t.Fatalf("second voice event wait = %d, want 200 (the group's duration)", waits[1])
	}
}

// Scenario 4: a label reference overriding only amp produces an
// OperatorUpdate whose Params mask names amp alone.
func TestLabelReferenceOverride(t *testing.T) {
	prog, _, err := Compile("t", "'a W sin f 440 t 1000 / 500 :a a 0.25")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var found *program.OperatorUpdate
	var waitMs int32
	for _, ev := range prog.Events {
		if ev.OperatorUpdate != nil && ev.OperatorUpdate.OperatorID == 0 && ev.WaitMs == 500 {
			found = ev.OperatorUpdate
			waitMs = ev.WaitMs
		}
	}
	if found == nil {
		t.Fatal("expected an operator_update for operator 0 at wait_ms=500")
	}
	if waitMs != 500 {
		t.Fatalf("wait_ms = %d, want 500", waitMs)
	}
	if found.Params != program.ParamAmp {
		t.Fatalf("Params = %v, want ParamAmp only", found.Params)
	}
	if found.Amp != 0.25 {
		t.Fatalf("Amp = %v, want 0.25", found.Amp)
	}
}

// Scenario 5: panning law. Hard right pan leaves the left channel
// silent and puts full amplitude on the right for every sample.
func TestPanLaw(t *testing.T) {
	sink := render(t, "W sin f 440 c R t 100", 1000)
	frameCount := len(sink.frames) / 2
	if frameCount != 100 {
		t.Fatalf("frame count = %d, want 100", frameCount)
	}
	for i := 0; i < len(sink.frames); i += 2 {
		left := sink.frames[i]
		if left != 0 {
			t.Fatalf("left channel at frame %d = %d, want 0", i/2, left)
		}
	}
}

// Scenario 6: an infinite-time carrier with a finite phase modulator
// keeps rendering after the modulator's own time has elapsed.
func TestInfiniteCarrierWithFiniteModulator(t *testing.T) {
	prog, _, err := Compile("t", "W sin f 300 t inf p!{ W sin f 5 t 1000 }")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if prog.OperatorCount != 2 {
		t.Fatalf("OperatorCount = %d, want 2", prog.OperatorCount)
	}
	for _, ev := range prog.Events {
		if ev.OperatorUpdate != nil && ev.OperatorUpdate.OperatorID == 0 {
			if ev.OperatorUpdate.Params&program.ParamTime != 0 && ev.OperatorUpdate.TimeMs != program.TimeInf {
				t.Fatalf("carrier time_ms = %d, want TimeInf", ev.OperatorUpdate.TimeMs)
			}
		}
	}
}

// Boundary: a finite-duration voice renders exactly its declared
// length and then stops.
func TestFiniteDurationVoiceRendersExactLength(t *testing.T) {
	sink := render(t, "W sin f 440 t 100", 1000)
	if frameCount := len(sink.frames) / 2; frameCount != 100 {
		t.Fatalf("frame count = %d, want 100", frameCount)
	}
}
