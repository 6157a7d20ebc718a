package parser

import (
	"testing"

	"github.com/saugns/sgscore-go/internal/program"
	"github.com/saugns/sgscore-go/internal/source"
)

func parse(t *testing.T, text string) *Tree {
	t.Helper()
	tree, _, err := Parse(source.NewFromString("t", text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree
}

func TestSingleOperatorDefaults(t *testing.T) {
	tree := parse(t, "W sin")
	if len(tree.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(tree.Events))
	}
	ve := tree.Events[0]
	if len(ve.Carriers) != 1 {
		t.Fatalf("got %d carriers, want 1", len(ve.Carriers))
	}
	op := ve.Carriers[0]
	if op.Wave != program.WaveSine {
		t.Errorf("Wave = %v, want sine", op.Wave)
	}
	if op.Freq != 100 {
		t.Errorf("Freq = %v, want default 100", op.Freq)
	}
	if op.Amp != 1 {
		t.Errorf("Amp = %v, want default 1", op.Amp)
	}
	if op.TimeMs != 1000 {
		t.Errorf("TimeMs = %v, want default 1000", op.TimeMs)
	}
}

func TestWaveNames(t *testing.T) {
	cases := map[string]program.Wave{
		"sin": program.WaveSine,
		"sqr": program.WaveSquare,
		"tri": program.WaveTriangle,
		"saw": program.WaveSawtooth,
	}
	for name, want := range cases {
		tree := parse(t, "W "+name)
		got := tree.Events[0].Carriers[0].Wave
		if got != want {
			t.Errorf("wave %q: got %v, want %v", name, got, want)
		}
	}
}

func TestUnknownWaveNameWarnsAndDefaultsToSine(t *testing.T) {
	tree, diags, err := Parse(source.NewFromString("t", "W bogus"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(diags) == 0 {
		t.Fatal("expected a diagnostic for an unknown wave name")
	}
	if tree.Events[0].Carriers[0].Wave != program.WaveSine {
		t.Errorf("Wave = %v, want sine fallback", tree.Events[0].Carriers[0].Wave)
	}
}

func TestFrequencyAndAmplitudeParams(t *testing.T) {
	tree := parse(t, "W sin f 440 a 0.5 t 250")
	op := tree.Events[0].Carriers[0]
	if op.Freq != 440 {
		t.Errorf("Freq = %v, want 440", op.Freq)
	}
	if op.Amp != 0.5 {
		t.Errorf("Amp = %v, want 0.5", op.Amp)
	}
	if op.TimeMs != 250 {
		t.Errorf("TimeMs = %v, want 250", op.TimeMs)
	}
}

func TestTimeInfKeyword(t *testing.T) {
	tree := parse(t, "W sin t inf")
	if tree.Events[0].Carriers[0].TimeMs != program.TimeInf {
		t.Errorf("TimeMs = %v, want TimeInf", tree.Events[0].Carriers[0].TimeMs)
	}
}

func TestPhaseWrapsIntoUnitRange(t *testing.T) {
	tree := parse(t, "W sin p 1.25")
	got := tree.Events[0].Carriers[0].Phase
	if diff := got - 0.25; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Phase = %v, want 0.25 (wrapped)", got)
	}
}

func TestPanLiterals(t *testing.T) {
	cases := map[string]float64{"C": 0, "L": -1, "R": 1}
	for name, want := range cases {
		tree := parse(t, "W sin c "+name)
		got := tree.Events[0].Pan
		if got != want {
			t.Errorf("pan %q: got %v, want %v", name, got, want)
		}
	}
}

func TestFreqModulatorSublist(t *testing.T) {
	tree := parse(t, "W sin f 200 f!{ W sin f 50 r 2 a 0.8 }")
	op := tree.Events[0].Carriers[0]
	if len(op.FMods) != 1 {
		t.Fatalf("got %d fmods, want 1", len(op.FMods))
	}
	mod := op.FMods[0]
	if mod.Freq != 50 || !mod.IsRatio {
		t.Errorf("fmod freq/ratio = %v/%v, want 50/true", mod.Freq, mod.IsRatio)
	}
	if mod.Amp != 0.8 {
		t.Errorf("fmod amp = %v, want 0.8", mod.Amp)
	}
}

func TestRatioOnRootCarrierWarns(t *testing.T) {
	_, diags, err := Parse(source.NewFromString("t", "W sin r 2"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(diags) == 0 {
		t.Fatal("expected a diagnostic for ratio on a root carrier")
	}
}

func TestLabelReferenceInheritsAndOverrides(t *testing.T) {
	tree := parse(t, "'a W sin f 440 t 1000 :a a 0.25")
	if len(tree.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(tree.Events))
	}
	ref := tree.Events[1].Carriers[0]
	if ref.Freq != 440 {
		t.Errorf("inherited Freq = %v, want 440", ref.Freq)
	}
	if !ref.AmpSet || ref.Amp != 0.25 {
		t.Errorf("Amp = %v (set=%v), want 0.25 set", ref.Amp, ref.AmpSet)
	}
	if ref.FreqSet {
		t.Error("FreqSet should be false: this reference did not write freq itself")
	}
}

func TestUndefinedLabelReferenceWarnsAndIsIgnored(t *testing.T) {
	_, diags, err := Parse(source.NewFromString("t", ":nope"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(diags) == 0 {
		t.Fatal("expected a diagnostic for an undefined label reference")
	}
}

func TestDurationScopeMarksScopeEnd(t *testing.T) {
	tree := parse(t, "W sin t 200 | W sin t 300")
	if !tree.Events[0].scopeEnd {
		t.Error("first event should be marked scopeEnd")
	}
	if tree.Events[1].scopeEnd {
		t.Error("second event should not be marked scopeEnd")
	}
	// applyTiming (run inside Parse) should have pushed the scope's
	// total duration onto the following event's wait.
	if tree.Events[1].WaitMs != 200 {
		t.Errorf("WaitMs = %v, want 200 (scope total)", tree.Events[1].WaitMs)
	}
}

func TestDelayBeforeNext(t *testing.T) {
	tree := parse(t, "W sin t 1000 / 500 W sin")
	if len(tree.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(tree.Events))
	}
	if tree.Events[1].WaitMs != 500 {
		t.Errorf("WaitMs = %v, want 500", tree.Events[1].WaitMs)
	}
}

func TestSettingsModeChangesDefaultsNotCurrentNode(t *testing.T) {
	tree := parse(t, "S a 0.2\nW sin")
	op := tree.Events[0].Carriers[0]
	if op.Amp != 0.2 {
		t.Errorf("Amp = %v, want the new default 0.2", op.Amp)
	}
}

func TestAmpOverriddenFlag(t *testing.T) {
	tree := parse(t, "S a 0.3\nW sin")
	if !tree.AmpOverridden {
		t.Error("AmpOverridden should be true after 'S a <value>'")
	}
	tree2 := parse(t, "W sin")
	if tree2.AmpOverridden {
		t.Error("AmpOverridden should be false when no 'S a' was used")
	}
}

func TestModulatorWithoutExplicitTimeInheritsCarrierTime(t *testing.T) {
	tree := parse(t, "W sin t 600 f!{ W sin f 10 }")
	mod := tree.Events[0].Carriers[0].FMods[0]
	if mod.TimeMs != 600 {
		t.Errorf("modulator TimeMs = %v, want inherited 600", mod.TimeMs)
	}
}

func TestIdentifierTruncatedAt79Bytes(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	_, diags, err := Parse(source.NewFromString("t", "'"+string(long)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	found := false
	for _, d := range diags {
		if !d.IsError {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a truncation warning for a 100-byte identifier")
	}
}

func TestInfinityInExpressionRejected(t *testing.T) {
	_, diags, err := Parse(source.NewFromString("t", "W sin f 2^2000"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	hasError := false
	for _, d := range diags {
		if d.IsError {
			hasError = true
		}
	}
	if !hasError {
		t.Fatal("expected an error diagnostic for an infinite subexpression")
	}
}
