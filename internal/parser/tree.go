// Package parser implements the hand-written recursive-descent parser
// for the score language (§4.4): a scanner-driven reader that
// produces a parse tree of timed voice/operator nodes with modulator
// sublists, label references, and duration-scope grouping.
package parser

import (
	"github.com/saugns/sgscore-go/internal/program"
	"github.com/saugns/sgscore-go/internal/symtab"
)

// OpNode is a parse-tree operator: a single oscillator with its wave,
// timing, frequency/amplitude parameters, optional ramps, and
// modulator sublists. Only fields whose *Set flag is true were
// explicitly written in the script; unset fields are inherited from
// PrevRef (for a ':' reference) or from the enclosing scope's
// defaults (for a fresh 'W').
type OpNode struct {
	Label      *symtab.Symbol
	PrevRef    *OpNode     // the node a ':'-reference inherits from (on_prev)
	IsRoot     bool        // true for a voice's top-level carrier, false for any modulator
	OwnerEvent *VoiceEvent // the voice event this root carrier belongs to (nil for modulators)

	Wave    program.Wave
	WaveSet bool

	TimeMs  int32 // may be program.TimeInf
	TimeSet bool

	SilenceMs int32

	Freq     float64
	FreqSet  bool
	IsRatio  bool // frequency is a ratio of the parent carrier's instantaneous freq
	DynFreq  float64
	DynFreqSet bool

	Phase    float64
	PhaseSet bool

	Amp       float64
	AmpSet    bool
	DynAmp    float64
	DynAmpSet bool

	FreqRamp    *program.Ramp
	AmpRamp     *program.Ramp

	FMods []*OpNode
	PMods []*OpNode
	AMods []*OpNode

	// id is assigned by the lowerer once stable operator IDs exist;
	// the parse tree itself carries no IDs.
}

// VoiceEvent is one timed top-level statement: an optional label, an
// ordered list of top-level (root) carriers, pan/pan-ramp, and a
// possible reference to an earlier voice event for parameter
// inheritance.
type VoiceEvent struct {
	Label    *symtab.Symbol
	PrevRef  *VoiceEvent // voice_prev
	WaitMs   int32       // delay relative to the previous voice event
	Pan      float64
	PanSet   bool
	PanRamp  *program.Ramp
	Carriers []*OpNode

	// scopeEnd marks that a '|' duration-scope boundary follows this
	// event; the timing pass (timing.go) uses it to group events.
	scopeEnd bool

	// composite is not populated by this parser and no pass reads it:
	// '/'/'\' delays are applied straight to WaitMs at parse time
	// (see timing.go and §4.4 "Composite events").
	composite []*VoiceEvent
}

// Tree is the complete parse-tree output of one script: the ordered
// sequence of voice events before lowering. The diagnostics collected
// while parsing are returned separately by Parse.
type Tree struct {
	Events []*VoiceEvent

	// AmpOverridden is true if the script used 'S a <value>' to set an
	// explicit default amplitude-scaling multiplier, in which case the
	// synthesis engine does not divide carrier amplitude by voice count
	// (§4.5 AMP_DIV_VOICES).
	AmpOverridden bool
}
