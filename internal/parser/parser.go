package parser

import (
	"github.com/saugns/sgscore-go/internal/program"
	"github.com/saugns/sgscore-go/internal/scanner"
	"github.com/saugns/sgscore-go/internal/source"
	"github.com/saugns/sgscore-go/internal/symtab"
)

// Diagnostic is re-exported from scanner for callers that only need
// the parser package.
type Diagnostic = scanner.Diagnostic

// defaults holds the "settings" mode values assigned by 'S' and
// inherited by freshly created nodes. Initial values per §4.4.
type defaults struct {
	pan     float64
	ampMul  float64
	timeMs  int32
	freq    float64
	ratio   float64
}

func initialDefaults() defaults {
	return defaults{pan: 0, ampMul: 1, timeMs: 1000, freq: 100, ratio: 1}
}

// Parser holds the mutable state of one parse: scanner, symbol table,
// current defaults, label bookkeeping, and duration-scope/nesting
// depth counters (the original's setdef/setnode monotone counters,
// §4.4 "Scope state").
type Parser struct {
	sc   *scanner.Scanner
	syms *symtab.Table

	def          defaults
	inSettings   bool // 'S' mode: params below set defaults, not node fields
	pendingLabel *symtab.Symbol

	events []*VoiceEvent
	lastOp *OpNode // most recently completed operator, for ':'-less chaining context

	nestDepth    int
	pendingDelay int32 // accumulated '/'-delay to apply to the next new event

	ampOverridden bool // set once 'S a <value>' is used (§4.5 AMP_DIV_VOICES)
}

// Parse reads a complete script from src and returns its parse tree
// plus any diagnostics (warnings and errors) collected while parsing.
// Parsing never aborts on a recoverable error: the offending construct
// is discarded and parsing continues, per §7.
func Parse(src *source.Source) (*Tree, []Diagnostic, error) {
	p := &Parser{
		sc:   scanner.New(src),
		syms: symtab.New(),
		def:  initialDefaults(),
	}
	p.parseTopLevel()
	applyTiming(p.events)
	diags := make([]Diagnostic, len(p.sc.Diagnostics))
	copy(diags, p.sc.Diagnostics)
	return &Tree{Events: p.events, AmpOverridden: p.ampOverridden}, diags, nil
}

// parseTopLevel implements parse_level for the outermost scope: a
// sequence of statements terminated only by EOF or an explicit 'Q'.
func (p *Parser) parseTopLevel() {
	for {
		c := p.sc.GetCSkipSpace()
		switch c {
		case scanner.EOF:
			return
		case scanner.Lnbrk:
			p.inSettings = false
			continue
		case 'Q':
			return
		case '#':
			continue
		case 'S':
			p.inSettings = true
			p.parseOperatorParams(&OpNode{}, &VoiceEvent{})
			continue
		case 'W':
			p.newOperatorStatement(false)
		case 'E':
			p.newOperatorStatement(true)
		case '\'':
			p.scanLabelName()
		case ':':
			p.referenceStatement()
		case '|':
			p.closeDurationScope()
		case '/':
			p.delayBeforeNext()
		case '\\':
			p.delayCurrent()
		case '<':
			p.nestDepth++
		case '>':
			if p.nestDepth > 0 {
				p.nestDepth--
			} else {
				p.sc.Warningf("unmatched '>'")
			}
		default:
			p.sc.Warningf("invalid character %q at top level", c)
		}
	}
}

// scanLabelName reads an identifier after ' and stores it pending for
// the next created node or event.
func (p *Parser) scanLabelName() {
	name, ok := p.scanIdent()
	if !ok {
		p.sc.Warningf("expected label name after '\\''")
		return
	}
	p.pendingLabel = p.syms.Intern(name)
}

// scanIdent reads a bare identifier, truncating (with warning) past
// 79 bytes per §6.
func (p *Parser) scanIdent() (string, bool) {
	c := p.sc.GetC()
	if !isIdentStart(c) {
		p.sc.Unget(1)
		return "", false
	}
	const maxLen = 79
	buf := make([]byte, 0, maxLen)
	buf = append(buf, c)
	truncated := false
	for {
		c = p.sc.GetC()
		if !scanner.IsIdentChar(c) {
			p.sc.Unget(1)
			break
		}
		if len(buf) >= maxLen {
			truncated = true
			continue
		}
		buf = append(buf, c)
	}
	if truncated {
		p.sc.Warningf("identifier %q truncated to %d bytes", string(buf), maxLen)
	}
	return string(buf), true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// newOperatorStatement handles a top-level 'W'/'E', creating a new
// voice event whose sole root carrier is the new operator (chained
// carriers via '<'...'>' append further carriers into the same
// event).
func (p *Parser) newOperatorStatement(isEnvelope bool) {
	op := p.newOpNode(nil, true)
	if !p.scanWaveInto(op) {
		// Unknown wave name: warn (done by scanWaveInto) and default to sine
		// so parsing can continue.
		op.Wave, op.WaveSet = program.WaveSine, true
	}
	_ = isEnvelope // envelope nodes are ordinary operators with no special
	// synthesis-time behavior beyond what their parameters already encode;
	// kept as a documented no-op distinction at the parse level only.

	ve := p.currentOrNewVoiceEvent()
	op.OwnerEvent = ve
	ve.Carriers = append(ve.Carriers, op)
	if p.pendingLabel != nil {
		symtab.Attach(p.pendingLabel, op)
		if len(ve.Carriers) == 1 {
			ve.Label = p.pendingLabel
		}
		p.pendingLabel = nil
	}
	p.lastOp = op
	p.parseOperatorParams(op, ve)
}

// currentOrNewVoiceEvent returns the voice event under construction:
// inside a '<'...'>' chain, statements append carriers to the event
// already open; otherwise a fresh event is started.
func (p *Parser) currentOrNewVoiceEvent() *VoiceEvent {
	if p.nestDepth > 0 && len(p.events) > 0 {
		last := p.events[len(p.events)-1]
		if !last.scopeEnd {
			return last
		}
	}
	ve := &VoiceEvent{Pan: p.def.pan, WaitMs: p.pendingDelay}
	p.pendingDelay = 0
	p.events = append(p.events, ve)
	return ve
}

// newOpNode allocates a fresh operator node carrying the current
// defaults, or inherits from prevRef when set (a ':'-reference).
func (p *Parser) newOpNode(prevRef *OpNode, isRoot bool) *OpNode {
	op := &OpNode{IsRoot: isRoot, PrevRef: prevRef}
	if prevRef != nil {
		*op = *prevRef
		op.PrevRef = prevRef
		op.IsRoot = isRoot
		op.FMods = append([]*OpNode(nil), prevRef.FMods...)
		op.PMods = append([]*OpNode(nil), prevRef.PMods...)
		op.AMods = append([]*OpNode(nil), prevRef.AMods...)
		// Base values carry over from prevRef, but the *Set flags do not:
		// only parameters this reference statement itself writes should
		// count as explicitly set here (§4.5 "Label round-trip").
		op.WaveSet = false
		op.TimeSet = false
		op.FreqSet = false
		op.DynFreqSet = false
		op.PhaseSet = false
		op.AmpSet = false
		op.DynAmpSet = false
		return op
	}
	// A fresh (non-reference) node's baseline values come from the
	// enclosing scope's defaults rather than from an explicit
	// parameter, but they are still this node's actual definition and
	// must reach its first OperatorUpdate — unlike a ':'-reference,
	// where only what the reference statement itself writes counts as
	// Set (§4.5 "Label round-trip"). Freq and amp have no other source
	// of truth, so they are always marked Set here. Time is the one
	// exception: an unset modulator's time is meant to be inherited
	// from its carrier's envelope length by the post-parse timing pass
	// (inheritModulatorTimes), so only a root carrier's default time
	// is forced Set; a modulator's stays unset until that pass (or an
	// explicit 't') fills it in.
	op.TimeMs = p.def.timeMs
	op.TimeSet = isRoot
	op.Freq, op.FreqSet = p.def.freq, true
	op.Amp, op.AmpSet = p.def.ampMul, true
	op.AMods, op.FMods, op.PMods = nil, nil, nil
	return op
}

var waveNames = map[string]program.Wave{
	"sin": program.WaveSine,
	"sqr": program.WaveSquare,
	"tri": program.WaveTriangle,
	"saw": program.WaveSawtooth,
}

func (p *Parser) scanWaveInto(op *OpNode) bool {
	p.sc.SkipSpace()
	name, ok := p.scanIdent()
	if !ok {
		p.sc.Warningf("expected a wave type name")
		return false
	}
	w, ok := waveNames[name]
	if !ok {
		p.sc.Warningf("unknown wave type %q", name)
		return false
	}
	op.Wave, op.WaveSet = w, true
	return true
}

// referenceStatement handles ':<name>': creates a new event/node that
// inherits the referenced node's parameters, per §4.4 "Label
// resolution".
func (p *Parser) referenceStatement() {
	name, ok := p.scanIdent()
	if !ok {
		p.sc.Warningf("expected label name after ':'")
		return
	}
	sym, found := p.syms.Lookup(name)
	if !found || symtab.PayloadOf(sym) == nil {
		p.sc.Warningf("ignoring reference to undefined label %q", name)
		return
	}
	switch ref := symtab.PayloadOf(sym).(type) {
	case *OpNode:
		op := p.newOpNode(ref, ref.IsRoot)
		var ve *VoiceEvent
		if ref.IsRoot && ref.OwnerEvent != nil && p.nestDepth == 0 {
			ve = &VoiceEvent{Pan: ref.OwnerEvent.Pan, WaitMs: p.pendingDelay, PrevRef: ref.OwnerEvent}
			p.pendingDelay = 0
			p.events = append(p.events, ve)
		} else {
			ve = p.currentOrNewVoiceEvent()
		}
		op.OwnerEvent = ve
		ve.Carriers = append(ve.Carriers, op)
		if p.pendingLabel != nil {
			symtab.Attach(p.pendingLabel, op)
			p.pendingLabel = nil
		}
		p.lastOp = op
		p.parseOperatorParams(op, ve)
	default:
		p.sc.Warningf("label %q does not refer to an operator", name)
	}
}

// closeDurationScope marks the most recent event as ending a
// duration-scope group; the timing pass groups events up to and
// including this marker.
func (p *Parser) closeDurationScope() {
	if len(p.events) == 0 {
		p.sc.Warningf("'|' with no preceding sound in scope")
		return
	}
	p.events[len(p.events)-1].scopeEnd = true
}

// delayBeforeNext reads '/t' (delay by one node's time — approximated
// here as the most recent operator's time) or '/ <ms>' and applies it
// as WaitMs on the next-created event. Implemented by stashing the
// delay and adding it to the next event created.
func (p *Parser) delayBeforeNext() {
	if p.sc.TryC('t') {
		ms := int32(1000)
		if p.lastOp != nil {
			ms = p.lastOp.TimeMs
		}
		p.pendingDelay += ms
		return
	}
	ms, ok := scanTimeval(p.sc)
	if !ok {
		p.sc.Warningf("expected a time value after '/'")
		return
	}
	p.pendingDelay += ms
}

// delayCurrent adds <ms> of delay to the current (most recent) event
// only, per §4.4 '\'.
func (p *Parser) delayCurrent() {
	ms, ok := scanTimeval(p.sc)
	if !ok {
		p.sc.Warningf("expected a time value after '\\\\'")
		return
	}
	if len(p.events) == 0 {
		p.sc.Warningf("'\\' with no preceding event")
		return
	}
	p.events[len(p.events)-1].WaitMs += ms
}
