package parser

import (
	"github.com/saugns/sgscore-go/internal/program"
	"github.com/saugns/sgscore-go/internal/scanner"
	"github.com/saugns/sgscore-go/internal/symtab"
)

var panNames = map[string]float64{"C": 0, "L": -1, "R": 1}

func panLookup(name string) (float64, bool) {
	v, ok := panNames[name]
	return v, ok
}

func rampShapeLookup(name string) (program.RampShape, bool) {
	switch name {
	case "lin":
		return program.RampLinear, true
	case "exp":
		return program.RampExponential, true
	case "log":
		return program.RampLogarithmic, true
	case "sin":
		return program.RampSinusoidal, true
	default:
		return 0, false
	}
}

// parseOperatorParams reads parameter introducers (a/c/f/p/r/t/w) for
// op until a character that does not belong to this node is seen, at
// which point it is pushed back so parseTopLevel (or the enclosing
// sublist parser) can interpret it as the next statement. If
// p.inSettings is true, parameters update p.def instead of op's own
// fields (§4.4 'S' settings mode).
func (p *Parser) parseOperatorParams(op *OpNode, ve *VoiceEvent) {
	for {
		c := p.sc.GetCSkipSpace()
		switch c {
		case 'a':
			p.parseAmp(op)
		case 'c':
			p.parseChannel(op, ve)
		case 'f':
			p.parseFreq(op, false)
		case 'r':
			p.parseFreq(op, true)
		case 'p':
			p.parsePhase(op)
		case 't':
			p.parseTime(op)
		case 'w':
			p.parseWave(op)
		case scanner.Lnbrk:
			p.inSettings = false
			return
		default:
			p.sc.Unget(1)
			return
		}
	}
}

// dynamicForm reads the optional '!' marker following a
// parameter letter and returns which of the three forms follows:
// plain value, dynamic-target value, or a '{'-introduced modulator
// sublist.
func (p *Parser) dynamicForm() (dynamic bool, sublist bool) {
	if !p.sc.TryC('!') {
		return false, false
	}
	p.sc.SkipSpace()
	if p.sc.TryC('{') {
		return true, true
	}
	return true, false
}

func (p *Parser) parseAmp(op *OpNode) {
	dynamic, sublist := p.dynamicForm()
	if sublist {
		op.AMods = p.parseModSublist()
		return
	}
	v, ok := scanNum(p.sc, nil)
	if !ok {
		p.sc.Warningf("expected a number after 'a'")
		return
	}
	if p.inSettings {
		p.def.ampMul = v
		p.ampOverridden = true
		return
	}
	if dynamic {
		op.DynAmp, op.DynAmpSet = v, true
	} else {
		op.Amp, op.AmpSet = v, true
	}
}

func (p *Parser) parseChannel(op *OpNode, ve *VoiceEvent) {
	dynamic, sublist := p.dynamicForm()
	if sublist {
		// Pan ramps are voice-level; a modulator sublist on pan has no
		// defined target in this model, so it is rejected.
		p.sc.Warningf("pan does not support a modulator sublist")
		p.parseModSublist()
		return
	}
	v, ok := scanNum(p.sc, panLookup)
	if !ok {
		p.sc.Warningf("expected a number or C/L/R after 'c'")
		return
	}
	if p.inSettings {
		p.def.pan = v
		return
	}
	if !op.IsRoot {
		p.sc.Warningf("pan parameter on a non-root operator is ignored")
		return
	}
	if dynamic {
		if rampShape, ok := p.tryParseRampTail(); ok {
			ve.PanRamp = &program.Ramp{To: v, TimeMs: rampShape.timeMs, Shape: rampShape.shape}
		}
		return
	}
	ve.Pan, ve.PanSet = v, true
}

func (p *Parser) parseFreq(op *OpNode, ratio bool) {
	if ratio && op.IsRoot {
		p.sc.Warningf("ratio parameter on a root carrier is invalid")
	}
	dynamic, sublist := p.dynamicForm()
	if sublist {
		op.FMods = p.parseModSublist()
		return
	}
	v, ok := scanNum(p.sc, nil)
	if !ok {
		p.sc.Warningf("expected a number after 'f'/'r'")
		return
	}
	if p.inSettings {
		if ratio {
			p.def.ratio = v
		} else {
			p.def.freq = v
		}
		return
	}
	if ratio && op.IsRoot {
		return
	}
	if dynamic {
		if shape, ok := p.tryParseRampTail(); ok {
			op.FreqRamp = &program.Ramp{To: v, TimeMs: shape.timeMs, Shape: shape.shape}
		} else {
			op.DynFreq, op.DynFreqSet = v, true
		}
		return
	}
	op.Freq, op.FreqSet = v, true
	op.IsRatio = ratio && !op.IsRoot
}

func (p *Parser) parsePhase(op *OpNode) {
	dynamic, sublist := p.dynamicForm()
	if sublist {
		op.PMods = p.parseModSublist()
		return
	}
	v, ok := scanNum(p.sc, nil)
	if !ok {
		p.sc.Warningf("expected a number after 'p'")
		return
	}
	// wrap into [0,1)
	v -= float64(int64(v))
	if v < 0 {
		v += 1
	}
	_ = dynamic
	if p.inSettings {
		return
	}
	op.Phase, op.PhaseSet = v, true
}

func (p *Parser) parseTime(op *OpNode) {
	dynamic, sublist := p.dynamicForm()
	if sublist {
		p.sc.Warningf("time does not support a modulator sublist")
		p.parseModSublist()
		return
	}
	_ = dynamic
	p.sc.SkipSpace()
	name, identOK := p.peekIdent()
	if identOK && name == "inf" {
		p.consumeIdent()
		if p.inSettings {
			p.def.timeMs = program.TimeInf
			return
		}
		op.TimeMs, op.TimeSet = program.TimeInf, true
		return
	}
	ms, ok := scanTimeval(p.sc)
	if !ok {
		p.sc.Warningf("expected a time value or 'inf' after 't'")
		return
	}
	if p.inSettings {
		p.def.timeMs = ms
		return
	}
	op.TimeMs, op.TimeSet = ms, true
}

func (p *Parser) parseWave(op *OpNode) {
	_, sublist := p.dynamicForm()
	if sublist {
		p.sc.Warningf("wave does not support a modulator sublist")
		p.parseModSublist()
		return
	}
	if p.inSettings {
		p.scanWaveInto(&OpNode{})
		return
	}
	p.scanWaveInto(op)
}

// rampTail is the parsed "(<shape> <ms>)" ramp descriptor following a
// dynamic-target number, e.g. "f! 220 (lin 200)".
type rampTail struct {
	shape  program.RampShape
	timeMs int32
}

// tryParseRampTail optionally parses a parenthesized ramp descriptor
// after a dynamic value has been read; if absent, the scanner
// position is left untouched and ok is false.
func (p *Parser) tryParseRampTail() (rampTail, bool) {
	if !p.sc.TryC('(') {
		return rampTail{}, false
	}
	p.sc.SkipSpace()
	name, ok := p.scanIdent()
	shape := program.RampLinear
	if ok {
		if s, found := rampShapeLookup(name); found {
			shape = s
		} else {
			p.sc.Warningf("unknown ramp shape %q; using linear", name)
		}
	}
	ms, ok := scanTimeval(p.sc)
	if !ok {
		p.sc.Warningf("expected a ramp duration")
	}
	p.sc.SkipSpace()
	p.sc.TryC(')')
	return rampTail{shape: shape, timeMs: ms}, true
}

func (p *Parser) peekIdent() (string, bool) {
	mark := p.sc.Source().Pos()
	name, ok := p.scanIdent()
	if ok {
		p.sc.Source().Ungetc(p.sc.Source().Pos() - mark)
	}
	return name, ok
}

func (p *Parser) consumeIdent() {
	p.scanIdent()
}

// parseModSublist reads a '{'-introduced list of operator
// definitions (each started by 'W'/'E', possibly separated by
// whitespace/newlines), returning the ordered modulator nodes. The
// closing '}' is consumed.
func (p *Parser) parseModSublist() []*OpNode {
	var mods []*OpNode
	for {
		c := p.sc.GetCSkipSpace()
		switch c {
		case '}':
			return mods
		case scanner.EOF:
			p.sc.Warningf("unclosed modulator sublist")
			return mods
		case scanner.Lnbrk:
			continue
		case 'W', 'E':
			op := p.newOpNode(nil, false)
			p.scanWaveInto(op)
			if p.pendingLabel != nil {
				// Labels inside sublists attach directly to the operator
				// (no owning voice event to register as its label).
				symtab.Attach(p.pendingLabel, op)
				p.pendingLabel = nil
			}
			p.parseOperatorParamsSublist(op)
			mods = append(mods, op)
		case ':':
			name, ok := p.scanIdent()
			if !ok {
				p.sc.Warningf("expected label name after ':'")
				continue
			}
			sym, found := p.syms.Lookup(name)
			if !found || symtab.PayloadOf(sym) == nil {
				p.sc.Warningf("ignoring reference to undefined label %q", name)
				continue
			}
			if ref, ok := symtab.PayloadOf(sym).(*OpNode); ok {
				op := p.newOpNode(ref, false)
				p.parseOperatorParamsSublist(op)
				mods = append(mods, op)
			}
		default:
			p.sc.Warningf("invalid character %q in modulator sublist", c)
		}
	}
}

// parseOperatorParamsSublist is parseOperatorParams specialized for
// operators defined inside a modulator sublist: the terminator is the
// enclosing '}' (left for parseModSublist to consume) rather than a
// top-level statement boundary.
func (p *Parser) parseOperatorParamsSublist(op *OpNode) {
	for {
		c := p.sc.GetCSkipSpace()
		switch c {
		case 'a':
			p.parseAmp(op)
		case 'c':
			p.sc.Warningf("pan parameter on a non-root operator is ignored")
			dummy := &VoiceEvent{}
			p.parseChannel(op, dummy)
		case 'f':
			p.parseFreq(op, false)
		case 'r':
			p.parseFreq(op, true)
		case 'p':
			p.parsePhase(op)
		case 't':
			p.parseTime(op)
		case 'w':
			p.parseWave(op)
		case scanner.Lnbrk:
			continue
		case '}':
			p.sc.Unget(1)
			return
		default:
			p.sc.Unget(1)
			return
		}
	}
}
