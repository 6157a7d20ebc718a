// Package lower implements the lowering pass (§4.5): it walks a
// parser.Tree's timed voice events and turns them into a flat
// program.Program, allocating stable, reusable voice and operator IDs
// and building each event's graph/adjacency tables.
package lower

import (
	"github.com/saugns/sgscore-go/internal/parser"
	"github.com/saugns/sgscore-go/internal/program"
)

type slot struct {
	durationMs   int32
	hasLaterUse  bool
}

// Lower converts a parsed tree into a flat Program.
func Lower(tree *parser.Tree, name string) *program.Program {
	l := &lowerer{
		assignedOp:    make(map[*parser.OpNode]int32),
		assignedVoice: make(map[*parser.VoiceEvent]int32),
		visitedOp:     make(map[*parser.OpNode]bool),
	}
	l.markLaterUse(tree.Events)

	for _, ve := range tree.Events {
		l.lowerVoiceEvent(ve)
	}

	return &program.Program{
		Events:        l.out,
		VoiceCount:    int32(len(l.voiceSlots)),
		OperatorCount: int32(len(l.opSlots)),
		Name:          name,
		AmpDivVoices:  !tree.AmpOverridden,
	}
}

type lowerer struct {
	voiceSlots []slot
	opSlots    []slot

	assignedOp    map[*parser.OpNode]int32
	assignedVoice map[*parser.VoiceEvent]int32

	laterOp    map[*parser.OpNode]bool
	laterVoice map[*parser.VoiceEvent]bool

	// visitedOp marks an operator node as already having emitted its
	// OperatorUpdate; a modulator list copied unchanged onto a new
	// ':'-reference carrier shares the very same *parser.OpNode
	// pointers as the node it was copied from, and those modulators
	// must not be re-emitted since nothing about them changed.
	visitedOp map[*parser.OpNode]bool

	out []program.Event
}

// markLaterUse walks every reference edge in the tree (an OpNode's
// PrevRef, a VoiceEvent's PrevRef) and flags the referenced node as
// having a later use, so the free-slot search below never reclaims a
// slot that a subsequent event still needs (§4.5, §3 "Lifecycles").
func (l *lowerer) markLaterUse(events []*parser.VoiceEvent) {
	laterOp := make(map[*parser.OpNode]bool)
	laterVoice := make(map[*parser.VoiceEvent]bool)
	var walkOp func(op *parser.OpNode)
	walkOp = func(op *parser.OpNode) {
		if op.PrevRef != nil {
			laterOp[op.PrevRef] = true
		}
		for _, mod := range op.FMods {
			walkOp(mod)
		}
		for _, mod := range op.PMods {
			walkOp(mod)
		}
		for _, mod := range op.AMods {
			walkOp(mod)
		}
	}
	for _, ve := range events {
		if ve.PrevRef != nil {
			laterVoice[ve.PrevRef] = true
		}
		for _, op := range ve.Carriers {
			walkOp(op)
		}
	}
	l.laterOp = laterOp
	l.laterVoice = laterVoice
}
