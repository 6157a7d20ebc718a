package lower

import (
	"github.com/saugns/sgscore-go/internal/parser"
	"github.com/saugns/sgscore-go/internal/program"
)

// lowerVoiceEvent converts one parsed voice event into one or more
// program.Event entries: slot durations are decayed by the event's
// wait first, then the voice and its carriers' operators are assigned
// stable IDs (reusing a free slot or the event's PrevRef target where
// applicable), and finally a VoiceUpdate plus zero or more
// OperatorUpdates are appended, splitting across extra zero-wait
// events so each program.Event carries at most one OperatorUpdate
// (§4.5 "At most one operator update per event").
func (l *lowerer) lowerVoiceEvent(ve *parser.VoiceEvent) {
	l.decaySlots(ve.WaitMs)

	voiceID := l.assignVoiceID(ve)

	var updates []*program.OperatorUpdate
	graph := make([]int32, len(ve.Carriers))
	for i, op := range ve.Carriers {
		graph[i] = l.lowerOperator(op, &updates)
	}

	// TIME_INF carriers are excluded from the voice's tracked duration
	// so a voice whose only unfinished carrier runs for TIME_INF can
	// still be reclaimed once nothing references it again.
	var voiceDur int32
	for _, op := range ve.Carriers {
		if op.TimeMs == program.TimeInf {
			continue
		}
		if op.TimeMs > voiceDur {
			voiceDur = op.TimeMs
		}
	}
	l.voiceSlots[voiceID].durationMs = voiceDur

	voiceUpdate := l.buildVoiceUpdate(ve, voiceID, graph)

	if len(updates) == 0 {
		l.out = append(l.out, program.Event{WaitMs: ve.WaitMs, VoiceUpdate: voiceUpdate})
		return
	}

	l.out = append(l.out, program.Event{
		WaitMs:         ve.WaitMs,
		VoiceUpdate:    voiceUpdate,
		OperatorUpdate: updates[0],
	})
	for _, u := range updates[1:] {
		l.out = append(l.out, program.Event{OperatorUpdate: u})
	}
}

// lowerOperator assigns op a stable ID (by way of assignOpID) and, the
// first time this exact node is seen, recurses into its modulator
// lists and appends its own OperatorUpdate to updates. A node that has
// already been lowered once (reached again only by being copied,
// unchanged, into a later carrier's modulator list) contributes its ID
// to the caller's adjacency without being re-emitted.
func (l *lowerer) lowerOperator(op *parser.OpNode, updates *[]*program.OperatorUpdate) int32 {
	id := l.assignOpID(op)
	if l.visitedOp[op] {
		return id
	}
	l.visitedOp[op] = true
	l.opSlots[id].durationMs = op.TimeMs

	fmodIDs := l.lowerModList(op.FMods, updates)
	pmodIDs := l.lowerModList(op.PMods, updates)
	amodIDs := l.lowerModList(op.AMods, updates)

	adj := program.Adjacency{
		IDs:       append(append(append([]int32{}, fmodIDs...), pmodIDs...), amodIDs...),
		FModCount: len(fmodIDs),
		PModCount: len(pmodIDs),
		AModCount: len(amodIDs),
	}

	*updates = append(*updates, l.buildOperatorUpdate(op, id, adj))
	return id
}

func (l *lowerer) lowerModList(mods []*parser.OpNode, updates *[]*program.OperatorUpdate) []int32 {
	if len(mods) == 0 {
		return nil
	}
	ids := make([]int32, len(mods))
	for i, mod := range mods {
		ids[i] = l.lowerOperator(mod, updates)
	}
	return ids
}

// assignOpID returns op's stable operator ID: a PrevRef's ID when op
// is a ':'-reference to an already-lowered node, otherwise a reused
// free slot or a freshly appended one.
func (l *lowerer) assignOpID(op *parser.OpNode) int32 {
	if id, ok := l.assignedOp[op]; ok {
		return id
	}
	var id int32
	if op.PrevRef != nil {
		if prevID, ok := l.assignedOp[op.PrevRef]; ok {
			id = prevID
		} else {
			id = l.allocFreeOrNewOpSlot()
		}
	} else {
		id = l.allocFreeOrNewOpSlot()
	}
	l.assignedOp[op] = id
	l.opSlots[id].hasLaterUse = l.laterOp[op]
	return id
}

// assignVoiceID returns ve's stable voice ID, following the same
// reuse-or-reference policy as assignOpID.
func (l *lowerer) assignVoiceID(ve *parser.VoiceEvent) int32 {
	var id int32
	if ve.PrevRef != nil {
		if prevID, ok := l.assignedVoice[ve.PrevRef]; ok {
			id = prevID
		} else {
			id = l.allocFreeOrNewVoiceSlot()
		}
	} else {
		id = l.allocFreeOrNewVoiceSlot()
	}
	l.assignedVoice[ve] = id
	l.voiceSlots[id].hasLaterUse = l.laterVoice[ve]
	return id
}

func (l *lowerer) allocFreeOrNewOpSlot() int32 {
	for i := range l.opSlots {
		if l.opSlots[i].durationMs == 0 && !l.opSlots[i].hasLaterUse {
			return int32(i)
		}
	}
	l.opSlots = append(l.opSlots, slot{})
	return int32(len(l.opSlots) - 1)
}

func (l *lowerer) allocFreeOrNewVoiceSlot() int32 {
	for i := range l.voiceSlots {
		if l.voiceSlots[i].durationMs == 0 && !l.voiceSlots[i].hasLaterUse {
			return int32(i)
		}
	}
	l.voiceSlots = append(l.voiceSlots, slot{})
	return int32(len(l.voiceSlots) - 1)
}

// decaySlots reduces every active slot's remaining duration by waitMs,
// clamped at zero, ahead of this event's own allocation so a
// just-finished voice or operator becomes eligible for reuse in the
// same step that needs it. TIME_INF slots never decay.
func (l *lowerer) decaySlots(waitMs int32) {
	for i := range l.voiceSlots {
		l.voiceSlots[i].durationMs = decay(l.voiceSlots[i].durationMs, waitMs)
	}
	for i := range l.opSlots {
		l.opSlots[i].durationMs = decay(l.opSlots[i].durationMs, waitMs)
	}
}

func decay(durationMs, waitMs int32) int32 {
	if durationMs == program.TimeInf {
		return durationMs
	}
	durationMs -= waitMs
	if durationMs < 0 {
		return 0
	}
	return durationMs
}

// buildOperatorUpdate packs op's explicitly-set fields into a
// program.OperatorUpdate, marking each one present in Params.
func (l *lowerer) buildOperatorUpdate(op *parser.OpNode, id int32, adj program.Adjacency) *program.OperatorUpdate {
	u := &program.OperatorUpdate{OperatorID: id, Adjacency: adj}
	if op.WaveSet {
		u.Params |= program.ParamWave
		u.Wave = op.Wave
	}
	if op.TimeSet {
		u.Params |= program.ParamTime
		u.TimeMs = op.TimeMs
	}
	if op.SilenceMs != 0 {
		u.Params |= program.ParamSilence
		u.SilenceMs = op.SilenceMs
	}
	if op.FreqSet {
		u.Params |= program.ParamFreq
		u.Freq = op.Freq
		if op.IsRatio {
			u.Params |= program.ParamRatio
		}
	}
	if op.DynFreqSet {
		u.Params |= program.ParamDynFreq
		u.DynFreq = op.DynFreq
	}
	if op.PhaseSet {
		u.Params |= program.ParamPhase
		u.Phase = op.Phase
	}
	if op.AmpSet {
		u.Params |= program.ParamAmp
		u.Amp = op.Amp
	}
	if op.DynAmpSet {
		u.Params |= program.ParamDynAmp
		u.DynAmp = op.DynAmp
	}
	if op.FreqRamp != nil {
		u.Params |= program.ParamFreqRamp
		u.FreqRamp = *op.FreqRamp
	}
	if op.AmpRamp != nil {
		u.Params |= program.ParamAmpRamp
		u.AmpRamp = *op.AmpRamp
	}
	if len(adj.IDs) > 0 {
		u.Params |= program.ParamAdjacency
	}
	return u
}

// buildVoiceUpdate packs ve's explicitly-set fields plus its carrier
// graph into a program.VoiceUpdate. The graph is always present: a
// VoiceEvent never exists without at least one root carrier.
func (l *lowerer) buildVoiceUpdate(ve *parser.VoiceEvent, id int32, graph []int32) *program.VoiceUpdate {
	u := &program.VoiceUpdate{VoiceID: id, Graph: graph, Params: program.ParamGraph}
	if ve.PanSet {
		u.Params |= program.ParamPan
		u.Pan = ve.Pan
	}
	if ve.PanRamp != nil {
		u.Params |= program.ParamPanRamp
		u.PanRamp = *ve.PanRamp
	}
	return u
}
