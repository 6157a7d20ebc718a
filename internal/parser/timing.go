package parser

import "github.com/saugns/sgscore-go/internal/program"

// applyTiming runs the two timing passes described in §4.4: first,
// nested modulator operators without an explicit time default to
// their carrier's envelope length; second, duration-scope ('|')
// groups are measured and the event following each group has its
// wait incremented by the group's total length.
//
// Composite sub-event flattening (§4.4 "Composite events") is folded
// directly into delay accounting at parse time in this
// implementation (delayBeforeNext/delayCurrent apply straight to
// WaitMs) rather than through a separate splice-and-flatten pass, since
// this parser never builds a detached composite chain the way the
// original's NodeData does; the observable absolute timing is the
// same.
func applyTiming(events []*VoiceEvent) {
	for _, ve := range events {
		for _, op := range ve.Carriers {
			inheritModulatorTimes(op, op.TimeMs)
		}
	}

	scopeStart := 0
	for i, ve := range events {
		if !ve.scopeEnd {
			continue
		}
		total := scopeTotal(events[scopeStart : i+1])
		if i+1 < len(events) {
			events[i+1].WaitMs += total
		}
		scopeStart = i + 1
	}
}

// inheritModulatorTimes propagates carrierTimeMs to any fmod/pmod/amod
// (recursively) that did not have its own time explicitly set.
func inheritModulatorTimes(op *OpNode, carrierTimeMs int32) {
	for _, lists := range [][]*OpNode{op.FMods, op.PMods, op.AMods} {
		for _, mod := range lists {
			if !mod.TimeSet {
				mod.TimeMs = carrierTimeMs
				mod.TimeSet = true
			}
			inheritModulatorTimes(mod, mod.TimeMs)
		}
	}
}

// scopeTotal computes a duration-scope group's total length: the
// maximum root-carrier time among the group's events (TIME_INF
// carriers excluded, consistent with the lowerer's own TIME_INF
// exclusion policy, DESIGN.md Open Question #1) plus any delay
// already carried by events after the first in the group.
func scopeTotal(group []*VoiceEvent) int32 {
	var delayAcc, maxOpTime int32
	for i, ve := range group {
		if i > 0 {
			delayAcc += ve.WaitMs
		}
		for _, op := range ve.Carriers {
			if op.TimeMs == program.TimeInf {
				continue
			}
			if op.TimeMs > maxOpTime {
				maxOpTime = op.TimeMs
			}
		}
	}
	return maxOpTime + delayAcc
}
