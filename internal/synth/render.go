package synth

import (
	"math"

	"github.com/saugns/sgscore-go/internal/program"
)

// renderBlock renders n frames across every voice into a fresh
// interleaved stereo int16 buffer (§4.6 "Voice mixdown").
func (e *Engine) renderBlock(n int) []int16 {
	if cap(e.mono) < n {
		e.mono = make([]float64, n)
	}
	mono := e.mono[:n]

	stereoN := n * 2
	if cap(e.stereoAcc) < stereoN {
		e.stereoAcc = make([]int32, stereoN)
	}
	stereo := e.stereoAcc[:stereoN]
	for k := range stereo {
		stereo[k] = 0
	}

	msPerSample := 1000.0 / float64(e.sampleRate)

	for vi := range e.voices {
		v := &e.voices[vi]
		if len(v.graph) == 0 {
			continue
		}
		for k := range mono {
			mono[k] = 0
		}
		for ci, opID := range v.graph {
			e.runOp(0, opID, nil, mono, ci, false, n)
		}

		divisor := 1.0
		if e.ampDivVoices && e.voiceCount > 0 {
			divisor = float64(e.voiceCount)
		}

		for k := 0; k < n; k++ {
			s := mono[k] / divisor
			pan := v.pan
			if v.panRamp != nil {
				pan = v.panRamp.Value(v.pan, v.panRampElapsed)
				v.panRampElapsed += msPerSample
				if v.panRampElapsed >= float64(v.panRamp.TimeMs) {
					v.pan = v.panRamp.To
					v.panRamp = nil
				}
			}
			left, right := panSplit(s, pan)
			stereo[k*2] += int32(left)
			stereo[k*2+1] += int32(right)
		}
	}

	if cap(e.out) < stereoN {
		e.out = make([]int16, stereoN)
	}
	out := e.out[:stereoN]
	for k, v := range stereo {
		out[k] = clampInt16(v)
	}
	return out
}

// panSplit applies the §8 panning law to one quantized mono sample:
// round the right channel first, then take left as the exact integer
// remainder, so left+right reproduces toInt16(s) bit for bit
// regardless of how the (p+1)/2 factor happens to round.
func panSplit(s, pan float64) (left, right int16) {
	sInt := toInt16(s)
	right = clampInt16(int32(math.Round(float64(sInt) * ((pan + 1) / 2))))
	left = sInt - right
	return left, right
}

func toInt16(s float64) int16 {
	return clampInt16(int32(math.Round(s * 32767)))
}

func clampInt16(v int32) int16 {
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// runOp renders one operator into out[0:n] (or up to its residual
// time/silence, whichever is shorter), recursing into its fmod/pmod/
// amod lists as needed, and returns the number of samples actually
// produced. accIdx distinguishes the first sibling in whatever list
// out belongs to (store) from later siblings (accumulate: added for
// audio output, multiplied in for envelope output) — the
// voice's carrier graph, or an operator's own modulator list. waveEnv
// selects envelope output (float in [0,1], used as a modulator signal)
// instead of audio output (§4.6 "Rendering a block").
func (e *Engine) runOp(depth int, id int32, parentFreq []float64, out []float64, accIdx int, waveEnv bool, n int) int {
	op := &e.ops[id]
	msPerSample := 1000.0 / float64(e.sampleRate)

	if op.residualSilence > 0 {
		fill := n
		if s := int(op.residualSilence); s < fill {
			fill = s
		}
		if accIdx == 0 {
			zeroFill(out[:fill])
		}
		op.residualSilence = clampNonNeg(op.residualSilence - int32(fill))
		op.residualFrames = decTime(op.residualFrames, int32(fill))
		if fill < n && accIdx == 0 {
			zeroFill(out[fill:n])
		}
		return fill
	}

	limit := n
	if op.residualFrames != program.TimeInf {
		if t := int(op.residualFrames); t < limit {
			limit = t
		}
	}
	if limit <= 0 {
		if accIdx == 0 {
			zeroFill(out[:n])
		}
		return 0
	}

	freqBuf := e.scratchBuf(scratchFreq, depth, limit)
	for k := 0; k < limit; k++ {
		base := op.freq
		if op.isRatio && parentFreq != nil {
			base *= parentFreq[k]
		}
		freqBuf[k] = base
	}
	if op.freqRamp != nil {
		target := op.freq
		for k := 0; k < limit; k++ {
			v := op.freqRamp.Value(target, op.freqRampElapsed)
			if op.isRatio && parentFreq != nil {
				v *= parentFreq[k]
			}
			freqBuf[k] = v
			op.freqRampElapsed += msPerSample
		}
		if op.freqRampElapsed >= float64(op.freqRamp.TimeMs) {
			op.freq = op.freqRamp.To
			op.freqRamp = nil
		}
	}
	if fmods := op.adjacency.FMods(); len(fmods) > 0 {
		fm := e.scratchBuf(scratchCombine, depth, limit)
		for i, modID := range fmods {
			e.runOp(depth+1, modID, freqBuf, fm, i, true, limit)
		}
		dyn := op.dynFreq
		for k := 0; k < limit; k++ {
			target := dyn
			if op.isRatio && parentFreq != nil {
				target *= parentFreq[k]
			}
			freqBuf[k] += (target - freqBuf[k]) * fm[k]
		}
	}

	var phaseOff []float64
	if pmods := op.adjacency.PMods(); len(pmods) > 0 {
		phaseOff = e.scratchBuf(scratchPhase, depth, limit)
		for k := range phaseOff[:limit] {
			phaseOff[k] = 0
		}
		for i, modID := range pmods {
			e.runOp(depth+1, modID, freqBuf, phaseOff, i, true, limit)
		}
	}

	if !waveEnv {
		var ampBuf []float64
		if amods := op.adjacency.AMods(); len(amods) > 0 {
			am := e.scratchBuf(scratchCombine, depth, limit)
			for i, modID := range amods {
				e.runOp(depth+1, modID, freqBuf, am, i, true, limit)
			}
			ampBuf = am
		}
		for k := 0; k < limit; k++ {
			amp := op.amp
			if ampBuf != nil {
				amp = op.amp + ampBuf[k]*(op.dynAmp-op.amp)
			} else if op.ampRamp != nil {
				amp = op.ampRamp.Value(op.amp, op.ampRampElapsed)
				op.ampRampElapsed += msPerSample
			}
			p := op.phase
			if phaseOff != nil {
				p += phaseOff[k]
			}
			sample := waveSample(op.wave, p) * amp
			if accIdx == 0 {
				out[k] = sample
			} else {
				out[k] += sample
			}
			op.phase += freqBuf[k] / float64(e.sampleRate)
		}
		if op.ampRamp != nil && op.ampRampElapsed >= float64(op.ampRamp.TimeMs) {
			op.amp = op.ampRamp.To
			op.ampRamp = nil
		}
	} else {
		for k := 0; k < limit; k++ {
			p := op.phase
			if phaseOff != nil {
				p += phaseOff[k]
			}
			env := (waveSample(op.wave, p) + 1) / 2
			if accIdx == 0 {
				out[k] = env
			} else {
				out[k] *= env
			}
			op.phase += freqBuf[k] / float64(e.sampleRate)
		}
	}

	op.residualFrames = decTime(op.residualFrames, int32(limit))
	if limit < n && accIdx == 0 {
		zeroFill(out[limit:n])
	}
	return limit
}

func zeroFill(buf []float64) {
	for k := range buf {
		buf[k] = 0
	}
}

func clampNonNeg(v int32) int32 {
	if v < 0 {
		return 0
	}
	return v
}

func decTime(timeMs, consumed int32) int32 {
	if timeMs == program.TimeInf {
		return timeMs
	}
	return clampNonNeg(timeMs - consumed)
}
