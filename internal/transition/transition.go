// Package transition implements the Transition Evaluator (spec §4.F): the
// curve formula that glides a CC or Tempo value from its prior value to a
// target over a beat interval, the sampling cadence used to materialize a
// transition into discrete MIDI events, and the preemption rule for
// overlapping transitions on the same key.
//
// Grounded on the teacher's buildTrack pattern functions
// (mattdees-guitartutor/backend/handlers/midi.go), which step through a
// fixed musical grid emitting one event per subdivision — the same
// "walk a beat grid, emit a sample, advance" shape used here by
// Segment.Sample, generalized from a fixed pattern table to an arbitrary
// continuous function.
package transition

import (
	"math"

	"github.com/supersational/mtxt/internal/beat"
)

// Eval computes f(s) for s ∈ [0,1] and curve parameter alpha, per spec
// §4.F: f(0)=0, f(1)=1 always, and f is non-decreasing for alpha ∈
// [-1,+1]. Values of s outside [0,1] are not expected by callers (Segment
// clamps) but the formula is total.
func Eval(s, alpha float64) float64 {
	pos := math.Max(alpha, 0)
	neg := math.Max(-alpha, 0)
	return s + pos*(s*s*s*s-s) - neg*((1-math.Pow(1-s, 4))-s)
}

// ValueAt returns the interpolated value at beat time t for a segment
// gliding from v0 at t0 to v1 at t1. If t1<=t0 (a zero-duration segment,
// spec §4.F: "tau=0 means instantaneous set"), the value snaps to v1 at t.
func ValueAt(t, t0, t1 beat.Beat, v0, v1, alpha float64) float64 {
	if t1.Cmp(t0) <= 0 {
		return v1
	}
	s := t.Sub(t0).Float64() / t1.Sub(t0).Float64()
	if s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}
	return v0 + (v1-v0)*Eval(s, alpha)
}

// Segment is one transition to render: a glide from V0 at T0 to V1 at T1,
// shaped by Alpha. Source carries whatever identifies the originating
// Record, for diagnostics; callers that don't need it may leave it nil.
type Segment struct {
	T0, T1 beat.Beat
	V0, V1 float64
	Alpha  float64
	Source any
}

// Sample is one materialized point: a beat time and the value to emit
// there.
type Sample struct {
	Time  beat.Beat
	Value int
}

// Sample materializes seg at cadence deltaBeats, per spec §4.F's sampling
// cadence: points at t0, t0+Δ, t0+2Δ, …, t1, with consecutive samples that
// round to the same integer coalesced, and the endpoint at t1 always
// emitted regardless of dedup. roundFn quantizes a continuous value to the
// destination's integer domain (e.g. 0..127 for a MIDI CC, 0..16383 for
// pitch-wheel).
func (seg Segment) Sample(deltaBeats beat.Beat, roundFn func(float64) int) []Sample {
	if deltaBeats <= 0 {
		deltaBeats = beat.Unit / 1000 // 0.001-beat floor; guards against a malformed interval
	}
	var out []Sample
	haveLast := false
	lastRounded := 0
	for t := seg.T0; t.Cmp(seg.T1) < 0; t = t.Add(deltaBeats) {
		v := ValueAt(t, seg.T0, seg.T1, seg.V0, seg.V1, seg.Alpha)
		r := roundFn(v)
		if !haveLast || r != lastRounded {
			out = append(out, Sample{Time: t, Value: r})
			lastRounded, haveLast = r, true
		}
	}
	out = append(out, Sample{Time: seg.T1, Value: roundFn(seg.V1)})
	return out
}

// Preempt implements spec §4.F's preemption rule: when n begins before e
// ends on the same (channel, controller[, note]) key, e is truncated at
// n's start, taking on its interpolated value there, which becomes n's
// starting value. Callers are expected to have already sorted candidate
// segments by start time T0 ascending (and by insertion order on exact ties, per the
// Open Question decision in DESIGN.md) before folding them pairwise with
// Preempt, since the rule is inherently sequential.
func Preempt(e, n Segment) (earlier, later Segment) {
	if n.T0.Cmp(e.T1) >= 0 {
		return e, n
	}
	bridgeValue := ValueAt(n.T0, e.T0, e.T1, e.V0, e.V1, e.Alpha)
	e.T1 = n.T0
	e.V1 = bridgeValue
	n.V0 = bridgeValue
	return e, n
}

// MsToBeats converts a millisecond interval to beats at the given tempo,
// the conversion spec §4.F's sampling cadence needs ("transition_interval_ms
// in beats at local tempo").
func MsToBeats(ms, bpm float64) beat.Beat {
	if bpm <= 0 {
		bpm = 120
	}
	return beat.FromFloat64(ms / 60000.0 * bpm)
}
