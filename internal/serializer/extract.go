package serializer

import (
	"fmt"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/record"
)

// defaultSet holds the majority value computed for each directive kind
// (spec §4.E: "--extract-directives: ... compute majority defaults ...").
// skipX is true only when a clear majority (more than half of applicable
// occurrences) was found for that kind; formatting functions then omit a
// matching inline parameter and rely on the emitted `default` line instead.
type defaultSet struct {
	skipCh bool
	ch     int

	skipVel bool
	vel     float64

	skipOffVel bool
	offVel     float64

	skipDur bool
	dur     beat.Beat

	skipCurve bool
	curve     float64
}

// extractDirectives computes one document-wide majority value per
// directive kind. This is a simplification of spec §4.C/§9's positional
// (file-order) default semantics: the source directive-state vector can
// change partway through a file, but re-deriving a minimal set of
// `default` lines that reproduces an arbitrary sequence of changes is a
// segmentation problem the spec does not fully specify an algorithm for.
// A single whole-document majority line is the common case (one dominant
// default covering nearly every event) and is always a correct, if not
// maximally compact, extraction: every event still carries its own value
// explicitly whenever it differs from the extracted default.
func extractDirectives(items []item) defaultSet {
	var chCounts = map[int]int{}
	var velCounts = map[float64]int{}
	var offVelCounts = map[float64]int{}
	var durCounts = map[beat.Beat]int{}
	var curveCounts = map[float64]int{}
	chN, velN, offVelN, durN, curveN := 0, 0, 0, 0, 0

	count := func(r record.Record) {
		switch v := r.(type) {
		case record.Note:
			chCounts[v.Channel]++
			chN++
			velCounts[v.Vel]++
			velN++
			offVelCounts[v.OffVel]++
			offVelN++
			durCounts[v.Dur]++
			durN++
		case record.NoteOn:
			chCounts[v.Channel]++
			chN++
			velCounts[v.Vel]++
			velN++
		case record.NoteOff:
			chCounts[v.Channel]++
			chN++
			offVelCounts[v.OffVel]++
			offVelN++
		case record.CC:
			chCounts[v.Channel]++
			chN++
			if v.Transition != nil {
				curveCounts[v.Transition.Curve]++
				curveN++
			}
		case record.Tempo:
			if v.Transition != nil {
				curveCounts[v.Transition.Curve]++
				curveN++
			}
		case record.Voice:
			chCounts[v.Channel]++
			chN++
		}
	}

	for _, it := range items {
		if it.comment == nil {
			count(it.rec)
		}
	}

	d := defaultSet{}
	if v, ok := majority(chCounts, chN); ok {
		d.skipCh, d.ch = true, v
	}
	if v, ok := majority(velCounts, velN); ok {
		d.skipVel, d.vel = true, v
	}
	if v, ok := majority(offVelCounts, offVelN); ok {
		d.skipOffVel, d.offVel = true, v
	}
	if v, ok := majority(durCounts, durN); ok {
		d.skipDur, d.dur = true, v
	}
	if v, ok := majority(curveCounts, curveN); ok {
		d.skipCurve, d.curve = true, v
	}
	return d
}

// majority returns the value with the highest count, if that count is
// strictly more than half of total.
func majority[T comparable](counts map[T]int, total int) (T, bool) {
	var best T
	bestN := 0
	for v, n := range counts {
		if n > bestN {
			best, bestN = v, n
		}
	}
	if total == 0 || bestN*2 <= total {
		var zero T
		return zero, false
	}
	return best, true
}

// directiveLines renders the extracted majority values as `default` lines,
// in a fixed, deterministic order.
func (d defaultSet) directiveLines() []string {
	var out []string
	if d.skipCh {
		out = append(out, fmt.Sprintf("default ch=%d", d.ch))
	}
	if d.skipVel {
		out = append(out, "default vel="+formatNum(d.vel))
	}
	if d.skipOffVel {
		out = append(out, "default offvel="+formatNum(d.offVel))
	}
	if d.skipDur {
		out = append(out, "default dur="+d.dur.String())
	}
	if d.skipCurve {
		out = append(out, "default transition_curve="+formatNum(d.curve))
	}
	return out
}
