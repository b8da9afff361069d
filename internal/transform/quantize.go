package transform

import (
	"math"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/store"
)

// Quantize snaps every event's time to round(time*grid)/grid (spec §4.I),
// e.g. grid=4 snaps to the nearest quarter-beat (sixteenth note at the
// default quarter-note beat). The Event Store's stable sort is reapplied
// after rewriting times, preserving §4.C's composite ordering contract
// even when quantization moves two previously-distinct times onto the
// same grid point.
func Quantize(s *store.Store, grid float64) *store.Store {
	if grid <= 0 {
		return s.Clone()
	}
	return mapTimes(s, func(t beat.Beat) beat.Beat {
		snapped := math.Round(t.Float64()*grid) / grid
		return beat.FromFloat64(snapped)
	}, alwaysKeep)
}

func alwaysKeep(beat.Beat) bool { return true }
