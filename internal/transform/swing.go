package transform

import (
	"math"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/store"
)

// Swing delays every second eighth-note-grid position by a*(eighth-length
// / 3) (spec §4.I), a ∈ [0,1]. "Every second" position is the odd-indexed
// eighth on the grid (the classic swung upbeat); the downbeat (even index)
// never moves.
func Swing(s *store.Store, a float64) *store.Store {
	if a == 0 {
		return s.Clone()
	}
	delay := beat.FromFloat64(a * (eighth / 3))
	return mapTimes(s, func(t beat.Beat) beat.Beat {
		idx := int64(math.Floor(t.Float64() / eighth))
		if idx%2 == 0 {
			return t
		}
		return t.Add(delay)
	}, alwaysKeep)
}
