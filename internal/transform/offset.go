package transform

import (
	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/store"
)

// Offset shifts every event's time by delta (positive or negative);
// events that land at time < 0 are dropped (spec §4.I).
func Offset(s *store.Store, delta beat.Beat) *store.Store {
	if delta == beat.Zero {
		return s.Clone()
	}
	return mapTimes(s, func(t beat.Beat) beat.Beat {
		return t.Add(delta)
	}, func(t beat.Beat) bool {
		return t.Cmp(beat.Zero) >= 0
	})
}
