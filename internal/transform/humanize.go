package transform

import (
	"math/rand"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/store"
)

// Humanize adds pseudo-random jitter uniform in ±a*(sixteenth-length) to
// every event's time (spec §4.I). Callers pass an explicit *rand.Rand so
// the jitter is reproducible across runs given the same seed — no
// third-party PRNG appears anywhere in the pack, so stdlib math/rand is
// used directly rather than wrapped.
func Humanize(s *store.Store, a float64, rng *rand.Rand) *store.Store {
	if a == 0 {
		return s.Clone()
	}
	span := a * sixteenth
	return mapTimes(s, func(t beat.Beat) beat.Beat {
		jitter := (rng.Float64()*2 - 1) * span
		nt := t.Add(beat.FromFloat64(jitter))
		if nt.Cmp(beat.Zero) < 0 {
			return beat.Zero
		}
		return nt
	}, alwaysKeep)
}
