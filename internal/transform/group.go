package transform

import (
	"sort"

	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/store"
)

// GroupByChannel stable-regroups events so all events sharing a channel
// are contiguous, ordered by first appearance of that channel, and returns
// them in that grouped order without re-sorting. Channel-less events keep
// their relative position among themselves, sorting ahead of every
// channel group. A genuine pass, not the "trivial arithmetic" spec.md §4.I
// treats group/sort as — grounded on spec.md §6 naming `--group-channels`
// as a real CLI flag with no deferral of its own.
func GroupByChannel(s *store.Store) *store.Store {
	events := append([]record.Record(nil), s.Events()...)

	order := map[int]int{}
	next := 0
	rank := func(r record.Record) int {
		ch, has := channelOf(r)
		if !has {
			return -1
		}
		if _, ok := order[ch]; !ok {
			order[ch] = next
			next++
		}
		return order[ch]
	}

	type ranked struct {
		rec  record.Record
		rank int
	}
	pairs := make([]ranked, len(events))
	for i, r := range events {
		pairs[i] = ranked{rec: r, rank: rank(r)}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].rank < pairs[j].rank })

	out := make([]record.Record, len(pairs))
	for i, p := range pairs {
		out[i] = p.rec
	}
	return s.WithEventsInOrder(out)
}

// SortCanonical reapplies spec §4.C's composite ordering key, exposed as
// an explicit transform so the CLI can offer `--sort` as an idempotence
// check rather than a no-op.
func SortCanonical(s *store.Store) *store.Store {
	return s.WithEvents(append([]record.Record(nil), s.Events()...))
}
