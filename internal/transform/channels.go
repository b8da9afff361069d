package transform

import (
	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/store"
)

// ChannelSet is a set of channel ids for the include/exclude filters.
type ChannelSet map[int]bool

// NewChannelSet builds a ChannelSet from a slice of channel ids.
func NewChannelSet(channels []int) ChannelSet {
	set := make(ChannelSet, len(channels))
	for _, c := range channels {
		set[c] = true
	}
	return set
}

// IncludeChannels keeps only channel-bearing events whose channel is in
// set; events with no channel (Tempo, TimeSig, Tuning, Sysex, Label,
// global Meta) always pass through (spec §4.I: "set membership over
// channel id" filters only apply where a channel exists).
func IncludeChannels(s *store.Store, set ChannelSet) *store.Store {
	return filterChannels(s, func(ch int, has bool) bool {
		return !has || set[ch]
	})
}

// ExcludeChannels drops channel-bearing events whose channel is in set;
// channel-less events always pass through.
func ExcludeChannels(s *store.Store, set ChannelSet) *store.Store {
	return filterChannels(s, func(ch int, has bool) bool {
		return !has || !set[ch]
	})
}

func filterChannels(s *store.Store, keep func(ch int, has bool) bool) *store.Store {
	var kept []record.Record
	for _, r := range s.Events() {
		ch, has := channelOf(r)
		if keep(ch, has) {
			kept = append(kept, r)
		}
	}
	return s.WithEvents(kept)
}
