// Package store implements the Event Store (spec §4.D): an ordered
// collection of Records supporting append, stable composite-key sort,
// range iteration, and start-value lookup for the Transition Evaluator.
//
// Grounded on other_examples/leafo-songtool's gm_export.go, which sorts
// SMF events with a comparator that puts note-off strictly before note-on
// at equal ticks — the same off-before-on tie-break spec §4.C requires,
// here generalized to the full Record type-rank chain via
// sort.SliceStable and record.Less.
package store

import (
	"sort"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/pitch"
	"github.com/supersational/mtxt/internal/record"
)

// Store holds one parsed (or transformed) document: the structural
// records kept for round-trip (version, aliases, directives, comments)
// plus the time-bearing Events in canonical order.
type Store struct {
	Version    record.Version
	Aliases    []record.Alias
	Directives []record.DefaultDirective
	Comments   []record.Comment
	events     []record.Record
}

// New builds a Store from a parsed Document and sorts its events into
// canonical order.
func New(doc *record.Document) *Store {
	s := &Store{
		Version:    doc.Version,
		Aliases:    append([]record.Alias(nil), doc.Aliases...),
		Directives: append([]record.DefaultDirective(nil), doc.Directives...),
		Comments:   append([]record.Comment(nil), doc.Comments...),
		events:     append([]record.Record(nil), doc.Events...),
	}
	s.Sort()
	return s
}

// Append adds a Record to the Store without re-sorting; call Sort once
// after a batch of appends.
func (s *Store) Append(r record.Record) {
	s.events = append(s.events, r)
}

// Sort reorders events by the canonical composite key: time ascending,
// type rank, file-insertion order (spec §4.C). It is a stable sort so
// records with an identical key never swap against their relative order
// from a previous sort.
func (s *Store) Sort() {
	sort.SliceStable(s.events, func(i, j int) bool {
		return record.Less(s.events[i], s.events[j])
	})
}

// Events returns the Store's events in current (assumed sorted) order.
// Callers must not mutate the returned slice's backing array; use Clone
// if a transform needs to build a new Store.
func (s *Store) Events() []record.Record { return s.events }

// Len returns the number of time-bearing events (excluding the structural
// records: version, aliases, directives, comments).
func (s *Store) Len() int { return len(s.events) }

// Range returns the subsequence of events with Time in [t0, t1), in
// current order.
func (s *Store) Range(t0, t1 beat.Beat) []record.Record {
	var out []record.Record
	for _, r := range s.events {
		t := r.Pos().Time
		if t.Cmp(t0) >= 0 && t.Cmp(t1) < 0 {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns an independent copy whose backing slices share no memory
// with the receiver, per spec §4.D: "No mutation aliasing: transforms
// produce new stores." Record values themselves are immutable structs, so
// a shallow element copy is sufficient.
func (s *Store) Clone() *Store {
	return &Store{
		Version:    s.Version,
		Aliases:    append([]record.Alias(nil), s.Aliases...),
		Directives: append([]record.DefaultDirective(nil), s.Directives...),
		Comments:   append([]record.Comment(nil), s.Comments...),
		events:     append([]record.Record(nil), s.events...),
	}
}

// WithEvents returns a clone of s whose events are replaced by events and
// re-sorted into canonical order. internal/transform uses this to produce
// a new Store after rewriting times, channels, or pitches without ever
// mutating the receiver's event slice directly (spec §4.D: "No mutation
// aliasing: transforms produce new stores").
func (s *Store) WithEvents(events []record.Record) *Store {
	out := s.Clone()
	out.events = append([]record.Record(nil), events...)
	out.Sort()
	return out
}

// WithEventsInOrder returns a clone of s whose events are replaced by
// events, taken verbatim without re-sorting. internal/transform's
// GroupByChannel uses this: its whole purpose is an emission order other
// than spec §4.C's canonical composite key, so re-sorting it away would
// make the transform a no-op. Most callers want WithEvents instead.
func (s *Store) WithEventsInOrder(events []record.Record) *Store {
	out := s.Clone()
	out.events = append([]record.Record(nil), events...)
	return out
}

// Key identifies a transition-addressable slot: a channel-scoped
// controller, optionally narrowed to one note for per-note CC curves
// (spec §4.D: "lookup by (channel, controller[, note])"). Use Controller
// "tempo" with a zero Channel for Tempo records, which are channelless.
type Key struct {
	Channel    int
	Controller string
	Note       *pitch.NoteId
}

// LatestValueBefore implements the Transition Evaluator's start-value
// resolution (spec §4.F): the most recent CC or Tempo value at Key with
// Time <= at. ok is false if no such record exists; the MIDI encoder then
// records an error naming the offending transition's source line and
// fails the conversion (spec §4.F, §7).
func (s *Store) LatestValueBefore(key Key, at beat.Beat) (value float64, source record.Record, ok bool) {
	for _, r := range s.events {
		switch v := r.(type) {
		case record.CC:
			if key.Controller == "tempo" || v.Channel != key.Channel || v.Controller != key.Controller {
				continue
			}
			if !sameNote(v.Note, key.Note) || v.Base.Time.Cmp(at) > 0 {
				continue
			}
			if !ok || record.Less(source, r) {
				source, value, ok = r, v.Value, true
			}
		case record.Tempo:
			if key.Controller != "tempo" {
				continue
			}
			if v.Base.Time.Cmp(at) > 0 {
				continue
			}
			if !ok || record.Less(source, r) {
				source, value, ok = r, v.BPM, true
			}
		}
	}
	return value, source, ok
}

func sameNote(a, b *pitch.NoteId) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
