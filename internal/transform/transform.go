// Package transform implements the Transforms (spec §4.I): pure
// Store -> Store functions, each returning an independent clone per
// internal/store's "no mutation aliasing" contract (spec §4.D).
//
// Grounded on mattdees-guitartutor/backend/handlers/api.go's
// transposeChord/getTransposition (chord-name semitone arithmetic) and
// chordRootIndex, generalized here from whole chord names to per-Record,
// per-NoteId arithmetic over a whole Event Store instead of one chord at
// a time.
package transform

import (
	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/store"
)

// eighth and sixteenth are the grid unit lengths swing and humanize need,
// expressed in beats (one quarter-note beat per spec §3's time model).
const (
	eighth    = 0.5
	sixteenth = 0.25
)

// mapTimes rebuilds a Store with every event's Base.Time replaced by
// f(time); events for which keep returns false are dropped entirely.
// Structural records (version, aliases, directives, comments) are
// untouched, since none of them carry a meaningful Time (spec §3: alias
// and default-directive records are "positional, not timed").
func mapTimes(s *store.Store, f func(beat.Beat) beat.Beat, keep func(beat.Beat) bool) *store.Store {
	var kept []record.Record
	for _, r := range s.Events() {
		nt := f(r.Pos().Time)
		if !keep(nt) {
			continue
		}
		kept = append(kept, withTime(r, nt))
	}
	return s.WithEvents(kept)
}

// withTime returns a copy of r with its Base.Time set to t.
func withTime(r record.Record, t beat.Beat) record.Record {
	switch v := r.(type) {
	case record.Meta:
		v.Base.Time = t
		return v
	case record.Label:
		v.Base.Time = t
		return v
	case record.Note:
		v.Base.Time = t
		return v
	case record.NoteOn:
		v.Base.Time = t
		return v
	case record.NoteOff:
		v.Base.Time = t
		return v
	case record.CC:
		v.Base.Time = t
		return v
	case record.Voice:
		v.Base.Time = t
		return v
	case record.Tempo:
		v.Base.Time = t
		return v
	case record.TimeSig:
		v.Base.Time = t
		return v
	case record.Tuning:
		v.Base.Time = t
		return v
	case record.Reset:
		v.Base.Time = t
		return v
	case record.Sysex:
		v.Base.Time = t
		return v
	default:
		return r
	}
}

// channelOf returns the channel a Record carries, if any. Channel-less
// kinds (Tempo, TimeSig, Tuning, Sysex, Label, global Meta) report ok=false
// so channel filters pass them through and GroupByChannel places them
// ahead of every channel group.
func channelOf(r record.Record) (int, bool) {
	switch v := r.(type) {
	case record.Meta:
		if v.Scope == record.ScopeChannel {
			return v.Channel, true
		}
		return 0, false
	case record.Note:
		return v.Channel, true
	case record.NoteOn:
		return v.Channel, true
	case record.NoteOff:
		return v.Channel, true
	case record.CC:
		return v.Channel, true
	case record.Voice:
		return v.Channel, true
	case record.Reset:
		if v.Target == record.ResetChannel {
			return v.Channel, true
		}
		return 0, false
	default:
		return 0, false
	}
}
