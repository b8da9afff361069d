package transform

import (
	"github.com/supersational/mtxt/internal/mtxterr"
	"github.com/supersational/mtxt/internal/pitch"
	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/store"
)

// Transpose shifts every note-bearing event by semitones, dropping any
// individual pitch that falls outside MIDI's 0..127 range and warning
// about it (spec §4.I), the direct generalization of the teacher's
// transposeChord/getTransposition semitone arithmetic from chord names to
// NoteId values.
func Transpose(s *store.Store, semitones int) (*store.Store, *mtxterr.Bag) {
	bag := &mtxterr.Bag{}
	if semitones == 0 {
		return s.Clone(), bag
	}

	var kept []record.Record
	for _, r := range s.Events() {
		switch v := r.(type) {
		case record.Note:
			var notes []pitch.NoteId
			for _, n := range v.Notes {
				if tn, ok := pitch.Transpose(n, semitones); ok {
					notes = append(notes, tn)
				} else {
					bag.AddWarning(v.SourceLine, "transpose: note %s out of MIDI range after %+d semitones, dropped", n, semitones)
				}
			}
			if len(notes) == 0 {
				continue
			}
			v.Notes = notes
			kept = append(kept, v)

		case record.NoteOn:
			if tn, ok := pitch.Transpose(v.Note, semitones); ok {
				v.Note = tn
				kept = append(kept, v)
			} else {
				bag.AddWarning(v.SourceLine, "transpose: note %s out of MIDI range after %+d semitones, dropped", v.Note, semitones)
			}

		case record.NoteOff:
			if tn, ok := pitch.Transpose(v.Note, semitones); ok {
				v.Note = tn
				kept = append(kept, v)
			} else {
				bag.AddWarning(v.SourceLine, "transpose: note %s out of MIDI range after %+d semitones, dropped", v.Note, semitones)
			}

		default:
			kept = append(kept, r)
		}
	}
	return s.WithEvents(kept), bag
}
