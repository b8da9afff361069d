// Package pitch implements the Note & Pitch Model (spec §4.A): parsing and
// formatting note names, microtonal cents, MIDI note numbers, and
// frequencies.
//
// Grounded on mattdees-guitartutor/backend/handlers/api.go's chord-name
// arithmetic (chordRootIndex/chordSuffix/transposeChord/getTransposition):
// the same flat-to-sharp normalization table and chromatic-index scan,
// generalized here from whole chord names to single note identifiers with
// an added cents component.
package pitch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// chromatic lists canonical (sharp-spelled) pitch classes in semitone order,
// matching the teacher's `chromatic` table.
var chromatic = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// flatToSharp normalizes flat spellings to their canonical sharp spelling,
// the same table shape as the teacher's `flatToSharp`.
var flatToSharp = map[string]string{
	"DB": "C#", "EB": "D#", "GB": "F#", "AB": "G#", "BB": "A#",
	"CB": "B", "FB": "E", "E#": "F", "B#": "C",
}

// PitchClassIndex returns the semitone index (0-11) of a pitch-class
// spelling such as "C", "C#", "Db", case-insensitively, or -1 if it cannot
// be identified.
func PitchClassIndex(pc string) int {
	norm, ok := NormalizePitchClass(pc)
	if !ok {
		return -1
	}
	for i, n := range chromatic {
		if n == norm {
			return i
		}
	}
	return -1
}

// NormalizePitchClass canonicalizes a pitch-class spelling to its uppercase
// sharp form ("Db" -> "C#"), per spec §3 ("output is canonical uppercase
// with #").
func NormalizePitchClass(pc string) (string, bool) {
	if pc == "" {
		return "", false
	}
	upper := strings.ToUpper(pc)
	letter := upper[0]
	if letter < 'A' || letter > 'G' {
		return "", false
	}
	key := upper
	if len(upper) > 2 {
		return "", false
	}
	if sharp, ok := flatToSharp[key]; ok {
		return sharp, true
	}
	if len(upper) == 1 {
		for _, n := range chromatic {
			if n == upper {
				return upper, true
			}
		}
		return "", false
	}
	if upper[1] == '#' {
		for _, n := range chromatic {
			if n == upper {
				return upper, true
			}
		}
		return "", false
	}
	return "", false
}

// NoteId is a parsed note identifier: pitch class, octave, and optional
// microtonal cents offset, per spec §3.
type NoteId struct {
	PitchClass string // canonical, e.g. "C#"
	Octave     int
	Cents      float64 // in [-99.0, +99.0]
}

// String formats a NoteId canonically, e.g. "C#4", "C4+50", "C4-12.5".
func (n NoteId) String() string {
	s := fmt.Sprintf("%s%d", n.PitchClass, n.Octave)
	if n.Cents != 0 {
		sign := "+"
		if n.Cents < 0 {
			sign = "-"
		}
		s += sign + formatCents(math.Abs(n.Cents))
	}
	return s
}

func formatCents(c float64) string {
	s := strconv.FormatFloat(c, 'f', -1, 64)
	return s
}

// MIDI returns the MIDI note number for n, and whether it falls in the
// representable 0..127 range. Per spec §4.A the model itself tolerates any
// signed octave; out-of-range is only an error at export time, never here.
func (n NoteId) MIDI() (int, bool) {
	idx := PitchClassIndex(n.PitchClass)
	if idx < 0 {
		return 0, false
	}
	num := 12*(n.Octave+1) + idx
	return num, num >= 0 && num <= 127
}

// Frequency returns the note's frequency in Hz under 12-TET A440, including
// its cents offset. Listed in scope by spec §1 ("parse/format note names,
// microtonal cents, frequencies") but never wired by the distilled Record
// model; exposed here as an independent check on MIDI-number arithmetic in
// tests.
func (n NoteId) Frequency() float64 {
	midi, _ := n.MIDI()
	semis := float64(midi-69) + n.Cents/100.0
	return 440.0 * math.Pow(2, semis/12.0)
}

// noteRe-free scan mirroring spec §4.A's conceptual regex:
// ^[A-Ga-g](#|b)?(-?\d+)([+\-]\d+(\.\d+)?)?$
//
// Parse does not consult aliases; callers (internal/record) fall back to
// alias lookup when Parse reports ok=false.
func Parse(s string) (NoteId, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoteId{}, false
	}
	i := 0
	if !isLetter(s[i]) {
		return NoteId{}, false
	}
	letter := strings.ToUpper(string(s[i]))
	if letter < "A" || letter > "G" {
		return NoteId{}, false
	}
	i++
	pcRaw := letter
	if i < len(s) && (s[i] == '#' || s[i] == 'b' || s[i] == 'B') {
		// Only treat 'b'/'B' as a flat marker when it's not the start of the
		// octave digits, i.e. always here since octave must be numeric.
		if s[i] == '#' {
			pcRaw += "#"
			i++
		} else {
			pcRaw += "b"
			i++
		}
	}
	pc, ok := NormalizePitchClass(pcRaw)
	if !ok {
		return NoteId{}, false
	}

	// Octave: optional '-' then digits.
	octStart := i
	if i < len(s) && s[i] == '-' {
		i++
	}
	digitsStart := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == digitsStart {
		return NoteId{}, false
	}
	octave, err := strconv.Atoi(s[octStart:i])
	if err != nil {
		return NoteId{}, false
	}

	cents := 0.0
	if i < len(s) {
		if s[i] != '+' && s[i] != '-' {
			return NoteId{}, false
		}
		sign := 1.0
		if s[i] == '-' {
			sign = -1.0
		}
		i++
		numStart := i
		for i < len(s) && (isDigit(s[i]) || s[i] == '.') {
			i++
		}
		if i == numStart {
			return NoteId{}, false
		}
		c, err := strconv.ParseFloat(s[numStart:i], 64)
		if err != nil {
			return NoteId{}, false
		}
		if i != len(s) {
			return NoteId{}, false
		}
		cents = sign * c
	}

	return NoteId{PitchClass: pc, Octave: octave, Cents: cents}, true
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Transpose shifts a NoteId by the given number of semitones, preserving
// cents. Generalizes the teacher's transposeChord (chord-name + semitone ->
// chord-name) to NoteId + semitone -> NoteId.
func Transpose(n NoteId, semitones int) (NoteId, bool) {
	midi, _ := n.MIDI()
	newMidi := midi + semitones
	if newMidi < 0 || newMidi > 127 {
		return NoteId{}, false
	}
	idx := ((newMidi % 12) + 12) % 12
	octave := newMidi/12 - 1
	return NoteId{PitchClass: chromatic[idx], Octave: octave, Cents: n.Cents}, true
}

// FromMIDI converts a MIDI note number (assumed 0-127) to its canonical
// NoteId with zero cents.
func FromMIDI(midi int) NoteId {
	idx := ((midi % 12) + 12) % 12
	octave := midi/12 - 1
	return NoteId{PitchClass: chromatic[idx], Octave: octave}
}
