package pitch

import "testing"

func TestNormalizePitchClass(t *testing.T) {
	cases := []struct{ in, want string }{
		{"C", "C"}, {"c", "C"}, {"Db", "C#"}, {"eb", "D#"},
		{"Gb", "F#"}, {"Ab", "G#"}, {"Bb", "A#"}, {"F#", "F#"},
	}
	for _, tc := range cases {
		got, ok := NormalizePitchClass(tc.in)
		if !ok || got != tc.want {
			t.Errorf("NormalizePitchClass(%q) = (%q, %v), want %q", tc.in, got, ok, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want NoteId
	}{
		{"C4", NoteId{"C", 4, 0}},
		{"c4", NoteId{"C", 4, 0}},
		{"C#4", NoteId{"C#", 4, 0}},
		{"Db4", NoteId{"C#", 4, 0}},
		{"C4+50", NoteId{"C", 4, 50}},
		{"C4-12.5", NoteId{"C", 4, -12.5}},
		{"C-1", NoteId{"C", -1, 0}},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.in)
		if !ok {
			t.Fatalf("Parse(%q) failed", tc.in)
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "H4", "C", "C4+", "alias_name"} {
		if _, ok := Parse(in); ok {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestMIDI(t *testing.T) {
	n, _ := Parse("C4")
	midi, ok := n.MIDI()
	if !ok || midi != 60 {
		t.Errorf("C4.MIDI() = (%d, %v), want (60, true)", midi, ok)
	}
	n2, _ := Parse("C-1")
	midi2, ok2 := n2.MIDI()
	if !ok2 || midi2 != 0 {
		t.Errorf("C-1.MIDI() = (%d, %v), want (0, true)", midi2, ok2)
	}
	n3 := NoteId{PitchClass: "C", Octave: 11}
	if _, ok3 := n3.MIDI(); ok3 {
		t.Error("C11.MIDI() should be out of range")
	}
}

func TestTranspose(t *testing.T) {
	n, _ := Parse("C4")
	got, ok := Transpose(n, 7)
	if !ok || got.String() != "G4" {
		t.Errorf("Transpose(C4, 7) = (%v, %v), want G4", got, ok)
	}
	got2, ok2 := Transpose(n, -1)
	if !ok2 || got2.String() != "B3" {
		t.Errorf("Transpose(C4, -1) = (%v, %v), want B3", got2, ok2)
	}
}

func TestTransposeOutOfRange(t *testing.T) {
	n := NoteId{PitchClass: "C", Octave: 9} // midi 120
	if _, ok := Transpose(n, 20); ok {
		t.Error("Transpose should report out of range")
	}
}

func TestFrequency(t *testing.T) {
	n, _ := Parse("A4")
	f := n.Frequency()
	if f < 439.9 || f > 440.1 {
		t.Errorf("A4 frequency = %v, want ~440", f)
	}
}

func TestFromMIDI(t *testing.T) {
	n := FromMIDI(60)
	if n.String() != "C4" {
		t.Errorf("FromMIDI(60) = %v, want C4", n)
	}
}
