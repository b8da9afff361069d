package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/supersational/mtxt/internal/beat"
)

func TestParseMinimalRoundTrip(t *testing.T) {
	// spec §8 scenario S1.
	src := "mtxt 1.0\n0 tempo 120\n0 note C4 dur=1 vel=0.8\n"
	doc, bag := Parse(src)
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())
	require.NotNil(t, doc)
	require.Equal(t, 1, doc.Version.Major)
	require.Equal(t, 0, doc.Version.Minor)

	var tempo *Tempo
	var note *Note
	for i := range doc.Events {
		switch v := doc.Events[i].(type) {
		case Tempo:
			tempo = &v
		case Note:
			note = &v
		}
	}
	require.NotNil(t, tempo)
	require.Equal(t, 120.0, tempo.BPM)
	require.NotNil(t, note)
	require.Equal(t, defaultDur, note.Dur)
	require.Equal(t, 0.8, note.Vel)
	require.Len(t, note.Notes, 1)
	require.Equal(t, "C", note.Notes[0].PitchClass)
	require.Equal(t, 4, note.Notes[0].Octave)
}

func TestParseMissingVersionIsStructural(t *testing.T) {
	doc, bag := Parse("0 tempo 120\n")
	require.Nil(t, doc)
	require.True(t, bag.HasErrors())
}

func TestParseAliasShadowing(t *testing.T) {
	src := "mtxt 1.0\n" +
		"alias lead C4\n" +
		"0 note lead ch=0\n" +
		"alias lead D4\n" +
		"1 note lead ch=0\n"
	doc, bag := Parse(src)
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())

	var notes []Note
	for _, e := range doc.Events {
		if n, ok := e.(Note); ok {
			notes = append(notes, n)
		}
	}
	require.Len(t, notes, 2)
	require.Equal(t, "C", notes[0].Notes[0].PitchClass)
	require.Equal(t, "D", notes[1].Notes[0].PitchClass)
}

func TestParseAliasSelfReferenceRejected(t *testing.T) {
	doc, bag := Parse("mtxt 1.0\nalias x x\n")
	require.NotNil(t, doc)
	require.True(t, bag.HasErrors())
}

func TestParseDefaultDirectivePositional(t *testing.T) {
	src := "mtxt 1.0\n" +
		"default ch=2\n" +
		"0 note C4\n" +
		"default ch=5\n" +
		"1 note D4\n"
	doc, bag := Parse(src)
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())

	var notes []Note
	for _, e := range doc.Events {
		if n, ok := e.(Note); ok {
			notes = append(notes, n)
		}
	}
	require.Len(t, notes, 2)
	require.Equal(t, 2, notes[0].Channel)
	require.Equal(t, 5, notes[1].Channel)
	require.Len(t, doc.Directives, 2)
}

func TestParseMissingChannelDefaultsToZero(t *testing.T) {
	// spec §8 S1: a note with no inline ch= and no default directive falls
	// back to MIDI channel 0.
	doc, bag := Parse("mtxt 1.0\n0 note C4\n")
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())
	require.Len(t, doc.Events, 1)
	require.Equal(t, 0, doc.Events[0].(Note).Channel)
}

func TestParseTransition(t *testing.T) {
	// spec §8 scenario S3.
	src := "mtxt 1.0\n" +
		"0 cc volume 0.0 ch=0\n" +
		"4.0 cc volume 1.0 ch=0 transition_time=3.0 transition_curve=0.5\n"
	doc, bag := Parse(src)
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())

	var withTransition *CC
	for i := range doc.Events {
		if cc, ok := doc.Events[i].(CC); ok && cc.Transition != nil {
			c := cc
			withTransition = &c
		}
	}
	require.NotNil(t, withTransition)
	require.Equal(t, 0.5, withTransition.Transition.Curve)
	require.Equal(t, beat.FromFloat64(3.0), withTransition.Transition.Tau)
}

func TestParseOutOfOrderEqualsSorted(t *testing.T) {
	// spec §8 scenario S5.
	a := "mtxt 1.0\n0 note C4 ch=0\n1 note D4 ch=0\n2 note E4 ch=0\n"
	b := "mtxt 1.0\n2 note E4 ch=0\n0 note C4 ch=0\n1 note D4 ch=0\n"

	docA, bagA := Parse(a)
	docB, bagB := Parse(b)
	require.False(t, bagA.HasErrors())
	require.False(t, bagB.HasErrors())

	sortEvents(docA.Events)
	sortEvents(docB.Events)

	require.Equal(t, len(docA.Events), len(docB.Events))
	for i := range docA.Events {
		na := docA.Events[i].(Note)
		nb := docB.Events[i].(Note)
		require.Equal(t, na.Notes[0].PitchClass, nb.Notes[0].PitchClass)
		require.Equal(t, na.Base.Time, nb.Base.Time)
	}
}

func TestParseOffBeforeOnTieBreak(t *testing.T) {
	src := "mtxt 1.0\n" +
		"1 noteon C4 ch=0 vel=0.9\n" +
		"1 noteoff C4 ch=0\n"
	doc, bag := Parse(src)
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())

	sortEvents(doc.Events)
	require.Len(t, doc.Events, 2)
	_, firstIsOff := doc.Events[0].(NoteOff)
	require.True(t, firstIsOff, "NoteOff must sort before NoteOn at an equal timestamp")
}

func TestParseSysex(t *testing.T) {
	doc, bag := Parse("mtxt 1.0\n0 sysex F04300F7\n")
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())
	require.Len(t, doc.Events, 1)
	sx := doc.Events[0].(Sysex)
	require.Equal(t, []byte{0xF0, 0x43, 0x00, 0xF7}, sx.Bytes)
}

func TestParseCommentURLHeuristic(t *testing.T) {
	doc, bag := Parse("mtxt 1.0\n0 meta global url https://example.com/a\n")
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())
	var meta *Meta
	for i := range doc.Events {
		if m, ok := doc.Events[i].(Meta); ok {
			meta = &m
		}
	}
	require.NotNil(t, meta)
	require.Equal(t, "https://example.com/a", meta.Value)
}

// sortEvents is a tiny local insertion sort over record.Less, kept out of
// internal/store so parser-level tests don't need to import it.
func sortEvents(events []Record) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && Less(events[j], events[j-1]); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}
