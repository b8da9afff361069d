package midi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/store"
)

func mustStore(t *testing.T, src string) *store.Store {
	t.Helper()
	doc, bag := record.Parse(src)
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())
	return store.New(doc)
}

func TestEncodeMinimalRoundTrip(t *testing.T) {
	// spec §8 scenario S1.
	s := mustStore(t, "mtxt 1.0\n0 tempo 120\n0 note C4 dur=1 vel=0.8\n")
	f, bag := Encode(s, EncodeOptions{})
	require.False(t, bag.HasErrors())
	require.Equal(t, uint16(TicksPerQuarter), f.Header.PPQ)

	doc, decodeBag := Decode(f, Options{})
	require.False(t, decodeBag.HasErrors())

	var sawOn, sawOff, sawTempo bool
	for _, e := range doc.Events {
		switch v := e.(type) {
		case record.NoteOn:
			sawOn = true
			require.Equal(t, 60, func() int { m, _ := v.Note.MIDI(); return m }())
		case record.NoteOff:
			sawOff = true
		case record.Tempo:
			if v.BPM == 120 {
				sawTempo = true
			}
		}
	}
	require.True(t, sawOn, "expected a decoded NoteOn")
	require.True(t, sawOff, "expected a decoded NoteOff")
	require.True(t, sawTempo, "expected a decoded 120 BPM tempo")
}

func TestEncodeMicrotonalPitchBend(t *testing.T) {
	// spec §8 scenario S2: a lone +50-cent note on ch=3 rides channel 3's
	// own pitch wheel directly (no shadow channel needed), and +50 cents
	// under the default +/-2 semitone range yields wheel value 10240.
	s := mustStore(t, "mtxt 1.0\n0 note C4+50 ch=3 dur=1\n")
	f, bag := Encode(s, EncodeOptions{})
	require.False(t, bag.HasErrors())
	require.Len(t, f.Tracks, 1, "a lone microtonal note needs no shadow track")

	chans, _, err := parseTrack(f.Tracks[0].Data)
	require.NoError(t, err)

	var sawBend, sawOn bool
	for _, m := range chans {
		if m.status == 0xE && m.channel == 3 && !sawBend {
			sawBend = true
			wheel := int(m.data1) | int(m.data2)<<7
			require.Equal(t, 10240, wheel)
		}
		if m.status == 0x9 && m.channel == 3 {
			sawOn = true
		}
	}
	require.True(t, sawBend, "expected a pitch bend on channel 3")
	require.True(t, sawOn, "expected a NoteOn on channel 3")
}

func TestEncodeMicrotonalConflictUsesShadowChannel(t *testing.T) {
	// spec §4.A: two simultaneous notes on one logical channel with
	// distinct cents must split onto separate physical channels.
	s := mustStore(t, "mtxt 1.0\n0 note C4+50 ch=3 dur=2\n0 note E4-20 ch=3 dur=2\n")
	f, bag := Encode(s, EncodeOptions{})
	require.False(t, bag.HasErrors())
	require.Len(t, f.Tracks, 2, "conflicting cents on one channel should allocate a shadow track")
}

func TestEncodeDecodeChannelOverflowRoundTrips(t *testing.T) {
	// spec §8 scenario S6: a document using ch=20 round-trips via MIDI,
	// recovering logical channel 20 from the meta channelmap event rather
	// than just its 0-15 physical slot.
	s := mustStore(t, "mtxt 1.0\n0 note C4 ch=20 dur=1\n")
	f, bag := Encode(s, EncodeOptions{})
	require.False(t, bag.HasErrors())

	doc, decodeBag := Decode(f, Options{})
	require.False(t, decodeBag.HasErrors())

	var sawCh20 bool
	for _, e := range doc.Events {
		if on, ok := e.(record.NoteOn); ok && on.Channel == 20 {
			sawCh20 = true
		}
	}
	require.True(t, sawCh20, "expected channel 20 to survive the MIDI round trip")
}

func TestEncodeTransitionMissingStartValueIsError(t *testing.T) {
	// spec §3 invariant 4: a transition whose start time (T - tau) has no
	// defined value for its key is a hard error, never a silent fallback.
	s := mustStore(t, "mtxt 1.0\n1 cc volume 0.5 ch=0 transition_time=5.0\n")
	_, bag := Encode(s, EncodeOptions{})
	require.True(t, bag.HasErrors(), "expected an error for an unresolvable transition start value")
}

func TestDecodeNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	trk := Track{Data: append(
		append([]byte{0x00, 0x90, 60, 100}, []byte{0x60, 0x90, 60, 0}...),
		0x00, 0xFF, 0x2F, 0x00,
	)}
	f := &File{Header: Header{Format: Format0, PPQ: 480}, Tracks: []Track{trk}}
	doc, bag := Decode(f, Options{})
	require.False(t, bag.HasErrors())

	var offCount int
	for _, e := range doc.Events {
		if _, ok := e.(record.NoteOff); ok {
			offCount++
		}
	}
	require.Equal(t, 1, offCount)
}

func TestDecodeMergeNotesPairsOnOff(t *testing.T) {
	trk := Track{Data: append(
		append([]byte{0x00, 0x90, 60, 100}, []byte{0x60, 0x80, 60, 0}...),
		0x00, 0xFF, 0x2F, 0x00,
	)}
	f := &File{Header: Header{Format: Format0, PPQ: 480}, Tracks: []Track{trk}}
	doc, bag := Decode(f, Options{MergeNotes: true})
	require.False(t, bag.HasErrors())

	var noteCount int
	for _, e := range doc.Events {
		if _, ok := e.(record.Note); ok {
			noteCount++
		}
	}
	require.Equal(t, 1, noteCount)
}

func TestDecodeProgramChangeToVoice(t *testing.T) {
	trk := Track{Data: append([]byte{0x00, 0xC0, 0}, 0x00, 0xFF, 0x2F, 0x00)}
	f := &File{Header: Header{Format: Format0, PPQ: 480}, Tracks: []Track{trk}}
	doc, bag := Decode(f, Options{})
	require.False(t, bag.HasErrors())

	var voice *record.Voice
	for i := range doc.Events {
		if v, ok := doc.Events[i].(record.Voice); ok {
			voice = &v
		}
	}
	require.NotNil(t, voice)
	require.Equal(t, "Acoustic Grand Piano", voice.Voices[0])
}
