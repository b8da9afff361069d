package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/record"
)

func mustParse(t *testing.T, src string) *Store {
	t.Helper()
	doc, bag := record.Parse(src)
	require.False(t, bag.HasErrors(), "diagnostics: %v", bag.Errors())
	return New(doc)
}

func TestStoreSortOffBeforeOn(t *testing.T) {
	s := mustParse(t, "mtxt 1.0\n1 noteon C4 ch=0 vel=0.9\n1 noteoff C4 ch=0\n")
	require.Len(t, s.Events(), 2)
	_, isOff := s.Events()[0].(record.NoteOff)
	require.True(t, isOff)
}

func TestStoreRange(t *testing.T) {
	s := mustParse(t, "mtxt 1.0\n0 note C4 ch=0\n1 note D4 ch=0\n2 note E4 ch=0\n")
	sub := s.Range(beatOf(t, "0.5"), beatOf(t, "2"))
	require.Len(t, sub, 1)
	note := sub[0].(record.Note)
	require.Equal(t, "D", note.Notes[0].PitchClass)
}

func TestStoreCloneIndependence(t *testing.T) {
	s := mustParse(t, "mtxt 1.0\n0 note C4 ch=0\n")
	c := s.Clone()
	c.Append(s.Events()[0])
	require.Equal(t, 1, s.Len())
	require.Equal(t, 2, c.Len())
}

func TestStoreLatestValueBefore(t *testing.T) {
	s := mustParse(t, "mtxt 1.0\n0 cc volume 0.2 ch=0\n2 cc volume 0.6 ch=0\n")
	val, _, ok := s.LatestValueBefore(Key{Channel: 0, Controller: "volume"}, beatOf(t, "1.5"))
	require.True(t, ok)
	require.Equal(t, 0.2, val)

	val2, _, ok2 := s.LatestValueBefore(Key{Channel: 0, Controller: "volume"}, beatOf(t, "2"))
	require.True(t, ok2)
	require.Equal(t, 0.6, val2)

	_, _, ok3 := s.LatestValueBefore(Key{Channel: 1, Controller: "volume"}, beatOf(t, "5"))
	require.False(t, ok3)
}

func TestStoreLatestValueBeforeTempo(t *testing.T) {
	s := mustParse(t, "mtxt 1.0\n0 tempo 100\n4 tempo 140\n")
	val, _, ok := s.LatestValueBefore(Key{Controller: "tempo"}, beatOf(t, "4"))
	require.True(t, ok)
	require.Equal(t, 140.0, val)
}

func beatOf(t *testing.T, s string) beat.Beat {
	t.Helper()
	b, err := beat.Parse(s)
	require.NoError(t, err)
	return b
}
