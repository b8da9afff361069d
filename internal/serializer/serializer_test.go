package serializer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/store"
)

func mustStore(t *testing.T, src string) *store.Store {
	t.Helper()
	doc, bag := record.Parse(src)
	if bag.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", bag.Errors())
	}
	return store.New(doc)
}

func TestFormatMinimalRoundTrip(t *testing.T) {
	s := mustStore(t, "mtxt 1.0\n0 tempo 120\n0 note C4 ch=2 dur=1 vel=0.8\n")
	out, bag := Format(s, Options{})
	if bag.HasErrors() {
		t.Fatalf("unexpected format errors: %v", bag.Errors())
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "mtxt 1.0" {
		t.Fatalf("first line = %q, want version header", lines[0])
	}
	if !strings.Contains(out, "tempo 120") {
		t.Errorf("missing tempo line in output:\n%s", out)
	}
	if !strings.Contains(out, "note C4 ch=2 vel=0.8 offvel=1 dur=1") {
		t.Errorf("unexpected note line in output:\n%s", out)
	}

	// The emitted text must itself parse back cleanly.
	doc2, bag2 := record.Parse(out)
	if bag2.HasErrors() {
		t.Fatalf("round-tripped text failed to parse: %v\n---\n%s", bag2.Errors(), out)
	}
	if doc2.Version.Major != 1 {
		t.Errorf("round-tripped version = %+v", doc2.Version)
	}
}

func TestFormatExtractDirectivesOmitsMatchingInline(t *testing.T) {
	s := mustStore(t, "mtxt 1.0\n"+
		"0 note C4 ch=2 dur=1\n"+
		"1 note D4 ch=2 dur=1\n"+
		"2 note E4 ch=2 dur=1\n"+
		"3 note F4 ch=9 dur=1\n")
	out, bag := Format(s, Options{ExtractDirectives: true})
	if bag.HasErrors() {
		t.Fatalf("unexpected format errors: %v", bag.Errors())
	}
	if !strings.Contains(out, "default ch=2") {
		t.Errorf("expected extracted majority default ch=2, got:\n%s", out)
	}
	if strings.Contains(out, "note C4 ch=2") {
		t.Errorf("majority channel should be omitted from matching inline note, got:\n%s", out)
	}
	if !strings.Contains(out, "note F4 ch=9") {
		t.Errorf("non-majority channel must stay inline, got:\n%s", out)
	}
}

func TestFormatIndentAlignsTimeColumn(t *testing.T) {
	s := mustStore(t, "mtxt 1.0\n0 note C4 ch=0 dur=1\n10.5 note D4 ch=0 dur=1\n")
	out, bag := Format(s, Options{Indent: true})
	if bag.HasErrors() {
		t.Fatalf("unexpected format errors: %v", bag.Errors())
	}
	var noteLines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.Contains(l, "note") {
			noteLines = append(noteLines, l)
		}
	}
	if len(noteLines) != 2 {
		t.Fatalf("expected 2 note lines, got %d:\n%s", len(noteLines), out)
	}
	col := strings.Index(noteLines[0], "note")
	for _, l := range noteLines {
		if strings.Index(l, "note") != col {
			t.Errorf("time columns not aligned: %q vs %q", noteLines[0], l)
		}
	}
}

func TestFormatMultiPitchNoteSplitsLines(t *testing.T) {
	s := mustStore(t, "mtxt 1.0\nalias power C4 G4\n0 note power ch=0 dur=1\n")
	out, bag := Format(s, Options{})
	if bag.HasErrors() {
		t.Fatalf("unexpected format errors: %v", bag.Errors())
	}
	if !strings.Contains(out, "note C4") || !strings.Contains(out, "note G4") {
		t.Errorf("expected both expanded pitches as separate note lines, got:\n%s", out)
	}
}

func TestStreamWriterEmitsHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	sw := NewStreamWriter(&buf, record.Version{Major: 1, Minor: 0})
	if err := sw.Write(record.Tempo{BPM: 120}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sw.Write(record.TimeSig{Num: 4, Den: 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "mtxt 1.0") != 1 {
		t.Errorf("expected exactly one version header, got:\n%s", out)
	}
	if !strings.Contains(out, "tempo 120") || !strings.Contains(out, "timesig 4/4") {
		t.Errorf("missing expected lines:\n%s", out)
	}
}
