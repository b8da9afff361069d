package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunMtxtToMidiToMtxt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "song.mtxt")
	mid := filepath.Join(dir, "song.mid")
	back := filepath.Join(dir, "song2.mtxt")

	writeFile(t, src, "mtxt 1.0\n0 tempo 120\n0 noteon C4 ch=0 vel=0.8\n1 noteoff C4 ch=0\n")

	opts := &options{}
	if err := run(src, mid, opts); err != nil {
		t.Fatalf("mtxt -> mid: %v", err)
	}
	if err := run(mid, back, opts); err != nil {
		t.Fatalf("mid -> mtxt: %v", err)
	}

	got := readFile(t, back)
	if !strings.Contains(got, "C4") {
		t.Errorf("round-tripped text missing note C4, got:\n%s", got)
	}
}

func TestRunTransposeShiftsOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "song.mtxt")
	out := filepath.Join(dir, "out.mtxt")
	writeFile(t, src, "mtxt 1.0\n0 noteon C4 ch=0\n")

	opts := &options{transpose: 2}
	if err := run(src, out, opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := readFile(t, out)
	if !strings.Contains(got, "D4") {
		t.Errorf("expected transposed D4 in output, got:\n%s", got)
	}
}

func TestRunRejectsConflictingDirectiveFlags(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "song.mtxt")
	out := filepath.Join(dir, "out.mtxt")
	writeFile(t, src, "mtxt 1.0\n0 noteon C4 ch=0\n")

	opts := &options{applyDirectives: true, extractDirectives: true}
	err := run(src, out, opts)
	if err == nil {
		t.Fatal("expected an error for conflicting flags")
	}
	if exitCode(err) != 64 {
		t.Errorf("exitCode = %d, want 64", exitCode(err))
	}
}

func TestRunParseErrorExitsOne(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.mtxt")
	out := filepath.Join(dir, "out.mid")
	writeFile(t, src, "not a valid mtxt document\n")

	err := run(src, out, &options{})
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if code := exitCode(err); code != 1 {
		t.Errorf("exitCode = %d, want 1", code)
	}
}

func TestRunMissingInputFileExitsTwo(t *testing.T) {
	dir := t.TempDir()
	err := run(filepath.Join(dir, "missing.mtxt"), filepath.Join(dir, "out.mid"), &options{})
	if err == nil {
		t.Fatal("expected an I/O error")
	}
	if code := exitCode(err); code != 2 {
		t.Errorf("exitCode = %d, want 2", code)
	}
}

func TestParseChannelSet(t *testing.T) {
	set, err := parseChannelSet("0, 2,4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []int{0, 2, 4} {
		if !set[want] {
			t.Errorf("channel %d missing from parsed set", want)
		}
	}
	if set[1] {
		t.Error("channel 1 should not be present")
	}
}

func TestParseChannelSetRejectsGarbage(t *testing.T) {
	if _, err := parseChannelSet("0,nope"); err == nil {
		t.Fatal("expected an error for a non-numeric channel id")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writeFile(%s): %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("readFile(%s): %v", path, err)
	}
	return string(data)
}
