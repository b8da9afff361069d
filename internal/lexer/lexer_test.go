package lexer

import "testing"

func TestTokenizeBasic(t *testing.T) {
	toks, err := Tokenize("note time=1.5 dur=0.5 C4 vel=100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Kind{KindIdent, KindKV, KindKV, KindIdent, KindKV, KindEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %v, want %v (%+v)", i, toks[i].Kind, k, toks[i])
		}
	}
	if toks[1].Key != "time" || toks[1].Value != "1.5" {
		t.Errorf("kv token = %+v, want key=time value=1.5", toks[1])
	}
}

func TestTokenizeComment(t *testing.T) {
	toks, err := Tokenize("tempo bpm=120 // set the groove")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := toks[len(toks)-2]
	if last.Kind != KindComment || last.Value != "set the groove" {
		t.Errorf("comment token = %+v", last)
	}
}

func TestTokenizeCommentAtLineStart(t *testing.T) {
	toks, err := Tokenize("// whole line comment")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 2 || toks[0].Kind != KindComment {
		t.Fatalf("got %+v", toks)
	}
	if toks[0].Value != "whole line comment" {
		t.Errorf("comment value = %q", toks[0].Value)
	}
}

func TestTokenizeURLNotComment(t *testing.T) {
	toks, err := Tokenize(`meta url=https://example.com/path`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 3 {
		t.Fatalf("got %d tokens, want 3 (ident, kv, eof): %+v", len(toks), toks)
	}
	if toks[1].Kind != KindKV || toks[1].Value != "https://example.com/path" {
		t.Errorf("url kv token = %+v", toks[1])
	}
}

func TestTokenizeSlashFraction(t *testing.T) {
	toks, err := Tokenize("timesig num=3/4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[1].Kind != KindKV || toks[1].Value != "3/4" {
		t.Errorf("fraction kv = %+v", toks[1])
	}
}

func TestTokenizeNumberBare(t *testing.T) {
	toks, err := Tokenize("-1.5 2 +3.25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if toks[i].Kind != KindNumber {
			t.Errorf("token %d: got %v, want number (%+v)", i, toks[i].Kind, toks[i])
		}
	}
}

func TestTokenizeInvalidToken(t *testing.T) {
	if _, err := Tokenize("foo $bar"); err == nil {
		t.Error("expected error for unrecognized token")
	}
}

func TestTokenizeEmptyKVValue(t *testing.T) {
	if _, err := Tokenize("note time="); err == nil {
		t.Error("expected error for empty kv value")
	}
}

func TestTokenizeNoteWithCentsAndAccidental(t *testing.T) {
	toks, err := Tokenize("C4+50 F#3 Bb-1 D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, text := range []string{"C4+50", "F#3", "Bb-1", "D"} {
		if toks[i].Kind != KindIdent {
			t.Errorf("token %d (%q): got %v, want identifier", i, text, toks[i].Kind)
		}
		if toks[i].Text != text {
			t.Errorf("token %d: got %q, want %q", i, toks[i].Text, text)
		}
	}
}

func TestTokenizeMetaValue(t *testing.T) {
	val, comment := TokenizeMetaValue("Some Song Title // by an author")
	if val != "Some Song Title" || comment != "by an author" {
		t.Errorf("got value=%q comment=%q", val, comment)
	}
	val2, comment2 := TokenizeMetaValue("https://example.com/a//b")
	if val2 != "https://example.com/a//b" || comment2 != "" {
		t.Errorf("meta value URL should not be split: got value=%q comment=%q", val2, comment2)
	}
}
