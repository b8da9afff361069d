package midi

import "testing"

func TestVarLenRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 0x7F, 0x80, 0x2000, 0x3FFF, 0x200000, 0xFFFFFFF}
	for _, v := range cases {
		enc := varLen(v)
		got, next, err := readVarLen(enc, 0)
		if err != nil {
			t.Fatalf("readVarLen(%d) error: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %x -> %d", v, enc, got)
		}
		if next != len(enc) {
			t.Errorf("readVarLen consumed %d bytes, want %d", next, len(enc))
		}
	}
}

func TestReadWriteSMF(t *testing.T) {
	f := &File{
		Header: Header{Format: Format0, PPQ: 480},
		Tracks: []Track{{Data: []byte{0x00, 0xFF, 0x2F, 0x00}}},
	}
	raw := WriteSMF(f)
	parsed, err := ReadSMF(raw)
	if err != nil {
		t.Fatalf("ReadSMF: %v", err)
	}
	if parsed.Header.PPQ != 480 || parsed.Header.Format != Format0 {
		t.Errorf("header mismatch: %+v", parsed.Header)
	}
	if len(parsed.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(parsed.Tracks))
	}
}

func TestUsPerQuarterToBPM(t *testing.T) {
	got := usPerQuarterToBPM(500000)
	if got < 119.9 || got > 120.1 {
		t.Errorf("usPerQuarterToBPM(500000) = %v, want ~120", got)
	}
}
