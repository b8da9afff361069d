package beat

import "testing"

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"4", "4"},
		{"4.0", "4"},
		{"2.5", "2.5"},
		{"0.00001", "0.00001"},
		{"1.10000", "1.1"},
		{"120", "120"},
	}
	for _, tc := range cases {
		b, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.in, err)
		}
		if got := b.String(); got != tc.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsNegative(t *testing.T) {
	if _, err := Parse("-1"); err == nil {
		t.Error("expected error parsing negative beat")
	}
}

func TestCmp(t *testing.T) {
	a, _ := Parse("1.5")
	b, _ := Parse("2.0")
	if a.Cmp(b) != -1 {
		t.Error("expected a < b")
	}
	if b.Cmp(a) != 1 {
		t.Error("expected b > a")
	}
	if a.Cmp(a) != 0 {
		t.Error("expected a == a")
	}
}

func TestAddSub(t *testing.T) {
	a, _ := Parse("1.5")
	b, _ := Parse("2.25")
	if got := a.Add(b).String(); got != "3.75" {
		t.Errorf("Add = %s, want 3.75", got)
	}
	if got := b.Sub(a).String(); got != "0.75" {
		t.Errorf("Sub = %s, want 0.75", got)
	}
}
