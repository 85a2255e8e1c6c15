package match

import "testing"

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"APPEARANCEDESCRIPTION", "APEARANCEDESCRPTION", 2},
	}
	for _, tc := range cases {
		if got := Distance(tc.a, tc.b); got != tc.want {
			t.Fatalf("Distance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if sym := Distance(tc.b, tc.a); sym != tc.want {
			t.Fatalf("Distance(%q, %q) = %d, want %d", tc.b, tc.a, sym, tc.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("", ""); got != 1 {
		t.Fatalf("two empty strings must score 1, got %v", got)
	}
	if got := Similarity("ABC", "ABC"); got != 1 {
		t.Fatalf("identical strings must score 1, got %v", got)
	}
	if got := Similarity("ABC", "XYZ"); got != 0 {
		t.Fatalf("disjoint strings of equal length must score 0, got %v", got)
	}
	got := Similarity("APPEARANCEDESCRIPTION", "APEARANCEDESCRPTION")
	if got <= 0.4 || got >= 1 {
		t.Fatalf("near-miss similarity out of expected band: %v", got)
	}
}

func TestSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"A", "ZZZZZZZZZZ"},
		{"SHORT", "MUCHLONGERSTRING"},
		{"", "X"},
	}
	for _, p := range pairs {
		got := Similarity(p[0], p[1])
		if got < 0 || got > 1 {
			t.Fatalf("Similarity(%q, %q) = %v outside [0,1]", p[0], p[1], got)
		}
	}
}
