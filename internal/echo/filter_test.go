package echo

import "testing"

func TestIsEchoExactCaseInsensitive(t *testing.T) {
	cases := []struct {
		candidate string
		reference string
	}{
		{"hello there", "hello there"},
		{"Hello There", "hello there"},
		{"EL CLIMA ES SOLEADO", "el clima es soleado"},
		{"  trailing space ", "trailing space"},
	}
	for _, tc := range cases {
		if !IsEcho(tc.candidate, tc.reference) {
			t.Fatalf("IsEcho(%q, %q) = false, want true", tc.candidate, tc.reference)
		}
	}
}

func TestIsEchoLargeSubstring(t *testing.T) {
	ref := "el clima es soleado hoy"
	// 19 of 23 chars, ratio > 0.8.
	if !IsEcho("el clima es soleado", ref) {
		t.Fatalf("IsEcho(large substring) = false, want true")
	}
}

func TestIsEchoSmallSubstringNotEcho(t *testing.T) {
	ref := "the quarterly forecast shows strong growth across all regions"
	if IsEcho("the", ref) {
		t.Fatalf("IsEcho(tiny substring) = true, want false")
	}
}

func TestIsEchoTokenOverlap(t *testing.T) {
	ref := "tomorrow the weather will be sunny with light winds"
	// All significant tokens appear, slightly misheard.
	if !IsEcho("tomorow weather wil be suny with light winds", ref) {
		t.Fatalf("IsEcho(fuzzy token overlap) = false, want true")
	}
}

func TestIsEchoUnrelatedText(t *testing.T) {
	ref := "the capital of france is paris"
	cases := []string{
		"what time is it",
		"play some music please",
		"remind me about groceries",
	}
	for _, cand := range cases {
		if IsEcho(cand, ref) {
			t.Fatalf("IsEcho(%q, %q) = true, want false", cand, ref)
		}
	}
}

func TestIsEchoEmptyInputs(t *testing.T) {
	if IsEcho("", "anything") {
		t.Fatalf("IsEcho(empty candidate) = true, want false")
	}
	if IsEcho("anything", "") {
		t.Fatalf("IsEcho(empty reference) = true, want false")
	}
}

func TestIsEchoShortTokensOnly(t *testing.T) {
	// No token longer than 3 chars on either side: token rule must not fire.
	if IsEcho("a be ce do", "if on at we go") {
		t.Fatalf("IsEcho(short tokens) = true, want false")
	}
}

func TestEditDistanceBasics(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "ab", 1},
		{"abc", "xabc", 1},
		{"kitten", "sitting", 3},
		{"soleado", "soleada", 1},
	}
	for _, tc := range cases {
		if got := editDistance(tc.a, tc.b); got != tc.want {
			t.Fatalf("editDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestEditDistanceSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"hola", "hole"},
		{"weather", "whether"},
		{"", "abc"},
		{"soleado", "nublado"},
	}
	for _, p := range pairs {
		ab := editDistance(p[0], p[1])
		ba := editDistance(p[1], p[0])
		if ab != ba {
			t.Fatalf("editDistance(%q, %q) = %d but reversed = %d", p[0], p[1], ab, ba)
		}
	}
}

func TestEditDistanceSelfZero(t *testing.T) {
	for _, s := range []string{"", "a", "hola como estas", "ñandú"} {
		if got := editDistance(s, s); got != 0 {
			t.Fatalf("editDistance(%q, %q) = %d, want 0", s, s, got)
		}
	}
}
