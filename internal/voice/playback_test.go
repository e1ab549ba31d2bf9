package voice

import (
	"strings"
	"testing"
)

func TestPrepareSpeechShortTextUntouched(t *testing.T) {
	got := prepareSpeech("The weather is sunny today.", 2800)
	if got != "The weather is sunny today." {
		t.Fatalf("prepareSpeech() = %q", got)
	}
}

func TestPrepareSpeechTruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", 5000)
	got := prepareSpeech(long, 2800)
	if len([]rune(got)) != 2800+len(speechEllipsis) {
		t.Fatalf("len = %d, want %d", len([]rune(got)), 2800+len(speechEllipsis))
	}
	if !strings.HasSuffix(got, speechEllipsis) {
		t.Fatalf("truncated speech missing ellipsis suffix")
	}
}

func TestPrepareSpeechTruncatesAfterSanitizing(t *testing.T) {
	// Markup is stripped first, so a reply that only exceeds the limit
	// because of markdown noise is spoken in full.
	text := "**" + strings.Repeat("b", 100) + "**"
	got := prepareSpeech(text, 100)
	if got != strings.Repeat("b", 100) {
		t.Fatalf("prepareSpeech() = %q", got)
	}
}

func TestSanitizeSpeechTextStripsMarkup(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Check [the docs](https://example.com/docs) for more", "Check the docs for more"},
		{"Use `go run` and see https://example.com", "Use and see"},
		{"**bold** and _underline_", "bold and underline"},
		{"line one\n\nline two", "line one line two"},
		{"all good \U0001F600!", "all good !"},
	}
	for _, tc := range cases {
		if got := sanitizeSpeechText(tc.in); got != tc.want {
			t.Errorf("sanitizeSpeechText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeSpeechTextDropsCodeBlocks(t *testing.T) {
	in := "Run this:\n```\nrm -rf build\n```\nthen retry."
	got := sanitizeSpeechText(in)
	if strings.Contains(got, "rm -rf") {
		t.Fatalf("code block not removed: %q", got)
	}
	if !strings.Contains(got, "then retry.") {
		t.Fatalf("surrounding text lost: %q", got)
	}
}
