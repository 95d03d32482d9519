package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hell…"},
		{"привет", 3, "при…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestSplitRunesShort(t *testing.T) {
	t.Parallel()

	got := SplitRunes("short", 100)
	if len(got) != 1 || got[0] != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitRunesPrefersNewlines(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("строка напоминания номер\n")
	}
	chunks := SplitRunes(sb.String(), 200)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 200 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, utf8.RuneCountInString(c))
		}
		if strings.Contains(c, "номерстрока") {
			t.Fatalf("chunk %d split mid-line: %q", i, c)
		}
	}
	joined := strings.Join(chunks, "\n")
	if !strings.Contains(joined, "строка напоминания номер") {
		t.Fatalf("content lost")
	}
}

func TestBuilderEscapesHTML(t *testing.T) {
	t.Parallel()

	m := New().Title("", "t").Line("<b>raw</b>").KV("k", "a<b").Build()
	if strings.Contains(m.Text, "<b>raw</b>") {
		t.Fatalf("line not escaped: %q", m.Text)
	}
	if !strings.Contains(m.Text, "&lt;b&gt;raw&lt;/b&gt;") {
		t.Fatalf("escaped form missing: %q", m.Text)
	}
	if m.Opt == nil || m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Fatalf("opts = %+v", m.Opt)
	}
}
