package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes is a conservative per-message length used when
// splitting; Telegram's hard limit is 4096 characters.
const MaxMessageRunes = 4000

// TruncRunes returns s truncated to at most n runes, with an ellipsis
// when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// SplitRunes splits s into chunks of at most limit runes, preferring a
// newline boundary in the tail third of each window so lines stay
// intact. limit <= 0 falls back to MaxMessageRunes.
func SplitRunes(s string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}

	var chunks []string
	start := 0
	for start < len(s) {
		runes := 0
		end := start
		lastNL := -1
		lastNLRunes := 0
		for end < len(s) && runes < limit {
			r, size := utf8.DecodeRuneInString(s[end:])
			if r == '\n' {
				lastNL = end + size
				lastNLRunes = runes + 1
			}
			runes++
			end += size
		}
		if end < len(s) && lastNL != -1 && lastNLRunes >= limit/3 {
			end = lastNL
		}
		chunk := strings.TrimRight(s[start:end], "\n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = end
		for start < len(s) {
			r, size := utf8.DecodeRuneInString(s[start:])
			if r != '\n' {
				break
			}
			start += size
		}
	}
	return chunks
}
