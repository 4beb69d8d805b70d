package script

import (
	"strings"
	"unicode"
)

// Shorten bounds text to at most targetWords whitespace-delimited words,
// preferring to cut at the last sentence terminator inside the window. A
// target of zero or less means no limit. Whitespace inside the window,
// including paragraph breaks, is preserved.
func Shorten(text string, targetWords int) string {
	if targetWords <= 0 {
		return text
	}

	end, truncated := wordWindowEnd(text, targetWords)
	if !truncated {
		return text
	}

	window := text[:end]
	if cut := strings.LastIndexAny(window, ".!?"); cut >= 0 {
		window = window[:cut+1]
	}
	return strings.TrimRightFunc(window, unicode.IsSpace)
}

// WordCount counts whitespace-delimited words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// wordWindowEnd returns the byte offset just past the n-th word, and whether
// any word follows it.
func wordWindowEnd(text string, n int) (int, bool) {
	words := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord && words == n {
				return i, strings.TrimSpace(text[i:]) != ""
			}
			inWord = false
			continue
		}
		if !inWord {
			inWord = true
			words++
		}
	}
	return len(text), false
}
