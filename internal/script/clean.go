package script

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	boldRe      = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	underBoldRe = regexp.MustCompile(`__([^_\n]+?)__`)
	italicRe    = regexp.MustCompile(`\*([^*\s](?:[^*\n]*[^*\s])?)\*`)

	separatorRe   = regexp.MustCompile(`^[-=*#_\s]*[-=*#_][-=*#_\s]*$`)
	headerRe      = regexp.MustCompile(`^#{1,6}\s`)
	durationRe    = regexp.MustCompile(`(?i)\(\s*~?\d+(\.\d+)?\s*(seconds?|secs?|minutes?|mins?)\s*\)`)
	durationLine  = regexp.MustCompile(`(?i)^(estimated\s+)?(total|runtime|duration|length)(\s+\w+)?\s*:\s*~?\d+.*\b(minutes?|mins?)\b`)
	labelPrefixRe = regexp.MustCompile(`(?i)^(host|expert)\s*:`)
	labelOnlyRe   = regexp.MustCompile(`(?i)^(host|expert)\s*:$`)
)

// metaPhrases mark lines where the model talks about the script instead of
// speaking it.
var metaPhrases = []string{
	"i can't reproduce",
	"i cannot reproduce",
	"copyrighted material",
	"as an ai language model",
	"here is the podcast script",
	"here's the podcast script",
	"here is your podcast script",
	"end of script",
	"end of transcript",
	"[music",
	"word count:",
}

// minJunkRunes is the length below which an unpunctuated, unlabelled line is
// considered formatting debris.
const minJunkRunes = 15

// Clean strips markdown emphasis, headers, separators, timing annotations and
// model meta-commentary from a raw transcript. It never fails and is
// idempotent.
func Clean(raw string) string {
	text := stripEmphasis(raw)

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	// A turn whose label sits alone on the line above is still a turn.
	afterLabel := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			kept = append(kept, "")
			continue
		}
		if cleaned, ok := cleanLine(line, afterLabel); ok {
			kept = append(kept, cleaned)
			afterLabel = labelOnlyRe.MatchString(cleaned)
		}
	}

	return collapseBlankLines(kept)
}

func stripEmphasis(s string) string {
	for {
		next := boldRe.ReplaceAllString(s, "$1")
		next = underBoldRe.ReplaceAllString(next, "$1")
		next = italicRe.ReplaceAllString(next, "$1")
		if next == s {
			return s
		}
		s = next
	}
}

// cleanLine returns the line to keep, or false when the line is dropped.
// labelled reports that the line opens a turn whose label came before it.
func cleanLine(line string, labelled bool) (string, bool) {
	if separatorRe.MatchString(line) || headerRe.MatchString(line) {
		return "", false
	}
	if durationLine.MatchString(line) {
		return "", false
	}

	if durationRe.MatchString(line) {
		line = strings.Join(strings.Fields(durationRe.ReplaceAllString(line, " ")), " ")
		rest := strings.TrimSpace(labelPrefixRe.ReplaceAllString(line, ""))
		if rest == "" {
			return "", false
		}
		// The stripped line may now be a separator or another annotation.
		return cleanLine(line, labelled)
	}

	lower := strings.ToLower(line)
	for _, phrase := range metaPhrases {
		if strings.Contains(lower, phrase) {
			return "", false
		}
	}

	if !labelled && isJunk(line) {
		return "", false
	}
	return line, true
}

// isJunk flags short fragments without sentence punctuation. Labelled turns
// are exempt so that "Host: Wow" survives; Clean exempts "Host:\nWow" too.
func isJunk(line string) bool {
	if labelPrefixRe.MatchString(line) {
		return false
	}
	if utf8.RuneCountInString(line) >= minJunkRunes {
		return false
	}
	return !strings.ContainsAny(line, ".!?")
}

func collapseBlankLines(lines []string) string {
	var b strings.Builder
	blank := false
	for _, line := range lines {
		if line == "" {
			blank = true
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(line)
		blank = false
	}
	return b.String()
}
