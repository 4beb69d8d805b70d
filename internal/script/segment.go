package script

import (
	"regexp"
	"strings"
)

var (
	labelRe     = regexp.MustCompile(`(?i)\b(host|expert)\s*:`)
	labelLeakRe = regexp.MustCompile(`(?i)(host|expert)\s*:`)
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
)

// chunkChars is the size a fallback chunk must exceed before it may close
// on a sentence terminator.
const chunkChars = 600

// Segment splits a cleaned transcript into ordered speaker utterances. It
// tries explicit HOST:/EXPERT: labels first, then blank-line paragraphs,
// then sentence-aligned chunks. The returned Tier says which one fired.
func Segment(cleaned string) Segmentation {
	if utts := splitLabels(cleaned); len(utts) > 0 {
		return Segmentation{Tier: LabelDelimited, Utterances: utts}
	}
	if utts := splitParagraphs(cleaned); len(utts) > 1 {
		return Segmentation{Tier: ParagraphFallback, Utterances: utts}
	}
	return Segmentation{Tier: ChunkFallback, Utterances: splitChunks(cleaned)}
}

func splitLabels(text string) []Utterance {
	locs := labelRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var utts []Utterance
	for i, loc := range locs {
		speaker, _ := ParseSpeaker(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if body := normalizeUtterance(text[loc[1]:end]); body != "" {
			utts = append(utts, Utterance{Speaker: speaker, Text: body})
		}
	}
	return utts
}

func splitParagraphs(text string) []Utterance {
	var utts []Utterance
	for _, p := range paragraphRe.Split(text, -1) {
		if body := normalizeUtterance(p); body != "" {
			utts = append(utts, Utterance{Speaker: Expert, Text: body})
		}
	}
	return utts
}

func splitChunks(text string) []Utterance {
	var (
		utts  []Utterance
		chunk []string
		size  int
	)
	flush := func() {
		if body := normalizeUtterance(strings.Join(chunk, " ")); body != "" {
			utts = append(utts, Utterance{Speaker: Expert, Text: body})
		}
		chunk, size = chunk[:0], 0
	}

	for _, w := range strings.Fields(text) {
		if len(chunk) > 0 {
			size++
		}
		chunk = append(chunk, w)
		size += len(w)
		if size > chunkChars && strings.ContainsAny(w[len(w)-1:], ".!?") {
			flush()
		}
	}
	if len(chunk) > 0 {
		flush()
	}
	return utts
}

// normalizeUtterance removes leftover label tokens (including ones glued to
// a preceding word) and collapses whitespace. Removing one token can expose
// another ("HOSTEXPERT::" leaves "HOST :"), so it repeats until none match.
func normalizeUtterance(s string) string {
	for labelLeakRe.MatchString(s) {
		s = labelLeakRe.ReplaceAllString(s, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}
