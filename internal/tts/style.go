package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Style is the delivery category inferred from an utterance.
type Style int

const (
	Neutral Style = iota
	Excited
	Questioning
	Technical
	Conversational
)

func (s Style) String() string {
	switch s {
	case Excited:
		return "excited"
	case Questioning:
		return "questioning"
	case Technical:
		return "technical"
	case Conversational:
		return "conversational"
	default:
		return "neutral"
	}
}

var (
	excitementWords = []string{
		"amazing", "incredible", "fascinating", "wow", "remarkable", "breakthrough",
		"exciting", "astonishing", "extraordinary", "stunning", "mind-blowing", "huge",
		"game-changer", "unbelievable", "brilliant",
	}
	questionWords = []string{
		"what", "why", "how", "when", "where", "who", "which", "wonder",
	}
	technicalTerms = []string{
		"algorithm", "model", "dataset", "parameter", "parameters", "neural", "network",
		"architecture", "optimization", "gradient", "hypothesis", "statistical",
		"methodology", "framework", "benchmark", "transformer", "accuracy", "variance",
		"coefficient", "empirical", "regression", "quantum", "protein", "genome", "equation",
	}
	conversationalFillers = []string{
		"you know", "i mean", "like", "well", "so", "actually", "basically", "right",
		"kind of", "sort of", "honestly", "okay",
	}
	exampleMarkers = []string{
		"for example", "for instance", "such as", "imagine", "think of", "e.g.", "say you",
	}
)

// styleSettings maps each style to its base synthesis parameters.
var styleSettings = map[Style]VoiceSettings{
	Excited:        {Stability: 0.30, Style: 0.65, SimilarityBoost: 0.80, SpeakerBoost: true},
	Questioning:    {Stability: 0.40, Style: 0.45, SimilarityBoost: 0.75, SpeakerBoost: true},
	Technical:      {Stability: 0.60, Style: 0.20, SimilarityBoost: 0.85, SpeakerBoost: true},
	Conversational: {Stability: 0.45, Style: 0.40, SimilarityBoost: 0.75, SpeakerBoost: true},
	Neutral:        {Stability: 0.50, Style: 0.30, SimilarityBoost: 0.75, SpeakerBoost: true},
}

const (
	longUtteranceRunes = 200
	longStabilityBoost = 0.10
	maxStability       = 0.85
)

// Classification is the classifier output for one utterance.
type Classification struct {
	Style    Style
	Settings VoiceSettings
}

// Classify derives a delivery style and synthesis parameters from text. It
// is pure and total.
func Classify(text string) Classification {
	lower := strings.ToLower(text)

	style := Neutral
	switch {
	case countPhrases(lower, excitementWords) > 2 || strings.Count(text, "!") > 2:
		style = Excited
	case countPhrases(lower, questionWords) > 2 || strings.Count(text, "?") > 2:
		style = Questioning
	case countPhrases(lower, technicalTerms) > 3:
		style = Technical
	case countPhrases(lower, conversationalFillers) > 3 || countPhrases(lower, exampleMarkers) > 1:
		style = Conversational
	}

	settings := styleSettings[style]
	if utf8.RuneCountInString(text) > longUtteranceRunes {
		settings.Stability = min(settings.Stability+longStabilityBoost, maxStability)
	}
	return Classification{Style: style, Settings: settings}
}

// countPhrases counts whole-word occurrences of each phrase in lower.
func countPhrases(lower string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		for from := 0; ; {
			i := strings.Index(lower[from:], p)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(p)
			if boundaryBefore(lower, start) && boundaryAfter(lower, end) {
				n++
			}
			from = end
		}
	}
	return n
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
