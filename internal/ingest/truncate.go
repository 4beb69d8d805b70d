package ingest

// DefaultMaxChars bounds the paper text handed to a script generator.
const DefaultMaxChars = 15000

const omissionMarker = "\n\n[... middle sections omitted for brevity ...]\n\n"

// SmartTruncate keeps the opening 40% and closing 20% of the character
// budget so that the introduction and conclusion survive. Text within the
// budget is returned unchanged.
func SmartTruncate(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	head := maxChars * 40 / 100
	tail := maxChars * 20 / 100
	return string(runes[:head]) + omissionMarker + string(runes[len(runes)-tail:])
}
