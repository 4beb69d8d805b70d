package script

// Technical levels accepted by script generation.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// LevelNames returns all valid technical level values.
func LevelNames() []string {
	return []string{LevelBeginner, LevelIntermediate, LevelAdvanced}
}

// IsValidLevel returns true if the level name is recognized.
func IsValidLevel(level string) bool {
	for _, l := range LevelNames() {
		if l == level {
			return true
		}
	}
	return false
}

// LevelLabel returns a human-readable label for display.
func LevelLabel(level string) string {
	switch level {
	case LevelBeginner:
		return "Curious Newcomer"
	case LevelAdvanced:
		return "Domain Specialist"
	default:
		return "Technical Generalist"
	}
}

func levelDirective(level string) string {
	switch level {
	case LevelBeginner:
		return `AUDIENCE: Curious listeners with no background in the field. Avoid jargon entirely or define it
the moment it appears. Lean on everyday analogies. Skip equations and exact figures unless they are the headline.`
	case LevelAdvanced:
		return `AUDIENCE: Researchers and practitioners in the field. Use precise terminology without definitions.
Discuss methodology, baselines, ablations and limitations in depth. Quote the key numbers.`
	default:
		return `AUDIENCE: A technical but non-specialist audience. Define field-specific terms briefly, keep the
methodology discussion concrete, and highlight the most important findings and their real-world implications.`
	}
}
