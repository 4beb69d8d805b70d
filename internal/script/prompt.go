package script

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an expert science communicator who writes engaging two-person podcast scripts about research papers.

SPEAKERS:
%s
%s
RULES:
1. Stay faithful to the source material. Do not invent results, numbers or citations.
2. Both speakers participate throughout. The Host guides and asks; the Expert explains.
3. Open with a hook about why this research matters, cover the problem, the approach, the key
   findings and the real-world implications, then close with takeaways for listeners.
4. Use natural spoken language: contractions, brief reactions, varied sentence length.
5. Never read out stage directions, timings, sound cues or section headings.

OUTPUT FORMAT:
Plain text only. Every turn starts on a new line with its speaker label:
Host: [dialogue]
Expert: [dialogue]
No markdown, no titles, no notes before or after the dialogue.`

func buildSystemPrompt(req Request) string {
	return fmt.Sprintf(systemPrompt,
		HostPersona(req.HostPersona).promptBlock("Host"),
		ExpertPersona(req.ExpertPersona).promptBlock("Expert"))
}

func buildUserPrompt(req Request) string {
	var b strings.Builder

	b.WriteString(`<scratchpad>
Before writing, note the 3-5 ideas a listener must walk away with and plan the arc from hook to takeaways.
</scratchpad>

Write the podcast script for the following paper.

`)
	b.WriteString(levelDirective(req.TechnicalLevel))
	b.WriteString("\n\n")

	if len(req.CustomTopics) > 0 {
		b.WriteString("FOCUS: Make sure the conversation covers: ")
		b.WriteString(strings.Join(req.CustomTopics, "; "))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "TARGET LENGTH: %s\n\n", lengthGuidance(req.TargetWords))

	if p := req.Paper; p != nil {
		fmt.Fprintf(&b, "Paper Title: %s\n", p.Title)
		if len(p.Authors) > 0 {
			fmt.Fprintf(&b, "Authors: %s\n", strings.Join(p.Authors, ", "))
		}
		if p.Abstract != "" {
			fmt.Fprintf(&b, "Abstract: %s\n", p.Abstract)
		}
		b.WriteString("\n")
	}

	if req.Text != "" {
		b.WriteString("SOURCE MATERIAL:\n")
		b.WriteString(req.Text)
	}
	return b.String()
}

// lengthGuidance turns a word target into prompt language. Zero means the
// default 5-7 minute episode.
func lengthGuidance(targetWords int) string {
	if targetWords <= 0 {
		return "around 800-1000 words (a 5-7 minute episode)"
	}
	return fmt.Sprintf("about %d words (roughly %d minutes of audio)", targetWords, max(1, targetWords/150))
}

func maxTokensForWords(targetWords int) int64 {
	switch {
	case targetWords <= 1500:
		return 4096
	case targetWords <= 4000:
		return 8192
	default:
		return 16384
	}
}
