package script

import (
	"fmt"
	"sort"
	"strings"
)

// Persona shapes how one of the two roles speaks in a generated transcript.
type Persona struct {
	Key           string
	FullName      string
	Background    string
	SpeakingStyle string
	Catchphrases  string
}

// hostPersonas are selectable for the Host role.
var hostPersonas = map[string]Persona{
	"curious": {
		Key:      "curious",
		FullName: "Alex Chen",
		Background: `Former science journalist who started as a software engineer. Translates dense research into
vivid, relatable ideas and is known for "aha moment" explanations.`,
		SpeakingStyle: `Uses analogies and unexpected connections. Builds explanations in layers, starting simple.
Asks the questions a smart listener would ask, then summarizes the answer in plain words.`,
		Catchphrases: `"Think of it this way...", "OK so picture this...", "Wait, let me back up for a second..."`,
	},
	"storyteller": {
		Key:      "storyteller",
		FullName: "Alex Beaumont",
		Background: `Public radio correspondent for twelve years, covering how technology lands in everyday life.
Makes anyone feel like they're having the best conversation of their week.`,
		SpeakingStyle: `Unhurried cadence. Wraps technical points inside small stories. Long rolling sentences that
build to an insight, followed by something short and direct.`,
		Catchphrases: `"Now here's where it gets interesting...", "Stay with me on this one..."`,
	},
}

// expertPersonas are selectable for the Expert role.
var expertPersonas = map[string]Persona{
	"researcher": {
		Key:      "researcher",
		FullName: "Dr. Sam Rivera",
		Background: `Research scientist with a PhD in computer science who wears it lightly. Has reviewed for major
venues and knows where papers tend to overclaim.`,
		SpeakingStyle: `Precise but warm. Grounds abstract claims in the paper's numbers. Flags limitations without
being dismissive and explains methods step by step.`,
		Catchphrases: `"The key result here is...", "What the paper doesn't tell you is...", "Let's be careful with that..."`,
	},
	"practitioner": {
		Key:      "practitioner",
		FullName: "Jordan Park",
		Background: `Engineer who has shipped research ideas into production at two startups. Cares about what
actually works outside the lab.`,
		SpeakingStyle: `Leads with concrete examples and real-world consequences. Informal, direct, occasionally
skeptical of results that look too clean.`,
		Catchphrases: `"In the real world, though...", "Here's how you'd actually use this..."`,
	},
}

const (
	DefaultHostPersona   = "curious"
	DefaultExpertPersona = "researcher"
)

// HostPersona returns the named host persona, or the default.
func HostPersona(key string) Persona {
	if p, ok := hostPersonas[strings.ToLower(key)]; ok {
		return p
	}
	return hostPersonas[DefaultHostPersona]
}

// ExpertPersona returns the named expert persona, or the default.
func ExpertPersona(key string) Persona {
	if p, ok := expertPersonas[strings.ToLower(key)]; ok {
		return p
	}
	return expertPersonas[DefaultExpertPersona]
}

// PersonaNames lists the persona keys for a role ("host" or "expert").
func PersonaNames(role string) []string {
	src := hostPersonas
	if strings.EqualFold(role, "expert") {
		src = expertPersonas
	}
	names := make([]string, 0, len(src))
	for k := range src {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (p Persona) promptBlock(label string) string {
	return fmt.Sprintf("%s (%s)\nBackground: %s\nSpeaking style: %s\nSignature phrases: %s\n",
		label, p.FullName, p.Background, p.SpeakingStyle, p.Catchphrases)
}
