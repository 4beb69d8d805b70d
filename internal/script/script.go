package script

import (
	"fmt"
	"os"
	"strings"
)

// Speaker is the role that voices an utterance.
type Speaker int

const (
	Host Speaker = iota
	Expert
)

func (s Speaker) String() string {
	if s == Host {
		return "Host"
	}
	return "Expert"
}

// ParseSpeaker maps a transcript label ("HOST", "expert", ...) to a Speaker.
func ParseSpeaker(label string) (Speaker, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "host":
		return Host, true
	case "expert":
		return Expert, true
	}
	return Expert, false
}

// Utterance is one contiguous turn by one speaker. Text is trimmed, free of
// speaker labels and has internal whitespace collapsed.
type Utterance struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Tier records which parsing strategy produced a Segmentation.
type Tier int

const (
	LabelDelimited Tier = iota
	ParagraphFallback
	ChunkFallback
)

func (t Tier) String() string {
	switch t {
	case LabelDelimited:
		return "label_delimited"
	case ParagraphFallback:
		return "paragraph_fallback"
	default:
		return "chunk_fallback"
	}
}

// Segmentation is the ordered result of splitting a cleaned transcript.
type Segmentation struct {
	Tier       Tier
	Utterances []Utterance
}

// Empty reports whether the transcript produced nothing to speak.
func (s Segmentation) Empty() bool { return len(s.Utterances) == 0 }

// SaveTranscript writes a raw transcript to path.
func SaveTranscript(transcript, path string) error {
	if err := os.WriteFile(path, []byte(transcript), 0644); err != nil {
		return fmt.Errorf("write transcript to %s: %w", path, err)
	}
	return nil
}

// LoadTranscript reads a raw transcript from path.
func LoadTranscript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript from %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("transcript %s is empty", path)
	}
	return string(data), nil
}
