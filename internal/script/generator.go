package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/apresai/papercast/internal/ingest"
)

// Request describes the transcript a Generator should write.
type Request struct {
	Paper          *ingest.Paper
	Text           string
	TechnicalLevel string
	HostPersona    string
	ExpertPersona  string
	CustomTopics   []string
	TargetWords    int
}

// Generator produces a freeform two-speaker transcript. The result is not
// trusted to follow any format; Clean and Segment take it from there.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelNames returns the accepted script model names.
func ModelNames() []string {
	return []string{"haiku", "sonnet", "nova-lite"}
}

// NewGenerator returns a Generator for the named model.
func NewGenerator(model, anthropicAPIKey string) (Generator, error) {
	switch {
	case claudeModels[model] != "":
		return NewClaudeGenerator(model, anthropicAPIKey), nil
	case novaModels[model] != "":
		return NewNovaGenerator(model)
	default:
		return nil, fmt.Errorf("unknown script model %q: choose %s", model, strings.Join(ModelNames(), ", "))
	}
}

const (
	temperature    = 0.7
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	backoffMult    = 2
)

// generateWithRetry calls fn until it yields a non-empty transcript.
func generateWithRetry(ctx context.Context, provider string, fn func() (string, error)) (string, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		text, err := fn()
		if err != nil {
			lastErr = fmt.Errorf("%s API error (attempt %d/%d): %w", provider, attempt, maxRetries, err)
		} else if text = tidyResponse(text); text == "" {
			lastErr = fmt.Errorf("empty response from %s (attempt %d/%d)", provider, attempt, maxRetries)
		} else {
			return text, nil
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
		}
	}
	return "", lastErr
}

var (
	scratchpadRe = regexp.MustCompile(`(?s)<scratchpad>.*?</scratchpad>`)
	fenceRe      = regexp.MustCompile("(?s)```[a-z]*\\s*\n?(.*?)\n?```")
)

// tidyResponse removes planning notes and code fences a model may wrap
// around the transcript.
func tidyResponse(text string) string {
	text = scratchpadRe.ReplaceAllString(text, "")
	if m := fenceRe.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
	}
	return strings.TrimSpace(text)
}
