package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type TextIngester struct{}

func (t *TextIngester) Ingest(ctx context.Context, source string) (*Paper, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", source, err)
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file %s is empty", source)
	}

	return &Paper{
		Text:      text,
		Title:     titleFromText(text, 80),
		Source:    filepath.Base(source),
		WordCount: wordCount(text),
	}, nil
}

// FromText wraps inline text, such as a pasted abstract, as a Paper.
func FromText(text, source string) (*Paper, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("input text is empty")
	}
	if len(text) > maxInputSize {
		return nil, fmt.Errorf("input text too large (%d bytes, max %d)", len(text), maxInputSize)
	}
	return &Paper{
		Text:      text,
		Title:     titleFromText(text, 80),
		Source:    source,
		WordCount: wordCount(text),
	}, nil
}
