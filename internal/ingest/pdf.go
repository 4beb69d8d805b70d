package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFIngester struct{}

func (p *PDFIngester) Ingest(ctx context.Context, source string) (*Paper, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("could not open PDF %s: %w", source, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat PDF %s: %w", source, err)
	}

	text, err := extractPDFText(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("PDF %s: %w", source, err)
	}

	return &Paper{
		Text:      text,
		Title:     titleFromText(text, 80),
		Source:    filepath.Base(source),
		WordCount: wordCount(text),
	}, nil
}

// extractPDFText returns the plain text of every readable page, separated by
// blank lines. Pages that fail to decode are skipped.
func extractPDFText(r io.ReaderAt, size int64) (string, error) {
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("could not read PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	text := strings.TrimSpace(sb.String())
	if len(text) == 0 {
		return "", fmt.Errorf("could not extract text, it may be scanned or image-based")
	}
	return text, nil
}

func extractPDFBytes(data []byte) (string, error) {
	return extractPDFText(bytes.NewReader(data), int64(len(data)))
}
