package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const arxivBaseURL = "https://arxiv.org"

var (
	arxivURLRe = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/([0-9]+\.[0-9]+)`)
	arxivIDRe  = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)

	// ErrInvalidArxivID is returned for input that is neither an arXiv URL
	// nor a bare paper id.
	ErrInvalidArxivID = errors.New("invalid arXiv URL or paper ID format")
)

// ParseArxivID extracts a paper id from an arxiv.org abs/pdf URL or accepts
// a bare id such as "2401.12345".
func ParseArxivID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if m := arxivURLRe.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}
	if arxivIDRe.MatchString(input) {
		return input, nil
	}
	return "", ErrInvalidArxivID
}

// ArxivIngester fetches a paper's metadata from its abstract page and its
// full text from the PDF.
type ArxivIngester struct {
	BaseURL string
	Client  *http.Client
}

func NewArxivIngester() *ArxivIngester {
	return &ArxivIngester{
		BaseURL: arxivBaseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *ArxivIngester) Ingest(ctx context.Context, source string) (*Paper, error) {
	id, err := ParseArxivID(source)
	if err != nil {
		return nil, err
	}

	paper, err := a.fetchMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	text, err := a.fetchText(ctx, id)
	if err != nil {
		return nil, err
	}
	paper.Text = text
	paper.WordCount = wordCount(text)
	return paper, nil
}

func (a *ArxivIngester) fetchMetadata(ctx context.Context, id string) (*Paper, error) {
	absURL := fmt.Sprintf("%s/abs/%s", a.BaseURL, id)
	body, err := fetch(ctx, a.Client, absURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxInputSize))
	if err != nil {
		return nil, fmt.Errorf("parse arXiv page %s: %w", absURL, err)
	}

	paper := &Paper{
		ArxivID: id,
		Source:  absURL,
		Title:   metaContent(doc, "citation_title"),
	}
	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, s *goquery.Selection) {
		if name, ok := s.Attr("content"); ok && strings.TrimSpace(name) != "" {
			paper.Authors = append(paper.Authors, strings.TrimSpace(name))
		}
	})

	paper.Abstract = metaContent(doc, "citation_abstract")
	if paper.Abstract == "" {
		abs := doc.Find("blockquote.abstract")
		abs.Find("span.descriptor").Remove()
		paper.Abstract = strings.Join(strings.Fields(abs.Text()), " ")
	}

	if paper.Title == "" {
		title := doc.Find("h1.title")
		title.Find("span.descriptor").Remove()
		paper.Title = strings.TrimSpace(title.Text())
	}
	if paper.Title == "" {
		return nil, fmt.Errorf("arXiv paper %s not found", id)
	}
	return paper, nil
}

func (a *ArxivIngester) fetchText(ctx context.Context, id string) (string, error) {
	pdfURL := fmt.Sprintf("%s/pdf/%s", a.BaseURL, id)
	body, err := fetch(ctx, a.Client, pdfURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxInputSize))
	if err != nil {
		return "", fmt.Errorf("download %s: %w", pdfURL, err)
	}
	text, err := extractPDFBytes(data)
	if err != nil {
		return "", fmt.Errorf("arXiv PDF %s: %w", id, err)
	}
	return text, nil
}

func metaContent(doc *goquery.Document, name string) string {
	v, _ := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().Attr("content")
	return strings.TrimSpace(v)
}
