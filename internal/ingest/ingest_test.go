package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArxivID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://arxiv.org/abs/2401.12345", "2401.12345", false},
		{"https://arxiv.org/pdf/2401.12345v2", "2401.12345", false},
		{"arxiv.org/abs/1706.03762", "1706.03762", false},
		{"  2401.12345 ", "2401.12345", false},
		{"2401", "", true},
		{"https://example.com/paper.pdf", "", true},
		{"notes.txt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseArxivID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArxivID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectSource(t *testing.T) {
	tests := []struct {
		in   string
		want SourceType
	}{
		{"https://arxiv.org/abs/2401.12345", SourceArxiv},
		{"2401.12345", SourceArxiv},
		{"https://example.com/post", SourceURL},
		{"paper.PDF", SourcePDF},
		{"notes.md", SourceText},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectSource(tt.in), tt.in)
	}
}

func TestSmartTruncate(t *testing.T) {
	short := "a short paper"
	assert.Equal(t, short, SmartTruncate(short, 100))

	text := strings.Repeat("h", 500) + strings.Repeat("m", 1000) + strings.Repeat("t", 500)
	got := SmartTruncate(text, 1000)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("h", 400)))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("t", 200)))
	assert.Contains(t, got, "omitted")
	assert.NotContains(t, got, "mm")
}

func TestSmartTruncateRuneSafe(t *testing.T) {
	text := strings.Repeat("é", 30)
	got := SmartTruncate(text, 10)
	assert.True(t, strings.HasPrefix(got, "éééé\n"))
	assert.True(t, strings.HasSuffix(got, "\néé"))
}

func TestTextIngester(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.txt")
	require.NoError(t, os.WriteFile(path, []byte("Sparse Attention at Scale\n\nWe study attention."), 0o644))

	paper, err := (&TextIngester{}).Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Sparse Attention at Scale", paper.Title)
	assert.Equal(t, "paper.txt", paper.Source)
	assert.Equal(t, 7, paper.WordCount)
}

func TestTextIngesterRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	_, err := (&TextIngester{}).Ingest(context.Background(), path)
	assert.Error(t, err)

	_, err = (&TextIngester{}).Ingest(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestTitleFromText(t *testing.T) {
	assert.Equal(t, "Untitled", titleFromText("", 10))
	assert.Equal(t, "abcde...", titleFromText("abcdefgh\nrest", 5))
	assert.Equal(t, "日本語...", titleFromText("日本語のタイトル", 3))
}

const absPage = `<html><head>
<meta name="citation_title" content="Attention Is All You Need">
<meta name="citation_author" content="Vaswani, Ashish">
<meta name="citation_author" content="Shazeer, Noam">
</head><body>
<h1 class="title"><span class="descriptor">Title:</span>Attention Is All You Need</h1>
<blockquote class="abstract"><span class="descriptor">Abstract:</span>
  The dominant sequence transduction models are based on
  complex recurrent networks.</blockquote>
</body></html>`

func TestArxivMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/abs/1706.03762":
			_, _ = w.Write([]byte(absPage))
		case "/pdf/1706.03762":
			_, _ = w.Write([]byte("not a pdf"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := &ArxivIngester{BaseURL: srv.URL, Client: srv.Client()}

	paper, err := a.fetchMetadata(context.Background(), "1706.03762")
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", paper.Title)
	assert.Equal(t, []string{"Vaswani, Ashish", "Shazeer, Noam"}, paper.Authors)
	assert.Equal(t, "The dominant sequence transduction models are based on complex recurrent networks.", paper.Abstract)
	assert.Equal(t, "1706.03762", paper.ArxivID)

	_, err = a.Ingest(context.Background(), "https://arxiv.org/abs/1706.03762")
	assert.Error(t, err, "garbage PDF bytes must not ingest")

	_, err = a.Ingest(context.Background(), "https://arxiv.org/abs/9999.99999")
	assert.Error(t, err)
}

func TestURLIngester(t *testing.T) {
	para := strings.Repeat("Transformers replace recurrence with attention over every token in the sequence. ", 12)
	page := `<html><head><title>Why Attention Works</title></head><body>
<nav>Home | About</nav>
<article><h1>Why Attention Works</h1><p>` + para + `</p><p>` + para + `</p></article>
</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/post" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	u := &URLIngester{Client: srv.Client()}
	paper, err := u.Ingest(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Contains(t, paper.Text, "replace recurrence with attention")
	assert.Positive(t, paper.WordCount)

	_, err = u.Ingest(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestFromText(t *testing.T) {
	paper, err := FromText("Graph Networks\n\nMessage passing over edges.", "inline")
	require.NoError(t, err)
	assert.Equal(t, "Graph Networks", paper.Title)
	assert.Equal(t, "inline", paper.Source)
	assert.Equal(t, 6, paper.WordCount)

	_, err = FromText(" \n ", "inline")
	assert.Error(t, err)
}
