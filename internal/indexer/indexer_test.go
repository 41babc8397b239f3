package indexer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/models"
)

type stubRecognizer struct {
	text string
	err  error
}

func (s stubRecognizer) Recognize(_ context.Context, image []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text + string(image), nil
}

type stubFetcher struct {
	pages   map[string]string
	fetched []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	s.fetched = append(s.fetched, url)
	text, ok := s.pages[url]
	if !ok {
		return "", errors.New("HTTP 404")
	}
	return text, nil
}

func newTestIndexer(rec stubRecognizer, f Fetcher, maxLinks int) *Indexer {
	cfg := config.RetrievalConfig{ChunkSize: 500, MaxLinks: maxLinks}
	return NewIndexer(extract.NewExtractor(), rec, f, cfg)
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{"txt", "md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestAccepts(t *testing.T) {
	if !Accepts("a/b/report.PDF", nil) {
		t.Error("pdf should be accepted")
	}
	if Accepts("main.go", nil) {
		t.Error("unsupported extension accepted")
	}
	if Accepts("notes.md", []string{".pdf"}) {
		t.Error("extension outside allow list accepted")
	}
}

func TestIngestFiles_chunksAndReports(t *testing.T) {
	idx := newTestIndexer(stubRecognizer{}, nil, 5)
	doc := strings.Repeat("a", 1200)
	b := idx.IngestFiles(context.Background(), []File{
		{Name: "doc.txt", Content: []byte(doc)},
		{Name: "binary.exe", Content: []byte{0, 1}},
		{Name: "empty.md", Content: nil},
	})

	if len(b.Chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(b.Chunks))
	}
	for i, want := range []int{500, 500, 200} {
		if len(b.Chunks[i].Text) != want || b.Chunks[i].Source != "doc.txt" {
			t.Errorf("chunk %d = %d chars from %q", i, len(b.Chunks[i].Text), b.Chunks[i].Source)
		}
	}
	if len(b.Reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(b.Reports))
	}
	if b.Reports[0].Chunks != 3 || b.Reports[0].Error != "" {
		t.Errorf("doc report = %+v", b.Reports[0])
	}
	if !strings.Contains(b.Reports[1].Error, "unsupported") {
		t.Errorf("exe report = %+v", b.Reports[1])
	}
	if b.Reports[2].Chunks != 0 || b.Reports[2].Error != "" {
		t.Errorf("empty report = %+v", b.Reports[2])
	}
	if len(b.Sources) != 1 || b.Sources[0] != "doc.txt" {
		t.Errorf("sources = %v", b.Sources)
	}
}

func TestIngestFiles_imageOCR(t *testing.T) {
	idx := newTestIndexer(stubRecognizer{text: "scanned:"}, nil, 5)
	b := idx.IngestFiles(context.Background(), []File{{Name: "scan.PNG", Content: []byte("px")}})
	if len(b.Chunks) != 1 || b.Chunks[0].Text != "scanned:px" || b.Chunks[0].Source != "scan.PNG" {
		t.Fatalf("chunks = %+v", b.Chunks)
	}
	if len(b.Images) != 1 || b.Images[0].MIMEType != "image/png" || b.Images[0].ID == "" {
		t.Fatalf("images = %+v", b.Images)
	}

	failing := newTestIndexer(stubRecognizer{err: errors.New("boom")}, nil, 5)
	b = failing.IngestFiles(context.Background(), []File{{Name: "scan.jpg", Content: []byte("px")}})
	if len(b.Chunks) != 0 {
		t.Errorf("failed OCR produced chunks: %+v", b.Chunks)
	}
	if len(b.Images) != 1 {
		t.Errorf("image should still be attached")
	}
	if !strings.Contains(b.Reports[0].Error, "boom") {
		t.Errorf("report = %+v", b.Reports[0])
	}
}

func TestIngestFiles_tableSummary(t *testing.T) {
	idx := newTestIndexer(stubRecognizer{}, nil, 5)
	b := idx.IngestFiles(context.Background(), []File{{Name: "sales.csv", Content: []byte("region,revenue\nnorth,10\n")}})
	if len(b.Tables) != 1 || b.Tables[0].Rows != 1 {
		t.Fatalf("tables = %+v", b.Tables)
	}
	if len(b.Chunks) != 2 {
		t.Fatalf("chunks = %+v", b.Chunks)
	}
	if b.Chunks[1].Source != "Table: sales.csv" {
		t.Errorf("summary source = %q", b.Chunks[1].Source)
	}
	if b.Reports[0].Chunks != 2 {
		t.Errorf("report = %+v", b.Reports[0])
	}
	want := []string{"sales.csv", "Table: sales.csv"}
	if strings.Join(b.Sources, "|") != strings.Join(want, "|") {
		t.Errorf("sources = %v, want %v", b.Sources, want)
	}
}

func TestIngestFiles_slideImages(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"ppt/slides/slide1.xml": `<a:t>Roadmap</a:t>`,
		"ppt/media/image1.png":  "chart",
	} {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(body))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	idx := newTestIndexer(stubRecognizer{text: "ocr:"}, nil, 5)
	b := idx.IngestFiles(context.Background(), []File{{Name: "deck.pptx", Content: buf.Bytes()}})
	if len(b.Chunks) != 2 || b.Chunks[0].Text != "Roadmap" || b.Chunks[1].Text != "ocr:chart" {
		t.Fatalf("chunks = %+v", b.Chunks)
	}
}

func TestIngestFiles_followsLinks(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{"https://a.example/x": "page A"}}
	idx := newTestIndexer(stubRecognizer{}, f, 2)
	text := "see https://a.example/x and https://b.example/y and https://c.example/z"
	b := idx.IngestFiles(context.Background(), []File{{Name: "links.txt", Content: []byte(text)}})

	if len(f.fetched) != 2 {
		t.Fatalf("fetched %v, want 2 links", f.fetched)
	}
	if len(b.Chunks) != 2 || b.Chunks[1].Text != "page A" || b.Chunks[1].Source != "Link: https://a.example/x" {
		t.Fatalf("chunks = %+v", b.Chunks)
	}
	if len(b.Reports) != 3 || b.Reports[2].Name != "https://b.example/y" ||
		!strings.HasPrefix(b.Reports[2].Error, "[fetch failed: https://b.example/y: ") {
		t.Errorf("reports = %+v", b.Reports)
	}
	for _, c := range b.Chunks {
		if strings.Contains(c.Text, "404") {
			t.Errorf("fetch error text indexed: %q", c.Text)
		}
	}
}

func TestIngestFiles_linksDisabled(t *testing.T) {
	f := &stubFetcher{}
	off := false
	idx := NewIndexer(extract.NewExtractor(), nil, f, config.RetrievalConfig{FollowLinks: &off, MaxLinks: 5})
	idx.IngestFiles(context.Background(), []File{{Name: "links.txt", Content: []byte("https://a.example")}})
	if len(f.fetched) != 0 {
		t.Errorf("fetched %v with link following off", f.fetched)
	}
}

func TestIngestLinks(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{"https://go.dev": "Go"}}
	idx := newTestIndexer(stubRecognizer{}, f, 5)
	b := idx.IngestLinks(context.Background(), []string{" https://go.dev "})
	want := models.Chunk{Text: "Go", Source: "Link: https://go.dev"}
	if len(b.Chunks) != 1 || b.Chunks[0] != want {
		t.Errorf("chunks = %+v", b.Chunks)
	}
	if len(b.Sources) != 1 || b.Sources[0] != "Link: https://go.dev" {
		t.Errorf("sources = %v", b.Sources)
	}

	noFetch := newTestIndexer(stubRecognizer{}, nil, 5)
	b = noFetch.IngestLinks(context.Background(), []string{"https://go.dev"})
	if len(b.Chunks) != 0 || b.Reports[0].Error == "" {
		t.Errorf("batch = %+v", b)
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		filepath.Join(dir, "a.txt"): "A",
		filepath.Join(sub, "b.md"):  "B",
		filepath.Join(sub, "c.go"):  "C",
	} {
		if err := os.WriteFile(name, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	files, reports := ReadFiles([]string{dir, filepath.Join(dir, "missing.txt")}, nil)
	if len(files) != 2 {
		t.Fatalf("files = %+v", files)
	}
	if len(reports) != 1 || reports[0].Name != "missing.txt" {
		t.Errorf("reports = %+v", reports)
	}

	files, _ = ReadFiles([]string{dir}, []string{".md"})
	if len(files) != 1 || files[0].Name != "b.md" {
		t.Errorf("filtered files = %+v", files)
	}
}

func TestWithLogger_nilIsSafe(t *testing.T) {
	idx := NewIndexer(extract.NewExtractor(), stubRecognizer{}, nil, config.RetrievalConfig{}, WithLogger(nil))
	b := idx.IngestFiles(context.Background(), []File{{Name: "bad.exe", Content: []byte("x")}})
	if len(b.Reports) != 1 || b.Reports[0].Error == "" {
		t.Errorf("reports = %+v", b.Reports)
	}
}
