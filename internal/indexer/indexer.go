package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/fetch"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/ocr"
	"github.com/hyperjump/tanya/pkg/utils"
)

// LinkPrefix and TablePrefix label chunks that come from fetched pages and
// table summaries.
const (
	LinkPrefix  = "Link: "
	TablePrefix = "Table: "
)

// Fetcher fetches the visible text of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// File is one uploaded file.
type File struct {
	Name    string
	Content []byte
}

// Batch is everything one ingestion produced. Chunks keep upload order.
type Batch struct {
	Chunks  []models.Chunk
	Sources []string
	Tables  []models.TableDescriptor
	Images  []models.ImageAttachment
	Reports []models.FileReport
}

func (b *Batch) addSource(source string) {
	for _, s := range b.Sources {
		if s == source {
			return
		}
	}
	b.Sources = append(b.Sources, source)
}

// Indexer extracts, recognizes and fetches content and chunks it.
type Indexer struct {
	extractor   *extract.Extractor
	recognizer  ocr.Recognizer
	fetcher     Fetcher
	chunker     *Chunker
	followLinks bool
	maxLinks    int
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = utils.OrNop(l) }
}

// NewIndexer creates an indexer. recognizer may be nil, in which case images
// are attached without text. fetcher may be nil, which disables links.
func NewIndexer(
	extractor *extract.Extractor,
	recognizer ocr.Recognizer,
	fetcher Fetcher,
	cfg config.RetrievalConfig,
	opts ...IndexerOption,
) *Indexer {
	if recognizer == nil {
		recognizer = ocr.Disabled{}
	}
	idx := &Indexer{
		extractor:   extractor,
		recognizer:  recognizer,
		fetcher:     fetcher,
		chunker:     NewChunker(cfg.ChunkSize),
		followLinks: cfg.FollowLinksOrDefault() && fetcher != nil,
		maxLinks:    cfg.MaxLinks,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IngestFiles processes files in order. A failing file is reported and
// skipped; the rest are still processed.
func (idx *Indexer) IngestFiles(ctx context.Context, files []File) *Batch {
	b := &Batch{}
	for _, f := range files {
		if ctx.Err() != nil {
			b.Reports = append(b.Reports, models.FileReport{Name: f.Name, Error: ctx.Err().Error()})
			continue
		}
		idx.ingestFile(ctx, f, b)
	}
	return b
}

// IngestLinks fetches each URL and chunks its text with source "Link: <url>".
func (idx *Indexer) IngestLinks(ctx context.Context, urls []string) *Batch {
	b := &Batch{}
	for _, u := range urls {
		idx.ingestLink(ctx, strings.TrimSpace(u), b)
	}
	return b
}

// ReadFiles loads the files at paths for IngestFiles. Directories are walked
// and filtered by allowedExts (all supported types when empty). Unreadable
// paths are returned as reports.
func ReadFiles(paths []string, allowedExts []string) ([]File, []models.FileReport) {
	var files []File
	var reports []models.FileReport
	add := func(path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			reports = append(reports, models.FileReport{Name: filepath.Base(path), Error: err.Error()})
			return
		}
		files = append(files, File{Name: filepath.Base(path), Content: content})
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			reports = append(reports, models.FileReport{Name: filepath.Base(p), Error: err.Error()})
			continue
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		_ = filepath.WalkDir(p, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil || d.IsDir() {
				return nil
			}
			if !Accepts(path, allowedExts) {
				return nil
			}
			if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
				return nil
			}
			add(path)
			return nil
		})
	}
	return files, reports
}

// Accepts reports whether path has a supported extension that is also listed
// in allowedExts (when non-empty, case-insensitive, dot optional).
func Accepts(path string, allowedExts []string) bool {
	ext := extract.Ext(path)
	if !extract.Supported(ext) {
		return false
	}
	return len(allowedExts) == 0 || extensionAllowed(ext, allowedExts)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

func (idx *Indexer) ingestFile(ctx context.Context, f File, b *Batch) {
	idx.logger.Debug("indexer ingesting file", zap.String("name", f.Name), zap.Int("bytes", len(f.Content)))
	report := models.FileReport{Name: f.Name}
	chunks, text, err := idx.fileChunks(ctx, f, b)
	if err != nil {
		idx.logger.Warn("failed to ingest file", zap.String("name", f.Name), zap.Error(err))
		report.Error = err.Error()
	}
	report.Chunks = len(chunks)
	b.Reports = append(b.Reports, report)
	if len(chunks) > 0 {
		b.Chunks = append(b.Chunks, chunks...)
		b.addSource(f.Name)
	}
	if err == nil && idx.followLinks {
		for _, u := range fetch.ExtractURLs(text, idx.maxLinks) {
			idx.ingestLink(ctx, u, b)
		}
	}
}

// fileChunks returns the chunks for one file and the text links are read
// from. Table descriptors and image attachments are added to b directly.
func (idx *Indexer) fileChunks(ctx context.Context, f File, b *Batch) ([]models.Chunk, string, error) {
	ext := extract.Ext(f.Name)
	if !extract.Supported(ext) {
		return nil, "", fmt.Errorf("%w: %q", extract.ErrUnsupported, ext)
	}
	if extract.IsImage(ext) {
		b.Images = append(b.Images, models.ImageAttachment{
			ID:       uuid.New().String(),
			Filename: f.Name,
			MIMEType: extract.ImageMIMEType(ext),
			Data:     f.Content,
		})
		text, err := idx.recognizer.Recognize(ctx, f.Content)
		if err != nil {
			return nil, "", fmt.Errorf("ocr: %w", err)
		}
		return idx.chunker.Chunk(text, f.Name), text, nil
	}

	text, err := idx.extractor.ExtractBytes(f.Content, ext)
	if err != nil {
		return nil, "", err
	}
	chunks := idx.chunker.Chunk(text, f.Name)

	switch ext {
	case ".pptx":
		chunks = append(chunks, idx.slideImageChunks(ctx, f)...)
	case ".csv", ".xlsx":
		table, err := idx.table(f, ext)
		if err != nil {
			idx.logger.Debug("no table descriptor", zap.String("name", f.Name), zap.Error(err))
			break
		}
		b.Tables = append(b.Tables, table)
		source := TablePrefix + f.Name
		chunks = append(chunks, idx.chunker.Chunk(extract.TableSummary(table), source)...)
		b.addSource(source)
	}
	return chunks, text, nil
}

func (idx *Indexer) table(f File, ext string) (models.TableDescriptor, error) {
	if ext == ".csv" {
		return extract.TableFromCSV(f.Content, f.Name)
	}
	return extract.TableFromXLSX(f.Content, f.Name)
}

// slideImageChunks runs OCR over the media embedded in a presentation. Images
// that cannot be recognized are skipped.
func (idx *Indexer) slideImageChunks(ctx context.Context, f File) []models.Chunk {
	images, err := extract.PPTXImages(f.Content)
	if err != nil {
		idx.logger.Debug("no slide images", zap.String("name", f.Name), zap.Error(err))
		return nil
	}
	var chunks []models.Chunk
	for _, img := range images {
		text, err := idx.recognizer.Recognize(ctx, img.Data)
		if err != nil {
			if errors.Is(err, ocr.ErrUnavailable) {
				return chunks
			}
			idx.logger.Debug("slide image ocr failed", zap.String("name", f.Name), zap.String("image", img.Name), zap.Error(err))
			continue
		}
		chunks = append(chunks, idx.chunker.Chunk(text, f.Name)...)
	}
	return chunks
}

func (idx *Indexer) ingestLink(ctx context.Context, url string, b *Batch) {
	source := LinkPrefix + url
	report := models.FileReport{Name: url}
	if idx.fetcher == nil {
		report.Error = "link fetching is disabled"
		b.Reports = append(b.Reports, report)
		return
	}
	text, err := idx.fetcher.Fetch(ctx, url)
	if err != nil {
		idx.logger.Warn("failed to fetch link", zap.String("url", url), zap.Error(err))
		report.Error = fetch.Diagnostic(url, err)
		b.Reports = append(b.Reports, report)
		return
	}
	chunks := idx.chunker.Chunk(text, source)
	report.Chunks = len(chunks)
	b.Reports = append(b.Reports, report)
	if len(chunks) > 0 {
		b.Chunks = append(b.Chunks, chunks...)
		b.addSource(source)
	}
}
