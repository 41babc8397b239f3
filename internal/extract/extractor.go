// Package extract provides text extraction from uploaded documents.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupported is returned for extensions no extractor handles.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrImage is returned for image files; their text comes from OCR.
	ErrImage = errors.New("image content requires OCR")
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

var documentTypes = map[string]bool{
	".pdf": true, ".docx": true, ".pptx": true, ".xlsx": true, ".csv": true,
	".odt": true, ".rtf": true, ".odp": true, ".ods": true,
	".txt": true, ".md": true, ".rst": true, ".json": true,
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Ext returns the lower-cased extension of name, including the leading dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// Supported reports whether files with extension ext can be ingested, either
// through text extraction or OCR.
func Supported(ext string) bool {
	return documentTypes[ext] || IsImage(ext)
}

// IsImage reports whether ext is an image type handled by OCR.
func IsImage(ext string) bool {
	_, ok := imageTypes[ext]
	return ok
}

// IsTabular reports whether ext carries structured rows and columns.
func IsTabular(ext string) bool {
	return ext == ".csv" || ext == ".xlsx"
}

// ImageMIMEType returns the MIME type for an image extension, or "" if ext is
// not an image.
func ImageMIMEType(ext string) string {
	return imageTypes[ext]
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Images yield ErrImage and
// unknown extensions ErrUnsupported.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractWithCat(content, ext)
	case ".xlsx":
		return extractExcel(content)
	case ".csv":
		return extractCSV(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp":
		return extractOpenDocument(content, "ODP", odpTextP, odpTextSpan, odpTextH)
	case ".ods":
		return extractOpenDocument(content, "ODS", odpTextP, odpTextSpan)
	case ".txt", ".md", ".rst", ".json":
		return extractPlain(content)
	}
	if IsImage(ext) {
		return "", ErrImage
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
}
