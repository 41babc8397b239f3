package extract

import (
	"archive/zip"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	pptxSlidePathPrefix = "ppt/slides/slide"
	pptxMediaPrefix     = "ppt/media/"
)

// atTag matches <a:t>text</a:t> with any attributes.
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// Image is an embedded picture pulled out of a document for OCR.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// slideNumber parses N from ppt/slides/slideN.xml, or -1.
func slideNumber(name string) int {
	if !strings.HasPrefix(name, pptxSlidePathPrefix) || !strings.HasSuffix(name, ".xml") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, pptxSlidePathPrefix), ".xml"))
	if err != nil {
		return -1
	}
	return n
}

// extractPPTX returns the <a:t> text of every slide, one line per slide in
// slide order.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return "", err
	}
	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if n := slideNumber(f.Name); n >= 0 {
			slides = append(slides, slide{n: n, f: f})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var lines []string
	for _, s := range slides {
		data, err := readZipFile(s.f)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		var b strings.Builder
		joinMatches(&b, atTag, string(data))
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}
	return strings.Join(lines, "\n"), nil
}

// PPTXImages returns the PNG and JPEG media embedded in a .pptx, sorted by name.
func PPTXImages(content []byte) ([]Image, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return nil, err
	}
	var images []Image
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxMediaPrefix) {
			continue
		}
		mime := ImageMIMEType(Ext(f.Name))
		if mime == "" {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX media: %w", err)
		}
		images = append(images, Image{Name: path.Base(f.Name), MIMEType: mime, Data: data})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}
