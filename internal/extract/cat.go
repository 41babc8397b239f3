package extract

import (
	"fmt"
	"os"

	"github.com/lu4p/cat"
)

// extractWithCat handles ODT and RTF through lu4p/cat, which detects the
// format from the file name.
func extractWithCat(content []byte, ext string) (string, error) {
	f, err := os.CreateTemp("", "tanya-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	text, err := cat.File(name)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	return text, nil
}
