// Package ocr recognizes text in images.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrUnavailable is returned when no OCR engine can be run.
var ErrUnavailable = errors.New("ocr engine unavailable")

// Recognizer extracts text from an encoded image (PNG or JPEG).
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Tesseract runs the tesseract command line tool, reading the image from
// stdin and the text from stdout.
type Tesseract struct {
	path     string
	language string
	timeout  time.Duration
}

// NewTesseract resolves the tesseract binary. path may be a bare command name
// looked up in PATH. It returns ErrUnavailable if the binary cannot be found.
func NewTesseract(path, language string, timeout time.Duration) (*Tesseract, error) {
	if path == "" {
		path = "tesseract"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{path: resolved, language: language, timeout: timeout}, nil
}

// Recognize runs tesseract on image. Output whitespace is trimmed.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("ocr: empty image")
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, t.path, "stdin", "stdout", "-l", t.language)
	cmd.Stdin = bytes.NewReader(image)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ocr: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("ocr: %w", err)
		}
		return "", fmt.Errorf("ocr: %w: %s", err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Disabled is a Recognizer that always fails with ErrUnavailable.
type Disabled struct{}

// Recognize implements Recognizer.
func (Disabled) Recognize(context.Context, []byte) (string, error) {
	return "", ErrUnavailable
}
