// Package fetch downloads web pages and reduces them to visible text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/hyperjump/tanya/internal/config"
)

var (
	// ErrInvalidURL is returned before any I/O when a URL lacks an http(s)
	// scheme or a host.
	ErrInvalidURL = errors.New("invalid url")
	// ErrUnsupportedContent is returned for responses that are neither HTML
	// nor plain text.
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Fetcher performs single-attempt GET requests bounded by a timeout and a body
// size limit.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewFetcher creates a Fetcher from cfg.
func NewFetcher(cfg config.FetchConfig) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout()},
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
	}
}

// Validate checks that raw is an absolute http or https URL with a host.
func Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q: missing host", ErrInvalidURL, raw)
	}
	return u, nil
}

// Fetch downloads rawURL and returns its visible text. HTML pages are stripped
// of markup, scripts and styles; plain text is returned as is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := Validate(rawURL)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: u.String(), Code: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		text, err := HTMLText(body)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", u, err)
		}
		return text, nil
	case strings.HasPrefix(mediaType, "text/"):
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", u, err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}
}

// Diagnostic formats a fetch failure for upload reports.
func Diagnostic(rawURL string, err error) string {
	return fmt.Sprintf("[fetch failed: %s: %v]", rawURL, err)
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\x60]+`)

// ExtractURLs returns the distinct http(s) URLs in text in order of first
// appearance, at most limit of them (limit <= 0 means none). Trailing
// punctuation is trimmed.
func ExtractURLs(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	var urls []string
	seen := make(map[string]bool)
	for _, m := range urlPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?)]}")
		if seen[m] {
			continue
		}
		if _, err := Validate(m); err != nil {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
		if len(urls) == limit {
			break
		}
	}
	return urls
}
