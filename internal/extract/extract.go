// Package extract defines the article extraction contract shared by the
// browser-backed and static HTTP extractors.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrNoArticle is returned when the page has no article container
	ErrNoArticle = errors.New("no article element on page")

	// ErrInvalidURL is returned for message text that is not an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid url")
)

// Extractor returns the paragraph text of the main article at a URL
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (string, error)
}

// ValidateURL accepts only absolute http and https URLs with a host
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// JoinParagraphs concatenates paragraph texts, each followed by a newline
func JoinParagraphs(paragraphs []string) string {
	var b strings.Builder
	for _, p := range paragraphs {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return b.String()
}
