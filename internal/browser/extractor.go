package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/tebeka/selenium"

	"github.com/lexiqai/article-voice/internal/extract"
)

// Extractor reads article paragraphs through the shared browser session
type Extractor struct {
	session *Session
}

// NewExtractor creates an extractor bound to session
func NewExtractor(session *Session) *Extractor {
	return &Extractor{session: session}
}

// Extract navigates to rawURL, finds the article element and returns the
// text of each p under it followed by a newline
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	u, err := extract.ValidateURL(rawURL)
	if err != nil {
		return "", err
	}

	var text string
	err = e.session.Do(ctx, func(page Page) error {
		if err := page.Get(u.String()); err != nil {
			return fmt.Errorf("failed to open page: %w", err)
		}

		article, err := page.FindElement(selenium.ByTagName, "article")
		if err != nil {
			if errors.Is(err, ErrElementNotFound) {
				return extract.ErrNoArticle
			}
			return fmt.Errorf("failed to find article: %w", err)
		}

		paragraphs, err := article.FindElements(selenium.ByTagName, "p")
		if err != nil && !errors.Is(err, ErrElementNotFound) {
			return fmt.Errorf("failed to find paragraphs: %w", err)
		}

		texts := make([]string, 0, len(paragraphs))
		for i, p := range paragraphs {
			t, err := p.Text()
			if err != nil {
				return fmt.Errorf("failed to read paragraph %d: %w", i, err)
			}
			texts = append(texts, t)
		}

		text = extract.JoinParagraphs(texts)
		return nil
	})
	if err != nil {
		return "", err
	}

	return text, nil
}
