package content

import (
	"context"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/briefdelights/briefly/pkg/domain"
)

// Extractor fetches and extracts article text from a URL
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Preparer resolves the text handed to the summarizer for each article.
// Sources are tried in order: extracted page content, the feed's raw content,
// then the feed description. Whatever wins is sanitized and truncated.
type Preparer struct {
	extractor Extractor
	maxChars  int
	policy    *bluemonday.Policy
}

// NewPreparer creates a content preparer. extractor may be nil when page
// extraction is disabled.
func NewPreparer(extractor Extractor, maxChars int) *Preparer {
	return &Preparer{
		extractor: extractor,
		maxChars:  maxChars,
		policy:    bluemonday.StrictPolicy(),
	}
}

// Prepare fills article.FullContent with the best available text
func (p *Preparer) Prepare(ctx context.Context, article *domain.Article) {
	if p.extractor != nil {
		text, err := p.extractor.Extract(ctx, article.URL)
		if err == nil && strings.TrimSpace(text) != "" {
			article.FullContent = p.clean(text)
			return
		}
		if err != nil {
			log.Printf("[DEBUG] extraction failed for %s, falling back to feed content: %v", article.URL, err)
		}
	}

	if strings.TrimSpace(article.RawContent) != "" {
		article.FullContent = p.clean(article.RawContent)
		return
	}

	article.FullContent = p.clean(article.Desc)
}

// clean strips markup, collapses whitespace and truncates at a sentence
// boundary near the character budget
func (p *Preparer) clean(raw string) string {
	text := p.policy.Sanitize(raw)
	text = strings.Join(strings.Fields(text), " ")
	return TruncateAtSentence(text, p.maxChars)
}

// TruncateAtSentence cuts text to at most maxChars, preferring to end at the
// last sentence terminator past the midpoint of the budget. If none is found
// the cut lands on the last word boundary.
func TruncateAtSentence(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	runes := []rune(text)
	window := string(runes[:maxChars])

	best := -1
	for _, term := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, term); idx > best {
			best = idx
		}
	}
	if last := strings.TrimRight(window, " "); strings.HasSuffix(last, ".") || strings.HasSuffix(last, "!") || strings.HasSuffix(last, "?") {
		return last
	}
	if best > maxChars/2 {
		return window[:best+1]
	}

	if idx := strings.LastIndex(window, " "); idx > 0 {
		return window[:idx]
	}
	return window
}

// FirstSentences returns up to n sentences from text, capped at maxChars.
// Used for the short-form summaries that skip the language model entirely.
func FirstSentences(text string, n, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	count := 0
	end := len(text)
	for i := 0; i < len(text)-1; i++ {
		if (text[i] == '.' || text[i] == '!' || text[i] == '?') && text[i+1] == ' ' {
			count++
			if count == n {
				end = i + 1
				break
			}
		}
	}

	out := strings.TrimSpace(text[:end])
	if utf8.RuneCountInString(out) > maxChars {
		out = TruncateAtSentence(out, maxChars)
	}
	return out
}
