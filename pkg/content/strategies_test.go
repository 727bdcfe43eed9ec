package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefdelights/briefly/pkg/domain"
)

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

func TestPreparer_Prepare(t *testing.T) {
	t.Run("extracted content wins", func(t *testing.T) {
		p := NewPreparer(&stubExtractor{text: "Extracted body text."}, 3000)
		article := &domain.Article{URL: "https://example.com/a", RawContent: "<p>feed html</p>", Desc: "short desc"}
		p.Prepare(context.Background(), article)
		assert.Equal(t, "Extracted body text.", article.FullContent)
	})

	t.Run("falls back to feed content on extraction error", func(t *testing.T) {
		p := NewPreparer(&stubExtractor{err: errors.New("timeout")}, 3000)
		article := &domain.Article{URL: "https://example.com/a", RawContent: "<p>feed <b>html</b> body.</p>", Desc: "short desc"}
		p.Prepare(context.Background(), article)
		assert.Equal(t, "feed html body.", article.FullContent)
	})

	t.Run("falls back to description when feed content empty", func(t *testing.T) {
		p := NewPreparer(nil, 3000)
		article := &domain.Article{URL: "https://example.com/a", Desc: "Just a description."}
		p.Prepare(context.Background(), article)
		assert.Equal(t, "Just a description.", article.FullContent)
	})

	t.Run("strips markup and collapses whitespace", func(t *testing.T) {
		p := NewPreparer(nil, 3000)
		article := &domain.Article{RawContent: "<div>Hello\n\n  <script>bad()</script>world.</div>"}
		p.Prepare(context.Background(), article)
		assert.Equal(t, "Hello world.", article.FullContent)
	})

	t.Run("truncates long content", func(t *testing.T) {
		long := strings.Repeat("This is a sentence. ", 500)
		p := NewPreparer(nil, 3000)
		article := &domain.Article{RawContent: long}
		p.Prepare(context.Background(), article)
		assert.LessOrEqual(t, len(article.FullContent), 3000)
		assert.True(t, strings.HasSuffix(article.FullContent, "."), "should end at sentence boundary")
	})
}

func TestTruncateAtSentence(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, "hello world.", TruncateAtSentence("hello world.", 100))
	})

	t.Run("cuts at sentence terminator", func(t *testing.T) {
		text := "First sentence here. Second sentence follows. Third one is cut off somewhere in the middle"
		out := TruncateAtSentence(text, 50)
		assert.Equal(t, "First sentence here. Second sentence follows.", out)
	})

	t.Run("falls back to word boundary", func(t *testing.T) {
		text := "no terminators anywhere in this stretch of words at all"
		out := TruncateAtSentence(text, 30)
		require.LessOrEqual(t, len(out), 30)
		assert.False(t, strings.HasSuffix(out, " "))
		assert.True(t, strings.HasPrefix(text, out))
	})
}

func TestFirstSentences(t *testing.T) {
	t.Run("takes requested count", func(t *testing.T) {
		text := "One here. Two here. Three here. Four here."
		assert.Equal(t, "One here. Two here.", FirstSentences(text, 2, 250))
	})

	t.Run("fewer sentences than requested", func(t *testing.T) {
		assert.Equal(t, "Only one.", FirstSentences("Only one.", 2, 250))
	})

	t.Run("caps at char budget", func(t *testing.T) {
		text := strings.Repeat("word ", 100) + "end. Second sentence."
		out := FirstSentences(text, 2, 250)
		assert.LessOrEqual(t, len(out), 250)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", FirstSentences("   ", 2, 250))
	})
}
