package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/domain"
)

func summaryJSON() string {
	return `{"summary":"Go 1.25 ships with a new garbage collector and faster builds.",` +
		`"key_takeaway":"Upgrade for the GC improvements.",` +
		`"why_this_matters":"Less GC tuning for latency-sensitive services.",` +
		`"read_time_minutes":4}`
}

func TestSummarizer_Summarize_FullTier(t *testing.T) {
	server := llmServer(t, summaryJSON())
	defer server.Close()

	summarizer := NewSummarizer(testLLMConfig(server.URL))
	set := &domain.TieredSet{
		Segment: "builders",
		Full: []domain.Article{
			{ID: "a1", Title: "Go 1.25 Released", Tier: domain.TierFull, FullContent: "Go 1.25 brings a new garbage collector. Builds are faster."},
		},
	}

	err := summarizer.Summarize(context.Background(), config.Segment{Name: "Builders"}, set)
	require.NoError(t, err)
	require.Len(t, set.Full, 1)

	a := set.Full[0]
	assert.Contains(t, a.Summary, "garbage collector")
	assert.Equal(t, "Upgrade for the GC improvements.", a.KeyTakeaway)
	assert.Equal(t, "Less GC tuning for latency-sensitive services.", a.WhyItMatters)
	assert.Equal(t, 4, a.ReadTimeMin)
}

func TestSummarizer_Summarize_QuickTierNoLLMCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	summarizer := NewSummarizer(testLLMConfig(server.URL))
	set := &domain.TieredSet{
		Segment: "builders",
		Quick: []domain.Article{
			{ID: "q1", Tier: domain.TierQuick, FullContent: "First sentence here. Second sentence here. Third one should be dropped."},
			{ID: "q2", Tier: domain.TierQuick, Desc: "Description only."},
		},
		Trending: []domain.Article{
			{ID: "t1", Tier: domain.TierTrending, Title: "Hot topic"},
		},
	}

	err := summarizer.Summarize(context.Background(), config.Segment{Name: "Builders"}, set)
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls), "quick and trending tiers must not hit the model")

	assert.Equal(t, "First sentence here. Second sentence here.", set.Quick[0].Summary)
	assert.Equal(t, "Description only.", set.Quick[1].Summary)
	assert.Empty(t, set.Trending[0].Summary)
}

func TestSummarizer_Summarize_RetriesOnTooLongSummary(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		content := summaryJSON()
		if n == 1 {
			long := strings.Repeat("very long summary ", 50)
			content = strings.Replace(content, "Go 1.25 ships with a new garbage collector and faster builds.", long, 1)
		}
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer server.Close()

	summarizer := NewSummarizer(testLLMConfig(server.URL))
	set := &domain.TieredSet{
		Segment: "builders",
		Full:    []domain.Article{{ID: "a1", Title: "Story", Tier: domain.TierFull, FullContent: "Some content here."}},
	}

	err := summarizer.Summarize(context.Background(), config.Segment{Name: "Builders"}, set)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Contains(t, set.Full[0].Summary, "garbage collector")
}

func TestSummarizer_Summarize_DropsFailedArticle(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		content := summaryJSON()
		// fail every request mentioning the broken article
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "Broken Story") {
				content = "garbage"
			}
		}
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer server.Close()

	summarizer := NewSummarizer(testLLMConfig(server.URL))
	set := &domain.TieredSet{
		Segment: "builders",
		Full: []domain.Article{
			{ID: "a1", Title: "Good Story", Tier: domain.TierFull, FullContent: "Fine content."},
			{ID: "a2", Title: "Broken Story", Tier: domain.TierFull, FullContent: "Bad content."},
		},
	}

	err := summarizer.Summarize(context.Background(), config.Segment{Name: "Builders"}, set)
	require.NoError(t, err)
	require.Len(t, set.Full, 1, "failed article dropped, the rest survives")
	assert.Equal(t, "a1", set.Full[0].ID)
}

func TestSummarizer_Summarize_TimeoutOnStalledProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.Summary.Timeout = 20 * time.Millisecond
	cfg.Summary.Retries = 1
	summarizer := NewSummarizer(cfg)
	set := &domain.TieredSet{
		Segment: "builders",
		Full:    []domain.Article{{ID: "a1", Title: "Story", Tier: domain.TierFull, FullContent: "Content."}},
	}

	start := time.Now()
	err := summarizer.Summarize(context.Background(), config.Segment{Name: "Builders"}, set)
	require.Error(t, err, "a stalled provider must not hold the segment past the per-call timeout")
	assert.Less(t, time.Since(start), time.Second)
}

func TestSummarizer_Summarize_AllFullFailed(t *testing.T) {
	server := llmServer(t, "garbage")
	defer server.Close()

	summarizer := NewSummarizer(testLLMConfig(server.URL))
	set := &domain.TieredSet{
		Segment: "builders",
		Full:    []domain.Article{{ID: "a1", Title: "Story", Tier: domain.TierFull, FullContent: "Content."}},
	}

	err := summarizer.Summarize(context.Background(), config.Segment{Name: "Builders"}, set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all full-tier summaries failed")
}

func TestSummarizer_ReadTime(t *testing.T) {
	summarizer := NewSummarizer(testLLMConfig("http://localhost"))

	t.Run("sane estimate kept", func(t *testing.T) {
		assert.Equal(t, 7, summarizer.readTime(7, ""))
	})
	t.Run("zero recomputed from text", func(t *testing.T) {
		text := strings.Repeat("word ", 600) // 600 words = 3 minutes
		assert.Equal(t, 3, summarizer.readTime(0, text))
	})
	t.Run("clamped to minimum", func(t *testing.T) {
		assert.Equal(t, 1, summarizer.readTime(0, "short text"))
	})
	t.Run("clamped to maximum", func(t *testing.T) {
		assert.Equal(t, 15, summarizer.readTime(99, ""))
	})
}
