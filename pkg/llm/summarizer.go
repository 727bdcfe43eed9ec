package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/content"
	"github.com/briefdelights/briefly/pkg/domain"
)

// quick-tier summaries take the lead sentences as-is, no model call
const (
	quickSentences = 2
	quickMaxChars  = 250
)

// read time bounds in minutes
const (
	readTimeMin    = 1
	readTimeMax    = 15
	wordsPerMinute = 200
)

// Summarizer produces tier-appropriate summaries for selected articles
type Summarizer struct {
	client *openai.Client
	config config.LLMConfig
}

// NewSummarizer creates a new article summarizer
func NewSummarizer(cfg config.LLMConfig) *Summarizer {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &Summarizer{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// summaryResponse is the JSON object the model must return for full-tier articles
type summaryResponse struct {
	Summary         string `json:"summary"`
	KeyTakeaway     string `json:"key_takeaway"`
	WhyThisMatters  string `json:"why_this_matters"`
	ReadTimeMinutes int    `json:"read_time_minutes"`
}

// Summarize fills summaries for all tiers of the set in place. Full articles
// go through the LLM concurrently; an article whose summarization keeps
// failing is dropped from the set rather than failing the segment. Quick
// articles get their lead sentences, trending articles get nothing.
func (s *Summarizer) Summarize(ctx context.Context, seg config.Segment, set *domain.TieredSet) error {
	for i := range set.Quick {
		a := &set.Quick[i]
		text := a.FullContent
		if strings.TrimSpace(text) == "" {
			text = a.Desc
		}
		a.Summary = content.FirstSentences(text, quickSentences, quickMaxChars)
	}

	if len(set.Full) == 0 {
		return nil
	}

	maxConcurrent := s.config.Summary.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i := range set.Full {
		wg.Add(1)
		go func(a *domain.Article) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.summarizeFull(ctx, seg, a); err != nil {
				log.Printf("[WARN] summarization failed for %q, dropping article: %v", a.Title, err)
				a.SummaryFailed = true
			}
		}(&set.Full[i])
	}
	wg.Wait()

	// drop the failures, keep order
	kept := set.Full[:0]
	for _, a := range set.Full {
		if !a.SummaryFailed {
			kept = append(kept, a)
		}
	}
	set.Full = kept

	if len(set.Full) == 0 {
		return fmt.Errorf("all full-tier summaries failed for segment %s", set.Segment)
	}
	return nil
}

// summarizeFull runs the LLM summary for one full-tier article with bounded retries
func (s *Summarizer) summarizeFull(ctx context.Context, seg config.Segment, a *domain.Article) error {
	prompt := s.buildPrompt(seg, a)
	retries := s.config.Summary.Retries

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		req := openai.ChatCompletionRequest{
			Model:       s.config.SummaryModel,
			Temperature: float32(s.config.Temperature),
			MaxTokens:   s.config.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		}

		callCtx, cancel := context.WithTimeout(ctx, s.config.Summary.Timeout)
		resp, err := s.client.CreateChatCompletion(callCtx, req)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("summary request failed: %w", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response from llm")
			continue
		}

		parsed, err := s.parseResponse(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			prompt = s.buildPrompt(seg, a) + fmt.Sprintf("\n\nYour previous response was invalid: %v. Keep the summary under %d characters.", err, s.config.Summary.MaxSummaryChars)
			continue
		}

		a.Summary = parsed.Summary
		a.KeyTakeaway = parsed.KeyTakeaway
		a.WhyItMatters = parsed.WhyThisMatters
		a.ReadTimeMin = s.readTime(parsed.ReadTimeMinutes, a.FullContent)
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", retries, lastErr)
}

// buildPrompt creates the summary prompt for one article
func (s *Summarizer) buildPrompt(seg config.Segment, a *domain.Article) string {
	var sb strings.Builder
	sb.WriteString(segmentPersona(seg))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", a.Title))
	sb.WriteString(fmt.Sprintf("Source: %s\n", a.Source))

	text := a.FullContent
	if strings.TrimSpace(text) == "" {
		text = a.Desc
	}
	sb.WriteString(fmt.Sprintf("\nArticle content:\n%s\n", content.TruncateAtSentence(text, s.config.Summary.MaxContentChars)))
	sb.WriteString(fmt.Sprintf("\nKeep the summary under %d characters.", s.config.Summary.MaxSummaryChars))
	return sb.String()
}

// parseResponse parses and validates the summary JSON
func (s *Summarizer) parseResponse(raw string) (*summaryResponse, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no json object found in response")
	}

	var resp summaryResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse json response: %w", err)
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return nil, fmt.Errorf("empty summary")
	}
	if strings.TrimSpace(resp.KeyTakeaway) == "" || strings.TrimSpace(resp.WhyThisMatters) == "" {
		return nil, fmt.Errorf("missing key_takeaway or why_this_matters")
	}
	if utf8.RuneCountInString(resp.Summary) > s.config.Summary.MaxSummaryChars {
		return nil, fmt.Errorf("summary too long: %d chars", utf8.RuneCountInString(resp.Summary))
	}
	return &resp, nil
}

// readTime returns the model's estimate when sane, otherwise recomputes from
// the article text at a fixed reading speed, clamped to sane bounds
func (s *Summarizer) readTime(fromLLM int, text string) int {
	if fromLLM >= readTimeMin && fromLLM <= readTimeMax {
		return fromLLM
	}
	minutes := len(strings.Fields(text)) / wordsPerMinute
	if minutes < readTimeMin {
		return readTimeMin
	}
	if minutes > readTimeMax {
		return readTimeMax
	}
	return minutes
}
