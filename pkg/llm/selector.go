package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/content"
	"github.com/briefdelights/briefly/pkg/domain"
)

// candidate descriptions are clipped to this many characters in the prompt
const promptDescChars = 300

// Selector uses an LLM to pick and tier stories for one audience segment
type Selector struct {
	client *openai.Client
	config config.LLMConfig
}

// NewSelector creates a new story selector
func NewSelector(cfg config.LLMConfig) *Selector {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &Selector{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// selectedArticle is one entry of the selection response
type selectedArticle struct {
	ArticleID       string `json:"article_id"`
	Tier            string `json:"tier"`
	SelectionReason string `json:"selection_reason"`
	AudienceValue   string `json:"audience_value"`
	UrgencyScore    int    `json:"urgency_score"`
	CategoryTag     string `json:"category_tag"`
}

// selectionResponse is the JSON object the model must return
type selectionResponse struct {
	Segment          string            `json:"segment"`
	SelectedArticles []selectedArticle `json:"selected_articles"`
}

// Select picks articles for the segment and splits them into tiers. A response
// that fails to parse or validate is retried with a corrective instruction; the
// fallback model takes the last attempt when configured. All attempts exhausted
// means the segment gets no newsletter today.
func (s *Selector) Select(ctx context.Context, segName string, seg config.Segment, articles []domain.Article) (*domain.TieredSet, error) {
	if len(articles) == 0 {
		return nil, fmt.Errorf("no articles to select from for segment %s", segName)
	}

	candidates := s.filterCandidates(articles, seg)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates left after keyword filtering for segment %s", segName)
	}
	log.Printf("[DEBUG] selecting for %s from %d candidates (of %d articles)", segName, len(candidates), len(articles))

	byID := make(map[string]domain.Article, len(candidates))
	for _, a := range candidates {
		byID[a.ID] = a
	}

	prompt := s.buildPrompt(segName, seg, candidates)
	retries := s.config.Selection.Retries

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		model := s.config.Model
		if attempt == retries-1 && s.config.FallbackModel != "" {
			model = s.config.FallbackModel
		}

		req := openai.ChatCompletionRequest{
			Model:       model,
			Temperature: float32(s.config.Temperature),
			MaxTokens:   s.config.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: selectionSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		}

		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("selection request failed: %w", err)
			log.Printf("[WARN] selection attempt %d for %s: %v", attempt+1, segName, err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response from llm")
			continue
		}

		selected, err := s.parseResponse(resp.Choices[0].Message.Content, byID)
		if err != nil {
			lastErr = err
			log.Printf("[WARN] selection attempt %d for %s rejected: %v", attempt+1, segName, err)
			// re-prompt with the specific problem spelled out
			prompt = s.buildPrompt(segName, seg, candidates) +
				fmt.Sprintf("\n\nYour previous response was invalid: %v. Follow the format exactly.", err)
			continue
		}

		return domain.Split(segName, selected), nil
	}

	return nil, fmt.Errorf("selection failed after %d attempts for segment %s: %w", retries, segName, lastErr)
}

// filterCandidates drops skip-keyword matches and caps the candidate list,
// sampling categories round-robin so a high-volume category cannot crowd out
// the rest. Focus-keyword matches go first within each category.
func (s *Selector) filterCandidates(articles []domain.Article, seg config.Segment) []domain.Article {
	kept := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if matchesAny(a, seg.SkipKeywords) {
			continue
		}
		kept = append(kept, a)
	}

	maxCandidates := s.config.Selection.MaxCandidates
	if len(kept) <= maxCandidates {
		return kept
	}

	byCategory := make(map[string][]domain.Article)
	for _, a := range kept {
		byCategory[a.Category] = append(byCategory[a.Category], a)
	}
	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		sort.SliceStable(byCategory[cat], func(i, j int) bool {
			return matchesAny(byCategory[cat][i], seg.FocusKeywords) && !matchesAny(byCategory[cat][j], seg.FocusKeywords)
		})
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	result := make([]domain.Article, 0, maxCandidates)
	for idx := 0; len(result) < maxCandidates; idx++ {
		added := false
		for _, cat := range categories {
			if idx < len(byCategory[cat]) {
				result = append(result, byCategory[cat][idx])
				added = true
				if len(result) == maxCandidates {
					break
				}
			}
		}
		if !added {
			break
		}
	}
	return result
}

// matchesAny reports whether the article's title or description contains any
// of the keywords, case-insensitive
func matchesAny(a domain.Article, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	haystack := strings.ToLower(a.Title + " " + a.Desc)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// buildPrompt creates the selection prompt for the LLM
func (s *Selector) buildPrompt(segName string, seg config.Segment, candidates []domain.Article) string {
	var sb strings.Builder
	sb.WriteString(segmentPersona(seg))
	sb.WriteString("\n")
	sb.WriteString(tierInstructions(s.config.Selection.Tiers))
	sb.WriteString("\n\nCandidate articles:\n\n")

	for i, a := range candidates {
		sb.WriteString(fmt.Sprintf("%d. ID: %s\n", i+1, a.ID))
		sb.WriteString(fmt.Sprintf("   Title: %s\n", a.Title))
		sb.WriteString(fmt.Sprintf("   Source: %s (%s, %s)\n", a.Source, a.Category, a.SourceType))
		if a.Desc != "" {
			sb.WriteString(fmt.Sprintf("   Description: %s\n", content.TruncateAtSentence(a.Desc, promptDescChars)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf(`Respond with a JSON object: {"segment": %q, "selected_articles": [...]}`, segName))
	return sb.String()
}

// parseResponse parses and validates the selection, returning the chosen
// articles with their selection metadata filled in
func (s *Selector) parseResponse(content string, byID map[string]domain.Article) ([]domain.Article, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no json object found in response")
	}

	var resp selectionResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse json response: %w", err)
	}
	if len(resp.SelectedArticles) == 0 {
		return nil, fmt.Errorf("empty selection")
	}

	counts := map[domain.Tier]int{}
	seen := map[string]bool{}
	result := make([]domain.Article, 0, len(resp.SelectedArticles))

	for _, sel := range resp.SelectedArticles {
		article, ok := byID[sel.ArticleID]
		if !ok {
			return nil, fmt.Errorf("unknown article_id %q", sel.ArticleID)
		}
		if seen[sel.ArticleID] {
			return nil, fmt.Errorf("article_id %q selected twice", sel.ArticleID)
		}
		seen[sel.ArticleID] = true

		tier := domain.Tier(sel.Tier)
		if !tier.Valid() {
			return nil, fmt.Errorf("invalid tier %q for article %q", sel.Tier, sel.ArticleID)
		}
		if sel.SelectionReason == "" || sel.CategoryTag == "" {
			return nil, fmt.Errorf("missing required fields for article %q", sel.ArticleID)
		}
		counts[tier]++

		article.Tier = tier
		article.SelectionReason = sel.SelectionReason
		article.AudienceValue = sel.AudienceValue
		article.UrgencyScore = clampScore(sel.UrgencyScore)
		article.CategoryTag = strings.ToLower(sel.CategoryTag)
		result = append(result, article)
	}

	b := s.config.Selection.Tiers
	if err := checkTierCount("full", counts[domain.TierFull], b.FullMin, b.FullMax); err != nil {
		return nil, err
	}
	if err := checkTierCount("quick", counts[domain.TierQuick], b.QuickMin, b.QuickMax); err != nil {
		return nil, err
	}
	if err := checkTierCount("trending", counts[domain.TierTrending], b.TrendingMin, b.TrendingMax); err != nil {
		return nil, err
	}

	return result, nil
}

func checkTierCount(tier string, got, minCount, maxCount int) error {
	if got < minCount || got > maxCount {
		return fmt.Errorf("%s tier has %d articles, expected %d-%d", tier, got, minCount, maxCount)
	}
	return nil
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
