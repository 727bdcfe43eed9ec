package llm

import (
	"fmt"
	"strings"

	"github.com/briefdelights/briefly/pkg/config"
)

// system prompt for story selection
const selectionSystemPrompt = `You are the senior editor of a daily technology newsletter.
You pick the stories that matter for a specific audience segment and assign each one a treatment tier:
- "full": the day's most important stories, each gets a full summary with editorial context
- "quick": worth knowing, one line each
- "trending": a topic readers will hear about, headline only

Selection rules:
- Prefer primary sources (official announcements, release notes) over secondary coverage of the same story.
- Never select two articles covering the same event.
- Judge by value to the audience, not by publication volume.

Each selected article must contain:
- article_id: the article's id exactly as given
- tier: "full", "quick" or "trending"
- selection_reason: why this story made the cut (max 150 chars)
- audience_value: what the reader gains from it (max 150 chars)
- urgency_score: 1-10, how time-sensitive the story is
- category_tag: a short lowercase topic tag like "ai", "security", "cloud"

Every field is required for every article. Respond with a single JSON object and nothing else.`

// system prompt for full-tier summaries
const summarySystemPrompt = `You are a newsletter writer producing a summary of one article for a specific audience segment.
Write directly about the content itself. NEVER open with phrases like "The article discusses" or "This piece covers".

Respond with a single JSON object:
- summary: the story in 2-4 sentences
- key_takeaway: the single most important point (one sentence)
- why_this_matters: why this audience should care (one sentence)
- read_time_minutes: estimated reading time for the original article, integer 1-15

Respond with the JSON object and nothing else.`

// segmentPersona renders the audience description block shared by the
// selection and summary prompts
func segmentPersona(seg config.Segment) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Audience segment: %s", seg.Name))
	if seg.Emoji != "" {
		sb.WriteString(" " + seg.Emoji)
	}
	sb.WriteString("\n")
	if seg.Description != "" {
		sb.WriteString(fmt.Sprintf("Who they are: %s\n", seg.Description))
	}
	if seg.SelectionCriteria != "" {
		sb.WriteString(fmt.Sprintf("What they want: %s\n", seg.SelectionCriteria))
	}
	if len(seg.FocusKeywords) > 0 {
		sb.WriteString(fmt.Sprintf("Lean towards: %s\n", strings.Join(seg.FocusKeywords, ", ")))
	}
	if len(seg.SkipKeywords) > 0 {
		sb.WriteString(fmt.Sprintf("Avoid: %s\n", strings.Join(seg.SkipKeywords, ", ")))
	}
	return sb.String()
}

// tierInstructions renders the per-tier count requirements
func tierInstructions(b config.TierBounds) string {
	return fmt.Sprintf("Select exactly %d-%d full articles, %d-%d quick articles and %d-%d trending articles.",
		b.FullMin, b.FullMax, b.QuickMin, b.QuickMax, b.TrendingMin, b.TrendingMax)
}
