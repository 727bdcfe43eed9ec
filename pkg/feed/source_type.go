package feed

import (
	"strings"

	"github.com/briefdelights/briefly/pkg/domain"
)

// primaryDomains mark original announcements: research hubs, company engineering
// blogs, code forges and well-known individual authors
var primaryDomains = []string{
	"arxiv.org", "nature.com", "science.org",
	"blog.", "engineering.", "research.", "developers.",
	"github.com", "gitlab.com",
	"openai.com", "anthropic.com", "deepmind", "ai.meta.com",
	"stripe.com/blog", "aws.amazon.com/blogs", "cloud.google.com/blog",
	"martinfowler.com", "codinghorror.com", "joelonsoftware.com",
}

var primarySources = []string{
	"openai", "anthropic", "deepmind", "meta ai", "google ai",
	"stripe engineering", "airbnb engineering", "uber engineering",
	"martin fowler", "joel spolsky", "jeff atwood",
	"sequoia", "a16z", "ycombinator",
}

var secondarySources = []string{
	"techcrunch", "the verge", "wired", "ars technica",
	"bloomberg", "reuters", "cnet", "zdnet",
	"venturebeat", "engadget",
}

var releaseKeywords = []string{"changelog", "release", "announcing", "launches"}

// detectSourceType classifies an article as a primary source (original
// announcement or research) or secondary coverage of someone else's news.
// Selection strongly prefers primary sources.
func detectSourceType(url, source string) domain.SourceType {
	urlLower := strings.ToLower(url)
	sourceLower := strings.ToLower(source)

	for _, d := range primaryDomains {
		if strings.Contains(urlLower, d) {
			return domain.SourcePrimary
		}
	}
	for _, k := range releaseKeywords {
		if strings.Contains(urlLower, k) {
			return domain.SourcePrimary
		}
	}
	for _, ps := range primarySources {
		if strings.Contains(sourceLower, ps) {
			return domain.SourcePrimary
		}
	}
	for _, ss := range secondarySources {
		if strings.Contains(sourceLower, ss) || strings.Contains(urlLower, ss) {
			return domain.SourceSecondary
		}
	}

	if strings.Contains(urlLower, "blog") || strings.Contains(urlLower, "research") {
		return domain.SourcePrimary
	}
	return domain.SourceSecondary
}
