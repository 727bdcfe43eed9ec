package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
newsletter:
  site_url: https://briefdelights.com
  sender: news@briefdelights.com

llm:
  endpoint: https://api.openai.com/v1
  model: gpt-4o

segments:
  builders:
    name: Builders

feeds:
  categories:
    dev:
      - https://go.dev/blog/feed.atom
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "briefly.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "Brief Delights", cfg.Newsletter.Name, "default name")
	assert.Equal(t, "https://briefdelights.com/unsubscribe", cfg.Newsletter.UnsubscribeURL, "derived from site url")
	assert.Equal(t, "https://briefdelights.com/api/track", cfg.TrackingBase())

	// feed defaults
	assert.Equal(t, 24*time.Hour, cfg.Feeds.Lookback)
	assert.Equal(t, 48*time.Hour, cfg.Feeds.ExtendedLookback)
	assert.Equal(t, 20, cfg.Feeds.MinArticles)

	// tier defaults
	tiers := cfg.LLM.Selection.Tiers
	assert.Equal(t, 3, tiers.FullMin)
	assert.Equal(t, 4, tiers.FullMax)
	assert.Equal(t, 5, tiers.QuickMin)
	assert.Equal(t, 8, tiers.QuickMax)
	assert.Equal(t, 3, tiers.TrendingMin)
	assert.Equal(t, 5, tiers.TrendingMax)

	// summary model falls back to the selection model
	assert.Equal(t, "gpt-4o", cfg.LLM.SummaryModel)

	// extraction is opt-in
	assert.False(t, cfg.Extraction.Enabled)

	listen, timeout := cfg.GetServerConfig()
	assert.Equal(t, ":8080", listen)
	assert.Equal(t, 30*time.Second, timeout)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "secret-key")
	yaml := `
newsletter:
  site_url: https://briefdelights.com
  sender: news@briefdelights.com

llm:
  endpoint: https://api.openai.com/v1
  model: gpt-4o
  api_key: ${TEST_LLM_KEY}

segments:
  builders:
    name: Builders

feeds:
  categories:
    dev:
      - https://go.dev/blog/feed.atom
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			name: "missing site url",
			mutate: `
newsletter:
  sender: news@briefdelights.com
llm:
  endpoint: https://api.openai.com/v1
  model: gpt-4o
segments:
  builders:
    name: Builders
feeds:
  categories:
    dev: [https://go.dev/blog/feed.atom]
`,
			wantErr: "site_url",
		},
		{
			name: "missing llm model",
			mutate: `
newsletter:
  site_url: https://briefdelights.com
  sender: news@briefdelights.com
llm:
  endpoint: https://api.openai.com/v1
segments:
  builders:
    name: Builders
feeds:
  categories:
    dev: [https://go.dev/blog/feed.atom]
`,
			wantErr: "model",
		},
		{
			name: "no segments",
			mutate: `
newsletter:
  site_url: https://briefdelights.com
  sender: news@briefdelights.com
llm:
  endpoint: https://api.openai.com/v1
  model: gpt-4o
feeds:
  categories:
    dev: [https://go.dev/blog/feed.atom]
`,
			wantErr: "segment",
		},
		{
			name: "extended lookback shorter than lookback",
			mutate: `
newsletter:
  site_url: https://briefdelights.com
  sender: news@briefdelights.com
llm:
  endpoint: https://api.openai.com/v1
  model: gpt-4o
segments:
  builders:
    name: Builders
feeds:
  lookback: 48h
  extended_lookback: 24h
  categories:
    dev: [https://go.dev/blog/feed.atom]
`,
			wantErr: "lookback",
		},
		{
			name: "negative max_concurrent",
			mutate: `
newsletter:
  site_url: https://briefdelights.com
  sender: news@briefdelights.com
llm:
  endpoint: https://api.openai.com/v1
  model: gpt-4o
segments:
  builders:
    name: Builders
feeds:
  max_concurrent: -1
  categories:
    dev: [https://go.dev/blog/feed.atom]
`,
			wantErr: "max_concurrent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.mutate))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/briefly.yml")
	require.Error(t, err)
}
