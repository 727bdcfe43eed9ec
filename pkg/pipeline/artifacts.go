package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/briefdelights/briefly/pkg/domain"
)

// Artifacts reads and writes the per-run intermediate files. Every step of a
// run leaves its output on disk so steps can be re-run individually and a
// failed run can be inspected after the fact.
type Artifacts struct {
	dir string
}

// NewArtifacts creates an artifact store rooted at dir
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{dir: dir}
}

// SaveRawArticles writes the aggregation output for the date
func (a *Artifacts) SaveRawArticles(date string, articles []domain.Article) error {
	return a.writeJSON(fmt.Sprintf("raw_articles_%s.json", date), articles)
}

// LoadRawArticles reads the aggregation output for the date
func (a *Artifacts) LoadRawArticles(date string) ([]domain.Article, error) {
	var articles []domain.Article
	if err := a.readJSON(fmt.Sprintf("raw_articles_%s.json", date), &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// SaveSelected writes one segment's tiered selection
func (a *Artifacts) SaveSelected(segment, date string, set *domain.TieredSet) error {
	return a.writeJSON(fmt.Sprintf("selected_articles_%s_%s.json", segment, date), set)
}

// LoadSelected reads one segment's tiered selection
func (a *Artifacts) LoadSelected(segment, date string) (*domain.TieredSet, error) {
	var set domain.TieredSet
	if err := a.readJSON(fmt.Sprintf("selected_articles_%s_%s.json", segment, date), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// SaveSummaries writes one segment's summarized selection
func (a *Artifacts) SaveSummaries(segment, date string, set *domain.TieredSet) error {
	return a.writeJSON(fmt.Sprintf("summaries_%s_%s.json", segment, date), set)
}

// LoadSummaries reads one segment's summarized selection
func (a *Artifacts) LoadSummaries(segment, date string) (*domain.TieredSet, error) {
	var set domain.TieredSet
	if err := a.readJSON(fmt.Sprintf("summaries_%s_%s.json", segment, date), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// SaveNewsletter writes the rendered HTML for one segment
func (a *Artifacts) SaveNewsletter(segment, date, html string) error {
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	name := filepath.Join(a.dir, fmt.Sprintf("newsletter_%s_%s.html", segment, date))
	if err := os.WriteFile(name, []byte(html), 0o600); err != nil {
		return fmt.Errorf("write newsletter artifact: %w", err)
	}
	return nil
}

// LoadNewsletter reads the rendered HTML for one segment
func (a *Artifacts) LoadNewsletter(segment, date string) (string, error) {
	name := filepath.Join(a.dir, fmt.Sprintf("newsletter_%s_%s.html", segment, date))
	data, err := os.ReadFile(name) //nolint:gosec // path built from run parameters
	if err != nil {
		return "", fmt.Errorf("read newsletter artifact: %w", err)
	}
	return string(data), nil
}

// SaveSendLog writes the per-run delivery record
func (a *Artifacts) SaveSendLog(date string, sendLog *domain.SendLog) error {
	return a.writeJSON(fmt.Sprintf("send_log_%s.json", date), sendLog)
}

func (a *Artifacts) writeJSON(name string, v any) error {
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(a.dir, name), data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (a *Artifacts) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(a.dir, name)) //nolint:gosec // path built from run parameters
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}
