package sponsor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefdelights/briefly/pkg/domain"
)

type mockStore struct {
	resolved    *domain.ResolvedSponsor
	resolveErr  error
	sentID      int64
	sentSlug    string
	impressions int
}

func (m *mockStore) GetSponsorForNewsletter(_ context.Context, _ time.Time, _ string) (*domain.ResolvedSponsor, error) {
	return m.resolved, m.resolveErr
}

func (m *mockStore) MarkScheduleSent(_ context.Context, scheduleID int64, slug string) error {
	m.sentID = scheduleID
	m.sentSlug = slug
	return nil
}

func (m *mockStore) IncrementImpressions(_ context.Context, _ int64) error {
	m.impressions++
	return nil
}

const sampleHTML = `<html><body>
<p>intro</p>
<!-- sponsor:start -->
<div>Sponsored by {{ sponsor_company }}: {{ sponsor_headline }}</div>
<p>{{ sponsor_description }}</p>
<a href="{{ sponsor_cta_url }}">{{ sponsor_cta_text }}</a>
<!-- sponsor:end -->
<p>outro</p>
</body></html>`

func scheduledSponsor() *domain.ResolvedSponsor {
	return &domain.ResolvedSponsor{
		SponsorContent: domain.SponsorContent{
			Company:  "Acme Cloud",
			Headline: "Deploy in seconds",
			Desc:     "The fastest way to ship.",
			CTAText:  "Try it free",
			CTAURL:   "https://acme.example/start",
		},
		ScheduleID: 42,
	}
}

func TestInjector_Inject_ScheduledSponsor(t *testing.T) {
	store := &mockStore{resolved: scheduledSponsor()}
	inj := NewInjector(store, "https://briefdelights.com/api/track/sponsor")

	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out, resolved, err := inj.Inject(context.Background(), sampleHTML, date, "builders")
	require.NoError(t, err)
	require.NotNil(t, resolved)

	assert.Contains(t, out, "Acme Cloud")
	assert.Contains(t, out, "Deploy in seconds")
	assert.Contains(t, out, "Try it free")
	assert.NotContains(t, out, "{{ sponsor_")

	// CTA routed through the sponsor redirect with the schedule id
	assert.Contains(t, out, "https://briefdelights.com/api/track/sponsor?")
	assert.Contains(t, out, "sched=42")
	assert.Contains(t, out, "url=https%3A%2F%2Facme.example%2Fstart")
	assert.NotContains(t, out, `href="https://acme.example/start"`)
}

func TestInjector_Inject_DefaultSponsorHasNoScheduleParam(t *testing.T) {
	sp := scheduledSponsor()
	sp.ScheduleID = 0
	sp.FromDefault = true
	store := &mockStore{resolved: sp}
	inj := NewInjector(store, "https://briefdelights.com/api/track/sponsor")

	out, resolved, err := inj.Inject(context.Background(), sampleHTML, time.Now(), "builders")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.True(t, resolved.FromDefault)
	assert.Contains(t, out, "Acme Cloud")
	assert.NotContains(t, out, "sched=")
}

func TestInjector_Inject_NoSponsorStripsBlock(t *testing.T) {
	store := &mockStore{}
	inj := NewInjector(store, "https://briefdelights.com/api/track/sponsor")

	out, resolved, err := inj.Inject(context.Background(), sampleHTML, time.Now(), "builders")
	require.NoError(t, err)
	assert.Nil(t, resolved)
	assert.NotContains(t, out, "sponsor")
	assert.Contains(t, out, "intro")
	assert.Contains(t, out, "outro")
}

func TestInjector_Inject_IdempotentWithoutMarkers(t *testing.T) {
	store := &mockStore{resolved: scheduledSponsor()}
	inj := NewInjector(store, "https://briefdelights.com/api/track/sponsor")

	plain := "<html><body>no block here</body></html>"
	out, resolved, err := inj.Inject(context.Background(), plain, time.Now(), "builders")
	require.NoError(t, err)
	assert.Nil(t, resolved)
	assert.Equal(t, plain, out)
}

func TestInjector_Inject_StoreError(t *testing.T) {
	store := &mockStore{resolveErr: errors.New("db down")}
	inj := NewInjector(store, "https://briefdelights.com/api/track/sponsor")

	_, _, err := inj.Inject(context.Background(), sampleHTML, time.Now(), "builders")
	require.Error(t, err)
}

func TestInjector_Inject_EscapesSponsorContent(t *testing.T) {
	sp := scheduledSponsor()
	sp.Headline = `<script>alert("x")</script>`
	store := &mockStore{resolved: sp}
	inj := NewInjector(store, "https://briefdelights.com/api/track/sponsor")

	out, _, err := inj.Inject(context.Background(), sampleHTML, time.Now(), "builders")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestInjector_MarkSent(t *testing.T) {
	t.Run("scheduled sponsor updated", func(t *testing.T) {
		store := &mockStore{}
		inj := NewInjector(store, "base")
		err := inj.MarkSent(context.Background(), scheduledSponsor(), "builders-2026-09-01")
		require.NoError(t, err)
		assert.EqualValues(t, 42, store.sentID)
		assert.Equal(t, "builders-2026-09-01", store.sentSlug)
		assert.Equal(t, 1, store.impressions)
	})

	t.Run("default sponsor is a no-op", func(t *testing.T) {
		store := &mockStore{}
		inj := NewInjector(store, "base")
		sp := scheduledSponsor()
		sp.FromDefault = true
		require.NoError(t, inj.MarkSent(context.Background(), sp, "slug"))
		assert.Zero(t, store.sentID)
		assert.Zero(t, store.impressions)
	})

	t.Run("nil sponsor is a no-op", func(t *testing.T) {
		store := &mockStore{}
		inj := NewInjector(store, "base")
		require.NoError(t, inj.MarkSent(context.Background(), nil, "slug"))
	})
}
