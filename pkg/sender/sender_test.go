package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/domain"
)

type mockClient struct {
	mu    sync.Mutex
	sent  []string
	fails map[string]int // remaining failures per recipient
}

func (m *mockClient) Send(_ context.Context, _, to, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails[to] > 0 {
		m.fails[to]--
		return "", errors.New("provider error")
	}
	m.sent = append(m.sent, to)
	return "msg-" + to, nil
}

func testEmailConfig() config.EmailConfig {
	return config.EmailConfig{BatchSize: 100, BatchDelay: time.Second, MaxRetries: 3}
}

func subscribers(n int) []domain.Subscriber {
	subs := make([]domain.Subscriber, n)
	for i := range subs {
		subs[i] = domain.Subscriber{Email: fmt.Sprintf("user%d@example.com", i), Segment: "builders", Status: domain.SubscriberConfirmed}
	}
	return subs
}

func TestSender_Send_SingleBatchAllSuccess(t *testing.T) {
	client := &mockClient{}
	s := NewSender(client, "news@briefdelights.com", testEmailConfig())
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }

	result := s.Send(context.Background(), "builders", "Today's brief", "<html></html>", subscribers(3), false)

	assert.Equal(t, 3, result.Sent)
	assert.Zero(t, result.Failed)
	assert.False(t, result.Skipped)
	assert.Len(t, client.sent, 3)
	assert.Empty(t, slept, "single batch needs no pause")

	require.Len(t, result.Details, 3)
	assert.Equal(t, "success", result.Details[0].Status)
	assert.Equal(t, "msg-user0@example.com", result.Details[0].MessageID)
}

func TestSender_Send_BatchesWithDelay(t *testing.T) {
	client := &mockClient{}
	cfg := config.EmailConfig{BatchSize: 2, BatchDelay: time.Second, MaxRetries: 1}
	s := NewSender(client, "news@briefdelights.com", cfg)
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }

	result := s.Send(context.Background(), "builders", "subj", "<html></html>", subscribers(5), false)

	assert.Equal(t, 5, result.Sent)
	require.Len(t, slept, 2, "three batches means two pauses")
	assert.Equal(t, time.Second, slept[0])
}

func TestSender_Send_RetriesThenSucceeds(t *testing.T) {
	client := &mockClient{fails: map[string]int{"user0@example.com": 2}}
	cfg := testEmailConfig()
	cfg.MaxRetries = 3
	s := NewSender(client, "news@briefdelights.com", cfg)
	s.sleep = func(time.Duration) {}

	result := s.Send(context.Background(), "builders", "subj", "<html></html>", subscribers(1), false)
	assert.Equal(t, 1, result.Sent)
	assert.Zero(t, result.Failed)
}

func TestSender_Send_FailedRecipientDoesNotBlockRest(t *testing.T) {
	client := &mockClient{fails: map[string]int{"user1@example.com": 10}}
	cfg := testEmailConfig()
	s := NewSender(client, "news@briefdelights.com", cfg)
	s.sleep = func(time.Duration) {}

	result := s.Send(context.Background(), "builders", "subj", "<html></html>", subscribers(3), false)

	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)

	var failed *domain.SendOutcome
	for i := range result.Details {
		if result.Details[i].Status == "failed" {
			failed = &result.Details[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "user1@example.com", failed.Email)
	assert.Contains(t, failed.Error, "provider error")
}

func TestSender_Send_NoSubscribersSkips(t *testing.T) {
	client := &mockClient{}
	s := NewSender(client, "news@briefdelights.com", testEmailConfig())

	result := s.Send(context.Background(), "builders", "subj", "<html></html>", nil, false)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Sent)
	assert.Empty(t, client.sent)
}

func TestSender_Send_DryRun(t *testing.T) {
	client := &mockClient{}
	s := NewSender(client, "news@briefdelights.com", testEmailConfig())

	result := s.Send(context.Background(), "builders", "subj", "<html></html>", subscribers(2), true)
	assert.Empty(t, client.sent, "dry-run never hits the provider")
	assert.Zero(t, result.Sent)
	require.Len(t, result.Details, 2)
	assert.Equal(t, "dry-run", result.Details[0].Status)
}
