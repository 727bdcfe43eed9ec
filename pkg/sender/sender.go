package sender

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/resend/resend-go/v2"

	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/domain"
)

// EmailClient delivers one email and returns the provider message id
type EmailClient interface {
	Send(ctx context.Context, from, to, subject, html string) (string, error)
}

// resendClient adapts the Resend SDK to EmailClient
type resendClient struct {
	client *resend.Client
}

// NewResendClient creates an EmailClient backed by Resend
func NewResendClient(apiKey string) EmailClient {
	return &resendClient{client: resend.NewClient(apiKey)}
}

func (c *resendClient) Send(ctx context.Context, from, to, subject, html string) (string, error) {
	resp, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	return resp.Id, nil
}

// Sender delivers a rendered newsletter to a segment's recipients in batches.
// Each recipient gets an individual message; a failed recipient never blocks
// the rest of the batch.
type Sender struct {
	client EmailClient
	from   string
	config config.EmailConfig

	// test hook for batch pacing
	sleep func(time.Duration)
}

// NewSender creates a sender. from is the outbound address.
func NewSender(client EmailClient, from string, cfg config.EmailConfig) *Sender {
	return &Sender{client: client, from: from, config: cfg, sleep: time.Sleep}
}

// Send delivers html to all subscribers with a pause between batches. A
// segment with no recipients is skipped, not failed. Dry-run logs the plan
// without touching the provider.
func (s *Sender) Send(ctx context.Context, segment, subject, html string, subscribers []domain.Subscriber, dryRun bool) domain.SegmentSendResult {
	result := domain.SegmentSendResult{Segment: segment}

	if len(subscribers) == 0 {
		log.Printf("[WARN] no confirmed subscribers for segment %s, skipping send", segment)
		result.Skipped = true
		return result
	}

	if dryRun {
		log.Printf("[INFO] dry-run: would send %q to %d subscribers in segment %s", subject, len(subscribers), segment)
		for _, sub := range subscribers {
			result.Details = append(result.Details, domain.SendOutcome{
				Email: sub.Email, Status: "dry-run", Timestamp: time.Now().UTC(),
			})
		}
		return result
	}

	batchSize := s.config.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(subscribers); start += batchSize {
		end := min(start+batchSize, len(subscribers))
		if start > 0 {
			s.sleep(s.config.BatchDelay)
		}

		for _, sub := range subscribers[start:end] {
			outcome := s.sendOne(ctx, sub.Email, subject, html)
			if outcome.Status == "success" {
				result.Sent++
			} else {
				result.Failed++
			}
			result.Details = append(result.Details, outcome)
		}
		log.Printf("[DEBUG] segment %s: batch %d-%d done, %d sent, %d failed",
			segment, start+1, end, result.Sent, result.Failed)
	}

	log.Printf("[INFO] segment %s: sent %d, failed %d of %d", segment, result.Sent, result.Failed, len(subscribers))
	return result
}

// sendOne delivers to a single recipient with bounded retries
func (s *Sender) sendOne(ctx context.Context, to, subject, html string) domain.SendOutcome {
	outcome := domain.SendOutcome{Email: to, Timestamp: time.Now().UTC()}

	retrier := repeater.NewBackoff(s.config.MaxRetries, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))
	var messageID string
	err := retrier.Do(ctx, func() error {
		id, sendErr := s.client.Send(ctx, s.from, to, subject, html)
		if sendErr != nil {
			return sendErr
		}
		messageID = id
		return nil
	})

	if err != nil {
		log.Printf("[WARN] delivery to %s failed: %v", to, err)
		outcome.Status = "failed"
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = "success"
	outcome.MessageID = messageID
	return outcome
}
