// Package webhook delivers ledger events to an HTTP endpoint. Each delivery is
// signed with HMAC-SHA256 over the raw body.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"card-escrow-ledger/internal/core/domain"

	"github.com/rs/zerolog"
)

// Request headers set on every delivery.
const (
	HeaderSignature = "X-Ledger-Signature"
	HeaderTimestamp = "X-Ledger-Timestamp"
)

// DefaultRetryIntervals are the waits between delivery attempts.
var DefaultRetryIntervals = []time.Duration{
	500 * time.Millisecond,
	2 * time.Second,
	5 * time.Second,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Signer produces the hex HMAC of a payload.
type Signer interface {
	Sign(secretKey string, payload string) string
}

// Payload is the JSON body POSTed to the endpoint.
type Payload struct {
	Events []domain.Event `json:"events"`
}

// Publisher implements ports.EventPublisher over HTTP.
type Publisher struct {
	url     string
	secret  string
	signer  Signer
	client  HTTPClient
	retries []time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewPublisher creates a webhook publisher. A nil retries slice uses
// DefaultRetryIntervals.
func NewPublisher(url, secret string, signer Signer, client HTTPClient, retries []time.Duration, log zerolog.Logger) *Publisher {
	if retries == nil {
		retries = DefaultRetryIntervals
	}
	return &Publisher{
		url:     url,
		secret:  secret,
		signer:  signer,
		client:  client,
		retries: retries,
		now:     time.Now,
		log:     log,
	}
}

// Name returns the sink name used in metrics.
func (p *Publisher) Name() string {
	return "webhook"
}

// Publish POSTs the batch, retrying on transport errors and non-2xx answers
// until the retry schedule or ctx runs out.
func (p *Publisher) Publish(ctx context.Context, events []domain.Event) error {
	body, err := json.Marshal(Payload{Events: events})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(p.retries); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook delivery cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(p.retries[attempt-1]):
			}
		}

		lastErr = p.deliver(ctx, body)
		if lastErr == nil {
			p.log.Debug().Int("attempt", attempt+1).Int("count", len(events)).Msg("webhook: delivered")
			return nil
		}
		p.log.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("webhook: delivery failed")
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", len(p.retries)+1, lastErr)
}

func (p *Publisher) deliver(ctx context.Context, body []byte) error {
	ts := strconv.FormatInt(p.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, p.signer.Sign(p.secret, ts+"."+string(body)))

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
