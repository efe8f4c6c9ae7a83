package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	SignatureHeader = "X-Signature"
	EventTypeHeader = "X-Event-Type"
	EventIDHeader   = "X-Event-ID"
)

// WebhookPublisher POSTs each envelope as JSON, signed with HMAC-SHA256.
// Publish only queues the envelope; one goroutine delivers the inbox in order,
// retrying server errors, so a slow endpoint never holds up a request.
type WebhookPublisher struct {
	client *resty.Client
	url    string
	secret string
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan Envelope
	done   chan struct{}
}

type WebhookOption func(*resty.Client)

// WithRetry overrides the retry count and the initial backoff.
func WithRetry(count int, wait time.Duration) WebhookOption {
	return func(c *resty.Client) {
		c.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(wait * 4)
	}
}

func WithTimeout(d time.Duration) WebhookOption {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// NewWebhookPublisher starts the delivery loop. buf is the inbox capacity.
func NewWebhookPublisher(url, secret string, buf int, logger zerolog.Logger, opts ...WebhookOption) *WebhookPublisher {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", Producer).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	for _, opt := range opts {
		opt(client)
	}
	if buf <= 0 {
		buf = 256
	}
	w := &WebhookPublisher{
		client: client,
		url:    url,
		secret: secret,
		logger: logger.With().Str("component", "webhook_publisher").Logger(),
		inbox:  make(chan Envelope, buf),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *WebhookPublisher) loop() {
	defer close(w.done)
	for env := range w.inbox {
		if err := w.deliver(context.Background(), env); err != nil {
			w.logger.Error().Err(err).
				Str("event_id", env.EventID).
				Str("event_type", env.EventType).
				Msg("webhook delivery failed")
		}
	}
}

// Publish queues env for delivery. It fails only when the publisher is
// closed or the inbox is full.
func (w *WebhookPublisher) Publish(_ context.Context, env Envelope) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrPublisherClosed
	}
	select {
	case w.inbox <- env:
		return nil
	default:
		return ErrBufferFull
	}
}

func (w *WebhookPublisher) deliver(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader(SignatureHeader, "sha256="+SignPayload(body, w.secret)).
		SetHeader(EventTypeHeader, env.EventType).
		SetHeader(EventIDHeader, env.EventID).
		SetBody(body).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", env.EventType, err)
	}
	if resp.IsError() {
		return fmt.Errorf("deliver %s: webhook responded %d", env.EventType, resp.StatusCode())
	}
	return nil
}

// Close stops accepting events and waits until the inbox is delivered.
func (w *WebhookPublisher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.inbox)
	w.mu.Unlock()

	<-w.done
	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex signature, with or without the "sha256=" prefix.
func VerifySignature(payload []byte, secret, signature string) bool {
	if len(signature) > 7 && signature[:7] == "sha256=" {
		signature = signature[7:]
	}
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}
