// Package events publishes domain events after a transaction commits.
// Delivery is best effort: a failed publish is logged and never fails the
// request that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const Producer = "medipatient-backend"

// Event types.
const (
	AppointmentCreated       = "appointment.created"
	AppointmentUpdated       = "appointment.updated"
	AppointmentStatusChanged = "appointment.status_changed"
	AppointmentDeleted       = "appointment.deleted"
	StockMovementRecorded    = "stock.movement_recorded"
	StockMovementReversed    = "stock.movement_reversed"
	InventoryLowStock        = "inventory.low_stock"
	InvoiceCreated           = "invoice.created"
	InvoiceStatusChanged     = "invoice.status_changed"
)

// Envelope is the wire shape shared by every transport.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`

	// Key picks the Kafka partition; events about the same aggregate share it.
	Key string `json:"-"`
}

// Publisher delivers envelopes to one destination.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

type correlationKey struct{}

// WithCorrelationID stores the id that NewEnvelope copies into every event.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey{}).(string)
	return v
}

// NewEnvelope marshals payload and stamps id, time and correlation id.
func NewEnvelope(ctx context.Context, eventType, key string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      Producer,
		CorrelationID: CorrelationIDFromContext(ctx),
		Payload:       raw,
		Key:           key,
	}, nil
}

// Emit builds and publishes an event, logging instead of returning failures.
// The write it reports has already committed, so publishing is detached from
// the caller's cancellation.
func Emit(ctx context.Context, p Publisher, eventType, key string, payload any) {
	if p == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	logger := zerolog.Ctx(ctx)

	env, err := NewEnvelope(ctx, eventType, key, payload)
	if err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := p.Publish(ctx, env); err != nil {
		logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("event_id", env.EventID).
			Msg("failed to publish event")
		return
	}
	logger.Debug().Str("event_type", eventType).Str("event_id", env.EventID).Msg("event published")
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Envelope) error { return nil }
func (Noop) Close() error                            { return nil }
