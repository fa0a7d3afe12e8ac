// Package notify emits domain events for an external delivery channel.
// Delivery itself (mail, push) happens outside this service.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/lab-portal/internal/logging"
)

// Kind names an event type.
type Kind string

const (
	KindReservationCreated Kind = "reservation.created"
	KindLowStock           Kind = "equipment.low_stock"
)

// ReservationCreated is emitted after reservations are stored. An import
// commit emits one event covering the whole batch.
type ReservationCreated struct {
	ReservationIDs []string  `json:"reservation_ids"`
	LabID          string    `json:"lab_id"`
	LabName        string    `json:"lab_name"`
	OwnerEmail     string    `json:"owner_email"`
	Purpose        string    `json:"purpose"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Count          int       `json:"count"`
}

// LowStock is emitted when an equipment quantity drops to its alert threshold.
type LowStock struct {
	EquipmentID string `json:"equipment_id"`
	Name        string `json:"name"`
	LabID       string `json:"lab_id"`
	LabName     string `json:"lab_name"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
	Threshold   int    `json:"threshold"`
}

// Event is a single notification. Exactly one payload field is set.
type Event struct {
	Kind               Kind
	OccurredAt         time.Time
	ReservationCreated *ReservationCreated
	LowStock           *LowStock
}

// Payload returns the JSON encoding of the event's payload.
func (e Event) Payload() ([]byte, error) {
	switch e.Kind {
	case KindReservationCreated:
		if e.ReservationCreated == nil {
			return nil, errMissingPayload(e.Kind)
		}
		return json.Marshal(e.ReservationCreated)
	case KindLowStock:
		if e.LowStock == nil {
			return nil, errMissingPayload(e.Kind)
		}
		return json.Marshal(e.LowStock)
	default:
		return nil, fmt.Errorf("notify: unknown event kind %q", e.Kind)
	}
}

func errMissingPayload(kind Kind) error {
	return fmt.Errorf("notify: %s event has no payload", kind)
}

// CrossedThreshold reports whether a quantity change moves an item from
// above threshold to at or below it. A threshold of zero disables alerting.
func CrossedThreshold(oldQuantity, newQuantity, threshold int) bool {
	return threshold > 0 && oldQuantity > threshold && newQuantity <= threshold
}

// Publisher hands events to a delivery channel.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a LogPublisher. A nil logger uses slog.Default.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := event.Payload()
	if err != nil {
		return err
	}
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = p.logger
	}
	logger.InfoContext(ctx, "notification emitted",
		"kind", string(event.Kind),
		"occurred_at", event.OccurredAt,
		"payload", json.RawMessage(payload),
	)
	return nil
}

// Message is an encoded event waiting in the outbox.
type Message struct {
	ID        string
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

// Outbox stores encoded events for an external relay to deliver.
type Outbox interface {
	EnqueueMessage(ctx context.Context, msg Message) error
}

// OutboxPublisher persists events into an Outbox.
type OutboxPublisher struct {
	outbox      Outbox
	idGenerator func() string
}

// NewOutboxPublisher constructs an OutboxPublisher.
func NewOutboxPublisher(outbox Outbox, idGenerator func() string) *OutboxPublisher {
	return &OutboxPublisher{outbox: outbox, idGenerator: idGenerator}
}

func (p *OutboxPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.outbox == nil {
		return errors.New("notify: outbox not configured")
	}
	payload, err := event.Payload()
	if err != nil {
		return err
	}
	id := ""
	if p.idGenerator != nil {
		id = p.idGenerator()
	}
	return p.outbox.EnqueueMessage(ctx, Message{
		ID:        id,
		Kind:      string(event.Kind),
		Payload:   payload,
		CreatedAt: event.OccurredAt,
	})
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
