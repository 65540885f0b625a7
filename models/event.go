package models

// EventKind discriminates the two provider outcomes the reconciler acts on.
type EventKind string

const (
	EventKindSucceeded EventKind = "succeeded"
	EventKindFailed    EventKind = "failed"
)

// Provider event types as delivered on the wire (Stripe payment intents).
const (
	EventTypePaymentSucceeded = "payment_intent.succeeded"
	EventTypePaymentFailed    = "payment_intent.payment_failed"
)

// EventKindForType maps a provider event type to its kind. The second
// return is false for event types this service does not handle.
func EventKindForType(eventType string) (EventKind, bool) {
	switch eventType {
	case EventTypePaymentSucceeded:
		return EventKindSucceeded, true
	case EventTypePaymentFailed:
		return EventKindFailed, true
	default:
		return "", false
	}
}

type ResourceMetadata struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
}

// EventResource is the provider object carried inside the event. Only the
// metadata block matters to reconciliation; the rest is provider detail.
type EventResource struct {
	Object   string           `json:"object"`
	Amount   int64            `json:"amount"`
	Currency string           `json:"currency"`
	Metadata ResourceMetadata `json:"metadata"`
}

type EventData struct {
	Object *EventResource `json:"object"`
}

// WebhookEvent is the inbound provider envelope. ID is the provider's
// event identifier and doubles as the idempotency key when present.
type WebhookEvent struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// Resource returns the event payload, or nil when the provider sent none.
func (e *WebhookEvent) Resource() *EventResource {
	return e.Data.Object
}

// ReconciliationEvent is published to Kafka after a status transition is
// committed, so downstream services (notifications, analytics) react once
// per logical provider event.
type ReconciliationEvent struct {
	EventID       string        `json:"event_id"`
	EventType     string        `json:"event_type"` // payment_success, payment_failed
	PaymentID     string        `json:"payment_id"`
	OrderID       string        `json:"order_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	OrderStatus   OrderStatus   `json:"order_status"`
}
