package reconciler

import (
	"errors"
	"fmt"

	"backoffice-svc/models"
)

// ErrMalformedEvent means the provider event carried no resource payload.
var ErrMalformedEvent = errors.New("webhook event has no resource payload")

// MissingReferenceError means the resource metadata lacks payment_id or
// order_id, so the event cannot be matched to internal records.
type MissingReferenceError struct {
	Field string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("webhook event metadata is missing %s", e.Field)
}

// NotFoundError means the referenced payment or order does not exist.
type NotFoundError struct {
	Entity string // "payment" or "order"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidTransitionError means the event asks for a status change the
// transition table forbids, e.g. failing a payment that is already paid.
// It signals a logic or provider anomaly and is never silently ignored.
type InvalidTransitionError struct {
	PaymentID string
	From      models.PaymentStatus
	Kind      models.EventKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s event to payment %s in status %s", e.Kind, e.PaymentID, e.From)
}

// PersistenceError wraps a storage failure during the reconciliation
// transaction. These are transient from the caller's point of view.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("reconciliation write failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a failure redelivering the event
// cannot fix. The dispatch layer retries only non-permanent failures.
func IsPermanent(err error) bool {
	var missingRef *MissingReferenceError
	var invalid *InvalidTransitionError
	return errors.Is(err, ErrMalformedEvent) ||
		errors.As(err, &missingRef) ||
		errors.As(err, &invalid)
}
