package reconciler

import "backoffice-svc/models"

// Reference identifies the internal records a provider event points at.
type Reference struct {
	PaymentID string
	OrderID   string
}

// ExtractReference validates the shape of an inbound event and pulls out
// the payment/order reference. It performs no lookups and has no side
// effects; a failure here means the event can never be processed.
func ExtractReference(event *models.WebhookEvent) (Reference, error) {
	resource := event.Resource()
	if resource == nil {
		return Reference{}, ErrMalformedEvent
	}

	if resource.Metadata.PaymentID == "" {
		return Reference{}, &MissingReferenceError{Field: "payment_id"}
	}
	if resource.Metadata.OrderID == "" {
		return Reference{}, &MissingReferenceError{Field: "order_id"}
	}

	return Reference{
		PaymentID: resource.Metadata.PaymentID,
		OrderID:   resource.Metadata.OrderID,
	}, nil
}
