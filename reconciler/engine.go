package reconciler

import (
	"context"

	"backoffice-svc/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ApplyFunc computes the next status pair for the locked payment/order
// rows. It returns false when nothing needs to be written.
type ApplyFunc func(payment *models.Payment, order *models.Order) (bool, error)

// Outcome reports what a reconciliation transaction did.
type Outcome struct {
	// Duplicate is true when the provider event id was already recorded
	// durably; the transaction touched nothing.
	Duplicate bool
	// Applied is true when the status pair was written.
	Applied bool
	Payment models.Payment
	Order   models.Order
}

// Store is the transactional persistence boundary. Reconcile must run the
// whole unit inside one transaction: record the event id, lock both rows,
// run apply, and commit the double update or nothing at all. Concurrent
// calls for the same payment/order pair serialize on the row locks.
type Store interface {
	Reconcile(ctx context.Context, eventID, paymentID, orderID string, apply ApplyFunc) (Outcome, error)
}

// DedupCache is the advisory fast path for replay detection. It may miss
// (cache eviction, outage); the Store's durable check is the authority.
type DedupCache interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

// Publisher emits the outcome of an applied transition to downstream
// consumers.
type Publisher interface {
	PublishReconciliation(ctx context.Context, event models.ReconciliationEvent) error
}

// Engine drives one webhook event through validation, the transition
// policy and the atomic status write. Dedup and publisher are optional.
type Engine struct {
	store     Store
	dedup     DedupCache
	publisher Publisher
	logger    *zap.Logger
}

func NewEngine(store Store, dedup DedupCache, publisher Publisher, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		dedup:     dedup,
		publisher: publisher,
		logger:    logger,
	}
}

// Process reconciles a single provider event. Every failure is returned
// to the caller so the event source can decide on redelivery; nothing is
// swallowed here. Replays of an already-applied event succeed as no-ops,
// reported through Outcome.Duplicate.
func (e *Engine) Process(ctx context.Context, kind models.EventKind, event *models.WebhookEvent) (Outcome, error) {
	ctx, span := otel.Tracer("backoffice-service").Start(ctx, "ReconcilePayment")
	defer span.End()

	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.kind", string(kind)),
	)

	ref, err := ExtractReference(event)
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("Rejected malformed webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_kind", string(kind)),
			zap.Error(err),
		)
		return Outcome{}, err
	}

	span.SetAttributes(
		attribute.String("payment.id", ref.PaymentID),
		attribute.String("order.id", ref.OrderID),
	)

	if e.dedup != nil && event.ID != "" && e.dedup.Seen(ctx, event.ID) {
		span.SetAttributes(attribute.Bool("event.duplicate", true))
		e.logger.Info("Skipping already processed webhook event",
			zap.String("event_id", event.ID),
			zap.String("payment_id", ref.PaymentID),
			zap.String("order_id", ref.OrderID),
		)
		return Outcome{Duplicate: true}, nil
	}

	outcome, err := e.store.Reconcile(ctx, event.ID, ref.PaymentID, ref.OrderID,
		func(payment *models.Payment, order *models.Order) (bool, error) {
			decision, err := Transition(kind, payment, order)
			if err != nil {
				return false, err
			}
			if !decision.Changed {
				return false, nil
			}
			payment.Status = decision.Payment
			order.Status = decision.Order
			return true, nil
		})
	if err != nil {
		span.RecordError(err)
		e.logger.Error("Failed to reconcile payment event",
			zap.String("event_id", event.ID),
			zap.String("event_kind", string(kind)),
			zap.String("payment_id", ref.PaymentID),
			zap.String("order_id", ref.OrderID),
			zap.Error(err),
		)
		return Outcome{}, err
	}

	span.SetAttributes(
		attribute.Bool("event.duplicate", outcome.Duplicate),
		attribute.Bool("reconciliation.applied", outcome.Applied),
	)

	if outcome.Applied {
		e.publishOutcome(ctx, kind, event.ID, outcome)
	}

	if e.dedup != nil && event.ID != "" {
		e.dedup.Mark(ctx, event.ID)
	}

	e.logger.Info("Webhook event reconciled",
		zap.String("event_id", event.ID),
		zap.String("event_kind", string(kind)),
		zap.String("payment_id", ref.PaymentID),
		zap.String("order_id", ref.OrderID),
		zap.Bool("applied", outcome.Applied),
		zap.Bool("duplicate", outcome.Duplicate),
	)
	return outcome, nil
}

func (e *Engine) publishOutcome(ctx context.Context, kind models.EventKind, eventID string, outcome Outcome) {
	if e.publisher == nil {
		return
	}

	// Some providers bridge events without an id; downstream consumers
	// still need a stable one to dedup on.
	if eventID == "" {
		eventID = uuid.NewString()
	}

	eventType := "payment_success"
	if kind == models.EventKindFailed {
		eventType = "payment_failed"
	}

	event := models.ReconciliationEvent{
		EventID:       eventID,
		EventType:     eventType,
		PaymentID:     outcome.Payment.ID,
		OrderID:       outcome.Order.ID,
		PaymentStatus: outcome.Payment.Status,
		OrderStatus:   outcome.Order.Status,
	}

	// Publishing is best-effort: the status write already committed and a
	// redelivery would be deduplicated, so a broker hiccup must not turn
	// a processed event into a reported failure.
	if err := e.publisher.PublishReconciliation(ctx, event); err != nil {
		e.logger.Error("Failed to publish reconciliation event",
			zap.String("event_id", eventID),
			zap.String("payment_id", outcome.Payment.ID),
			zap.Error(err),
		)
	}
}
