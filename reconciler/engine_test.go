package reconciler

import (
	"context"
	"sync"
	"testing"

	"backoffice-svc/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeStore mirrors the Postgres semantics in memory: one mutex stands in
// for the row locks, processed event ids are durable, and a write only
// happens when apply reports a change.
type fakeStore struct {
	mu         sync.Mutex
	payments   map[string]models.Payment
	orders     map[string]models.Order
	processed  map[string]bool
	writes     int
	reconciles int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:  make(map[string]models.Payment),
		orders:    make(map[string]models.Order),
		processed: make(map[string]bool),
	}
}

func (s *fakeStore) Reconcile(ctx context.Context, eventID, paymentID, orderID string, apply ApplyFunc) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciles++

	if eventID != "" && s.processed[eventID] {
		return Outcome{Duplicate: true}, nil
	}

	payment, ok := s.payments[paymentID]
	if !ok {
		return Outcome{}, &NotFoundError{Entity: "payment", ID: paymentID}
	}
	order, ok := s.orders[orderID]
	if !ok {
		return Outcome{}, &NotFoundError{Entity: "order", ID: orderID}
	}

	changed, err := apply(&payment, &order)
	if err != nil {
		return Outcome{}, err
	}

	if eventID != "" {
		s.processed[eventID] = true
	}
	if changed {
		s.payments[paymentID] = payment
		s.orders[orderID] = order
		s.writes++
	}

	return Outcome{Applied: changed, Payment: payment, Order: order}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.ReconciliationEvent
}

func (p *fakePublisher) PublishReconciliation(ctx context.Context, event models.ReconciliationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func setupEngineTest(t *testing.T) (*Engine, *fakeStore, *fakePublisher) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	engine := NewEngine(store, nil, publisher, zaptest.NewLogger(t))
	return engine, store, publisher
}

func succeededEvent(id, paymentID, orderID string) *models.WebhookEvent {
	event := webhookEvent(paymentID, orderID)
	event.ID = id
	return event
}

func failedEvent(id, paymentID, orderID string) *models.WebhookEvent {
	event := succeededEvent(id, paymentID, orderID)
	event.Type = models.EventTypePaymentFailed
	return event
}

func TestEngine_SucceededOnPending(t *testing.T) {
	engine, store, publisher := setupEngineTest(t)
	store.payments["p1"] = models.Payment{ID: "p1", OrderID: "o1", Status: models.PaymentStatusPending}
	store.orders["o1"] = models.Order{ID: "o1", Status: models.OrderStatusAwaitingPayment}

	outcome, err := engine.Process(context.Background(), models.EventKindSucceeded, succeededEvent("evt_1", "p1", "o1"))
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.False(t, outcome.Duplicate)

	assert.Equal(t, models.PaymentStatusPaid, store.payments["p1"].Status)
	assert.Equal(t, models.OrderStatusShipping, store.orders["o1"].Status)
	assert.Equal(t, 1, store.writes)

	require.Equal(t, 1, publisher.count())
	assert.Equal(t, "payment_success", publisher.events[0].EventType)
	assert.Equal(t, "p1", publisher.events[0].PaymentID)
}

func TestEngine_ReplayIsNoOp(t *testing.T) {
	engine, store, publisher := setupEngineTest(t)
	store.payments["p1"] = models.Payment{ID: "p1", OrderID: "o1", Status: models.PaymentStatusPending}
	store.orders["o1"] = models.Order{ID: "o1", Status: models.OrderStatusAwaitingPayment}

	event := succeededEvent("evt_1", "p1", "o1")
	first, err := engine.Process(context.Background(), models.EventKindSucceeded, event)
	require.NoError(t, err)
	second, err := engine.Process(context.Background(), models.EventKindSucceeded, event)
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.True(t, second.Duplicate, "replay must surface as a duplicate outcome")
	assert.False(t, second.Applied)

	assert.Equal(t, models.PaymentStatusPaid, store.payments["p1"].Status)
	assert.Equal(t, models.OrderStatusShipping, store.orders["o1"].Status)
	assert.Equal(t, 1, store.writes, "replay must not write again")
	assert.Equal(t, 1, publisher.count(), "replay must not publish again")
}

func TestEngine_RedeliveryUnderNewEventID(t *testing.T) {
	engine, store, publisher := setupEngineTest(t)
	store.payments["p1"] = models.Payment{ID: "p1", OrderID: "o1", Status: models.PaymentStatusPending}
	store.orders["o1"] = models.Order{ID: "o1", Status: models.OrderStatusAwaitingPayment}

	// Same logical outcome delivered twice with distinct provider event
	// ids: the transition table makes the second one a no-op.
	first, err := engine.Process(context.Background(), models.EventKindSucceeded, succeededEvent("evt_1", "p1", "o1"))
	require.NoError(t, err)
	second, err := engine.Process(context.Background(), models.EventKindSucceeded, succeededEvent("evt_2", "p1", "o1"))
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied, "second delivery is a policy-level no-op")
	assert.False(t, second.Duplicate, "a distinct event id is not a duplicate")

	assert.Equal(t, 1, store.writes)
	assert.Equal(t, 1, publisher.count())
}

func TestEngine_FailedOnPaidIsRejected(t *testing.T) {
	engine, store, publisher := setupEngineTest(t)
	store.payments["p2"] = models.Payment{ID: "p2", OrderID: "o2", Status: models.PaymentStatusPaid}
	store.orders["o2"] = models.Order{ID: "o2", Status: models.OrderStatusShipping}

	_, err := engine.Process(context.Background(), models.EventKindFailed, failedEvent("evt_3", "p2", "o2"))

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.PaymentStatusPaid, store.payments["p2"].Status, "paid is terminal")
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, 0, publisher.count())
}

func TestEngine_FailedOnPending(t *testing.T) {
	engine, store, _ := setupEngineTest(t)
	store.payments["p1"] = models.Payment{ID: "p1", OrderID: "o1", Status: models.PaymentStatusPending}
	store.orders["o1"] = models.Order{ID: "o1", Status: models.OrderStatusAwaitingPayment}

	_, err := engine.Process(context.Background(), models.EventKindFailed, failedEvent("evt_4", "p1", "o1"))
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusFailed, store.payments["p1"].Status)
	assert.Equal(t, models.OrderStatusAwaitingPayment, store.orders["o1"].Status)
	assert.Equal(t, 1, store.writes)
}

func TestEngine_MissingReferenceSkipsStore(t *testing.T) {
	engine, store, _ := setupEngineTest(t)

	event := succeededEvent("evt_5", "", "o1")
	_, err := engine.Process(context.Background(), models.EventKindSucceeded, event)

	var missing *MissingReferenceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 0, store.reconciles, "no store access for unverifiable events")
}

func TestEngine_UnknownPayment(t *testing.T) {
	engine, store, _ := setupEngineTest(t)
	store.orders["o1"] = models.Order{ID: "o1", Status: models.OrderStatusAwaitingPayment}

	_, err := engine.Process(context.Background(), models.EventKindSucceeded, succeededEvent("evt_6", "p9", "o1"))

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "payment", notFound.Entity)
	assert.Equal(t, 0, store.writes)
	assert.False(t, IsPermanent(err), "missing rows may be a read-lag, retryable")
}

func TestEngine_ConcurrentDeliveries(t *testing.T) {
	engine, store, publisher := setupEngineTest(t)
	store.payments["p1"] = models.Payment{ID: "p1", OrderID: "o1", Status: models.PaymentStatusPending}
	store.orders["o1"] = models.Order{ID: "o1", Status: models.OrderStatusAwaitingPayment}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Two redeliveries share each event id, the rest are distinct
			id := "evt_a"
			if i%2 == 1 {
				id = "evt_b"
			}
			_, errs[i] = engine.Process(context.Background(), models.EventKindSucceeded, succeededEvent(id, "p1", "o1"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, models.PaymentStatusPaid, store.payments["p1"].Status)
	assert.Equal(t, models.OrderStatusShipping, store.orders["o1"].Status)
	assert.Equal(t, 1, store.writes, "exactly one winner writes")
	assert.Equal(t, 1, publisher.count())
}

// stubDedup marks everything as seen to prove the fast path short-circuits.
type stubDedup struct {
	seen   bool
	marked []string
}

func (d *stubDedup) Seen(ctx context.Context, eventID string) bool { return d.seen }
func (d *stubDedup) Mark(ctx context.Context, eventID string)      { d.marked = append(d.marked, eventID) }

func TestEngine_DedupFastPath(t *testing.T) {
	store := newFakeStore()
	dedup := &stubDedup{seen: true}
	engine := NewEngine(store, dedup, nil, zaptest.NewLogger(t))

	outcome, err := engine.Process(context.Background(), models.EventKindSucceeded, succeededEvent("evt_7", "p1", "o1"))
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate, "cached replays surface as duplicates")
	assert.Equal(t, 0, store.reconciles, "cached replays never reach the database")
}

func TestEngine_MarksDedupAfterSuccess(t *testing.T) {
	store := newFakeStore()
	store.payments["p1"] = models.Payment{ID: "p1", OrderID: "o1", Status: models.PaymentStatusPending}
	store.orders["o1"] = models.Order{ID: "o1", Status: models.OrderStatusAwaitingPayment}
	dedup := &stubDedup{}
	engine := NewEngine(store, dedup, nil, zaptest.NewLogger(t))

	_, err := engine.Process(context.Background(), models.EventKindSucceeded, succeededEvent("evt_8", "p1", "o1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"evt_8"}, dedup.marked)
}
