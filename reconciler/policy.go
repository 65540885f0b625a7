package reconciler

import "backoffice-svc/models"

// Decision is the status pair a payment event resolves to. Changed is
// false when both records already carry the target statuses, i.e. the
// event is a replay and must not trigger downstream effects again.
type Decision struct {
	Payment models.PaymentStatus
	Order   models.OrderStatus
	Changed bool
}

// Transition applies the payment state machine:
//
//	succeeded + pending/failed  -> paid / shipping
//	succeeded + paid            -> no-op (idempotent replay)
//	failed    + pending         -> failed / awaiting_payment
//	failed    + failed          -> no-op (idempotent replay)
//	failed    + paid            -> rejected, paid is terminal
//
// The payment status drives the decision; the order status only determines
// whether anything still needs to be written.
func Transition(kind models.EventKind, payment *models.Payment, order *models.Order) (Decision, error) {
	switch kind {
	case models.EventKindSucceeded:
		return decide(payment, order, models.PaymentStatusPaid, models.OrderStatusShipping), nil

	case models.EventKindFailed:
		if payment.Status == models.PaymentStatusPaid {
			return Decision{}, &InvalidTransitionError{
				PaymentID: payment.ID,
				From:      payment.Status,
				Kind:      kind,
			}
		}
		return decide(payment, order, models.PaymentStatusFailed, models.OrderStatusAwaitingPayment), nil

	default:
		return Decision{}, &InvalidTransitionError{
			PaymentID: payment.ID,
			From:      payment.Status,
			Kind:      kind,
		}
	}
}

func decide(payment *models.Payment, order *models.Order, p models.PaymentStatus, o models.OrderStatus) Decision {
	return Decision{
		Payment: p,
		Order:   o,
		Changed: payment.Status != p || order.Status != o,
	}
}
