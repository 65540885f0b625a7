package reconciler

import (
	"testing"

	"backoffice-svc/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		name        string
		kind        models.EventKind
		payment     models.PaymentStatus
		order       models.OrderStatus
		wantPayment models.PaymentStatus
		wantOrder   models.OrderStatus
		wantChanged bool
		wantErr     bool
	}{
		{
			name:        "succeeded on pending",
			kind:        models.EventKindSucceeded,
			payment:     models.PaymentStatusPending,
			order:       models.OrderStatusAwaitingPayment,
			wantPayment: models.PaymentStatusPaid,
			wantOrder:   models.OrderStatusShipping,
			wantChanged: true,
		},
		{
			name:        "succeeded on failed retries the payment",
			kind:        models.EventKindSucceeded,
			payment:     models.PaymentStatusFailed,
			order:       models.OrderStatusAwaitingPayment,
			wantPayment: models.PaymentStatusPaid,
			wantOrder:   models.OrderStatusShipping,
			wantChanged: true,
		},
		{
			name:        "succeeded on paid is a no-op",
			kind:        models.EventKindSucceeded,
			payment:     models.PaymentStatusPaid,
			order:       models.OrderStatusShipping,
			wantPayment: models.PaymentStatusPaid,
			wantOrder:   models.OrderStatusShipping,
			wantChanged: false,
		},
		{
			name:        "succeeded on paid with lagging order finishes the order",
			kind:        models.EventKindSucceeded,
			payment:     models.PaymentStatusPaid,
			order:       models.OrderStatusAwaitingPayment,
			wantPayment: models.PaymentStatusPaid,
			wantOrder:   models.OrderStatusShipping,
			wantChanged: true,
		},
		{
			name:        "failed on pending",
			kind:        models.EventKindFailed,
			payment:     models.PaymentStatusPending,
			order:       models.OrderStatusAwaitingPayment,
			wantPayment: models.PaymentStatusFailed,
			wantOrder:   models.OrderStatusAwaitingPayment,
			wantChanged: true,
		},
		{
			name:        "failed on failed is a no-op",
			kind:        models.EventKindFailed,
			payment:     models.PaymentStatusFailed,
			order:       models.OrderStatusAwaitingPayment,
			wantPayment: models.PaymentStatusFailed,
			wantOrder:   models.OrderStatusAwaitingPayment,
			wantChanged: false,
		},
		{
			name:    "failed on paid is rejected",
			kind:    models.EventKindFailed,
			payment: models.PaymentStatusPaid,
			order:   models.OrderStatusShipping,
			wantErr: true,
		},
		{
			name:    "unknown kind is rejected",
			kind:    models.EventKind("refunded"),
			payment: models.PaymentStatusPending,
			order:   models.OrderStatusAwaitingPayment,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment := &models.Payment{ID: "p1", Status: tt.payment}
			order := &models.Order{ID: "o1", Status: tt.order}

			decision, err := Transition(tt.kind, payment, order)
			if tt.wantErr {
				require.Error(t, err)
				var invalid *InvalidTransitionError
				assert.ErrorAs(t, err, &invalid)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPayment, decision.Payment)
			assert.Equal(t, tt.wantOrder, decision.Order)
			assert.Equal(t, tt.wantChanged, decision.Changed)
		})
	}
}

func TestTransition_FailedOnPaidNamesThePayment(t *testing.T) {
	payment := &models.Payment{ID: "p2", Status: models.PaymentStatusPaid}
	order := &models.Order{ID: "o2", Status: models.OrderStatusShipping}

	_, err := Transition(models.EventKindFailed, payment, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p2")
	assert.True(t, IsPermanent(err))
}
