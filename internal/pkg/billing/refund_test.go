package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

// successfulPayment runs a purchase through the fake gateway and returns the
// resulting SUCCESS payment.
func successfulPayment(t *testing.T, svc *Service, amount int64) *models.Payment {
	t.Helper()
	ctx := context.Background()

	card, err := svc.CreateCard(ctx, 7, testCard(), "")
	require.NoError(t, err)

	payment, err := svc.Purchase(ctx, 7, PurchaseInstructions{
		Amount:        decimal.NewFromInt(amount),
		CardReference: card.Token,
	}, "")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSuccess, payment.Status)
	return payment
}

func TestRefundPartialThenFull(t *testing.T) {
	svc, repos, dispatcher, _ := newTestService()
	ctx := context.Background()
	payment := successfulPayment(t, svc, 100)

	partial := decimal.NewFromInt(30)
	refund, err := svc.Refund(ctx, payment.TransactionReference, &partial, "")
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusSuccess, refund.Status)
	assert.True(t, refund.Amount.Equal(partial))
	assert.Equal(t, "re_1", refund.TransactionReference)

	stored, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartiallyRefunded, stored.Status)
	assert.True(t, stored.AmountNotRefunded.Equal(decimal.NewFromInt(70)))

	// A nil amount refunds the remainder.
	refund, err = svc.Refund(ctx, payment.TransactionReference, nil, "")
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(decimal.NewFromInt(70)))

	stored, err = repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, stored.Status)
	assert.True(t, stored.AmountNotRefunded.IsZero())

	assert.Len(t, dispatcher.Named(events.RefundSuccess), 2)

	refunds, err := repos.Refund.ListByPayment(payment.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)
}

func TestRefundClampsToRemaining(t *testing.T) {
	svc, repos, _, _ := newTestService()
	ctx := context.Background()
	payment := successfulPayment(t, svc, 100)

	over := decimal.NewFromInt(150)
	refund, err := svc.Refund(ctx, payment.TransactionReference, &over, "")
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(decimal.NewFromInt(100)))

	stored, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, stored.Status)
}

func TestRefundExhaustedIsConflict(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	payment := successfulPayment(t, svc, 100)

	_, err := svc.Refund(ctx, payment.TransactionReference, nil, "")
	require.NoError(t, err)

	_, err = svc.Refund(ctx, payment.TransactionReference, nil, "")
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestRefundDeclineLeavesPaymentUntouched(t *testing.T) {
	svc, repos, dispatcher, fake := newTestService()
	ctx := context.Background()
	payment := successfulPayment(t, svc, 100)

	fake.refundResult = &gateway.RefundResult{Success: false, Message: "refund window closed"}

	refund, err := svc.Refund(ctx, payment.TransactionReference, nil, "")
	require.Error(t, err)

	var decline *GatewayDeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "refund window closed", decline.Message)
	assert.Equal(t, models.RefundStatusError, refund.Status)

	stored, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, stored.Status)
	assert.True(t, stored.AmountNotRefunded.Equal(decimal.NewFromInt(100)))
	assert.Len(t, dispatcher.Named(events.RefundFailed), 1)
}

func TestRefundTransportFailureLeavesPendingRow(t *testing.T) {
	svc, repos, dispatcher, fake := newTestService()
	ctx := context.Background()
	payment := successfulPayment(t, svc, 100)
	eventsBefore := len(dispatcher.Events())

	fake.refundErr = errors.New("dial timeout")

	refund, err := svc.Refund(ctx, payment.TransactionReference, nil, "")
	require.Error(t, err)

	var transport *GatewayTransportError
	require.ErrorAs(t, err, &transport)

	require.NotNil(t, refund)
	stored, err := repos.Refund.GetByID(refund.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusPending, stored.Status)

	storedPayment, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, storedPayment.Status)
	assert.Len(t, dispatcher.Events(), eventsBefore)
}

func TestRefundUnknownReference(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Refund(context.Background(), "txn_missing", nil, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Refund(context.Background(), "", nil, "")
	assert.ErrorAs(t, err, &verr)
	assert.False(t, errors.Is(err, gorm.ErrRecordNotFound))
}
