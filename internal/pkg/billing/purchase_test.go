package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

func TestPurchaseWithVaultedCard(t *testing.T) {
	svc, repos, dispatcher, fake := newTestService()
	ctx := context.Background()

	card, err := svc.CreateCard(ctx, 7, testCard(), "")
	require.NoError(t, err)

	payment, err := svc.Purchase(ctx, 7, PurchaseInstructions{
		Amount:        decimal.NewFromInt(100),
		CardReference: card.Token,
		Description:   "Gold package",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, models.PaymentMethodCardToken, payment.Method)
	assert.Equal(t, "txn_1", payment.TransactionReference)
	require.NotNil(t, payment.PaymentTokenID)
	assert.Equal(t, card.ID, *payment.PaymentTokenID)
	assert.True(t, payment.AmountNotRefunded.Equal(decimal.NewFromInt(100)))

	stored, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, stored.Status)

	assert.Len(t, dispatcher.Named(events.ChargeSuccess), 1)
	assert.Empty(t, dispatcher.Named(events.ChargeFailed))
	assert.Equal(t, 1, fake.purchaseCalls)
}

func TestPurchaseInlineCardVaultsOnSuccess(t *testing.T) {
	svc, _, dispatcher, fake := newTestService()
	ctx := context.Background()
	card := testCard()

	fake.purchaseResult = &gateway.PurchaseResult{
		Success:              true,
		TransactionReference: "txn_inline",
		CardReference:        "card_inline",
	}

	payment, err := svc.Purchase(ctx, 7, PurchaseInstructions{
		Amount:   decimal.NewFromFloat(49.95),
		CardInfo: &card,
	}, "")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, models.PaymentMethodCard, payment.Method)
	require.NotNil(t, payment.PaymentTokenID)

	def, err := svc.GetDefaultCard(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "card_inline", def.Token)
	assert.Equal(t, *payment.PaymentTokenID, def.ID)
	assert.Len(t, dispatcher.Named(events.CardCreate), 1)
}

func TestPurchaseDecline(t *testing.T) {
	svc, repos, dispatcher, fake := newTestService()
	ctx := context.Background()

	card, err := svc.CreateCard(ctx, 7, testCard(), "")
	require.NoError(t, err)
	dispatcherResetLen := len(dispatcher.Events())

	fake.purchaseResult = &gateway.PurchaseResult{
		Success: false,
		Message: "insufficient funds",
		Code:    402,
	}

	payment, err := svc.Purchase(ctx, 7, PurchaseInstructions{
		Amount:        decimal.NewFromInt(100),
		CardReference: card.Token,
	}, "")
	require.Error(t, err)

	var decline *GatewayDeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "insufficient funds", decline.Message)
	assert.Equal(t, 402, decline.Code)

	require.NotNil(t, payment)
	assert.Equal(t, models.PaymentStatusError, payment.Status)

	stored, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusError, stored.Status)

	assert.Len(t, dispatcher.Named(events.ChargeFailed), 1)
	assert.Empty(t, dispatcher.Named(events.ChargeSuccess))
	assert.Len(t, dispatcher.Events(), dispatcherResetLen+1)
}

func TestPurchaseTransportFailureLeavesPending(t *testing.T) {
	svc, repos, dispatcher, fake := newTestService()
	ctx := context.Background()

	card, err := svc.CreateCard(ctx, 7, testCard(), "")
	require.NoError(t, err)
	eventsBefore := len(dispatcher.Events())

	fake.purchaseErr = errors.New("connection reset")

	payment, err := svc.Purchase(ctx, 7, PurchaseInstructions{
		Amount:        decimal.NewFromInt(100),
		CardReference: card.Token,
	}, "")
	require.Error(t, err)

	var transport *GatewayTransportError
	require.ErrorAs(t, err, &transport)
	assert.ErrorContains(t, transport.Err, "connection reset")

	// The pending row stays for reconciliation and no event fires.
	require.NotNil(t, payment)
	stored, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Len(t, dispatcher.Events(), eventsBefore)
}

func TestPurchaseRedirectParksPayment(t *testing.T) {
	svc, repos, dispatcher, fake := newTestService()
	ctx := context.Background()
	eventsBefore := len(dispatcher.Events())

	fake.purchaseResult = &gateway.PurchaseResult{
		Success:              true,
		Redirect:             true,
		RedirectURL:          "https://gateway.example/redirect",
		TransactionReference: "txn_redirect",
	}

	payment, err := svc.Purchase(ctx, 7, PurchaseInstructions{
		Amount:        decimal.NewFromInt(25),
		PaymentSchema: "PAYPAL",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPendingPayment, payment.Status)
	assert.Equal(t, models.PaymentMethodRedirect, payment.Method)

	stored, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPendingPayment, stored.Status)

	// Customer.Create fires, but no charge outcome yet.
	assert.Empty(t, dispatcher.Named(events.ChargeSuccess))
	assert.Empty(t, dispatcher.Named(events.ChargeFailed))
	assert.Len(t, dispatcher.Events(), eventsBefore+1)
}

func TestPurchaseValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	card := testCard()

	tests := []struct {
		name       string
		billableID uint
		instr      PurchaseInstructions
	}{
		{"Zero billable id", 0, PurchaseInstructions{Amount: decimal.NewFromInt(10), CardReference: "tok"}},
		{"Zero amount", 7, PurchaseInstructions{CardReference: "tok"}},
		{"Negative amount", 7, PurchaseInstructions{Amount: decimal.NewFromInt(-5), CardReference: "tok"}},
		{"No funding source", 7, PurchaseInstructions{Amount: decimal.NewFromInt(10)}},
		{"Both funding sources", 7, PurchaseInstructions{Amount: decimal.NewFromInt(10), CardReference: "tok", CardInfo: &card}},
		{"Unknown card reference", 7, PurchaseInstructions{Amount: decimal.NewFromInt(10), CardReference: "missing"}},
		{"Invalid inline card", 7, PurchaseInstructions{Amount: decimal.NewFromInt(10), CardInfo: &gateway.Card{Number: "123"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Purchase(ctx, tt.billableID, tt.instr, "")
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestPurchaseRecordsRequestAudit(t *testing.T) {
	svc, repos, _, _ := newTestService()
	ctx := context.Background()

	card, err := svc.CreateCard(ctx, 7, testCard(), "")
	require.NoError(t, err)

	payment, err := svc.Purchase(ctx, 7, PurchaseInstructions{
		Amount:        decimal.NewFromInt(100),
		CardReference: card.Token,
		PackageID:     "gold",
	}, "")
	require.NoError(t, err)

	stored, err := repos.Payment.GetByID(payment.ID)
	require.NoError(t, err)
	audit, ok := stored.ExtendedAttributes["request_data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "100.00", audit["amount"])
	assert.Equal(t, "gold", audit["package_id"])
	assert.Equal(t, card.Token, audit["card_reference"])
}
