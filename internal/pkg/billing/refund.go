package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

// Refund refunds part or all of a prior payment. A nil or non-positive
// amount refunds the full remaining balance; a requested amount larger than
// the remaining balance is clamped to it.
//
// The Refund row is written PENDING before the gateway call, and the Payment
// row mutates only after the gateway confirms success. A transport failure
// leaves the Refund PENDING for reconciliation.
func (s *Service) Refund(ctx context.Context, transactionReference string, amount *decimal.Decimal, gatewayName string) (*models.Refund, error) {
	if transactionReference == "" {
		return nil, NewValidationError("empty transaction reference")
	}

	entry, err := s.resolveGateway(gatewayName)
	if err != nil {
		return nil, err
	}
	refunder, ok := entry.Adapter.(gateway.Refunder)
	if !ok {
		return nil, NewConfigurationError("gateway %q does not support refunds", entry.Model.Name)
	}

	payment, err := s.repos.Payment.GetByTransactionReference(transactionReference, entry.Model.ID)
	if err != nil {
		return nil, NewValidationError("cannot find payment for transaction reference %q", transactionReference)
	}
	if !payment.Refundable() {
		return nil, NewConflictError("payment %d has no refundable amount left", payment.ID)
	}

	refundAmount := payment.AmountNotRefunded
	if amount != nil && amount.IsPositive() && amount.LessThan(payment.AmountNotRefunded) {
		refundAmount = *amount
	}

	refund := &models.Refund{
		BillableID:         payment.BillableID,
		ChargeableID:       payment.ChargeableID,
		PaymentID:          payment.ID,
		PaymentTokenID:     payment.PaymentTokenID,
		GatewayID:          payment.GatewayID,
		Amount:             refundAmount,
		TransactionDate:    time.Now().UTC(),
		TransactionDetails: fmt.Sprintf("Refund of transaction %s", payment.TransactionReference),
		Status:             models.RefundStatusPending,
	}
	if err := s.repos.Refund.Create(refund); err != nil {
		return nil, err
	}

	result, err := refunder.Refund(ctx, refundAmount.StringFixed(2), payment.TransactionReference)
	if err != nil {
		log.Errorf("[Billing] Refund transport failure for payment %d: %v", payment.ID, err)
		return refund, &GatewayTransportError{Message: "gateway refund call failed", Err: err}
	}

	if !result.Success {
		refund.Status = models.RefundStatusError
		refund.ExtendedAttributes = models.JSONMap{"response": result.Data}
		if err := s.repos.Refund.Update(refund); err != nil {
			return nil, err
		}

		message := result.Message
		if message == "" {
			message = "refund declined"
		}
		log.Warnf("[Billing] Refund %d declined: %s", refund.ID, message)
		s.dispatcher.Dispatch(events.New(events.RefundFailed, map[string]interface{}{
			"billable_id": payment.BillableID,
			"payment_id":  payment.ID,
			"refund_id":   refund.ID,
			"amount":      refundAmount.StringFixed(2),
		}))
		return refund, &GatewayDeclineError{Message: message}
	}

	// Confirmed by the gateway: decrement the remainder and settle the
	// payment status.
	payment.AmountNotRefunded = payment.AmountNotRefunded.Sub(refundAmount)
	if payment.AmountNotRefunded.IsZero() {
		payment.Status = models.PaymentStatusRefunded
	} else {
		payment.Status = models.PaymentStatusPartiallyRefunded
	}
	if err := s.repos.Payment.Update(payment); err != nil {
		return nil, err
	}

	refund.Status = models.RefundStatusSuccess
	refund.TransactionReference = result.TransactionReference
	refund.ExtendedAttributes = models.JSONMap{"response": result.Data}
	if err := s.repos.Refund.Update(refund); err != nil {
		return nil, err
	}

	log.Infof("[Billing] Refunded %s of payment %d (remaining %s)",
		refundAmount.StringFixed(2), payment.ID, payment.AmountNotRefunded.StringFixed(2))
	s.dispatcher.Dispatch(events.New(events.RefundSuccess, map[string]interface{}{
		"billable_id": payment.BillableID,
		"payment_id":  payment.ID,
		"refund_id":   refund.ID,
		"amount":      refundAmount.StringFixed(2),
	}))
	return refund, nil
}
