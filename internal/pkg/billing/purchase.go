package billing

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

// Purchase drives a purchase end to end: customer resolution, card
// resolution, the gateway call, the ledger transition and exactly one
// success-or-failure event on a terminal outcome.
//
// The Payment row is written in PENDING status before the gateway call is
// issued, so a crash mid-call leaves an auditable record. A transport-level
// failure leaves the row PENDING and fires no event: the true gateway state
// is unknown and must be reconciled via FetchTransaction before retrying.
func (s *Service) Purchase(ctx context.Context, billableID uint, instr PurchaseInstructions, gatewayName string) (*models.Payment, error) {
	if billableID == 0 {
		return nil, NewValidationError("empty billable id")
	}
	if !instr.Amount.IsPositive() {
		return nil, NewValidationError("purchase amount must be greater than zero")
	}
	if instr.PaymentSchema == "" && instr.CardReference == "" && instr.CardInfo == nil {
		return nil, NewValidationError("empty credit card information")
	}
	if instr.CardReference != "" && instr.CardInfo != nil {
		return nil, NewValidationError("provide either a card reference or card info, not both")
	}
	if instr.CardInfo != nil {
		if err := s.validate.Struct(instr.CardInfo); err != nil {
			return nil, NewValidationError("invalid card data: %v", err)
		}
	}
	if instr.Currency == "" {
		instr.Currency = "USD"
	}

	entry, err := s.resolveGateway(gatewayName)
	if err != nil {
		return nil, err
	}
	purchaser, ok := entry.Adapter.(gateway.Purchaser)
	if !ok {
		return nil, NewConfigurationError("gateway %q does not support purchases", entry.Model.Name)
	}

	customer, err := s.CreateCustomer(ctx, billableID, CustomerData{Email: instr.Email}, entry.Model.Name)
	if err != nil {
		return nil, err
	}

	req := gateway.PurchaseRequest{
		Amount:            instr.Amount.StringFixed(2),
		Currency:          instr.Currency,
		Description:       instr.Description,
		AccountID:         billableID,
		PackageID:         instr.PackageID,
		PackageName:       instr.PackageName,
		CustomerReference: customer.Token,
		PaymentSchema:     instr.PaymentSchema,
		ReturnURL:         instr.ReturnURL,
		CancelURL:         instr.CancelURL,
		NotifyURL:         instr.NotifyURL,
		Metadata:          instr.Metadata,
	}

	var paymentToken *models.PaymentToken
	method := instr.Method
	switch {
	case instr.PaymentSchema != "":
		if method == "" {
			method = models.PaymentMethodRedirect
			if instr.PaymentSchema == models.PaymentMethodManual {
				method = models.PaymentMethodManual
			}
		}
	case instr.CardReference != "":
		paymentToken, err = s.repos.PaymentToken.GetByToken(instr.CardReference)
		if err != nil {
			return nil, NewValidationError("cannot get payment token data")
		}
		if method == "" {
			method = models.PaymentMethodCardToken
		}
		req.CardReference = instr.CardReference
	default:
		if method == "" {
			method = models.PaymentMethodCard
		}
		req.Card = instr.CardInfo
	}

	payment := &models.Payment{
		BillableID:         billableID,
		ChargeableID:       instr.PackageID,
		SubscriptionID:     instr.SubscriptionID,
		GatewayID:          customer.GatewayID,
		Amount:             instr.Amount,
		AmountNotRefunded:  instr.Amount,
		Currency:           instr.Currency,
		Method:             method,
		TransactionDate:    time.Now().UTC(),
		TransactionDetails: instr.Description,
		Status:             models.PaymentStatusPending,
		ExtendedAttributes: models.JSONMap{
			"request_data": requestAudit(req),
		},
	}
	if paymentToken != nil {
		payment.PaymentTokenID = &paymentToken.ID
	}
	if err := s.repos.Payment.Create(payment); err != nil {
		return nil, err
	}

	result, err := purchaser.Purchase(ctx, req)
	if err != nil {
		// Ambiguous outcome: the payment stays PENDING and no event
		// fires. Callers must reconcile before retrying.
		log.Errorf("[Billing] Purchase transport failure for payment %d: %v", payment.ID, err)
		return payment, &GatewayTransportError{Message: "gateway purchase call failed", Err: err}
	}

	if result.Success {
		if req.Card != nil && result.CardReference != "" {
			paymentToken, err = s.vaultCard(billableID, customer, *req.Card, result.CardReference)
			if err != nil {
				return nil, err
			}
			s.dispatcher.Dispatch(events.New(events.CardCreate, map[string]interface{}{
				"billable_id":      billableID,
				"payment_token_id": paymentToken.ID,
			}))
		}

		payment.TransactionReference = result.TransactionReference
		if paymentToken != nil {
			payment.PaymentTokenID = &paymentToken.ID
		}
		mergeResponse(payment, result.Data)
		if result.AmountUSD != "" {
			if usd, perr := decimal.NewFromString(result.AmountUSD); perr == nil {
				payment.AmountUSD = &usd
			}
		}

		if result.Redirect {
			// The shopper still has to complete the flow on the gateway
			// side; the payment is parked until the callback lands.
			payment.Status = models.PaymentStatusPendingPayment
			if err := s.repos.Payment.Update(payment); err != nil {
				return nil, err
			}
			return payment, nil
		}

		payment.Status = models.PaymentStatusSuccess
		if err := s.repos.Payment.Update(payment); err != nil {
			return nil, err
		}

		log.Infof("[Billing] Payment %d succeeded (%s %s)", payment.ID, req.Amount, req.Currency)
		s.dispatcher.Dispatch(events.New(events.ChargeSuccess, map[string]interface{}{
			"billable_id": billableID,
			"customer_id": customer.ID,
			"payment_id":  payment.ID,
			"data":        instr.eventData(),
		}))
		return payment, nil
	}

	// Business decline: terminal ERROR state with the gateway's reason.
	mergeResponse(payment, result.Data)
	payment.Status = models.PaymentStatusError
	if err := s.repos.Payment.Update(payment); err != nil {
		return nil, err
	}

	message := result.Message
	if message == "" {
		message = "purchase declined"
	}
	log.Warnf("[Billing] Payment %d declined: %s", payment.ID, message)
	s.dispatcher.Dispatch(events.New(events.ChargeFailed, map[string]interface{}{
		"billable_id": billableID,
		"customer_id": customer.ID,
		"payment_id":  payment.ID,
		"data":        instr.eventData(),
	}))
	return payment, &GatewayDeclineError{Message: message, Code: result.Code}
}

// requestAudit records the outbound request payload for the ledger with the
// card digits masked.
func requestAudit(req gateway.PurchaseRequest) map[string]interface{} {
	audit := map[string]interface{}{
		"amount":             req.Amount,
		"currency":           req.Currency,
		"description":        req.Description,
		"package_id":         req.PackageID,
		"package_name":       req.PackageName,
		"customer_reference": req.CustomerReference,
	}
	if req.CardReference != "" {
		audit["card_reference"] = req.CardReference
	}
	if req.Card != nil {
		audit["card"] = map[string]interface{}{
			"name":   req.Card.Name(),
			"number": req.Card.LastFour(),
		}
	}
	if req.PaymentSchema != "" {
		audit["payment_schema"] = req.PaymentSchema
	}
	return audit
}

// mergeResponse folds the raw gateway response into the payment's extended
// attributes next to the original request payload.
func mergeResponse(payment *models.Payment, data map[string]interface{}) {
	if payment.ExtendedAttributes == nil {
		payment.ExtendedAttributes = models.JSONMap{}
	}
	payment.ExtendedAttributes["response"] = data
}
