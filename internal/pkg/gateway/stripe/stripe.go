// Package stripe adapts the Stripe API to the gateway capability interfaces.
// Charges run off-session against vaulted payment methods; inline card data
// is converted to a payment method first so raw numbers never appear in a
// charge call.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

// GatewayName is the registry name for this adapter.
const GatewayName = "stripe"

// Adapter implements the gateway capabilities against Stripe using payment
// intents and vaulted payment methods.
type Adapter struct {
	client *client.API
}

// New creates a Stripe adapter bound to the given secret key.
func New(secretKey string) *Adapter {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Adapter{client: sc}
}

func (a *Adapter) Name() string {
	return GatewayName
}

// CreateCustomer registers the billable entity as a Stripe customer. The
// local account id travels in metadata so dashboard lookups can map back.
func (a *Adapter) CreateCustomer(ctx context.Context, accountID uint, email string) (*gateway.CustomerResult, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("account_id", strconv.FormatUint(uint64(accountID), 10))

	cust, err := a.client.Customers.New(params)
	if err != nil {
		return nil, err
	}
	return &gateway.CustomerResult{
		CustomerReference: cust.ID,
		Data:              rawResponse(cust.LastResponse),
	}, nil
}

func (a *Adapter) DeleteCustomer(ctx context.Context, customerReference string) error {
	params := &stripe.CustomerParams{Params: stripe.Params{Context: ctx}}
	_, err := a.client.Customers.Del(customerReference, params)
	return err
}

// CreateCard vaults a card as a payment method attached to the customer.
func (a *Adapter) CreateCard(ctx context.Context, card gateway.Card, customerReference string) (*gateway.CardResult, error) {
	pm, err := a.vaultPaymentMethod(ctx, card)
	if err != nil {
		return nil, err
	}
	attached, err := a.client.PaymentMethods.Attach(pm.ID, &stripe.PaymentMethodAttachParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerReference),
	})
	if err != nil {
		return nil, err
	}
	return &gateway.CardResult{
		CardReference: attached.ID,
		Data:          rawResponse(attached.LastResponse),
	}, nil
}

func (a *Adapter) DeleteCard(ctx context.Context, cardReference, customerReference string) error {
	_, err := a.client.PaymentMethods.Detach(cardReference, &stripe.PaymentMethodDetachParams{
		Params: stripe.Params{Context: ctx},
	})
	return err
}

// Purchase executes an off-session payment intent. A card-level rejection
// comes back as an unsuccessful result; only network and Stripe-side
// failures surface as errors.
func (a *Adapter) Purchase(ctx context.Context, req gateway.PurchaseRequest) (*gateway.PurchaseResult, error) {
	cents, err := amountCents(req.Amount)
	if err != nil {
		return nil, err
	}

	cardReference := req.CardReference
	if cardReference == "" && req.Card != nil {
		pm, err := a.vaultPaymentMethod(ctx, *req.Card)
		if err != nil {
			if declined, result := declineResult(err); declined {
				return purchaseDecline(result), nil
			}
			return nil, err
		}
		attached, err := a.client.PaymentMethods.Attach(pm.ID, &stripe.PaymentMethodAttachParams{
			Params:   stripe.Params{Context: ctx},
			Customer: stripe.String(req.CustomerReference),
		})
		if err != nil {
			return nil, err
		}
		cardReference = attached.ID
	}

	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(cents),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.CustomerReference),
		PaymentMethod: stripe.String(cardReference),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.ReturnURL != "" {
		params.OffSession = stripe.Bool(false)
		params.ReturnURL = stripe.String(req.ReturnURL)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.PackageID != "" {
		params.AddMetadata("package_id", req.PackageID)
	}

	pi, err := a.client.PaymentIntents.New(params)
	if err != nil {
		if declined, result := declineResult(err); declined {
			return purchaseDecline(result), nil
		}
		return nil, err
	}

	result := &gateway.PurchaseResult{
		TransactionReference: pi.ID,
		CardReference:        cardReference,
		Data:                 rawResponse(pi.LastResponse),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Success = true
	case stripe.PaymentIntentStatusRequiresAction:
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			result.Success = true
			result.Redirect = true
			result.RedirectURL = pi.NextAction.RedirectToURL.URL
		} else {
			result.Message = "payment requires user action"
		}
	default:
		result.Message = "unexpected payment status " + string(pi.Status)
	}
	return result, nil
}

// Refund refunds part or all of a payment intent.
func (a *Adapter) Refund(ctx context.Context, amount, transactionReference string) (*gateway.RefundResult, error) {
	cents, err := amountCents(amount)
	if err != nil {
		return nil, err
	}
	ref, err := a.client.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(transactionReference),
		Amount:        stripe.Int64(cents),
	})
	if err != nil {
		if declined, result := declineResult(err); declined {
			return &gateway.RefundResult{Message: result.Message, Data: result.Data}, nil
		}
		return nil, err
	}
	return &gateway.RefundResult{
		Success:              ref.Status == stripe.RefundStatusSucceeded || ref.Status == stripe.RefundStatusPending,
		TransactionReference: ref.ID,
		Data:                 rawResponse(ref.LastResponse),
	}, nil
}

// FetchTransaction returns Stripe's raw view of a payment intent.
func (a *Adapter) FetchTransaction(ctx context.Context, transactionReference string) (map[string]interface{}, error) {
	pi, err := a.client.PaymentIntents.Get(transactionReference, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, err
	}
	return rawResponse(pi.LastResponse), nil
}

func (a *Adapter) vaultPaymentMethod(ctx context.Context, card gateway.Card) (*stripe.PaymentMethod, error) {
	return a.client.PaymentMethods.New(&stripe.PaymentMethodParams{
		Params: stripe.Params{Context: ctx},
		Type:   stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(card.Number),
			ExpMonth: stripe.Int64(int64(card.ExpiryMonth)),
			ExpYear:  stripe.Int64(int64(card.ExpiryYear)),
			CVC:      stripe.String(card.CVV),
		},
		BillingDetails: &stripe.PaymentMethodBillingDetailsParams{
			Name:  stripe.String(card.Name()),
			Email: stripe.String(card.Email),
		},
	})
}

// declineResult classifies a Stripe error. Card-level errors and 4xx request
// errors are business declines that the caller records as a failed result;
// 5xx and transport errors stay errors so the caller can retry.
func declineResult(err error) (bool, *gateway.PurchaseResult) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false, nil
	}
	if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return false, nil
	}
	message := stripeErr.Msg
	if stripeErr.DeclineCode != "" {
		message = message + " (" + string(stripeErr.DeclineCode) + ")"
	}
	return true, &gateway.PurchaseResult{
		Message: message,
		Code:    stripeErr.HTTPStatusCode,
		Data: map[string]interface{}{
			"error_type": string(stripeErr.Type),
			"error_code": string(stripeErr.Code),
		},
	}
}

func purchaseDecline(result *gateway.PurchaseResult) *gateway.PurchaseResult {
	return &gateway.PurchaseResult{
		Message: result.Message,
		Code:    result.Code,
		Data:    result.Data,
	}
}

// amountCents converts a 2-decimal fixed-point amount string to minor units.
func amountCents(amount string) (int64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).IntPart(), nil
}

// rawResponse decodes the gateway's raw JSON body for audit storage.
func rawResponse(resp *stripe.APIResponse) map[string]interface{} {
	if resp == nil || len(resp.RawJSON) == 0 {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(resp.RawJSON, &data); err != nil {
		return nil
	}
	return data
}
