package billing

import (
	"github.com/shopspring/decimal"

	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

// CustomerData is the optional profile data attached to a gateway-side
// customer registration.
type CustomerData struct {
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	CreatedBy string `json:"created_by,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// PurchaseInstructions describes a single purchase. Exactly one funding
// source must resolve: either CardReference names a vaulted token, or
// CardInfo carries inline card data, or PaymentSchema selects a
// redirect/manual flow that needs neither.
type PurchaseInstructions struct {
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Currency      string          `json:"currency,omitempty"`
	Description   string          `json:"description,omitempty"`
	PackageID     string          `json:"package_id,omitempty"`
	PackageName   string          `json:"package_name,omitempty"`
	CardReference string          `json:"card_reference,omitempty"`
	CardInfo      *gateway.Card   `json:"card_info,omitempty"`
	PaymentSchema string          `json:"payment_schema,omitempty"`
	Email         string          `json:"email,omitempty"`
	ReturnURL     string          `json:"return_url,omitempty"`
	CancelURL     string          `json:"cancel_url,omitempty"`
	NotifyURL     string          `json:"notify_url,omitempty"`
	// SubscriptionID links autocharge payments back to their subscription.
	SubscriptionID *uint             `json:"subscription_id,omitempty"`
	Method         string            `json:"method,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// eventData is the instruction summary carried on charge events. The PAN
// and CVV never leave the purchase call.
func (pi PurchaseInstructions) eventData() map[string]interface{} {
	data := map[string]interface{}{
		"amount":   pi.Amount.StringFixed(2),
		"currency": pi.Currency,
	}
	if pi.Description != "" {
		data["description"] = pi.Description
	}
	if pi.PackageID != "" {
		data["package_id"] = pi.PackageID
	}
	if pi.PackageName != "" {
		data["package_name"] = pi.PackageName
	}
	if pi.SubscriptionID != nil {
		data["subscription_id"] = *pi.SubscriptionID
	}
	return data
}
