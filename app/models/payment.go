package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment statuses. A Payment is created PENDING before the gateway call is
// issued and only moves to a terminal status after the gateway responds, so
// a crash mid-call always leaves an auditable PENDING row.
const (
	PaymentStatusPending           = "PENDING"
	PaymentStatusPendingPayment    = "PENDING_PAYMENT"
	PaymentStatusSuccess           = "SUCCESS"
	PaymentStatusError             = "ERROR"
	PaymentStatusRefunded          = "REFUNDED"
	PaymentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Payment methods.
const (
	PaymentMethodCard       = "CARD"
	PaymentMethodCardToken  = "CARD_TOKEN"
	PaymentMethodAutocharge = "AUTOCHARGE"
	PaymentMethodManual     = "MANUAL"
	PaymentMethodRedirect   = "REDIRECT"
)

// Payment records a single purchase attempt against a gateway. Rows are
// never physically deleted, only soft-retired. AmountNotRefunded starts at
// Amount and only ever decreases.
type Payment struct {
	ID                   uint             `gorm:"primaryKey" json:"id"`
	BillableID           uint             `gorm:"not null;index" json:"-"`
	ChargeableID         string           `gorm:"type:varchar(191);default:''" json:"chargeable_id"`
	PaymentTokenID       *uint            `gorm:"default:null;index" json:"payment_token_id,omitempty"`
	SubscriptionID       *uint            `gorm:"default:null;index" json:"subscription_id,omitempty"`
	GatewayID            uint             `gorm:"not null;index" json:"gateway_id"`
	Amount               decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"amount"`
	AmountUSD            *decimal.Decimal `gorm:"type:decimal(10,2);default:null" json:"amount_usd,omitempty"`
	AmountNotRefunded    decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"amount_not_refunded"`
	Currency             string           `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`
	Method               string           `gorm:"type:varchar(20);not null" json:"method"`
	TransactionDate      time.Time        `gorm:"type:timestamp;not null" json:"transaction_date"`
	TransactionReference string           `gorm:"type:varchar(191);default:'';index" json:"transaction_reference"`
	TransactionDetails   string           `gorm:"type:varchar(255);default:''" json:"transaction_details"`
	ExtendedAttributes   JSONMap          `gorm:"type:json" json:"extended_attributes,omitempty"`
	Status               string           `gorm:"type:varchar(30);not null;default:'PENDING';index" json:"status"`
	CreatedAt            time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt   `gorm:"index" json:"-"`
}

// Refundable reports whether any of the payment amount remains refundable.
func (p *Payment) Refundable() bool {
	return p.Status != PaymentStatusRefunded && p.AmountNotRefunded.IsPositive()
}
