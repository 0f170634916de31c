package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Refund statuses.
const (
	RefundStatusPending   = "PENDING"
	RefundStatusSuccess   = "SUCCESS"
	RefundStatusError     = "ERROR"
	RefundStatusPartial   = "PARTIAL"
	RefundStatusCancelled = "CANCELLED"
	RefundStatusCompleted = "COMPLETED"
)

// Refund records a single refund attempt against a prior Payment. The sum of
// SUCCESS refund amounts for a payment never exceeds the payment's original
// amount; the remainder lives in Payment.AmountNotRefunded.
type Refund struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	BillableID           uint            `gorm:"not null;index" json:"-"`
	ChargeableID         string          `gorm:"type:varchar(191);default:''" json:"chargeable_id"`
	PaymentID            uint            `gorm:"not null;index" json:"payment_id"`
	PaymentTokenID       *uint           `gorm:"default:null" json:"payment_token_id,omitempty"`
	GatewayID            uint            `gorm:"not null;index" json:"gateway_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	TransactionDate      time.Time       `gorm:"type:timestamp;not null" json:"transaction_date"`
	TransactionReference string          `gorm:"type:varchar(191);default:''" json:"transaction_reference"`
	TransactionDetails   string          `gorm:"type:varchar(255);default:''" json:"transaction_details"`
	ExtendedAttributes   JSONMap         `gorm:"type:json" json:"extended_attributes,omitempty"`
	Status               string          `gorm:"type:varchar(30);not null;default:'PENDING';index" json:"status"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`

	Payment *Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}
