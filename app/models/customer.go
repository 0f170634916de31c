package models

import (
	"time"

	"gorm.io/gorm"
)

// Customer is the gateway-side representation of a billable entity. At most
// one non-deleted Customer exists per (billable_id, gateway_id) pair; the
// unique index backs the serialization guard in the billing service.
type Customer struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	GatewayID          uint           `gorm:"not null;index:ux_customers_billable_gateway,unique,priority:2" json:"gateway_id"`
	BillableID         uint           `gorm:"not null;index:ux_customers_billable_gateway,unique,priority:1" json:"billable_id"`
	Token              string         `gorm:"type:varchar(191);not null;index" json:"token"`
	ExtendedAttributes JSONMap        `gorm:"type:json" json:"extended_attributes,omitempty"`
	CreatedBy          string         `gorm:"type:varchar(50);default:'system'" json:"created_by"`
	UpdatedBy          string         `gorm:"type:varchar(50);default:'system'" json:"updated_by"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`

	PaymentTokens []PaymentToken `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"payment_tokens,omitempty"`
}
