package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentToken is a vaulted, reusable reference to a stored card. Across all
// non-deleted tokens of a billable entity at most one is the default; the
// first token ever stored becomes the default automatically.
type PaymentToken struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	CustomerID         uint           `gorm:"not null;index" json:"customer_id"`
	BillableID         uint           `gorm:"not null;index" json:"billable_id"`
	Token              string         `gorm:"type:varchar(191);not null;index" json:"token"`
	IsDefault          bool           `gorm:"default:false;index" json:"is_default"`
	Brand              string         `gorm:"type:varchar(30);default:''" json:"brand"`
	StartDate          *time.Time     `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	ExpiryDate         *time.Time     `gorm:"type:timestamp;default:null" json:"expiry_date,omitempty"`
	ExtendedAttributes JSONMap        `gorm:"type:json" json:"extended_attributes,omitempty"`
	CreatedBy          string         `gorm:"type:varchar(50);default:'system'" json:"created_by"`
	UpdatedBy          string         `gorm:"type:varchar(50);default:'system'" json:"updated_by"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`

	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

// IsExpired reports whether the stored card is past its expiry date.
func (pt *PaymentToken) IsExpired(now time.Time) bool {
	return pt.ExpiryDate != nil && pt.ExpiryDate.Before(now)
}

// CardExpiry returns the last instant of the card's expiry month, which is
// when gateways stop accepting the card.
func CardExpiry(month, year int) time.Time {
	// First day of the following month, minus a second.
	firstOfNext := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Second)
}
