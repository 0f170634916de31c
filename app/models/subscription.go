package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Subscription interval types.
const (
	IntervalTypeDay   = "DAY"
	IntervalTypeDays  = "DAYS"
	IntervalTypeWeek  = "WEEK"
	IntervalTypeMonth = "MONTH"
	IntervalTypeYear  = "YEAR"
)

// Subscription statuses. A defaulted subscription keeps its ACTIVE status
// but is excluded from the autocharge sweep until an operator resets it.
const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusInactive  = "INACTIVE"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusSuspended = "SUSPENDED"
)

// Subscription owns the recurring-billing record and the autocharge retry
// state machine for one billable entity. At most one ACTIVE subscription
// exists per billable id; re-subscribing updates the active row in place.
type Subscription struct {
	ID             uint            `gorm:"primaryKey" json:"-"`
	BillableID     uint            `gorm:"not null;index" json:"-"`
	ChargeableID   string          `gorm:"type:varchar(191);default:''" json:"-"`
	CustomerID     uint            `gorm:"not null;index" json:"-"`
	PaymentTokenID uint            `gorm:"not null;index" json:"payment_token_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency       string          `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`
	Ran            int             `gorm:"default:0" json:"ran"`
	Interval       int             `gorm:"not null" json:"interval"`
	IntervalType   string          `gorm:"type:varchar(10);not null" json:"interval_type"`
	FailedAttempts int             `gorm:"default:0" json:"failed_attempts"`
	NextAttempt    *time.Time      `gorm:"type:timestamp;default:null;index" json:"next_attempt,omitempty"`
	LastAttempt    *time.Time      `gorm:"type:timestamp;default:null" json:"last_attempt,omitempty"`
	Defaulted      bool            `gorm:"default:false;index" json:"defaulted"`
	Data           JSONMap         `gorm:"type:json" json:"data,omitempty"`
	Status         string          `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`

	PaymentToken *PaymentToken `gorm:"foreignKey:PaymentTokenID" json:"payment_token,omitempty"`
}

// ValidIntervalType reports whether the interval type is one the scheduler
// can translate into a duration.
func ValidIntervalType(intervalType string) bool {
	switch intervalType {
	case IntervalTypeDay, IntervalTypeDays, IntervalTypeWeek, IntervalTypeMonth, IntervalTypeYear:
		return true
	}
	return false
}

// AddInterval advances t by count units of the given interval type. Month
// and year arithmetic is calendar-aware via AddDate.
func AddInterval(t time.Time, count int, intervalType string) time.Time {
	switch intervalType {
	case IntervalTypeDay, IntervalTypeDays:
		return t.AddDate(0, 0, count)
	case IntervalTypeWeek:
		return t.AddDate(0, 0, 7*count)
	case IntervalTypeMonth:
		return t.AddDate(0, count, 0)
	case IntervalTypeYear:
		return t.AddDate(count, 0, 0)
	}
	return t
}
