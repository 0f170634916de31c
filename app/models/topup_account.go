package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TopupAccount carries the balance-based autocharge settings for a billable
// entity. A top-up is due when autocharge is enabled and the credit balance
// has fallen below the minimum balance.
type TopupAccount struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	BillableID           uint            `gorm:"not null;uniqueIndex" json:"billable_id"`
	Autocharge           bool            `gorm:"default:false;index" json:"autocharge"`
	CreditBalance        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0.00" json:"credit_balance"`
	MinimumBalance       decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0.00" json:"minimum_balance"`
	AutochargeAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0.00" json:"autocharge_amount"`
	AutochargePlanPoints decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0.00" json:"autocharge_plan_points"`
	AutochargeCurrency   string          `gorm:"type:varchar(10);not null;default:'USD'" json:"autocharge_currency"`
	LastAutochargeDate   *time.Time      `gorm:"type:timestamp;default:null" json:"last_autocharge_date,omitempty"`
	AutochargeRetries    int             `gorm:"default:0" json:"autocharge_retries"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TopupDue reports whether the account currently qualifies for a balance
// top-up charge, before retry pacing is applied.
func (a *TopupAccount) TopupDue() bool {
	return a.Autocharge && a.CreditBalance.LessThan(a.MinimumBalance)
}
