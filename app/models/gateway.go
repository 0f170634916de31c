package models

import (
	"time"

	"gorm.io/gorm"
)

// Gateway types describe which adapter boots the gateway record.
const (
	GatewayTypeStripe = "stripe"
)

// Gateway stores the configuration of a payment gateway adapter. The
// registry resolves a Gateway row to a live adapter at startup; once
// resolved for a request the gateway never changes mid-operation.
type Gateway struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	IsDefault          bool           `gorm:"default:false;index" json:"is_default"`
	GatewayType        string         `gorm:"type:varchar(20);not null" json:"gateway_type"`
	Description        string         `gorm:"type:varchar(255);default:''" json:"description"`
	ExtendedAttributes JSONMap        `gorm:"type:json" json:"extended_attributes,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}
