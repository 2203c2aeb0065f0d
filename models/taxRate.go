package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaxRate struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Percentage  decimal.Decimal `gorm:"type:decimal(8,4);default:0" json:"percentage"`
	TaxRateType string          `gorm:"size:32" json:"tax_rate_type"`
	Active      *bool           `gorm:"not null;default:true" json:"active"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *TaxRate) RemoteLinkRef() *RemoteLink { return &t.RemoteLink }
func (t *TaxRate) PrimaryId() int             { return t.ID }
