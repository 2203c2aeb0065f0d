package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Description string          `gorm:"size:500;not null" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	TaxRateId   int             `gorm:"default:0" json:"tax_rate_id"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Product) RemoteLinkRef() *RemoteLink { return &p.RemoteLink }
func (p *Product) PrimaryId() int             { return p.ID }
