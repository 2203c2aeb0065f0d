package models

import "time"

type LedgerAccountType string

const (
	LedgerAccountTypeNonCurrentAssets LedgerAccountType = "non_current_assets"
	LedgerAccountTypeCurrentAssets    LedgerAccountType = "current_assets"
	LedgerAccountTypeEquity           LedgerAccountType = "equity"
	LedgerAccountTypeRevenue          LedgerAccountType = "revenue"
	LedgerAccountTypeExpenses         LedgerAccountType = "expenses"
)

type LedgerAccount struct {
	ID          int               `gorm:"primary_key" json:"id"`
	Name        string            `gorm:"size:255;not null" json:"name"`
	AccountType LedgerAccountType `gorm:"size:32" json:"account_type"`
	AccountId   string            `gorm:"size:32" json:"account_id"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *LedgerAccount) RemoteLinkRef() *RemoteLink { return &a.RemoteLink }
func (a *LedgerAccount) PrimaryId() int             { return a.ID }
