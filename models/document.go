package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind tags the accounting document variants that used to be a class
// hierarchy; behavior differences are resolved through the resource registry,
// not through subtyping.
type DocumentKind string

const (
	DocumentKindSalesInvoice    DocumentKind = "sales_invoice"
	DocumentKindEstimate        DocumentKind = "estimate"
	DocumentKindPurchaseInvoice DocumentKind = "purchase_invoice"
	DocumentKindReceipt         DocumentKind = "receipt"
	DocumentKindGeneralJournal  DocumentKind = "general_journal_document"
)

type Document struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Kind         DocumentKind    `gorm:"size:32;not null;index" json:"kind"`
	ContactId    int             `gorm:"index;default:0" json:"contact_id"`
	WorkflowId   int             `gorm:"default:0" json:"workflow_id"`
	State        string          `gorm:"size:32" json:"state"`
	Reference    string          `gorm:"size:255" json:"reference"`
	DocumentDate *time.Time      `json:"document_date"`
	TotalPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_price"`
	TotalUnpaid  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_unpaid"`

	Lines []DocumentLine `gorm:"foreignKey:DocumentId" json:"lines"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *Document) RemoteLinkRef() *RemoteLink { return &d.RemoteLink }
func (d *Document) PrimaryId() int             { return d.ID }

// DocumentLine rows keep the remote row ordering; RowOrder is dense within a
// document and its relative order round-trips through the remote system.
type DocumentLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	DocumentId      int             `gorm:"index;not null" json:"document_id"`
	Description     string          `gorm:"type:text" json:"description"`
	Amount          string          `gorm:"size:32" json:"amount"`
	Price           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	RowOrder        int             `gorm:"default:0" json:"row_order"`
	LedgerAccountId int             `gorm:"default:0" json:"ledger_account_id"`
	TaxRateId       int             `gorm:"default:0" json:"tax_rate_id"`
	ProductId       int             `gorm:"default:0" json:"product_id"`
	AssetId         int             `gorm:"index;default:0" json:"asset_id"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *DocumentLine) RemoteLinkRef() *RemoteLink { return &l.RemoteLink }
func (l *DocumentLine) PrimaryId() int             { return l.ID }
