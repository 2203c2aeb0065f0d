package models

import (
	"strings"
	"time"
)

type Contact struct {
	ID          int    `gorm:"primary_key" json:"id"`
	CompanyName string `gorm:"size:255" json:"company_name"`
	FirstName   string `gorm:"size:100" json:"first_name"`
	LastName    string `gorm:"size:100" json:"last_name"`
	Email       string `gorm:"size:255;index" json:"email"`
	Phone       string `gorm:"size:32" json:"phone"`
	Address1    string `gorm:"size:255" json:"address1"`
	Address2    string `gorm:"size:255" json:"address2"`
	ZipCode     string `gorm:"size:16" json:"zip_code"`
	City        string `gorm:"size:100" json:"city"`
	Country     string `gorm:"size:2" json:"country"`
	SepaActive  *bool  `gorm:"not null;default:false" json:"sepa_active"`
	SepaIban    string `gorm:"size:34" json:"sepa_iban"`
	SepaMandate string `gorm:"size:64" json:"sepa_mandate"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Contact) RemoteLinkRef() *RemoteLink { return &c.RemoteLink }
func (c *Contact) PrimaryId() int             { return c.ID }

// FullName is the display name Moneybird derives for a contact: company name
// when present, otherwise "first last".
func (c *Contact) FullName() string {
	if strings.TrimSpace(c.CompanyName) != "" {
		return strings.TrimSpace(c.CompanyName)
	}
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}
