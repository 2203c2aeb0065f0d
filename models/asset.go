package models

import "time"

// Asset is a physical instrument in the rental/sales inventory. The scan tag
// is assigned elsewhere; here it only serves as the natural key for linking
// assets to document lines and to the remote asset registry.
type Asset struct {
	ID          int    `gorm:"primary_key" json:"id"`
	TagId       string `gorm:"size:32;uniqueIndex;not null" json:"tag_id"`
	Description string `gorm:"size:500" json:"description"`
	Category    string `gorm:"size:100" json:"category"`
	RemoteState string `gorm:"size:32" json:"remote_state"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Asset) RemoteLinkRef() *RemoteLink { return &a.RemoteLink }
func (a *Asset) PrimaryId() int             { return a.ID }
