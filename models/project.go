package models

import "time"

type ProjectState string

const (
	ProjectStateActive   ProjectState = "active"
	ProjectStateArchived ProjectState = "archived"
)

type Project struct {
	ID    int          `gorm:"primary_key" json:"id"`
	Name  string       `gorm:"size:255;not null" json:"name"`
	State ProjectState `gorm:"size:16;default:'active'" json:"state"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Project) RemoteLinkRef() *RemoteLink { return &p.RemoteLink }
func (p *Project) PrimaryId() int             { return p.ID }
