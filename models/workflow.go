package models

import "time"

type Workflow struct {
	ID           int    `gorm:"primary_key" json:"id"`
	Name         string `gorm:"size:255;not null" json:"name"`
	WorkflowType string `gorm:"size:32" json:"workflow_type"`
	Active       *bool  `gorm:"not null;default:true" json:"active"`

	RemoteLink
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *Workflow) RemoteLinkRef() *RemoteLink { return &w.RemoteLink }
func (w *Workflow) PrimaryId() int             { return w.ID }
