package models

import (
	"github.com/JobDoesburg/landolfio-backend/config"
)

// RemoteLink is embedded by every entity that mirrors a Moneybird object.
// RemoteId is set once the entity is linked; RemoteVersion is the remote
// monotonic version used for stale-write rejection.
type RemoteLink struct {
	RemoteId      *string `gorm:"size:64;uniqueIndex" json:"remote_id"`
	RemoteVersion *int64  `json:"remote_version"`
}

func (l *RemoteLink) Linked() bool {
	return l.RemoteId != nil && *l.RemoteId != ""
}

// ShouldApply reports whether a reconciliation carrying remoteVersion may be
// applied over the currently stored version. The first link always succeeds;
// after that only strictly newer remote versions are applied. A reconciliation
// without a version (webhook payloads may omit it) is always applied.
func (l *RemoteLink) ShouldApply(remoteVersion *int64) bool {
	if l.RemoteVersion == nil || remoteVersion == nil {
		return true
	}
	return *remoteVersion > *l.RemoteVersion
}

func (l *RemoteLink) Link(remoteId string, remoteVersion *int64) {
	l.RemoteId = &remoteId
	l.RemoteVersion = remoteVersion
}

// Unlink clears the remote linkage. The local record itself is preserved.
func (l *RemoteLink) Unlink() {
	l.RemoteId = nil
	l.RemoteVersion = nil
}

// SyncedEntity is implemented by every model carrying a RemoteLink.
type SyncedEntity interface {
	RemoteLinkRef() *RemoteLink
	PrimaryId() int
}

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Contact{},
		&LedgerAccount{},
		&TaxRate{},
		&Workflow{},
		&Product{},
		&Project{},
		&Document{},
		&DocumentLine{},
		&Asset{},
		&SyncRun{},
		&SyncError{},
		&SyncCursor{},
	)
	if err != nil {
		panic(err)
	}
}
