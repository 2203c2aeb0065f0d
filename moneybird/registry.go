package moneybird

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JobDoesburg/landolfio-backend/models"
	"gorm.io/gorm"
)

var ErrWriteNotPermitted = errors.New("resource type is not writable")

// ResourceType is the per-entity-kind sync policy: the remote collection it
// lives in, what it is allowed to do, and the field mapping in both
// directions. Kind-specific behavior is dispatched through these descriptors
// instead of subclassing.
type ResourceType struct {
	// EntityType is the name the remote system and webhooks use for one
	// record of this kind ("contact", "sales_invoice", ...).
	EntityType string
	// Path is the remote collection path relative to the administration.
	Path string
	// PayloadKey wraps write payloads ({"contact": {...}}).
	PayloadKey string

	CanWrite    bool
	CanDelete   bool
	CanFullSync bool

	// NewEntity returns a zero value of the backing model.
	NewEntity func() models.SyncedEntity

	// ToLocalFields maps a remote payload to local column values. It is pure
	// except for resolving foreign references through the resolver.
	ToLocalFields func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error)

	// ToRemotePayload is the inverse direction; it omits remote-owned fields
	// so creates never claim an identity or version. Foreign keys are
	// translated back to remote ids through the resolver.
	ToRemotePayload func(ctx context.Context, r *Resolver, tx *gorm.DB, entity models.SyncedEntity) (map[string]interface{}, error)

	// MatchNaturalKey may adopt an unlinked local row for a remote record
	// that has no link yet. Optional; nil, nil means no match.
	MatchNaturalKey func(tx *gorm.DB, payload json.RawMessage) (models.SyncedEntity, error)

	// ApplyExtra handles child rows (document lines) after the main row
	// write. Optional.
	ApplyExtra func(ctx context.Context, r *Resolver, tx *gorm.DB, entity models.SyncedEntity, payload json.RawMessage) error

	// ClearOnUnlink lists cached remote columns to reset together with the
	// remote linkage when the remote system reports deletion.
	ClearOnUnlink map[string]interface{}

	// Scope restricts table-wide operations (delete reconciliation) when
	// several resource types share one table. Optional.
	Scope func(tx *gorm.DB) *gorm.DB
}

type remoteEnvelope struct {
	ID      json.Number `json:"id"`
	Version *int64      `json:"version"`
}

// IdentityKey extracts the stable remote identifier and, when present, the
// remote version from a payload.
func (rt *ResourceType) IdentityKey(payload json.RawMessage) (string, *int64, error) {
	var env remoteEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", nil, fmt.Errorf("%s: malformed payload: %w", rt.EntityType, err)
	}
	id := env.ID.String()
	if id == "" {
		return "", nil, fmt.Errorf("%s: payload has no id", rt.EntityType)
	}
	return id, env.Version, nil
}

// Registry maps entity kinds to their ResourceType. Registration order is the
// full-sync dependency order: reference data registers before the documents
// that point at it.
type Registry struct {
	ordered      []*ResourceType
	byEntityType map[string]*ResourceType
}

func NewRegistry() *Registry {
	return &Registry{
		byEntityType: make(map[string]*ResourceType),
	}
}

func (r *Registry) Register(rt *ResourceType) error {
	if rt.EntityType == "" || rt.NewEntity == nil {
		return errors.New("resource type needs an entity type and a model constructor")
	}
	if _, exists := r.byEntityType[rt.EntityType]; exists {
		return fmt.Errorf("resource type %q already registered", rt.EntityType)
	}
	r.byEntityType[rt.EntityType] = rt
	r.ordered = append(r.ordered, rt)
	return nil
}

// LookupByEntityType returns nil when the entity type is unknown.
func (r *Registry) LookupByEntityType(name string) *ResourceType {
	return r.byEntityType[name]
}

func (r *Registry) LookupByLocalKind(kind string) (*ResourceType, error) {
	rt := r.byEntityType[kind]
	if rt == nil {
		return nil, fmt.Errorf("no resource type registered for kind %q", kind)
	}
	return rt, nil
}

// Ordered returns resource types in registration (dependency) order,
// optionally restricted to the given entity types while preserving order.
func (r *Registry) Ordered(only []string) []*ResourceType {
	if len(only) == 0 {
		return r.ordered
	}
	allowed := make(map[string]bool, len(only))
	for _, name := range only {
		allowed[name] = true
	}
	var out []*ResourceType
	for _, rt := range r.ordered {
		if allowed[rt.EntityType] {
			out = append(out, rt)
		}
	}
	return out
}
