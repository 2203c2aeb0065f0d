package moneybird

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type reconcileOutcome int

const (
	reconcileCreated reconcileOutcome = iota
	reconcileUpdated
	reconcileAdopted
	reconcileSkippedStale
)

// Resolver applies remote payloads onto the local store and resolves foreign
// references between resource types, fetching missing referenced records on
// demand. Referenced kinds (ledger accounts, tax rates, ...) never point back
// at documents, so the recursion depth is bounded.
type Resolver struct {
	registry *Registry
	client   *Client
	logger   *logrus.Logger
}

func NewResolver(registry *Registry, client *Client, logger *logrus.Logger) *Resolver {
	return &Resolver{registry: registry, client: client, logger: logger}
}

func (r *Resolver) Registry() *Registry { return r.registry }
func (r *Resolver) Client() *Client     { return r.client }

// ReconcileOne applies a single remote payload inside tx: version-gated
// update when a linked row exists, natural-key adoption of an unlinked row
// when the resource type defines one, create otherwise.
func (r *Resolver) ReconcileOne(ctx context.Context, tx *gorm.DB, rt *ResourceType, payload json.RawMessage) (reconcileOutcome, error) {
	remoteID, version, err := rt.IdentityKey(payload)
	if err != nil {
		return 0, err
	}

	entity := rt.NewEntity()
	err = tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("remote_id = ?", remoteID).
		Take(entity).Error
	switch {
	case err == nil:
		link := entity.RemoteLinkRef()
		if !link.ShouldApply(version) {
			return reconcileSkippedStale, nil
		}
		if err := r.applyFields(ctx, tx, rt, entity, payload, remoteID, version); err != nil {
			return 0, err
		}
		return reconcileUpdated, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		if rt.MatchNaturalKey != nil {
			match, merr := rt.MatchNaturalKey(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), payload)
			if merr != nil {
				return 0, merr
			}
			if match != nil {
				if err := r.applyFields(ctx, tx, rt, match, payload, remoteID, version); err != nil {
					return 0, err
				}
				return reconcileAdopted, nil
			}
		}
		if err := r.createFromPayload(ctx, tx, rt, payload, remoteID, version); err != nil {
			return 0, err
		}
		return reconcileCreated, nil

	default:
		return 0, err
	}
}

func (r *Resolver) applyFields(ctx context.Context, tx *gorm.DB, rt *ResourceType, entity models.SyncedEntity, payload json.RawMessage, remoteID string, version *int64) error {
	fields, err := rt.ToLocalFields(ctx, r, tx, payload)
	if err != nil {
		return err
	}
	fields["remote_id"] = remoteID
	if version != nil {
		// A payload without a version (some webhook deliveries) must not
		// erase the version already stored.
		fields["remote_version"] = version
	}

	if err := tx.WithContext(ctx).Model(entity).Where("id = ?", entity.PrimaryId()).Updates(fields).Error; err != nil {
		return err
	}
	if rt.ApplyExtra != nil {
		fresh := rt.NewEntity()
		if err := tx.WithContext(ctx).Where("id = ?", entity.PrimaryId()).Take(fresh).Error; err != nil {
			return err
		}
		return rt.ApplyExtra(ctx, r, tx, fresh, payload)
	}
	return nil
}

func (r *Resolver) createFromPayload(ctx context.Context, tx *gorm.DB, rt *ResourceType, payload json.RawMessage, remoteID string, version *int64) error {
	fields, err := rt.ToLocalFields(ctx, r, tx, payload)
	if err != nil {
		return err
	}
	fields["remote_id"] = remoteID
	fields["remote_version"] = version

	if err := tx.WithContext(ctx).Model(rt.NewEntity()).Create(fields).Error; err != nil {
		return err
	}
	if rt.ApplyExtra != nil {
		fresh := rt.NewEntity()
		if err := tx.WithContext(ctx).Where("remote_id = ?", remoteID).Take(fresh).Error; err != nil {
			return err
		}
		return rt.ApplyExtra(ctx, r, tx, fresh, payload)
	}
	return nil
}

// RemoteIdOf translates a local primary key into the remote id it is linked
// to. An unlinked or unknown row yields an empty id.
func (r *Resolver) RemoteIdOf(ctx context.Context, tx *gorm.DB, entityType string, localId int) (string, error) {
	if localId == 0 {
		return "", nil
	}
	rt := r.registry.LookupByEntityType(entityType)
	if rt == nil {
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
	entity := rt.NewEntity()
	err := tx.WithContext(ctx).Where("id = ?", localId).Take(entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	link := entity.RemoteLinkRef()
	if !link.Linked() {
		return "", nil
	}
	return *link.RemoteId, nil
}

// GetOrCreateByRemoteId resolves a foreign reference: the local primary key
// of the entity linked to remoteID, fetching and reconciling the single
// remote record when no link exists yet.
func (r *Resolver) GetOrCreateByRemoteId(ctx context.Context, tx *gorm.DB, entityType string, remoteID string) (int, error) {
	rt := r.registry.LookupByEntityType(entityType)
	if rt == nil {
		return 0, fmt.Errorf("unknown entity type %q", entityType)
	}

	entity := rt.NewEntity()
	err := tx.WithContext(ctx).Where("remote_id = ?", remoteID).Take(entity).Error
	if err == nil {
		return entity.PrimaryId(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	payload, err := r.client.Get(ctx, rt.Path+"/"+remoteID, nil)
	if err != nil {
		return 0, err
	}
	if _, err := r.ReconcileOne(ctx, tx, rt, payload); err != nil {
		return 0, err
	}

	fresh := rt.NewEntity()
	if err := tx.WithContext(ctx).Where("remote_id = ?", remoteID).Take(fresh).Error; err != nil {
		return 0, err
	}
	return fresh.PrimaryId(), nil
}

// Unlink clears the remote linkage (and cached remote columns) of the entity
// linked to remoteID. The local record is preserved. Unlinking an unknown id
// is a no-op, which keeps delete webhooks replayable.
func (r *Resolver) Unlink(ctx context.Context, tx *gorm.DB, rt *ResourceType, remoteID string) error {
	entity := rt.NewEntity()
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("remote_id = ?", remoteID).
		Take(entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"remote_id":      nil,
		"remote_version": nil,
	}
	for column, value := range rt.ClearOnUnlink {
		fields[column] = value
	}
	return tx.WithContext(ctx).Model(entity).Where("id = ?", entity.PrimaryId()).Updates(fields).Error
}

// UnlinkMissing unlinks every linked row of rt whose remote id was not seen
// in a completed full pass: the remote system no longer has them.
func (r *Resolver) UnlinkMissing(ctx context.Context, tx *gorm.DB, rt *ResourceType, seen map[string]bool) error {
	entity := rt.NewEntity()
	query := tx.WithContext(ctx).Model(entity).Where("remote_id IS NOT NULL")
	if rt.Scope != nil {
		query = rt.Scope(query)
	}
	if len(seen) > 0 {
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		query = query.Where("remote_id NOT IN ?", ids)
	}

	fields := map[string]interface{}{
		"remote_id":      nil,
		"remote_version": nil,
	}
	for column, value := range rt.ClearOnUnlink {
		fields[column] = value
	}
	return query.Updates(fields).Error
}
