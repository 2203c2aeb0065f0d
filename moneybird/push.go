package moneybird

import (
	"context"
	"errors"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SaveOptions struct {
	// SuppressPush persists locally without writing to the remote
	// administration. Set when applying a change that originated remotely,
	// so it does not echo back.
	SuppressPush bool
}

// PostSaveHook runs after a successful save commits, in registration order.
type PostSaveHook func(ctx context.Context, entityType string, entity models.SyncedEntity)

// Pusher persists local edits and mirrors them to the remote administration
// in the same transaction: when the remote write fails, the local change
// rolls back with it.
type Pusher struct {
	resolver *Resolver
	logger   *logrus.Logger
	hooks    []PostSaveHook
}

func NewPusher(resolver *Resolver, logger *logrus.Logger) *Pusher {
	p := &Pusher{resolver: resolver, logger: logger}
	p.AddPostSaveHook(relinkAssetsAfterDocumentSave)
	return p
}

func (p *Pusher) AddPostSaveHook(hook PostSaveHook) {
	p.hooks = append(p.hooks, hook)
}

// Save writes the entity locally and pushes it to the remote collection. An
// unlinked entity is created remotely and adopts the returned remote id and
// version; a linked one is patched. The response body is reconciled back onto
// the row before the transaction commits, so remote-computed fields (totals,
// state) land in the same commit.
func (p *Pusher) Save(ctx context.Context, entityType string, entity models.SyncedEntity, opts SaveOptions) error {
	rt := p.resolver.Registry().LookupByEntityType(entityType)
	if rt == nil {
		return errors.New("unknown entity type " + entityType)
	}
	if !rt.CanWrite && !opts.SuppressPush {
		return ErrWriteNotPermitted
	}

	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(entity).Error; err != nil {
			return err
		}
		if opts.SuppressPush {
			return nil
		}
		return p.push(ctx, tx, rt, entity)
	})
	if err != nil {
		if !opts.SuppressPush {
			metricPushes.WithLabelValues(entityType, "error").Inc()
		}
		return err
	}

	for _, hook := range p.hooks {
		hook(ctx, entityType, entity)
	}
	return nil
}

func (p *Pusher) push(ctx context.Context, tx *gorm.DB, rt *ResourceType, entity models.SyncedEntity) error {
	payload, err := rt.ToRemotePayload(ctx, p.resolver, tx, entity)
	if err != nil {
		return err
	}
	body := map[string]interface{}{rt.PayloadKey: payload}

	link := entity.RemoteLinkRef()
	var response []byte
	result := "created"
	if link.Linked() {
		result = "updated"
		response, err = p.resolver.Client().Patch(ctx, rt.Path+"/"+*link.RemoteId, body)
	} else {
		response, err = p.resolver.Client().Post(ctx, rt.Path, body)
	}
	if err != nil {
		return err
	}

	remoteID, version, err := rt.IdentityKey(response)
	if err != nil {
		return err
	}
	if err := p.resolver.applyFields(ctx, tx, rt, entity, response, remoteID, version); err != nil {
		return err
	}
	link.Link(remoteID, version)
	metricPushes.WithLabelValues(rt.EntityType, result).Inc()
	return nil
}

// relinkAssetsAfterDocumentSave re-runs scan tag matching over a document's
// lines: a line whose description mentions a known asset tag gets linked to
// that asset. Runs post-commit, failures are logged, never fatal.
func relinkAssetsAfterDocumentSave(ctx context.Context, entityType string, entity models.SyncedEntity) {
	doc, ok := entity.(*models.Document)
	if !ok {
		return
	}
	db := config.GetDB().WithContext(ctx)

	var lines []models.DocumentLine
	if err := db.Where("document_id = ?", doc.ID).Find(&lines).Error; err != nil {
		config.LogError(config.GetLogger(), "moneybird", "relinkAssetsAfterDocumentSave", entityType, doc.ID, err)
		return
	}

	for _, line := range lines {
		if line.Description == "" {
			continue
		}
		var asset models.Asset
		err := db.Where("tag_id <> '' AND ? LIKE CONCAT('%', tag_id, '%')", line.Description).
			Order("id").
			Take(&asset).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			config.LogError(config.GetLogger(), "moneybird", "relinkAssetsAfterDocumentSave", entityType, line.ID, err)
			continue
		}
		if line.AssetId == asset.ID {
			continue
		}
		if err := db.Model(&models.DocumentLine{}).Where("id = ?", line.ID).
			Update("asset_id", asset.ID).Error; err != nil {
			config.LogError(config.GetLogger(), "moneybird", "relinkAssetsAfterDocumentSave", entityType, line.ID, err)
		}
	}
}
