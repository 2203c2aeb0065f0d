package moneybird

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WebhookEvent is one delivery from the remote administration. EntityId is
// carried next to the entity snapshot; on deletions the snapshot may be null
// and EntityId is the only reference to the removed record.
type WebhookEvent struct {
	WebhookId        string          `json:"webhook_id"`
	WebhookToken     string          `json:"webhook_token"`
	AdministrationId string          `json:"administration_id"`
	EntityType       string          `json:"entity_type"`
	EntityId         json.Number     `json:"entity_id"`
	State            string          `json:"state"`
	Action           string          `json:"action"`
	Entity           json.RawMessage `json:"entity"`
}

// WebhookRejected marks a delivery that failed validation. Rejections are
// acknowledged with 200 so the remote system does not retry them, but nothing
// is mutated.
type WebhookRejected struct {
	Reason string
}

func (e *WebhookRejected) Error() string {
	return "webhook rejected: " + e.Reason
}

const (
	rejectWebhookId      = "webhook_id_mismatch"
	rejectToken          = "token_mismatch"
	rejectAdministration = "administration_mismatch"
	rejectUnknownAction  = "unknown_action"
	rejectActionDisabled = "action_not_configured"
	rejectEntityType     = "unknown_entity_type"
)

// Processor validates and applies webhook deliveries. Deliveries are
// idempotent: replaying one is either a stale-version skip or a repeat of the
// same write.
type Processor struct {
	resolver *Resolver
	settings *config.MoneybirdSettings
	logger   *logrus.Logger
}

func NewProcessor(resolver *Resolver, settings *config.MoneybirdSettings, logger *logrus.Logger) *Processor {
	return &Processor{resolver: resolver, settings: settings, logger: logger}
}

// Process runs the validation chain and, when the delivery passes, applies
// the carried entity snapshot. Validation fails fast: the first failing step
// rejects the delivery before anything touches the database.
func (p *Processor) Process(ctx context.Context, event *WebhookEvent) error {
	if err := p.validate(event); err != nil {
		var rejected *WebhookRejected
		if errors.As(err, &rejected) {
			metricWebhookRejected.WithLabelValues(rejected.Reason).Inc()
			p.logger.WithFields(logrus.Fields{
				"reason": rejected.Reason,
				"action": event.Action,
			}).Warn("moneybird webhook rejected")
		}
		return err
	}

	entityType := normalizeEntityType(event.EntityType)
	rt := p.resolver.Registry().LookupByEntityType(entityType)
	metricWebhookAccepted.WithLabelValues(entityType, event.Action).Inc()

	db := config.GetDB().WithContext(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		empty := len(event.Entity) == 0 || string(event.Entity) == "null"
		// A destroy action, or any delivery without an entity snapshot,
		// means the record is gone remotely.
		if isDestroyAction(event.Action) || empty {
			remoteID := event.EntityId.String()
			if remoteID == "" && !empty {
				id, _, err := rt.IdentityKey(event.Entity)
				if err != nil {
					return err
				}
				remoteID = id
			}
			if remoteID == "" {
				return nil
			}
			return p.resolver.Unlink(ctx, tx, rt, remoteID)
		}
		_, err := p.resolver.ReconcileOne(ctx, tx, rt, event.Entity)
		return err
	})
}

func (p *Processor) validate(event *WebhookEvent) error {
	if p.settings.WebhookID != "" && event.WebhookId != p.settings.WebhookID {
		return &WebhookRejected{Reason: rejectWebhookId}
	}
	if p.settings.WebhookToken != "" && event.WebhookToken != p.settings.WebhookToken {
		return &WebhookRejected{Reason: rejectToken}
	}
	if event.AdministrationId != p.settings.AdministrationID {
		return &WebhookRejected{Reason: rejectAdministration}
	}
	if !isKnownAction(event.Action) {
		return &WebhookRejected{Reason: rejectUnknownAction}
	}
	if !p.actionConfigured(event.Action) {
		return &WebhookRejected{Reason: rejectActionDisabled}
	}
	if p.resolver.Registry().LookupByEntityType(normalizeEntityType(event.EntityType)) == nil {
		return &WebhookRejected{Reason: rejectEntityType}
	}
	return nil
}

func (p *Processor) actionConfigured(action string) bool {
	if len(p.settings.WebhookEvents) == 0 {
		return true
	}
	for _, configured := range p.settings.WebhookEvents {
		if configured == action {
			return true
		}
	}
	return false
}

func isKnownAction(action string) bool {
	if action == "" {
		return false
	}
	if strings.HasSuffix(action, "_created") ||
		strings.HasSuffix(action, "_updated") ||
		strings.HasSuffix(action, "_destroyed") {
		return true
	}
	return strings.Contains(action, "_state_changed")
}

func isDestroyAction(action string) bool {
	return strings.HasSuffix(action, "_destroyed")
}

// normalizeEntityType maps the remote's CamelCase entity names ("SalesInvoice")
// onto the snake_case names the registry uses.
func normalizeEntityType(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
