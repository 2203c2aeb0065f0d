package moneybird

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JobDoesburg/landolfio-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type remoteDocument struct {
	ContactId   json.Number          `json:"contact_id"`
	WorkflowId  json.Number          `json:"workflow_id"`
	State       string               `json:"state"`
	Reference   string               `json:"reference"`
	Date        string               `json:"date"`
	InvoiceDate string               `json:"invoice_date"`
	TotalPrice  string               `json:"total_price_incl_tax"`
	TotalUnpaid string               `json:"total_unpaid"`
	Details     []remoteDocumentLine `json:"details"`
}

type remoteDocumentLine struct {
	ID              json.Number `json:"id"`
	Description     string      `json:"description"`
	Amount          string      `json:"amount"`
	Price           string      `json:"price"`
	TotalAmount     string      `json:"total_price_excl_tax_with_discount"`
	RowOrder        *int        `json:"row_order"`
	LedgerAccountId json.Number `json:"ledger_account_id"`
	TaxRateId       json.Number `json:"tax_rate_id"`
	ProductId       json.Number `json:"product_id"`
}

// documentResource builds the ResourceType for one accounting document kind.
// All kinds share the documents table and the line handling; only the remote
// collection path and the kind tag differ.
func documentResource(kind models.DocumentKind, entityType string, path string) *ResourceType {
	return &ResourceType{
		EntityType:  entityType,
		Path:        path,
		PayloadKey:  entityType,
		CanWrite:    true,
		CanDelete:   true,
		CanFullSync: true,
		NewEntity:   func() models.SyncedEntity { return &models.Document{} },
		Scope: func(tx *gorm.DB) *gorm.DB {
			return tx.Where("kind = ?", kind)
		},
		ToLocalFields: func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error) {
			var d remoteDocument
			if err := json.Unmarshal(payload, &d); err != nil {
				return nil, err
			}

			fields := map[string]interface{}{
				"kind":         kind,
				"state":        d.State,
				"reference":    strings.TrimSpace(d.Reference),
				"total_price":  decimalFromString(d.TotalPrice),
				"total_unpaid": decimalFromString(d.TotalUnpaid),
			}

			if date := parseRemoteDate(firstNonEmpty(d.InvoiceDate, d.Date)); date != nil {
				fields["document_date"] = date
			}

			if id := d.ContactId.String(); id != "" && id != "0" {
				contactId, err := r.GetOrCreateByRemoteId(ctx, tx, "contact", id)
				if err != nil {
					return nil, fmt.Errorf("resolve contact %s: %w", id, err)
				}
				fields["contact_id"] = contactId
			}
			if id := d.WorkflowId.String(); id != "" && id != "0" {
				workflowId, err := r.GetOrCreateByRemoteId(ctx, tx, "workflow", id)
				if err != nil {
					return nil, fmt.Errorf("resolve workflow %s: %w", id, err)
				}
				fields["workflow_id"] = workflowId
			}
			return fields, nil
		},
		ToRemotePayload: documentToRemotePayload,
		ApplyExtra:      applyDocumentLines,
	}
}

// applyDocumentLines replaces the document's line set with the remote one:
// upsert by line remote id, keep remote row order, drop local lines the
// remote payload no longer carries.
func applyDocumentLines(ctx context.Context, r *Resolver, tx *gorm.DB, entity models.SyncedEntity, payload json.RawMessage) error {
	doc, ok := entity.(*models.Document)
	if !ok {
		return errors.New("document resource got a non-document entity")
	}

	var d remoteDocument
	if err := json.Unmarshal(payload, &d); err != nil {
		return err
	}

	seen := make([]string, 0, len(d.Details))
	for index, detail := range d.Details {
		lineRemoteID := detail.ID.String()
		if lineRemoteID == "" {
			continue
		}
		seen = append(seen, lineRemoteID)

		rowOrder := index + 1
		if detail.RowOrder != nil {
			rowOrder = *detail.RowOrder
		}

		fields := map[string]interface{}{
			"document_id":  doc.ID,
			"description":  detail.Description,
			"amount":       strings.TrimSpace(detail.Amount),
			"price":        decimalFromString(detail.Price),
			"total_amount": decimalFromString(detail.TotalAmount),
			"row_order":    rowOrder,
			"remote_id":    lineRemoteID,
		}

		if id := detail.LedgerAccountId.String(); id != "" && id != "0" {
			ledgerAccountId, err := r.GetOrCreateByRemoteId(ctx, tx, "ledger_account", id)
			if err != nil {
				return fmt.Errorf("resolve ledger account %s: %w", id, err)
			}
			fields["ledger_account_id"] = ledgerAccountId
		}
		if id := detail.TaxRateId.String(); id != "" && id != "0" {
			taxRateId, err := r.GetOrCreateByRemoteId(ctx, tx, "tax_rate", id)
			if err != nil {
				return fmt.Errorf("resolve tax rate %s: %w", id, err)
			}
			fields["tax_rate_id"] = taxRateId
		}
		if id := detail.ProductId.String(); id != "" && id != "0" {
			productId, err := r.GetOrCreateByRemoteId(ctx, tx, "product", id)
			if err != nil {
				return fmt.Errorf("resolve product %s: %w", id, err)
			}
			fields["product_id"] = productId
		}

		var existing models.DocumentLine
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("remote_id = ?", lineRemoteID).
			Take(&existing).Error
		switch {
		case err == nil:
			if uerr := tx.WithContext(ctx).Model(&existing).Updates(fields).Error; uerr != nil {
				return uerr
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if cerr := tx.WithContext(ctx).Model(&models.DocumentLine{}).Create(fields).Error; cerr != nil {
				return cerr
			}
		default:
			return err
		}
	}

	// Lines the remote document no longer carries are gone; lines are owned
	// by their document, so they are deleted rather than unlinked.
	query := tx.WithContext(ctx).Where("document_id = ?", doc.ID)
	if len(seen) > 0 {
		query = query.Where("remote_id IS NULL OR remote_id NOT IN ?", seen)
	}
	return query.Delete(&models.DocumentLine{}).Error
}

func documentToRemotePayload(ctx context.Context, r *Resolver, tx *gorm.DB, entity models.SyncedEntity) (map[string]interface{}, error) {
	doc, ok := entity.(*models.Document)
	if !ok {
		return nil, errors.New("document resource got a non-document entity")
	}

	payload := map[string]interface{}{
		"reference": doc.Reference,
	}
	if doc.DocumentDate != nil {
		payload["invoice_date"] = doc.DocumentDate.Format("2006-01-02")
	}

	if doc.ContactId != 0 {
		contactRemoteId, err := r.RemoteIdOf(ctx, tx, "contact", doc.ContactId)
		if err != nil {
			return nil, err
		}
		if contactRemoteId != "" {
			payload["contact_id"] = contactRemoteId
		}
	}
	if doc.WorkflowId != 0 {
		workflowRemoteId, err := r.RemoteIdOf(ctx, tx, "workflow", doc.WorkflowId)
		if err != nil {
			return nil, err
		}
		if workflowRemoteId != "" {
			payload["workflow_id"] = workflowRemoteId
		}
	}

	details := make([]map[string]interface{}, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		detail := map[string]interface{}{
			"description": line.Description,
			"amount":      line.Amount,
			"price":       line.Price.String(),
			"row_order":   line.RowOrder,
		}
		if line.RemoteLinkRef().Linked() {
			detail["id"] = *line.RemoteId
		}
		details = append(details, detail)
	}
	if len(details) > 0 {
		payload["details_attributes"] = details
	}
	return payload, nil
}

func parseRemoteDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
