package moneybird

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/JobDoesburg/landolfio-backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NewDefaultRegistry registers every synchronized resource type in dependency
// order: reference data first, then the documents that reference it, then the
// webhook-only asset registry.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()

	for _, rt := range []*ResourceType{
		contactResource(),
		ledgerAccountResource(),
		taxRateResource(),
		workflowResource(),
		productResource(),
		projectResource(),
		documentResource(models.DocumentKindSalesInvoice, "sales_invoice", "sales_invoices"),
		documentResource(models.DocumentKindEstimate, "estimate", "estimates"),
		documentResource(models.DocumentKindPurchaseInvoice, "purchase_invoice", "documents/purchase_invoices"),
		documentResource(models.DocumentKindReceipt, "receipt", "documents/receipts"),
		documentResource(models.DocumentKindGeneralJournal, "general_journal_document", "documents/general_journal_documents"),
		assetResource(),
	} {
		if err := registry.Register(rt); err != nil {
			panic(err)
		}
	}
	return registry
}

type remoteContact struct {
	CompanyName string `json:"company_name"`
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	ZipCode     string `json:"zipcode"`
	City        string `json:"city"`
	Country     string `json:"country"`
	SepaActive  bool   `json:"sepa_active"`
	SepaIban    string `json:"sepa_iban"`
	SepaMandate string `json:"sepa_mandate_id"`
}

func contactResource() *ResourceType {
	return &ResourceType{
		EntityType:  "contact",
		Path:        "contacts",
		PayloadKey:  "contact",
		CanWrite:    true,
		CanDelete:   true,
		CanFullSync: true,
		NewEntity:   func() models.SyncedEntity { return &models.Contact{} },
		ToLocalFields: func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error) {
			var c remoteContact
			if err := json.Unmarshal(payload, &c); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"company_name": strings.TrimSpace(c.CompanyName),
				"first_name":   strings.TrimSpace(c.FirstName),
				"last_name":    strings.TrimSpace(c.LastName),
				"email":        strings.TrimSpace(c.Email),
				"phone":        utils.NormalizePhoneNumber(c.Phone, utils.CountryCode),
				"address1":     c.Address1,
				"address2":     c.Address2,
				"zip_code":     c.ZipCode,
				"city":         c.City,
				"country":      strings.ToUpper(strings.TrimSpace(c.Country)),
				"sepa_active":  c.SepaActive,
				"sepa_iban":    c.SepaIban,
				"sepa_mandate": c.SepaMandate,
			}, nil
		},
		ToRemotePayload: func(ctx context.Context, r *Resolver, tx *gorm.DB, entity models.SyncedEntity) (map[string]interface{}, error) {
			c, ok := entity.(*models.Contact)
			if !ok {
				return nil, errors.New("contact resource got a non-contact entity")
			}
			return map[string]interface{}{
				"company_name":    c.CompanyName,
				"firstname":       c.FirstName,
				"lastname":        c.LastName,
				"email":           c.Email,
				"phone":           c.Phone,
				"address1":        c.Address1,
				"address2":        c.Address2,
				"zipcode":         c.ZipCode,
				"city":            c.City,
				"country":         c.Country,
				"sepa_active":     c.SepaActive != nil && *c.SepaActive,
				"sepa_iban":       c.SepaIban,
				"sepa_mandate_id": c.SepaMandate,
			}, nil
		},
		MatchNaturalKey: func(tx *gorm.DB, payload json.RawMessage) (models.SyncedEntity, error) {
			var c remoteContact
			if err := json.Unmarshal(payload, &c); err != nil {
				return nil, err
			}
			email := strings.TrimSpace(c.Email)
			if email == "" {
				return nil, nil
			}
			var existing models.Contact
			err := tx.Where("remote_id IS NULL AND email = ?", email).Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &existing, nil
		},
	}
}

type remoteLedgerAccount struct {
	Name        string `json:"name"`
	AccountType string `json:"account_type"`
	AccountId   string `json:"account_id"`
}

func ledgerAccountResource() *ResourceType {
	return &ResourceType{
		EntityType:  "ledger_account",
		Path:        "ledger_accounts",
		PayloadKey:  "ledger_account",
		CanWrite:    false,
		CanDelete:   true,
		CanFullSync: true,
		NewEntity:   func() models.SyncedEntity { return &models.LedgerAccount{} },
		ToLocalFields: func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error) {
			var a remoteLedgerAccount
			if err := json.Unmarshal(payload, &a); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"name":         strings.TrimSpace(a.Name),
				"account_type": models.LedgerAccountType(a.AccountType),
				"account_id":   a.AccountId,
			}, nil
		},
		MatchNaturalKey: matchUnlinkedByName(func() models.SyncedEntity { return &models.LedgerAccount{} }),
	}
}

type remoteTaxRate struct {
	Name        string `json:"name"`
	Percentage  string `json:"percentage"`
	TaxRateType string `json:"tax_rate_type"`
	Active      bool   `json:"active"`
}

func taxRateResource() *ResourceType {
	return &ResourceType{
		EntityType:  "tax_rate",
		Path:        "tax_rates",
		PayloadKey:  "tax_rate",
		CanWrite:    false,
		CanDelete:   true,
		CanFullSync: true,
		NewEntity:   func() models.SyncedEntity { return &models.TaxRate{} },
		ToLocalFields: func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error) {
			var t remoteTaxRate
			if err := json.Unmarshal(payload, &t); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"name":          strings.TrimSpace(t.Name),
				"percentage":    decimalFromString(t.Percentage),
				"tax_rate_type": t.TaxRateType,
				"active":        t.Active,
			}, nil
		},
		MatchNaturalKey: matchUnlinkedByName(func() models.SyncedEntity { return &models.TaxRate{} }),
	}
}

type remoteWorkflow struct {
	Name         string `json:"name"`
	WorkflowType string `json:"type"`
	Active       bool   `json:"active"`
}

func workflowResource() *ResourceType {
	return &ResourceType{
		EntityType:  "workflow",
		Path:        "workflows",
		PayloadKey:  "workflow",
		CanWrite:    false,
		CanDelete:   true,
		CanFullSync: true,
		NewEntity:   func() models.SyncedEntity { return &models.Workflow{} },
		ToLocalFields: func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error) {
			var w remoteWorkflow
			if err := json.Unmarshal(payload, &w); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"name":          strings.TrimSpace(w.Name),
				"workflow_type": w.WorkflowType,
				"active":        w.Active,
			}, nil
		},
		MatchNaturalKey: matchUnlinkedByName(func() models.SyncedEntity { return &models.Workflow{} }),
	}
}

type remoteProduct struct {
	Description string      `json:"description"`
	Price       string      `json:"price"`
	TaxRateId   json.Number `json:"tax_rate_id"`
}

func productResource() *ResourceType {
	return &ResourceType{
		EntityType:  "product",
		Path:        "products",
		PayloadKey:  "product",
		CanWrite:    true,
		CanDelete:   true,
		CanFullSync: true,
		NewEntity:   func() models.SyncedEntity { return &models.Product{} },
		ToLocalFields: func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error) {
			var p remoteProduct
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
			fields := map[string]interface{}{
				"description": strings.TrimSpace(p.Description),
				"price":       decimalFromString(p.Price),
			}
			if id := p.TaxRateId.String(); id != "" && id != "0" {
				taxRateId, err := r.GetOrCreateByRemoteId(ctx, tx, "tax_rate", id)
				if err != nil {
					return nil, err
				}
				fields["tax_rate_id"] = taxRateId
			}
			return fields, nil
		},
		ToRemotePayload: func(ctx context.Context, r *Resolver, tx *gorm.DB, entity models.SyncedEntity) (map[string]interface{}, error) {
			p, ok := entity.(*models.Product)
			if !ok {
				return nil, errors.New("product resource got a non-product entity")
			}
			return map[string]interface{}{
				"description": p.Description,
				"price":       p.Price.String(),
			}, nil
		},
		MatchNaturalKey: func(tx *gorm.DB, payload json.RawMessage) (models.SyncedEntity, error) {
			var p remoteProduct
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
			description := strings.TrimSpace(p.Description)
			if description == "" {
				return nil, nil
			}
			var existing models.Product
			err := tx.Where("remote_id IS NULL AND description = ?", description).Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &existing, nil
		},
	}
}

type remoteProject struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func projectResource() *ResourceType {
	return &ResourceType{
		EntityType:  "project",
		Path:        "projects",
		PayloadKey:  "project",
		CanWrite:    true,
		CanDelete:   true,
		CanFullSync: true,
		NewEntity:   func() models.SyncedEntity { return &models.Project{} },
		ToLocalFields: func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error) {
			var p remoteProject
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
			state := models.ProjectState(p.State)
			if state == "" {
				state = models.ProjectStateActive
			}
			return map[string]interface{}{
				"name":  strings.TrimSpace(p.Name),
				"state": state,
			}, nil
		},
		ToRemotePayload: func(ctx context.Context, r *Resolver, tx *gorm.DB, entity models.SyncedEntity) (map[string]interface{}, error) {
			p, ok := entity.(*models.Project)
			if !ok {
				return nil, errors.New("project resource got a non-project entity")
			}
			return map[string]interface{}{
				"name": p.Name,
			}, nil
		},
		MatchNaturalKey: matchUnlinkedByName(func() models.SyncedEntity { return &models.Project{} }),
	}
}

type remoteAsset struct {
	Tag         string `json:"tag"`
	Description string `json:"description"`
	Category    string `json:"category"`
	State       string `json:"state"`
}

// assetResource is webhook-only: assets are registered in the remote system
// out of band and never pushed or bulk-fetched from here.
func assetResource() *ResourceType {
	return &ResourceType{
		EntityType:  "asset",
		Path:        "assets",
		PayloadKey:  "asset",
		CanWrite:    false,
		CanDelete:   true,
		CanFullSync: false,
		NewEntity:   func() models.SyncedEntity { return &models.Asset{} },
		ToLocalFields: func(ctx context.Context, r *Resolver, tx *gorm.DB, payload json.RawMessage) (map[string]interface{}, error) {
			var a remoteAsset
			if err := json.Unmarshal(payload, &a); err != nil {
				return nil, err
			}
			fields := map[string]interface{}{
				"description":  strings.TrimSpace(a.Description),
				"category":     strings.TrimSpace(a.Category),
				"remote_state": strings.TrimSpace(a.State),
			}
			if tag := strings.TrimSpace(a.Tag); tag != "" {
				fields["tag_id"] = tag
			}
			return fields, nil
		},
		MatchNaturalKey: func(tx *gorm.DB, payload json.RawMessage) (models.SyncedEntity, error) {
			var a remoteAsset
			if err := json.Unmarshal(payload, &a); err != nil {
				return nil, err
			}
			tag := strings.TrimSpace(a.Tag)
			if tag == "" {
				return nil, nil
			}
			var existing models.Asset
			err := tx.Where("remote_id IS NULL AND tag_id = ?", tag).Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &existing, nil
		},
		ClearOnUnlink: map[string]interface{}{
			"remote_state": "",
		},
	}
}

func matchUnlinkedByName(newEntity func() models.SyncedEntity) func(tx *gorm.DB, payload json.RawMessage) (models.SyncedEntity, error) {
	return func(tx *gorm.DB, payload json.RawMessage) (models.SyncedEntity, error) {
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(payload, &named); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(named.Name)
		if name == "" {
			return nil, nil
		}
		entity := newEntity()
		err := tx.Where("remote_id IS NULL AND name = ?", name).Take(entity).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return entity, nil
	}
}

func decimalFromString(value string) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(value); err == nil {
		return d
	}
	return decimal.Zero
}
