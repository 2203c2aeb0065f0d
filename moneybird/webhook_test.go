package moneybird

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/sirupsen/logrus"
)

func testProcessor() *Processor {
	settings := &config.MoneybirdSettings{
		AdministrationID: "adm1",
		WebhookID:        "wh1",
		WebhookToken:     "secret",
		WebhookEvents:    []string{"contact_created", "contact_updated", "contact_destroyed"},
	}
	resolver := NewResolver(NewDefaultRegistry(), nil, logrus.New())
	return NewProcessor(resolver, settings, logrus.New())
}

func validEvent() *WebhookEvent {
	return &WebhookEvent{
		WebhookId:        "wh1",
		WebhookToken:     "secret",
		AdministrationId: "adm1",
		EntityType:       "Contact",
		Action:           "contact_updated",
		Entity:           json.RawMessage(`{"id":"1","version":1}`),
	}
}

func TestWebhookValidationChain(t *testing.T) {
	p := testProcessor()

	cases := []struct {
		name   string
		mutate func(*WebhookEvent)
		reason string
	}{
		{"wrong webhook id", func(e *WebhookEvent) { e.WebhookId = "other" }, rejectWebhookId},
		{"wrong token", func(e *WebhookEvent) { e.WebhookToken = "bad" }, rejectToken},
		{"wrong administration", func(e *WebhookEvent) { e.AdministrationId = "adm2" }, rejectAdministration},
		{"unknown action", func(e *WebhookEvent) { e.Action = "contact_exploded" }, rejectUnknownAction},
		{"action not configured", func(e *WebhookEvent) { e.Action = "estimate_created" }, rejectActionDisabled},
		{"unknown entity type", func(e *WebhookEvent) { e.EntityType = "Spaceship" }, rejectEntityType},
	}

	for _, tc := range cases {
		event := validEvent()
		tc.mutate(event)
		err := p.validate(event)
		var rejected *WebhookRejected
		if !errors.As(err, &rejected) {
			t.Fatalf("%s: expected rejection, got %v", tc.name, err)
		}
		if rejected.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %q", tc.name, tc.reason, rejected.Reason)
		}
	}

	if err := p.validate(validEvent()); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

func TestWebhookValidationFailsFast(t *testing.T) {
	p := testProcessor()

	// Everything wrong at once: the first check in the chain must win.
	event := validEvent()
	event.WebhookId = "bad"
	event.WebhookToken = "bad"
	event.AdministrationId = "bad"
	event.Action = "nonsense"

	err := p.validate(event)
	var rejected *WebhookRejected
	if !errors.As(err, &rejected) || rejected.Reason != rejectWebhookId {
		t.Fatalf("expected webhook id rejection first, got %v", err)
	}
}

func TestWebhookRejectionMutatesNothing(t *testing.T) {
	p := testProcessor()

	// Process must return before touching any storage for a rejected
	// delivery; with no database configured this would panic otherwise.
	event := validEvent()
	event.WebhookToken = "bad"
	err := p.Process(context.Background(), event)
	var rejected *WebhookRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestWebhookEventsUnrestrictedWhenUnconfigured(t *testing.T) {
	p := testProcessor()
	p.settings.WebhookEvents = nil
	if !p.actionConfigured("estimate_created") {
		t.Fatalf("empty configuration must accept every known action")
	}
}

func TestNormalizeEntityType(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"Contact", "contact"},
		{"SalesInvoice", "sales_invoice"},
		{"GeneralJournalDocument", "general_journal_document"},
		{"tax_rate", "tax_rate"},
	}
	for _, tc := range cases {
		if got := normalizeEntityType(tc.in); got != tc.expected {
			t.Fatalf("normalizeEntityType(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestActionClassification(t *testing.T) {
	if !isKnownAction("contact_created") || !isKnownAction("sales_invoice_destroyed") {
		t.Fatalf("create/destroy actions must be known")
	}
	if !isKnownAction("sales_invoice_state_changed_to_paid") {
		t.Fatalf("state change actions must be known")
	}
	if isKnownAction("") || isKnownAction("contact_vaporized") {
		t.Fatalf("unknown actions must be rejected")
	}
	if !isDestroyAction("contact_destroyed") || isDestroyAction("contact_updated") {
		t.Fatalf("destroy classification wrong")
	}
}
