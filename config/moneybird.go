package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

// MoneybirdSettings is the configuration surface consumed by the sync core.
// All values come from env (.env in development).
type MoneybirdSettings struct {
	APIBaseURL       string
	APIToken         string
	AdministrationID string

	// Webhook sender credentials. Requests that do not carry this exact
	// id/token pair are rejected.
	WebhookID    string
	WebhookToken string

	// Webhook event names this deployment acts on. Events outside this set
	// are rejected (and logged) even when the name itself is recognized.
	WebhookEvents []string

	// Resource entity types participating in full sync, in dependency order.
	// Empty means all registered full-sync resources in registration order.
	SyncResources []string

	RequestTimeout time.Duration
}

func GetMoneybirdSettings() (*MoneybirdSettings, error) {
	token := strings.TrimSpace(os.Getenv("MONEYBIRD_API_TOKEN"))
	if token == "" {
		return nil, errors.New("MONEYBIRD_API_TOKEN is required")
	}
	administration := strings.TrimSpace(os.Getenv("MONEYBIRD_ADMINISTRATION_ID"))
	if administration == "" {
		return nil, errors.New("MONEYBIRD_ADMINISTRATION_ID is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("MONEYBIRD_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://moneybird.com/api/v2"
	}

	timeout := time.Duration(intFromEnv("MONEYBIRD_REQUEST_TIMEOUT_SECONDS", 30)) * time.Second

	return &MoneybirdSettings{
		APIBaseURL:       strings.TrimRight(baseURL, "/"),
		APIToken:         token,
		AdministrationID: administration,
		WebhookID:        strings.TrimSpace(os.Getenv("MONEYBIRD_WEBHOOK_ID")),
		WebhookToken:     strings.TrimSpace(os.Getenv("MONEYBIRD_WEBHOOK_TOKEN")),
		WebhookEvents:    splitEnvList(os.Getenv("MONEYBIRD_WEBHOOK_EVENTS")),
		SyncResources:    splitEnvList(os.Getenv("MONEYBIRD_SYNC_RESOURCES")),
		RequestTimeout:   timeout,
	}, nil
}

func splitEnvList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
