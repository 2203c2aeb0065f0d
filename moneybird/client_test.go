package moneybird

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(serverURL string, pageSize int) *Client {
	return &Client{
		baseURL:          serverURL,
		apiToken:         "test-token",
		administrationID: "123456",
		http:             &http.Client{Timeout: 5 * time.Second},
		pageSize:         pageSize,
	}
}

func TestClientEndpoint(t *testing.T) {
	c := testClient("https://moneybird.example/api/v2", 100)
	got := c.endpoint("contacts")
	want := "https://moneybird.example/api/v2/123456/contacts.json"
	if got != want {
		t.Fatalf("endpoint: expected %q, got %q", want, got)
	}
	if got := c.endpoint("/documents/receipts/"); got != "https://moneybird.example/api/v2/123456/documents/receipts.json" {
		t.Fatalf("endpoint with nested path: got %q", got)
	}
}

func TestClientGetSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"id":"1"}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 100)
	if _, err := c.Get(context.Background(), "contacts/1", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestClientGetAllPaginatesUntilShortPage(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		switch page {
		case "1":
			fmt.Fprint(w, `[{"id":"1"},{"id":"2"}]`)
		case "2":
			fmt.Fprint(w, `[{"id":"3"}]`)
		default:
			t.Errorf("unexpected page request %q", page)
			fmt.Fprint(w, `[]`)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2)
	items, err := c.GetAll(context.Background(), "contacts", nil)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if len(pages) != 2 || pages[0] != "1" || pages[1] != "2" {
		t.Fatalf("unexpected page sequence: %v", pages)
	}

	var last struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(items[2], &last); err != nil {
		t.Fatalf("unmarshal last item: %v", err)
	}
	if last.ID.String() != "3" {
		t.Fatalf("items out of order: last id %s", last.ID)
	}
}

func TestClientRetriesOnceOnRateLimit(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":"1"}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 100)
	if _, err := c.Get(context.Background(), "contacts/1", nil); err != nil {
		t.Fatalf("Get after rate limit: %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected exactly one retry, got %d requests", requests)
	}
}

func TestClientSecondRateLimitIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 100)
	_, err := c.Get(context.Background(), "contacts/1", nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected terminal 429 RequestError, got %v", err)
	}
}

func TestClientRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"Validation failed"}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 100)
	_, err := c.Post(context.Background(), "contacts", map[string]interface{}{"contact": map[string]string{}})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", reqErr.StatusCode)
	}
}

func TestClientUnavailableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	c := testClient(srv.URL, 100)
	_, err := c.Get(context.Background(), "contacts", nil)
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}

func TestRetryAfter(t *testing.T) {
	cases := []struct {
		header   string
		expected time.Duration
	}{
		{"", 5 * time.Second},
		{"2", 2 * time.Second},
		{"600", 30 * time.Second},
		{"garbage", 5 * time.Second},
	}
	for _, tc := range cases {
		if got := retryAfter(tc.header); got != tc.expected {
			t.Fatalf("retryAfter(%q) expected %v, got %v", tc.header, tc.expected, got)
		}
	}
}
