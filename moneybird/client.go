package moneybird

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JobDoesburg/landolfio-backend/config"
)

const defaultPageSize = 100

// RequestError is a non-2xx response from Moneybird. It is not retried; the
// caller decides whether the condition is terminal.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("moneybird api error %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// UnavailableError is a transport-level or timeout failure. Safe to retry on
// the next scheduled run; never retried inline.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("moneybird unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Client is a thin wrapper around the Moneybird REST API for one
// administration. It carries no retry policy beyond a single rate-limit wait.
type Client struct {
	baseURL          string
	apiToken         string
	administrationID string
	http             *http.Client
	pageSize         int
}

func NewClient(settings *config.MoneybirdSettings) *Client {
	pageSize := defaultPageSize
	return &Client{
		baseURL:          settings.APIBaseURL,
		apiToken:         settings.APIToken,
		administrationID: settings.AdministrationID,
		http:             &http.Client{Timeout: settings.RequestTimeout},
		pageSize:         pageSize,
	}
}

func (c *Client) endpoint(path string) string {
	path = strings.Trim(path, "/")
	return fmt.Sprintf("%s/%s/%s.json", c.baseURL, c.administrationID, path)
}

func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

func (c *Client) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) Patch(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, path, nil, body)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// GetAll fetches every page of a list endpoint, concatenating results in
// remote order. A page shorter than the page size terminates the walk.
func (c *Client) GetAll(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var all []json.RawMessage
	page := 1
	for {
		pageParams := url.Values{}
		for k, vs := range params {
			for _, v := range vs {
				pageParams.Add(k, v)
			}
		}
		pageParams.Set("page", strconv.Itoa(page))
		pageParams.Set("per_page", strconv.Itoa(c.pageSize))

		raw, err := c.Get(ctx, path, pageParams)
		if err != nil {
			return nil, err
		}

		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("unexpected list response for %s: %w", path, err)
		}
		all = append(all, items...)

		if len(items) < c.pageSize {
			return all, nil
		}
		page++
	}
}

func (c *Client) do(ctx context.Context, method string, path string, params url.Values, body interface{}) (json.RawMessage, error) {
	endpoint := c.endpoint(path)
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}

	rateLimited := false
	for {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &UnavailableError{Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &UnavailableError{Err: readErr}
		}

		if resp.StatusCode == http.StatusTooManyRequests && !rateLimited {
			// Honor the remote backoff hint once per request, then give up.
			rateLimited = true
			wait := retryAfter(resp.Header.Get("Retry-After"))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, &UnavailableError{Err: ctx.Err()}
			}
			if body != nil {
				data, _ := json.Marshal(body)
				payload = bytes.NewReader(data)
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &RequestError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return json.RawMessage(respBody), nil
	}
}

func retryAfter(header string) time.Duration {
	wait := 5 * time.Second
	if n, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && n > 0 {
		wait = time.Duration(n) * time.Second
	}
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	return wait
}
