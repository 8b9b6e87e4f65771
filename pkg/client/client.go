// Package client talks to the kanban API. It attaches the bearer token from
// a CredentialStore, refreshes an expired access token once per request and
// normalizes list responses.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

type Client struct {
	baseURL  string
	http     *http.Client
	store    CredentialStore
	onExpire func()
	refresh  singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithStore(store CredentialStore) Option {
	return func(c *Client) { c.store = store }
}

// WithExpiryHook registers fn to run after a failed refresh, or a retry the
// server still rejects, has cleared the store.
func WithExpiryHook(fn func()) Option {
	return func(c *Client) { c.onExpire = fn }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   NewMemoryStore(Credentials{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Store() CredentialStore {
	return c.store
}

// Login exchanges username and password for a token pair and saves it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var pair struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.send(ctx, http.MethodPost, "/auth/login", body, &pair, false); err != nil {
		return err
	}
	return c.store.Save(Credentials{Access: pair.Access, Refresh: pair.Refresh, Username: username})
}

// Logout revokes the refresh token on the server and clears the store. The
// store is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.store.Load()
	if err != nil {
		return err
	}
	var revokeErr error
	if creds.Refresh != "" {
		revokeErr = c.send(ctx, http.MethodPost, "/auth/logout", map[string]string{"refresh": creds.Refresh}, nil, false)
	}
	if err := c.store.Clear(); err != nil {
		return err
	}
	return revokeErr
}

// do performs an authenticated request. A 401 on a request that carried an
// access token triggers exactly one refresh and one retry. A 401 on the
// retry clears the store and returns ErrSessionExpired.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.send(ctx, method, path, body, out, true)
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}, authenticated bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var access string
	if authenticated {
		creds, err := c.store.Load()
		if err != nil {
			return err
		}
		if creds.Empty() {
			return ErrNotLoggedIn
		}
		access = creds.Access
	}

	resp, err := c.roundTrip(ctx, method, path, payload, access)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && access != "" {
		drain(resp)
		fresh, err := c.refreshAccess(ctx, access)
		if err != nil {
			return err
		}
		if resp, err = c.roundTrip(ctx, method, path, payload, fresh); err != nil {
			return err
		}
		// A fresh token that is still rejected ends the session.
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return c.expire()
		}
	}
	return decodeResponse(resp, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, access string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

// refreshAccess obtains a new access token. Concurrent callers that saw the
// same rejected token share one refresh call. When the server rejects the
// refresh token the store is cleared, the expiry hook runs and
// ErrSessionExpired is returned.
func (c *Client) refreshAccess(ctx context.Context, rejected string) (string, error) {
	v, err, _ := c.refresh.Do(rejected, func() (interface{}, error) {
		creds, err := c.store.Load()
		if err != nil {
			return "", err
		}
		// Another request already refreshed while ours was in flight.
		if creds.Access != "" && creds.Access != rejected {
			return creds.Access, nil
		}
		if creds.Refresh == "" {
			return "", c.expire()
		}

		var out struct {
			Access string `json:"access"`
		}
		err = c.send(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh": creds.Refresh}, &out, false)
		if IsTransient(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if err != nil || out.Access == "" {
			return "", c.expire()
		}

		creds.Access = out.Access
		if err := c.store.Save(creds); err != nil {
			return "", err
		}
		return out.Access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) expire() error {
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	if c.onExpire != nil {
		c.onExpire()
	}
	return ErrSessionExpired
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: "read response", Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if raw, ok := out.(*json.RawMessage); ok {
			*raw = append((*raw)[:0], data...)
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	apiErr := &APIError{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Body:       string(data),
	}
	var body struct {
		Error   string            `json:"error"`
		Message string            `json:"message"`
		Detail  string            `json:"detail"`
		Fields  map[string]string `json:"fields"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Detail
		}
		apiErr.Fields = body.Fields
	}
	return apiErr
}

// decodeList accepts a bare JSON array or an object whose "results" or
// "data" member is an array.
func decodeList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrUnrecognizedShape
	}

	items := data
	switch data[0] {
	case '[':
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		raw, ok := envelope["results"]
		if !ok {
			raw, ok = envelope["data"]
		}
		raw = bytes.TrimSpace(raw)
		if !ok || len(raw) == 0 || raw[0] != '[' {
			return nil, ErrUnrecognizedShape
		}
		items = raw
	default:
		return nil, ErrUnrecognizedShape
	}

	out := []T{}
	if err := json.Unmarshal(items, &out); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return out, nil
}

func (c *Client) getRaw(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
