// Package remote implements the HTTP client for the cloud store.
//
// It consumes the incremental changes endpoint and the per-entity CRUD
// endpoints, and classifies failures as retryable (network, timeout, 5xx)
// or terminal (4xx validation/conflict) for the pusher's retry logic.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veridian-apps/ledgersync/internal/models"
)

// Default client configuration constants
const (
	// DefaultRequestTimeout bounds each individual remote call. The overall
	// sync pass has no global timeout.
	DefaultRequestTimeout = 30 * time.Second
)

// Opts holds configuration for the remote client.
type Opts struct {
	BaseURL    string
	AuthToken  string
	DeviceID   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures remote client construction.
type Option func(*Opts)

// WithBaseURL sets the cloud API base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithAuthToken sets the bearer token attached to every request.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithDeviceID sets the device identity header attached to every request.
func WithDeviceID(id string) Option {
	return func(o *Opts) { o.DeviceID = id }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the cloud store on behalf of one device.
type Client struct {
	baseURL   string
	authToken string
	deviceID  string
	http      *http.Client
}

// NewClient creates a remote client based on provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL not set")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	slog.Debug("remote.NewClient", "baseURL", cfg.BaseURL, "timeout", timeout, "deviceID_set", cfg.DeviceID != "")
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		deviceID:  cfg.DeviceID,
		http:      httpClient,
	}, nil
}

// PullChanges fetches all remote rows updated after since for the tenant.
// The server filters by tenant and reports its own snapshot time, which
// becomes the next cursor watermark (client clocks are never trusted).
func (c *Client) PullChanges(ctx context.Context, tenantID string, since time.Time) (*models.ChangeSet, error) {
	u := fmt.Sprintf("%s/state/changes?since=%s", c.baseURL, url.QueryEscape(since.UTC().Format(time.RFC3339Nano)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build pull request: %w", err)
	}
	c.setHeaders(req, tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Op: "pull", Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("pull", resp)
	}

	var cs models.ChangeSet
	if err := json.NewDecoder(resp.Body).Decode(&cs); err != nil {
		return nil, &RequestError{Op: "pull", Err: fmt.Errorf("decode changes response: %w", err), Retryable: true}
	}
	slog.Debug("Client.PullChanges", "tenantID", tenantID, "since", since, "serverUpdatedAt", cs.UpdatedAt, "entityTypes", len(cs.Entities))
	return &cs, nil
}

// PushUpsert creates or updates an entity remotely. The entity id doubles as
// the idempotency key, so a retried push after a dropped response does not
// duplicate the entity.
func (c *Client) PushUpsert(ctx context.Context, tenantID, entityType, entityID string, payload []byte) error {
	u := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(entityType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	c.setHeaders(req, tenantID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", entityID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: "push", Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError("push", resp)
	}
	slog.Debug("Client.PushUpsert", "tenantID", tenantID, "entityType", entityType, "entityID", entityID)
	return nil
}

// PushDelete deletes an entity remotely. Deleting an already-deleted entity
// is success: a 404 means the remote state already matches intent.
func (c *Client) PushDelete(ctx context.Context, tenantID, entityType, entityID string) error {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(entityType), url.PathEscape(entityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	c.setHeaders(req, tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: "delete", Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Debug("Client.PushDelete: already deleted remotely", "entityType", entityType, "entityID", entityID)
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError("delete", resp)
	}
	return nil
}

// Health performs a lightweight probe against the API. Used by the
// connectivity monitor to catch a live link with a dead backend.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: "health", Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError("health", resp)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, tenantID string) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}
	req.Header.Set("X-Tenant-ID", tenantID)
}

// statusError builds a RequestError from a non-success HTTP response,
// extracting the server's message when the body carries the JSON envelope.
func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := http.StatusText(resp.StatusCode)
	var envelope models.APIResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		msg = envelope.Message
	}
	return &RequestError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    msg,
		Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
	}
}
