// Package client is a Go client for the Larder sync API.
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

	"github.com/hyperengineering/larder/internal/types"
)

// Wire types shared with the server.
type (
	BackupDocument = types.BackupDocument
	RawBackup      = types.RawBackup
	ImportRequest  = types.ImportRequest
	ImportResponse = types.ImportResponse
	SyncStatus     = types.SyncStatus
	HealthResponse = types.HealthResponse
	Mode           = types.Mode
)

// Import modes.
const (
	ModeMerge   = types.ModeMerge
	ModeReplace = types.ModeReplace
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	// APIKey is sent as a bearer token on user routes.
	APIKey string
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to a Larder server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid BaseURL %q", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
	}, nil
}

// APIError is a non-2xx response decoded from its Problem Details body.
type APIError struct {
	StatusCode int            `json:"status"`
	Title      string         `json:"title"`
	Detail     string         `json:"detail"`
	Code       string         `json:"code,omitempty"`
	Violations map[string]int `json:"violations,omitempty"`
	Errors     []string       `json:"-"`
	Partial    *bool          `json:"partial,omitempty"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "larder: %d", e.StatusCode)
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	for _, msg := range e.Errors {
		b.WriteString("\n  " + msg)
	}
	return b.String()
}

// problemBody covers both the string and object forms of "errors".
type problemBody struct {
	APIError
	Errors json.RawMessage `json:"errors,omitempty"`
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var pb problemBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	}
	apiErr := pb.APIError
	apiErr.StatusCode = resp.StatusCode

	if len(pb.Errors) > 0 {
		var msgs []string
		if err := json.Unmarshal(pb.Errors, &msgs); err == nil {
			apiErr.Errors = msgs
		} else {
			var fields []struct {
				Field   string `json:"field"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(pb.Errors, &fields); err == nil {
				for _, f := range fields {
					apiErr.Errors = append(apiErr.Errors, f.Field+": "+f.Message)
				}
			}
		}
	}
	return &apiErr
}

// Ping checks the server health endpoint.
func (c *Client) Ping(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads a user's backup document.
func (c *Client) Export(ctx context.Context, userID string) (*BackupDocument, error) {
	var out BackupDocument
	if err := c.do(ctx, http.MethodGet, userPath(userID, "sync/export"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Import submits a backup for reconciliation.
func (c *Client) Import(ctx context.Context, userID string, req ImportRequest) (*ImportResponse, error) {
	var out ImportResponse
	if err := c.do(ctx, http.MethodPost, userPath(userID, "sync/import"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches a user's sync status.
func (c *Client) Status(ctx context.Context, userID string) (*SyncStatus, error) {
	var out SyncStatus
	if err := c.do(ctx, http.MethodGet, userPath(userID, "sync/status"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPlanLimit sets a per-user plan limit. limit -1 means unlimited.
func (c *Client) SetPlanLimit(ctx context.Context, userID, collection string, limit int) error {
	body := struct {
		Collection string `json:"collection"`
		Limit      int    `json:"limit"`
	}{collection, limit}
	return c.do(ctx, http.MethodPut, userPath(userID, "plan"), body, nil)
}

func userPath(userID, suffix string) string {
	return "/api/v1/users/" + url.PathEscape(userID) + "/" + suffix
}

// do sends an authenticated JSON request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
