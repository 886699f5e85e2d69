// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package modelpin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AdapterModel is one model an adapter reports in its capabilities.
type AdapterModel struct {
	ModelID       string `json:"model_id"`
	ModelSHA256   string `json:"model_sha256,omitempty"`
	Quantization  string `json:"quantization,omitempty"`
	ContextWindow int64  `json:"context_window,omitempty"`
}

// Capabilities is the adapter capabilities response.
type Capabilities struct {
	AdapterType string         `json:"adapter_type"`
	Features    []string       `json:"features"`
	Models      []AdapterModel `json:"models"`
}

// Health is the adapter health response.
type Health struct {
	Status         string `json:"status"`
	AdapterID      string `json:"adapter_id"`
	AdapterVersion string `json:"adapter_version"`
	UptimeMS       int64  `json:"uptime_ms"`
}

// ErrorCategory classifies an adapter failure for the
// MODEL_CALL_FAILED audit payload.
type ErrorCategory string

const (
	ErrorTimeout      ErrorCategory = "TIMEOUT"
	ErrorModelMissing ErrorCategory = "MODEL_NOT_FOUND"
	ErrorNotSupported ErrorCategory = "NOT_SUPPORTED"
	ErrorRuntime      ErrorCategory = "RUNTIME_ERROR"
)

// ClassifyError maps an adapter error message onto the closed
// category set. Unrecognized failures are runtime errors.
func ClassifyError(message string) (category ErrorCategory, code string, retryable bool) {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		return ErrorTimeout, "ADAPTER_TIMEOUT", true
	case strings.Contains(lower, "not found"):
		return ErrorModelMissing, "MODEL_NOT_FOUND", false
	case strings.Contains(lower, "unsupported"), strings.Contains(lower, "not supported"):
		return ErrorNotSupported, "NOT_SUPPORTED", false
	default:
		return ErrorRuntime, "RUNTIME_ERROR", false
	}
}

// EnforceLoopback rejects any adapter endpoint whose host is not a
// loopback IP literal. Hostnames are rejected outright — resolution
// could point anywhere after the check.
func EnforceLoopback(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("modelpin: invalid adapter endpoint: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("modelpin: adapter endpoint missing host")
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("modelpin: adapter endpoint host must be a loopback IP literal, got %q", host)
	}
	if !ip.IsLoopback() {
		return fmt.Errorf("modelpin: adapter endpoint %s rejected: not loopback", endpoint)
	}
	return nil
}

// Client talks to one local adapter over loopback HTTP.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient validates the endpoint is loopback and returns a client.
// The timeout bounds every request; it is recorded as timeout_ms in
// model-call envelopes.
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	if err := EnforceLoopback(endpoint); err != nil {
		return nil, err
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Endpoint returns the adapter base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Health fetches the adapter's health document.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.getJSON(ctx, "/health", &health); err != nil {
		return Health{}, err
	}
	return health, nil
}

// Capabilities fetches the adapter's capability document, including
// the models it serves and their optional weight hashes.
func (c *Client) Capabilities(ctx context.Context) (Capabilities, error) {
	var capabilities Capabilities
	if err := c.getJSON(ctx, "/capabilities", &capabilities); err != nil {
		return Capabilities{}, err
	}
	return capabilities, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("modelpin: building request: %w", err)
	}
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("modelpin: adapter request %s: %w", path, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("modelpin: adapter returned %d for %s", response.StatusCode, path)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("modelpin: decoding adapter response: %w", err)
	}
	return nil
}
