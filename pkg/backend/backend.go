// Package backend implements the REST client for the e-waste tracking
// backend. It owns request construction, bearer-token attachment, and
// response envelope decoding; callers decide retry and scheduling policy.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/greenloop/ewaste-monitor/internal/models"
)

// maxErrorBody caps how much of a failed response is read back for
// diagnostics.
const maxErrorBody = 16 * 1024

// ErrUnauthorized marks responses the backend rejected for missing or
// expired credentials. Callers detect it with errors.Is to trigger a
// re-login instead of a plain retry.
var ErrUnauthorized = errors.New("backend rejected credentials")

// APIError carries the status and detail of a non-2xx backend response.
type APIError struct {
	StatusCode int
	Detail     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d for %s: %s", e.StatusCode, e.Path, e.Detail)
	}
	return fmt.Sprintf("backend returned %d for %s", e.StatusCode, e.Path)
}

// Is lets errors.Is(err, ErrUnauthorized) match credential rejections.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// TokenProvider supplies the bearer token attached to authenticated calls.
type TokenProvider interface {
	Token() string
}

// RegisterDeviceRequest is the payload for registering a new device; the
// backend assigns the id, RFID tag, and initial lifecycle status.
type RegisterDeviceRequest struct {
	Type       string  `json:"type"`
	WeightKg   float64 `json:"weight_kg"`
	FacilityID string  `json:"facility_id"`
}

// DeviceDetail is a single device with its recent event history.
type DeviceDetail struct {
	Device models.Device  `json:"device"`
	Events []models.Event `json:"events"`
}

// Health is the backend liveness report.
type Health struct {
	Status  string `json:"status"`
	Devices int    `json:"devices"`
	Events  int    `json:"events"`
}

// API is the backend surface the monitoring services consume. Client
// implements it; tests substitute doubles.
type API interface {
	Login(ctx context.Context, username, password string) (*models.AuthResponse, error)
	Summary(ctx context.Context) (*models.Summary, error)
	Devices(ctx context.Context, status string) ([]models.Device, error)
	Device(ctx context.Context, id string) (*DeviceDetail, error)
	Facilities(ctx context.Context) ([]models.Facility, error)
	RegisterDevice(ctx context.Context, reg RegisterDeviceRequest) (*models.Device, error)
	Health(ctx context.Context) (*Health, error)
}

// Client is a thin HTTP client for the backend REST API. Safe for
// concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
}

// NewClient builds a client for the given base URL. The timeout bounds
// every request end to end, on top of any caller context deadline.
func NewClient(baseURL string, timeout time.Duration, tokens TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Login exchanges credentials for a bearer token. It never attaches an
// existing token, so it stays usable after the session expires.
func (c *Client) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var auth models.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", nil, body, &auth, false); err != nil {
		return nil, err
	}
	if auth.AccessToken == "" {
		return nil, errors.New("login response carried no access token")
	}
	return &auth, nil
}

// Summary fetches the aggregate analytics snapshot.
func (c *Client) Summary(ctx context.Context) (*models.Summary, error) {
	var summary models.Summary
	if err := c.doJSON(ctx, http.MethodGet, "/api/analytics/summary", nil, nil, &summary, true); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Devices fetches the device collection, optionally filtered to a single
// lifecycle status.
func (c *Client) Devices(ctx context.Context, status string) ([]models.Device, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": []string{status}}
	}
	var envelope struct {
		Devices []models.Device `json:"devices"`
		Total   int             `json:"total"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/devices", query, nil, &envelope, true); err != nil {
		return nil, err
	}
	return envelope.Devices, nil
}

// Device fetches a single device and its recent events.
func (c *Client) Device(ctx context.Context, id string) (*DeviceDetail, error) {
	var detail DeviceDetail
	if err := c.doJSON(ctx, http.MethodGet, "/api/devices/"+url.PathEscape(id), nil, nil, &detail, true); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Facilities fetches the recycling facility list, enriched with per-site
// device counts and weights.
func (c *Client) Facilities(ctx context.Context) ([]models.Facility, error) {
	var envelope struct {
		Facilities []models.Facility `json:"facilities"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/facilities", nil, nil, &envelope, true); err != nil {
		return nil, err
	}
	return envelope.Facilities, nil
}

// RegisterDevice creates a new device record; the backend announces it to
// stream subscribers.
func (c *Client) RegisterDevice(ctx context.Context, reg RegisterDeviceRequest) (*models.Device, error) {
	var envelope struct {
		Device models.Device `json:"device"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/devices/register", nil, reg, &envelope, true); err != nil {
		return nil, err
	}
	return &envelope.Device, nil
}

// Health probes backend liveness. Unauthenticated.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil, &health, false); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any, authed bool) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body for %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.apiError(resp, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// apiError drains a bounded amount of the failed response and lifts the
// backend's detail message into an APIError.
func (c *Client) apiError(resp *http.Response, path string) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		raw = nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Path: path}
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
		apiErr.Detail = detail.Detail
	} else if len(raw) > 0 {
		apiErr.Detail = strings.TrimSpace(string(raw))
	}
	return apiErr
}
