// Package statuspage mirrors site state to a Cachet-compatible status page:
// components track up/down, incidents record outages.
package statuspage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAPIPath = "/api"
	defaultTimeout = 10 * time.Second
	pageSize       = 100
	maxPages       = 50
	maxErrorBody   = 512
)

// Config configures the REST client.
type Config struct {
	BaseURL  string
	APIToken string
	// APIPath is appended to BaseURL (default "/api").
	APIPath string
	Timeout time.Duration
	// RateQPS bounds request rate; zero means unlimited.
	RateQPS    float64
	HTTPClient *http.Client
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the status page REST API.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("statuspage.base_url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("statuspage.base_url: %w", err)
	}
	apiPath := cfg.APIPath
	if apiPath == "" {
		apiPath = defaultAPIPath
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RateQPS > 0 {
		limit = rate.Limit(cfg.RateQPS)
	}
	return &Client{
		base:    base + "/" + strings.Trim(apiPath, "/"),
		token:   cfg.APIToken,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// HasToken reports whether write operations are possible.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// ListComponents returns every component.
func (c *Client) ListComponents(ctx context.Context) ([]Component, error) {
	items, err := c.list(ctx, "/components", nil)
	if err != nil {
		return nil, err
	}
	out := make([]Component, 0, len(items))
	for _, item := range items {
		out = append(out, item.component())
	}
	return out, nil
}

// CreateComponent creates an enabled component.
func (c *Client) CreateComponent(ctx context.Context, name, description string, status ComponentStatus) (Component, error) {
	body := map[string]any{"name": name, "description": description, "status": status, "enabled": true}
	var item rawItem
	if err := c.do(ctx, http.MethodPost, "/components", nil, body, &item); err != nil {
		return Component{}, err
	}
	return item.component(), nil
}

// UpdateComponentStatus sets a component's status.
func (c *Client) UpdateComponentStatus(ctx context.Context, id int64, status ComponentStatus) (Component, error) {
	var item rawItem
	path := "/components/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPut, path, nil, map[string]any{"status": status}, &item); err != nil {
		return Component{}, err
	}
	return item.component(), nil
}

// ListIncidents returns the incidents attached to componentID (all
// incidents when componentID is 0).
func (c *Client) ListIncidents(ctx context.Context, componentID int64) ([]Incident, error) {
	query := url.Values{}
	if componentID > 0 {
		query.Set("component_id", strconv.FormatInt(componentID, 10))
	}
	items, err := c.list(ctx, "/incidents", query)
	if err != nil {
		return nil, err
	}
	out := make([]Incident, 0, len(items))
	for _, item := range items {
		inc := item.incident()
		// Some servers ignore the filter.
		if componentID > 0 && inc.ComponentID != 0 && inc.ComponentID != componentID {
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}

// CreateIncident opens an incident.
func (c *Client) CreateIncident(ctx context.Context, in NewIncident) (Incident, error) {
	if in.Status == 0 {
		in.Status = IncidentInvestigating
	}
	var item rawItem
	if err := c.do(ctx, http.MethodPost, "/incidents", nil, in, &item); err != nil {
		return Incident{}, err
	}
	return item.incident(), nil
}

// UpdateIncident changes an incident's status and optionally its message.
func (c *Client) UpdateIncident(ctx context.Context, id int64, status IncidentStatus, message string) (Incident, error) {
	body := map[string]any{"status": status}
	if message != "" {
		body["message"] = message
	}
	var item rawItem
	if err := c.do(ctx, http.MethodPut, "/incidents/"+strconv.FormatInt(id, 10), nil, body, &item); err != nil {
		return Incident{}, err
	}
	return item.incident(), nil
}

// ResolveIncident marks an incident fixed.
func (c *Client) ResolveIncident(ctx context.Context, id int64, message string) (Incident, error) {
	return c.UpdateIncident(ctx, id, IncidentFixed, message)
}

// AddMetricPoint records value on metricID at the given time.
func (c *Client) AddMetricPoint(ctx context.Context, metricID int64, value float64, at time.Time) error {
	body := map[string]any{"value": value, "timestamp": at.Unix()}
	path := "/metrics/" + strconv.FormatInt(metricID, 10) + "/points"
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

func (c *Client) list(ctx context.Context, path string, query url.Values) ([]rawItem, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(pageSize))
	var all []rawItem
	for page := 1; page <= maxPages; page++ {
		query.Set("page", strconv.Itoa(page))
		var items []rawItem
		if err := c.do(ctx, http.MethodGet, path, query, nil, &items); err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < pageSize {
			break
		}
	}
	return all, nil
}

// do performs one request. Responses are wrapped in {"data": ...}; out
// receives the unwrapped payload.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: rate limit wait: %w", method, path, err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s %s: build request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-Cachet-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
