// Package homeassistant provides a client for the Home Assistant API.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hearthside-ai/hearthside/internal/httpkit"
)

// Client is a Home Assistant REST API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new Home Assistant client. Transient dial
// failures (HA restarting mid-conversation) are retried with a short
// delay before surfacing to the tool layer.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// State represents an entity state from Home Assistant.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// FriendlyName returns the friendly_name attribute, or "" when unset.
func (s State) FriendlyName() string {
	if fn, ok := s.Attributes["friendly_name"].(string); ok {
		return fn
	}
	return ""
}

// DeviceClass returns the device_class attribute, or "" when unset.
func (s State) DeviceClass() string {
	if dc, ok := s.Attributes["device_class"].(string); ok {
		return dc
	}
	return ""
}

// Domain returns the part of the entity ID before the dot.
func (s State) Domain() string {
	parts := splitEntityID(s.EntityID)
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// APIStatus represents the HA API status response.
type APIStatus struct {
	Message string `json:"message"`
}

// Ping checks if the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var status APIStatus
	if err := c.get(ctx, "/api/", &status); err != nil {
		return err
	}
	if status.Message != "API running." {
		return fmt.Errorf("unexpected API status: %s", status.Message)
	}
	return nil
}

// GetStates retrieves all entity states.
func (c *Client) GetStates(ctx context.Context) ([]State, error) {
	var states []State
	if err := c.get(ctx, "/api/states", &states); err != nil {
		return nil, err
	}
	return states, nil
}

// GetState retrieves a single entity state.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	var state State
	if err := c.get(ctx, "/api/states/"+entityID, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// CallService calls a Home Assistant service.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	path := fmt.Sprintf("/api/services/%s/%s", domain, service)
	return c.post(ctx, path, data, nil)
}

// GetHistory retrieves state history for an entity since the given time.
func (c *Client) GetHistory(ctx context.Context, entityID string, since time.Time) ([][]State, error) {
	path := fmt.Sprintf("/api/history/period/%s?filter_entity_id=%s",
		since.UTC().Format(time.RFC3339), url.QueryEscape(entityID))
	var history [][]State
	if err := c.get(ctx, path, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// CheckConfigResult is the response from the core config check.
type CheckConfigResult struct {
	Result string `json:"result"` // "valid" or "invalid"
	Errors string `json:"errors"`
}

// Valid reports whether the configuration passed validation.
func (r CheckConfigResult) Valid() bool { return r.Result == "valid" }

// CheckConfig asks Home Assistant to validate its current configuration
// files without restarting.
func (c *Client) CheckConfig(ctx context.Context) (*CheckConfigResult, error) {
	var result CheckConfigResult
	if err := c.post(ctx, "/api/config/core/check_config", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Automation is an automation definition from the config API. Trigger,
// Condition and Action are kept as raw values since their shapes vary
// by platform.
type Automation struct {
	ID          string `json:"id,omitempty"`
	Alias       string `json:"alias"`
	Description string `json:"description,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Trigger     any    `json:"trigger,omitempty"`
	Condition   any    `json:"condition,omitempty"`
	Action      any    `json:"action,omitempty"`
}

// GetAutomation retrieves an automation definition by config id.
func (c *Client) GetAutomation(ctx context.Context, id string) (*Automation, error) {
	var a Automation
	if err := c.get(ctx, "/api/config/automation/config/"+id, &a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = id
	}
	return &a, nil
}

// UpsertAutomation creates or replaces an automation definition.
// The config API has no partial update; callers merge before saving.
func (c *Client) UpsertAutomation(ctx context.Context, id string, def map[string]any) error {
	return c.post(ctx, "/api/config/automation/config/"+id, def, nil)
}

// DeleteAutomation removes an automation by config id.
func (c *Client) DeleteAutomation(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/config/automation/config/"+id)
}

// GetScript retrieves a script definition by object id.
func (c *Client) GetScript(ctx context.Context, objectID string) (map[string]any, error) {
	var s map[string]any
	if err := c.get(ctx, "/api/config/script/config/"+objectID, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertScript creates or replaces a script definition.
func (c *Client) UpsertScript(ctx context.Context, objectID string, def map[string]any) error {
	return c.post(ctx, "/api/config/script/config/"+objectID, def, nil)
}

// DeleteScript removes a script by object id.
func (c *Client) DeleteScript(ctx context.Context, objectID string) error {
	return c.delete(ctx, "/api/config/script/config/"+objectID)
}

// ReloadAutomations asks HA to reload automations from storage so a
// config-API change takes effect.
func (c *Client) ReloadAutomations(ctx context.Context) error {
	return c.post(ctx, "/api/services/automation/reload", nil, nil)
}

// Area represents a Home Assistant area.
type Area struct {
	AreaID  string   `json:"area_id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// EntityRegistryEntry represents an entity from the registry with area info.
type EntityRegistryEntry struct {
	EntityID     string `json:"entity_id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	AreaID       string `json:"area_id"`
	DeviceID     string `json:"device_id"`
	Platform     string `json:"platform"`
	DisabledBy   string `json:"disabled_by"`
}

// IsDisabled reports whether the entity is disabled in Home Assistant.
func (e EntityRegistryEntry) IsDisabled() bool {
	return e.DisabledBy != ""
}

// GetEntityRegistry retrieves the entity registry.
func (c *Client) GetEntityRegistry(ctx context.Context) ([]EntityRegistryEntry, error) {
	var entries []EntityRegistryEntry
	if err := c.get(ctx, "/api/config/entity_registry/list", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func splitEntityID(entityID string) []string {
	for i, c := range entityID {
		if c == '.' {
			return []string{entityID[:i], entityID[i+1:]}
		}
	}
	return nil
}

// get performs a GET request to the HA API.
func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post performs a POST request to the HA API.
func (c *Client) post(ctx context.Context, path string, data any, result any) error {
	return c.do(ctx, http.MethodPost, path, data, result)
}

// delete performs a DELETE request to the HA API.
func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, data any, result any) error {
	var reqBody []byte
	if data != nil {
		var err error
		reqBody, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal data: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	// Drain and close to ensure connection reuse even when result is nil.
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, body)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
