package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient manages a WebSocket connection to Home Assistant. The
// Lovelace dashboard API is only exposed over the WebSocket protocol,
// so dashboard tools go through here while everything else uses REST.
type WSClient struct {
	baseURL string
	token   string
	conn    *websocket.Conn
	connMu  sync.Mutex
	msgID   atomic.Int64

	// Response channels keyed by message ID
	pending   map[int64]chan wsResponse
	pendingMu sync.Mutex

	logger *slog.Logger
}

// wsMessage is the generic WebSocket message format.
type wsMessage struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsResponse wraps the result with success/error info for the response channel.
type wsResponse struct {
	Success bool
	Result  json.RawMessage
	Error   *wsError
}

// NewWSClient creates a new WebSocket client for Home Assistant.
func NewWSClient(baseURL, token string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		baseURL: baseURL,
		token:   token,
		pending: make(map[int64]chan wsResponse),
		logger:  logger,
	}
}

// Connect establishes the WebSocket connection and authenticates.
func (c *WSClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/api/websocket"

	c.logger.Info("connecting to Home Assistant WebSocket", "url", u.String())

	// Use custom dialer with larger buffer for big responses (dashboard
	// configs with embedded HTML can be megabytes)
	dialer := websocket.Dialer{
		ReadBufferSize:  1024 * 1024, // 1MB
		WriteBufferSize: 64 * 1024,   // 64KB
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}

	conn.SetReadLimit(100 * 1024 * 1024) // 100MB max message size

	c.conn = conn

	// Read auth_required message
	var authReq wsMessage
	if err := conn.ReadJSON(&authReq); err != nil {
		conn.Close()
		return fmt.Errorf("read auth_required: %w", err)
	}
	if authReq.Type != "auth_required" {
		conn.Close()
		return fmt.Errorf("expected auth_required, got %s", authReq.Type)
	}

	authMsg := map[string]string{
		"type":         "auth",
		"access_token": c.token,
	}
	if err := conn.WriteJSON(authMsg); err != nil {
		conn.Close()
		return fmt.Errorf("send auth: %w", err)
	}

	var authResp wsMessage
	if err := conn.ReadJSON(&authResp); err != nil {
		conn.Close()
		return fmt.Errorf("read auth response: %w", err)
	}

	if authResp.Type == "auth_invalid" {
		conn.Close()
		return fmt.Errorf("authentication failed")
	}
	if authResp.Type != "auth_ok" {
		conn.Close()
		return fmt.Errorf("unexpected auth response: %s", authResp.Type)
	}

	c.logger.Info("WebSocket authenticated")

	go c.readLoop()

	return nil
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Reconnect closes the existing connection (if any) and re-establishes
// the WebSocket. Safe to call from any goroutine.
func (c *WSClient) Reconnect(ctx context.Context) error {
	c.logger.Info("reconnecting WebSocket")

	// Close the old connection. Ignore errors — it may already be dead.
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	return c.Connect(ctx)
}

// Dashboard is a Lovelace dashboard registry entry.
type Dashboard struct {
	ID        string `json:"id"`
	URLPath   string `json:"url_path"`
	Title     string `json:"title"`
	Icon      string `json:"icon,omitempty"`
	Mode      string `json:"mode"`
	ShowInSidebar bool `json:"show_in_sidebar"`
}

// ListDashboards retrieves the Lovelace dashboard registry.
func (c *WSClient) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	resp, err := c.command(ctx, map[string]any{"type": "lovelace/dashboards/list"})
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}

	var dashboards []Dashboard
	if err := json.Unmarshal(resp, &dashboards); err != nil {
		return nil, fmt.Errorf("unmarshal dashboards: %w", err)
	}
	return dashboards, nil
}

// CreateDashboard registers a new storage-mode dashboard. The returned
// entry carries the assigned dashboard id.
func (c *WSClient) CreateDashboard(ctx context.Context, urlPath, title, icon string) (*Dashboard, error) {
	msg := map[string]any{
		"type":            "lovelace/dashboards/create",
		"url_path":        urlPath,
		"title":           title,
		"mode":            "storage",
		"show_in_sidebar": true,
	}
	if icon != "" {
		msg["icon"] = icon
	}

	resp, err := c.command(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("create dashboard: %w", err)
	}

	var d Dashboard
	if err := json.Unmarshal(resp, &d); err != nil {
		return nil, fmt.Errorf("unmarshal dashboard: %w", err)
	}
	return &d, nil
}

// DeleteDashboard removes a dashboard from the registry by id.
func (c *WSClient) DeleteDashboard(ctx context.Context, dashboardID string) error {
	_, err := c.command(ctx, map[string]any{
		"type":         "lovelace/dashboards/delete",
		"dashboard_id": dashboardID,
	})
	if err != nil {
		return fmt.Errorf("delete dashboard: %w", err)
	}
	return nil
}

// GetDashboardConfig retrieves the Lovelace config for a dashboard.
// An empty urlPath addresses the default dashboard.
func (c *WSClient) GetDashboardConfig(ctx context.Context, urlPath string) (map[string]any, error) {
	msg := map[string]any{"type": "lovelace/config"}
	if urlPath != "" {
		msg["url_path"] = urlPath
	}

	resp, err := c.command(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("get dashboard config: %w", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal(resp, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal dashboard config: %w", err)
	}
	return cfg, nil
}

// SaveDashboardConfig writes the full Lovelace config for a dashboard.
func (c *WSClient) SaveDashboardConfig(ctx context.Context, urlPath string, cfg map[string]any) error {
	msg := map[string]any{
		"type":   "lovelace/config/save",
		"config": cfg,
	}
	if urlPath != "" {
		msg["url_path"] = urlPath
	}

	if _, err := c.command(ctx, msg); err != nil {
		return fmt.Errorf("save dashboard config: %w", err)
	}
	return nil
}

// GetAreaRegistry retrieves the area registry.
func (c *WSClient) GetAreaRegistry(ctx context.Context) ([]Area, error) {
	resp, err := c.command(ctx, map[string]any{"type": "config/area_registry/list"})
	if err != nil {
		return nil, fmt.Errorf("get area registry: %w", err)
	}

	var areas []Area
	if err := json.Unmarshal(resp, &areas); err != nil {
		return nil, fmt.Errorf("unmarshal areas: %w", err)
	}
	return areas, nil
}

// command assigns a message id, sends the command and waits for its result.
func (c *WSClient) command(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	id := c.msgID.Add(1)
	msg["id"] = id
	return c.sendAndWait(ctx, id, msg)
}

// sendAndWait sends a message and waits for the response.
func (c *WSClient) sendAndWait(ctx context.Context, id int64, msg any) (json.RawMessage, error) {
	respCh := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("websocket not connected")
	}

	c.connMu.Lock()
	err := conn.WriteJSON(msg)
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	select {
	case resp := <-respCh:
		if !resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request failed")
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("timeout waiting for response")
	}
}

// readLoop continuously reads messages from the WebSocket.
func (c *WSClient) readLoop() {
	for {
		var msg wsMessage

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("WebSocket closed normally")
				return
			}
			c.logger.Error("WebSocket read error, connection lost", "error", err)
			return
		}

		switch msg.Type {
		case "result":
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				ch <- wsResponse{
					Success: msg.Success,
					Result:  msg.Result,
					Error:   msg.Error,
				}
			}
			c.pendingMu.Unlock()

		case "pong":
			// Ping/pong keepalive, ignore

		default:
			c.logger.Debug("unhandled WebSocket message type", "type", msg.Type)
		}
	}
}
