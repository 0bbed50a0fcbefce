package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeWSServer speaks enough of the HA WebSocket protocol to exercise
// the client: auth handshake, then per-command responses from handle.
func fakeWSServer(t *testing.T, handle func(msg map[string]any) (any, bool)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/websocket" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteJSON(map[string]any{"type": "auth_required"})

		var auth map[string]any
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["access_token"] != "good-token" {
			conn.WriteJSON(map[string]any{"type": "auth_invalid"})
			return
		}
		conn.WriteJSON(map[string]any{"type": "auth_ok"})

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			result, ok := handle(msg)
			conn.WriteJSON(map[string]any{
				"id":      msg["id"],
				"type":    "result",
				"success": ok,
				"result":  result,
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func connectTestClient(t *testing.T, srv *httptest.Server, token string) *WSClient {
	t.Helper()
	client := NewWSClient(srv.URL, token, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWSClient_AuthFailure(t *testing.T) {
	srv := fakeWSServer(t, func(map[string]any) (any, bool) { return nil, true })

	client := NewWSClient(srv.URL, "bad-token", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Connect(ctx)
	if err == nil {
		t.Fatal("expected auth failure")
	}
	if !strings.Contains(err.Error(), "authentication failed") {
		t.Errorf("error = %v", err)
	}
}

func TestWSClient_GetDashboardConfig(t *testing.T) {
	srv := fakeWSServer(t, func(msg map[string]any) (any, bool) {
		if msg["type"] != "lovelace/config" {
			return map[string]any{"code": "unknown_command"}, false
		}
		if msg["url_path"] != "energy" {
			return nil, false
		}
		return map[string]any{
			"title": "Energy",
			"views": []any{map[string]any{"title": "Overview"}},
		}, true
	})

	client := connectTestClient(t, srv, "good-token")

	cfg, err := client.GetDashboardConfig(context.Background(), "energy")
	if err != nil {
		t.Fatalf("GetDashboardConfig: %v", err)
	}
	if cfg["title"] != "Energy" {
		t.Errorf("title = %v", cfg["title"])
	}
	views, _ := cfg["views"].([]any)
	if len(views) != 1 {
		t.Errorf("views = %d, want 1", len(views))
	}
}

func TestWSClient_SaveDashboardConfig(t *testing.T) {
	saved := make(chan map[string]any, 1)
	srv := fakeWSServer(t, func(msg map[string]any) (any, bool) {
		if msg["type"] != "lovelace/config/save" {
			return nil, false
		}
		cfg, _ := msg["config"].(map[string]any)
		saved <- cfg
		return nil, true
	})

	client := connectTestClient(t, srv, "good-token")

	err := client.SaveDashboardConfig(context.Background(), "energy", map[string]any{
		"views": []any{},
	})
	if err != nil {
		t.Fatalf("SaveDashboardConfig: %v", err)
	}
	select {
	case cfg := <-saved:
		if cfg == nil {
			t.Fatal("server did not receive config")
		}
	case <-time.After(time.Second):
		t.Fatal("save never reached the server")
	}
}

func TestWSClient_ListDashboards(t *testing.T) {
	srv := fakeWSServer(t, func(msg map[string]any) (any, bool) {
		if msg["type"] != "lovelace/dashboards/list" {
			return nil, false
		}
		return []any{
			map[string]any{"id": "dash1", "url_path": "energy", "title": "Energy", "mode": "storage"},
		}, true
	})

	client := connectTestClient(t, srv, "good-token")

	dashboards, err := client.ListDashboards(context.Background())
	if err != nil {
		t.Fatalf("ListDashboards: %v", err)
	}
	if len(dashboards) != 1 || dashboards[0].URLPath != "energy" {
		t.Errorf("dashboards = %+v", dashboards)
	}
}

func TestWSClient_CommandError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"type": "auth_required"})
		var auth map[string]any
		conn.ReadJSON(&auth)
		conn.WriteJSON(map[string]any{"type": "auth_ok"})

		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		conn.WriteJSON(map[string]any{
			"id":      msg["id"],
			"type":    "result",
			"success": false,
			"error":   map[string]any{"code": "config_not_found", "message": "no such dashboard"},
		})
		// Hold the connection open until the client disconnects.
		var drain json.RawMessage
		conn.ReadJSON(&drain)
	}))
	t.Cleanup(srv.Close)

	client := connectTestClient(t, srv, "anything")

	_, err := client.GetDashboardConfig(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "config_not_found") {
		t.Errorf("error = %v", err)
	}
}
