package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/hearthside-ai/hearthside/internal/homeassistant"
	"github.com/hearthside-ai/hearthside/internal/llm"
)

func TestSearchEntitiesRanksResults(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "search_entities",
		Arguments: map[string]any{"query": "kitchen light"},
	}, env.sess)
	if !res.Success {
		t.Fatalf("search failed: %s", res.Text)
	}

	payload := decodeResult(t, res)
	results, _ := payload["results"].([]any)
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	first := results[0].(map[string]any)
	if first["entity_id"] != "light.kitchen_ceiling" {
		t.Errorf("expected kitchen light first, got %v", first["entity_id"])
	}
	if first["match_quality"] != "high" {
		t.Errorf("expected high quality, got %v", first["match_quality"])
	}
}

func TestGetEntityStateSlimsAttributes(t *testing.T) {
	mux := newHAMux()
	mux.HandleFunc("GET /api/states/light.kitchen_ceiling", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"entity_id": "light.kitchen_ceiling",
			"state":     "on",
			"attributes": map[string]any{
				"friendly_name":         "Kitchen Ceiling Light",
				"brightness":            200,
				"supported_color_modes": []string{"brightness"},
				"min_mireds":            153,
			},
		})
	})
	env := newTestEnv(t, mux, nil)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "get_entity_state",
		Arguments: map[string]any{"entity_id": "light.kitchen_ceiling"},
	}, env.sess)
	if !res.Success {
		t.Fatalf("get_entity_state failed: %s", res.Text)
	}

	payload := decodeResult(t, res)
	attrs, _ := payload["attributes"].(map[string]any)
	if _, ok := attrs["brightness"]; !ok {
		t.Error("useful attribute brightness dropped")
	}
	if _, ok := attrs["supported_color_modes"]; ok {
		t.Error("noise attribute supported_color_modes kept")
	}
}

func TestListEntitiesByDomain(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "list_entities",
		Arguments: map[string]any{"domain": "automation"},
	}, env.sess)
	payload := decodeResult(t, res)
	if payload["total"].(float64) != 2 {
		t.Errorf("expected 2 automations, got %v", payload["total"])
	}
}

func TestCallServiceNormalizesArgs(t *testing.T) {
	var captured map[string]any
	mux := newHAMux()
	mux.HandleFunc("POST /api/services/light/turn_on", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte("[]"))
	})
	env := newTestEnv(t, mux, nil)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name: "call_service",
		Arguments: map[string]any{
			"domain":       "light",
			"service":      "turn_on",
			"entity_id":    "light.kitchen_ceiling",
			"service_data": map[string]any{"brightness": 128},
		},
	}, env.sess)
	if !res.Success {
		t.Fatalf("call_service failed: %s", res.Text)
	}
	if captured["entity_id"] != "light.kitchen_ceiling" {
		t.Errorf("top-level entity_id not moved into payload: %v", captured)
	}
	if captured["brightness"].(float64) != 128 {
		t.Errorf("service_data not merged: %v", captured)
	}
}

func TestCallServiceMissingTarget(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)
	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "call_service",
		Arguments: map[string]any{"domain": "light", "service": "turn_on"},
	}, env.sess)
	if res.Success {
		t.Fatal("expected failure without a target")
	}
	if !strings.Contains(res.Text, "missing target") {
		t.Errorf("unexpected error: %s", res.Text)
	}
}

func TestGetAutomationsFilter(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "get_automations",
		Arguments: map[string]any{"query": "morning"},
	}, env.sess)
	payload := decodeResult(t, res)
	if payload["total"].(float64) != 2 {
		t.Errorf("total must count all automations, got %v", payload["total"])
	}
	autos, _ := payload["automations"].([]any)
	if len(autos) != 1 {
		t.Fatalf("expected 1 filtered automation, got %d", len(autos))
	}
	a := autos[0].(map[string]any)
	if a["id"] != "123" {
		t.Errorf("expected config id 123, got %v", a["id"])
	}
}

func TestCreateAutomation(t *testing.T) {
	var captured map[string]any
	mux := newHAMux()
	mux.HandleFunc("POST /api/config/automation/config/", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"result":"ok"}`))
	})
	env := newTestEnv(t, mux, nil)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name: "create_automation",
		Arguments: map[string]any{
			"alias":   "Evening lights",
			"trigger": []any{map[string]any{"platform": "sun", "event": "sunset"}},
			"action": []any{map[string]any{
				"service": "light.turn_on",
				"target":  map[string]any{"entity_id": "light.kitchen_ceiling"},
			}},
		},
	}, env.sess)
	if !res.Success {
		t.Fatalf("create_automation failed: %s", res.Text)
	}
	if captured["alias"] != "Evening lights" {
		t.Errorf("definition not posted: %v", captured)
	}
	if captured["mode"] != "single" {
		t.Errorf("expected default mode single, got %v", captured["mode"])
	}
	payload := decodeResult(t, res)
	if y, _ := payload["yaml"].(string); !strings.Contains(y, "Evening lights") {
		t.Errorf("yaml preview missing: %v", payload["yaml"])
	}
}

func TestCreateAutomationRequiresFields(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)
	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "create_automation",
		Arguments: map[string]any{"alias": "broken"},
	}, env.sess)
	if res.Success {
		t.Fatal("expected failure without trigger/action")
	}
}

func TestUpdateAutomationMergesChanges(t *testing.T) {
	var posted map[string]any
	mux := newHAMux()
	mux.HandleFunc("GET /api/config/automation/config/123", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "123",
			"alias":   "Morning Routine",
			"mode":    "single",
			"trigger": []any{map[string]any{"platform": "time", "at": "06:30:00"}},
			"action":  []any{map[string]any{"service": "light.turn_on"}},
		})
	})
	mux.HandleFunc("POST /api/config/automation/config/123", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&posted)
		w.Write([]byte(`{"result":"ok"}`))
	})
	env := newTestEnv(t, mux, nil)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name: "update_automation",
		Arguments: map[string]any{
			"automation_id": "123",
			"alias":         "Weekday Morning Routine",
		},
	}, env.sess)
	if !res.Success {
		t.Fatalf("update failed: %s", res.Text)
	}
	if posted["alias"] != "Weekday Morning Routine" {
		t.Errorf("alias change not applied: %v", posted)
	}
	if posted["trigger"] == nil {
		t.Error("existing trigger dropped by partial update")
	}
	payload := decodeResult(t, res)
	if old, _ := payload["old_yaml"].(string); !strings.Contains(old, "Morning Routine") {
		t.Errorf("old yaml missing: %v", old)
	}
}

func TestConfigFileLifecycle(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)
	ctx := context.Background()

	write := func(content string) Result {
		return env.exec.Execute(ctx, llm.ToolCall{
			Name:      "write_config_file",
			Arguments: map[string]any{"path": "automations.yaml", "content": content},
		}, env.sess)
	}

	// First write: new file, no snapshot.
	res := write("- alias: one\n")
	if !res.Success {
		t.Fatalf("write failed: %s", res.Text)
	}
	if _, ok := decodeResult(t, res)["snapshot_id"]; ok {
		t.Error("first write of a new file must not create a snapshot")
	}

	// Second write snapshots the previous content.
	res = write("- alias: two\n")
	if !res.Success {
		t.Fatalf("second write failed: %s", res.Text)
	}
	snapID, _ := decodeResult(t, res)["snapshot_id"].(string)
	if snapID == "" {
		t.Fatal("expected a snapshot id on overwrite")
	}

	// Read back the current content.
	res = env.exec.Execute(ctx, llm.ToolCall{
		Name:      "read_config_file",
		Arguments: map[string]any{"path": "automations.yaml"},
	}, env.sess)
	if got := decodeResult(t, res)["content"]; got != "- alias: two\n" {
		t.Errorf("unexpected content: %v", got)
	}

	// The file shows up in the listing.
	res = env.exec.Execute(ctx, llm.ToolCall{Name: "list_config_files"}, env.sess)
	if !strings.Contains(res.Text, "automations.yaml") {
		t.Errorf("file missing from listing: %s", res.Text)
	}

	// Restore brings the first content back.
	res = env.exec.Execute(ctx, llm.ToolCall{
		Name:      "restore_snapshot",
		Arguments: map[string]any{"snapshot_id": snapID},
	}, env.sess)
	if !res.Success {
		t.Fatalf("restore failed: %s", res.Text)
	}
	data, err := os.ReadFile(filepath.Join(env.configDir, "automations.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "- alias: one\n" {
		t.Errorf("restore produced %q", data)
	}

	// list_snapshots filters by path.
	res = env.exec.Execute(ctx, llm.ToolCall{
		Name:      "list_snapshots",
		Arguments: map[string]any{"path": "automations.yaml"},
	}, env.sess)
	payload := decodeResult(t, res)
	if payload["count"].(float64) < 2 {
		t.Errorf("expected the pre-restore snapshot too, got %v", payload["count"])
	}
}

func TestWriteConfigFileRejectsBadYAML(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)
	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "write_config_file",
		Arguments: map[string]any{"path": "configuration.yaml", "content": "a: [unclosed"},
	}, env.sess)
	if res.Success {
		t.Fatal("invalid YAML must be rejected")
	}
	if !strings.Contains(res.Text, "not valid YAML") {
		t.Errorf("unexpected error: %s", res.Text)
	}
}

func TestWriteConfigFileRejectsTraversal(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)
	for _, path := range []string{"../outside.yaml", "/etc/passwd", "a/../../b.yaml"} {
		res := env.exec.Execute(context.Background(), llm.ToolCall{
			Name:      "write_config_file",
			Arguments: map[string]any{"path": path, "content": "x: 1"},
		}, env.sess)
		if res.Success {
			t.Errorf("traversal path %q accepted", path)
		}
	}
}

func TestReadConfigFileTruncatesLongOutput(t *testing.T) {
	env := newTestEnv(t, newHAMux(), nil)
	big := strings.Repeat("- alias: padding line\n", 1500) // ~30k chars
	if err := os.WriteFile(filepath.Join(env.configDir, "big.yaml"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "read_config_file",
		Arguments: map[string]any{"path": "big.yaml"},
	}, env.sess)
	if !strings.Contains(res.Text, "[TRUNCATED") {
		t.Error("expected truncation marker on long output")
	}
	if len(res.Text) > truncateLong+100 {
		t.Errorf("output exceeds long budget: %d chars", len(res.Text))
	}
}

func TestCheckConfigReportsErrors(t *testing.T) {
	mux := newHAMux()
	mux.HandleFunc("POST /api/config/core/check_config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": "invalid", "errors": "bad indentation in automations.yaml"})
	})
	env := newTestEnv(t, mux, nil)

	res := env.exec.Execute(context.Background(), llm.ToolCall{Name: "check_config"}, env.sess)
	if !res.Success {
		t.Fatalf("check_config should succeed as a tool call: %s", res.Text)
	}
	payload := decodeResult(t, res)
	if payload["status"] != "invalid" {
		t.Errorf("expected invalid status, got %v", payload["status"])
	}
	if !strings.Contains(payload["errors"].(string), "bad indentation") {
		t.Errorf("errors not surfaced: %v", payload["errors"])
	}
}

// wsTestServer speaks just enough of the Home Assistant WebSocket
// protocol for the dashboard tools: auth handshake, then success
// replies to every lovelace command, recording what was saved.
type wsTestServer struct {
	srv   *httptest.Server
	saved map[string]map[string]any // url_path -> config
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ws := &wsTestServer{saved: map[string]map[string]any{}}
	upgrader := websocket.Upgrader{}

	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(map[string]any{"type": "auth_required"})
		var auth map[string]any
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		conn.WriteJSON(map[string]any{"type": "auth_ok"})

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			reply := map[string]any{"id": msg["id"], "type": "result", "success": true}
			switch msg["type"] {
			case "lovelace/dashboards/list":
				var list []map[string]any
				for path := range ws.saved {
					list = append(list, map[string]any{"id": "dash_" + path, "url_path": path, "title": path, "mode": "storage"})
				}
				reply["result"] = list
			case "lovelace/dashboards/create":
				path, _ := msg["url_path"].(string)
				if _, exists := ws.saved[path]; exists {
					reply["success"] = false
					reply["error"] = map[string]any{"code": "duplicate", "message": "already exists"}
				} else {
					ws.saved[path] = nil
					reply["result"] = map[string]any{"id": "dash_" + path, "url_path": path, "title": msg["title"], "mode": "storage"}
				}
			case "lovelace/config/save":
				path, _ := msg["url_path"].(string)
				cfg, _ := msg["config"].(map[string]any)
				ws.saved[path] = cfg
				reply["result"] = nil
			case "lovelace/config":
				path, _ := msg["url_path"].(string)
				cfg := ws.saved[path]
				if cfg == nil {
					reply["success"] = false
					reply["error"] = map[string]any{"code": "config_not_found", "message": "no config"}
				} else {
					reply["result"] = cfg
				}
			case "lovelace/dashboards/delete":
				reply["result"] = nil
			default:
				reply["result"] = map[string]any{}
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func newDashboardEnv(t *testing.T) (*testEnv, *wsTestServer) {
	t.Helper()
	wsSrv := newWSTestServer(t)
	wsClient := homeassistant.NewWSClient(wsSrv.srv.URL, "test-token", nil)
	if err := wsClient.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { wsClient.Close() })

	env := newTestEnv(t, newHAMux(), func(o *Options) { o.WS = wsClient })
	return env, wsSrv
}

func TestCreateDashboard(t *testing.T) {
	env, wsSrv := newDashboardEnv(t)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name: "create_dashboard",
		Arguments: map[string]any{
			"url_path": "energy",
			"title":    "Energy",
			"views":    []any{map[string]any{"title": "Overview"}},
		},
	}, env.sess)
	if !res.Success {
		t.Fatalf("create_dashboard failed: %s", res.Text)
	}
	if res.ViewsCount != 1 {
		t.Errorf("expected views_count 1, got %d", res.ViewsCount)
	}
	if wsSrv.saved["energy"] == nil {
		t.Error("dashboard config not saved")
	}
}

func TestCreateDashboardNoViewsWarns(t *testing.T) {
	env, _ := newDashboardEnv(t)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name: "create_dashboard",
		Arguments: map[string]any{
			"url_path": "empty",
			"title":    "Empty",
			"views":    []any{},
		},
	}, env.sess)
	if !res.Success {
		t.Fatalf("create_dashboard failed: %s", res.Text)
	}
	if res.ViewsCount != 0 {
		t.Errorf("expected views_count 0, got %d", res.ViewsCount)
	}
	if !strings.Contains(res.Text, "no views") {
		t.Error("expected empty-views warning")
	}
}

func TestCreateHTMLDashboardChunked(t *testing.T) {
	env, wsSrv := newDashboardEnv(t)
	ctx := context.Background()

	call := func(mode, html string) Result {
		return env.exec.Execute(ctx, llm.ToolCall{
			Name: "create_html_dashboard",
			Arguments: map[string]any{
				"url_path": "night_panel",
				"title":    "Night Panel",
				"mode":     mode,
				"html":     html,
			},
		}, env.sess)
	}

	res := call("start", "<html><body>")
	if res.Status != "draft_started" {
		t.Fatalf("expected draft_started, got %q: %s", res.Status, res.Text)
	}
	res = call("append", "<h1>Night</h1>")
	if res.Status != "draft_appended" {
		t.Fatalf("expected draft_appended, got %q", res.Status)
	}
	res = call("finish", "</body></html>")
	if !res.Success || res.Status != "success" {
		t.Fatalf("finish failed: %s", res.Text)
	}

	data, err := os.ReadFile(filepath.Join(env.configDir, "www", "hearthside", "night-panel.html"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<html><body><h1>Night</h1></body></html>" {
		t.Errorf("unexpected file content: %s", data)
	}

	cfg := wsSrv.saved["night-panel"]
	if cfg == nil {
		t.Fatal("wrapper dashboard config not saved")
	}
	views, _ := cfg["views"].([]any)
	if len(views) != 1 {
		t.Fatalf("expected one panel view, got %v", cfg)
	}
}

func TestCreateHTMLDashboardAppendWithoutStart(t *testing.T) {
	env, _ := newDashboardEnv(t)
	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name: "create_html_dashboard",
		Arguments: map[string]any{
			"url_path": "orphan", "title": "Orphan",
			"mode": "append", "html": "<p>lost</p>",
		},
	}, env.sess)
	if res.Success {
		t.Fatal("append without start must fail")
	}
	if !strings.Contains(res.Text, "mode=start") {
		t.Errorf("unexpected error: %s", res.Text)
	}
}

func TestDeleteDashboard(t *testing.T) {
	env, wsSrv := newDashboardEnv(t)
	wsSrv.saved["old"] = map[string]any{"views": []any{}}
	env.sess.Confirmed = true

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "delete_dashboard",
		Arguments: map[string]any{"url_path": "old"},
	}, env.sess)
	if !res.Success {
		t.Fatalf("delete failed: %s", res.Text)
	}

	res = env.exec.Execute(context.Background(), llm.ToolCall{
		Name:      "delete_dashboard",
		Arguments: map[string]any{"url_path": "never-existed"},
	}, env.sess)
	if res.Success {
		t.Fatal("deleting a missing dashboard must fail")
	}
}

func TestCreateHTMLDashboardExpandsPlaceholders(t *testing.T) {
	env, _ := newDashboardEnv(t)

	res := env.exec.Execute(context.Background(), llm.ToolCall{
		Name: "create_html_dashboard",
		Arguments: map[string]any{
			"url_path":     "energy",
			"title":        "Energy Panel",
			"entities":     []any{"light.kitchen_ceiling"},
			"accent_color": "#10b981",
			"theme":        "dark",
			"html": `<html><head><title>__TITLE__</title>` +
				`<style>:root{--accent:__ACCENT__;--accent-rgb:__ACCENT_RGB__}__THEME_CSS__</style></head>` +
				`<body lang="__LANG__"><script>const ENTITIES=__ENTITIES_JSON__;</script></body></html>`,
		},
	}, env.sess)
	if !res.Success {
		t.Fatalf("create_html_dashboard failed: %s", res.Text)
	}

	data, err := os.ReadFile(filepath.Join(env.configDir, "www", "hearthside", "energy.html"))
	if err != nil {
		t.Fatal(err)
	}
	page := string(data)

	for _, want := range []string{
		"<title>Energy Panel</title>",
		"--accent:#10b981",
		"--accent-rgb:16,185,129",
		"--bg:#0f172a", // dark theme override
		`lang="en"`,
		`const ENTITIES=["light.kitchen_ceiling"];`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("published page missing %q", want)
		}
	}
	if strings.Contains(page, "__") {
		t.Errorf("unexpanded placeholder left in page: %s", page)
	}
}

func TestHexToRGBFallsBackOnBadInput(t *testing.T) {
	tests := []struct{ in, want string }{
		{"#667eea", "102,126,234"},
		{"10b981", "16,185,129"},
		{"rebeccapurple", "102,126,234"},
		{"", "102,126,234"},
	}
	for _, tt := range tests {
		if got := hexToRGB(tt.in); got != tt.want {
			t.Errorf("hexToRGB(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
