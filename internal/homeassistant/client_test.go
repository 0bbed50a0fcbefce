package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeHA builds a minimal Home Assistant REST stub.
func fakeHA(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", nil), srv
}

func TestClient_GetState(t *testing.T) {
	client, _ := fakeHA(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/api/states/light.kitchen" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(State{
			EntityID: "light.kitchen",
			State:    "on",
			Attributes: map[string]any{
				"friendly_name": "Kitchen Light",
				"brightness":    float64(200),
			},
		})
	})

	state, err := client.GetState(context.Background(), "light.kitchen")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.State != "on" {
		t.Errorf("state = %q, want on", state.State)
	}
	if state.FriendlyName() != "Kitchen Light" {
		t.Errorf("friendly name = %q", state.FriendlyName())
	}
	if state.Domain() != "light" {
		t.Errorf("domain = %q", state.Domain())
	}
}

func TestClient_CallService(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	client, _ := fakeHA(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("[]"))
	})

	err := client.CallService(context.Background(), "light", "turn_on", map[string]any{
		"entity_id":  "light.kitchen",
		"brightness": 128,
	})
	if err != nil {
		t.Fatalf("CallService: %v", err)
	}
	if gotPath != "/api/services/light/turn_on" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["entity_id"] != "light.kitchen" {
		t.Errorf("entity_id = %v", gotBody["entity_id"])
	}
}

func TestClient_CheckConfig(t *testing.T) {
	tests := []struct {
		name      string
		response  CheckConfigResult
		wantValid bool
	}{
		{"valid", CheckConfigResult{Result: "valid"}, true},
		{"invalid", CheckConfigResult{Result: "invalid", Errors: "bad automation"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := fakeHA(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				json.NewEncoder(w).Encode(tt.response)
			})

			result, err := client.CheckConfig(context.Background())
			if err != nil {
				t.Fatalf("CheckConfig: %v", err)
			}
			if result.Valid() != tt.wantValid {
				t.Errorf("Valid() = %v, want %v", result.Valid(), tt.wantValid)
			}
		})
	}
}

func TestClient_AutomationCRUD(t *testing.T) {
	store := map[string]map[string]any{}

	client, _ := fakeHA(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/api/config/automation/config/"):]
		switch r.Method {
		case http.MethodGet:
			def, ok := store[id]
			if !ok {
				http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(def)
		case http.MethodPost:
			var def map[string]any
			json.NewDecoder(r.Body).Decode(&def)
			store[id] = def
			w.Write([]byte(`{"result":"ok"}`))
		case http.MethodDelete:
			delete(store, id)
			w.Write([]byte(`{"result":"ok"}`))
		}
	})

	ctx := context.Background()

	err := client.UpsertAutomation(ctx, "morning_lights", map[string]any{
		"alias":   "Morning lights",
		"trigger": []any{map[string]any{"platform": "sun", "event": "sunrise"}},
	})
	if err != nil {
		t.Fatalf("UpsertAutomation: %v", err)
	}

	a, err := client.GetAutomation(ctx, "morning_lights")
	if err != nil {
		t.Fatalf("GetAutomation: %v", err)
	}
	if a.Alias != "Morning lights" {
		t.Errorf("alias = %q", a.Alias)
	}

	if err := client.DeleteAutomation(ctx, "morning_lights"); err != nil {
		t.Fatalf("DeleteAutomation: %v", err)
	}
	if _, err := client.GetAutomation(ctx, "morning_lights"); err == nil {
		t.Error("expected error after delete")
	}
}

func TestClient_ErrorIncludesBody(t *testing.T) {
	client, _ := fakeHA(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	})

	_, err := client.GetStates(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "401") || !strings.Contains(got, "invalid token") {
		t.Errorf("error = %q, want status and body", got)
	}
}
