package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiStreamCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("key") != "test-key" {
			http.Error(w, "bad key", http.StatusForbidden)
			return
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.SystemInstruction == nil {
			t.Error("expected system_instruction")
		}

		w.Write([]byte(`{
			"candidates": [{
				"content": {
					"role": "model",
					"parts": [
						{"text": "Turning it on."},
						{"functionCall": {"name": "call_service", "args": {"domain": "light", "service": "turn_on"}}}
					]
				},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 40, "candidatesTokenCount": 15},
			"modelVersion": "gemini-2.0-flash"
		}`))
	}))
	t.Cleanup(srv.Close)

	p := NewGeminiProvider("test-key", nil)
	p.baseURL = srv.URL

	var texts, tools []string
	result, err := p.StreamCompletion(context.Background(), Request{
		Model:    "gemini-2.0-flash",
		System:   "You are a home assistant.",
		Messages: []Message{{Role: "user", Content: "turn on the light"}},
	}, func(ev StreamEvent) {
		switch ev.Kind {
		case KindText:
			texts = append(texts, ev.Text)
		case KindToolCall:
			tools = append(tools, ev.ToolName)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != "Turning it on." {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "call_service" {
		t.Fatalf("unexpected tool calls: %+v", result.ToolCalls)
	}
	if result.ToolCalls[0].Arguments["domain"] != "light" {
		t.Errorf("unexpected arguments: %v", result.ToolCalls[0].Arguments)
	}
	if result.InputTokens != 40 || result.OutputTokens != 15 {
		t.Errorf("unexpected usage: in=%d out=%d", result.InputTokens, result.OutputTokens)
	}

	// Non-streaming backend: the whole text arrives as one event.
	if len(texts) != 1 {
		t.Errorf("expected 1 text event, got %d", len(texts))
	}
	if len(tools) != 1 {
		t.Errorf("expected 1 tool event, got %d", len(tools))
	}
}

func TestConvertToGemini(t *testing.T) {
	contents := convertToGemini([]Message{
		{Role: "user", Content: "turn it on"},
		{Role: "assistant", ToolCalls: []ToolCall{{Name: "call_service", Arguments: map[string]any{"domain": "light"}}}},
		{Role: "tool", Content: "done", ToolName: "call_service"},
	})

	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("expected model role for assistant, got %s", contents[1].Role)
	}
	if contents[1].Parts[0].FunctionCall == nil {
		t.Fatal("expected functionCall part")
	}

	// Tool results correlate by function name on a user turn.
	fr := contents[2].Parts[0].FunctionResponse
	if fr == nil {
		t.Fatal("expected functionResponse part")
	}
	if fr.Name != "call_service" {
		t.Errorf("unexpected function name: %s", fr.Name)
	}
	if fr.Response["content"] != "done" {
		t.Errorf("unexpected response payload: %v", fr.Response)
	}
}

func TestConvertToolsToGemini(t *testing.T) {
	bundles := convertToolsToGemini([]map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "search_entities",
				"description": "Search entities",
				"parameters":  map[string]any{"type": "object"},
			},
		},
	})

	if len(bundles) != 1 || len(bundles[0].FunctionDeclarations) != 1 {
		t.Fatalf("unexpected bundles: %+v", bundles)
	}
	decl := bundles[0].FunctionDeclarations[0]
	if decl.Name != "search_entities" || decl.Description != "Search entities" {
		t.Errorf("unexpected declaration: %+v", decl)
	}
}

func TestGeminiNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	t.Cleanup(srv.Close)

	p := NewGeminiProvider("test-key", nil)
	p.baseURL = srv.URL

	_, err := p.StreamCompletion(context.Background(), Request{
		Model:    "gemini-2.0-flash",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, nil)
	if err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestGeminiRegistersAsGoogle(t *testing.T) {
	// The name must match the config section and model selection keys.
	if name := NewGeminiProvider("test-key", nil).Name(); name != "google" {
		t.Errorf("Name() = %q, want google", name)
	}
}
