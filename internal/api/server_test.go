package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hearthside-ai/hearthside/internal/conversation"
	"github.com/hearthside-ai/hearthside/internal/executor"
	"github.com/hearthside-ai/hearthside/internal/homeassistant"
	"github.com/hearthside-ai/hearthside/internal/intent"
	"github.com/hearthside-ai/hearthside/internal/llm"
	"github.com/hearthside-ai/hearthside/internal/orchestrator"
	"github.com/hearthside-ai/hearthside/internal/registry"
	"github.com/hearthside-ai/hearthside/internal/snapshot"

	_ "modernc.org/sqlite"
)

// scriptedProvider returns canned results per call, streaming content
// through the callback like a real adapter.
type scriptedProvider struct {
	name    string
	gen     func(n int, req llm.Request) (*llm.Result, error)
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (p *scriptedProvider) Name() string {
	if p.name == "" {
		return "scripted"
	}
	return p.name
}
func (p *scriptedProvider) SupportsNativeToolCalls() bool  { return true }
func (p *scriptedProvider) Ping(ctx context.Context) error { return nil }

func (p *scriptedProvider) StreamCompletion(ctx context.Context, req llm.Request, cb llm.StreamCallback) (*llm.Result, error) {
	n := p.calls
	p.calls++
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	res, err := p.gen(n, req)
	if err != nil {
		return nil, err
	}
	if cb != nil && res.Content != "" {
		cb(llm.StreamEvent{Kind: llm.KindText, Text: res.Content})
	}
	return res, nil
}

func newTestServer(t *testing.T, provider llm.Provider) (*httptest.Server, *Server) {
	t.Helper()

	haMux := http.NewServeMux()
	haMux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message": "API running."})
	})
	haMux.HandleFunc("GET /api/states", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]homeassistant.State{
			{EntityID: "light.kitchen_ceiling", State: "on",
				Attributes: map[string]any{"friendly_name": "Kitchen Ceiling Light"}},
		})
	})
	ha := httptest.NewServer(haMux)
	t.Cleanup(ha.Close)

	configDir := t.TempDir()
	snaps, err := snapshot.New(filepath.Join(configDir, ".snapshots"), configDir, 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	haClient := homeassistant.NewClient(ha.URL, "test-token", nil)
	exec := executor.New(executor.Options{
		Registry:  reg,
		HA:        haClient,
		Snapshots: snaps,
		ConfigDir: configDir,
		Language:  "en",
	})

	orch := orchestrator.New(reg, exec, orchestrator.Config{MaxRounds: 5}, "en", nil)

	store, err := conversation.NewStore(filepath.Join(t.TempDir(), "conversations.db"), 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	providers := llm.NewProviders()
	providers.Register(provider)

	srv := NewServer(Options{
		Providers:       providers,
		Classifier:      intent.NewClassifier("en", nil),
		Orchestrator:    orch,
		HA:              haClient,
		Conversations:   store,
		DefaultProvider: provider.Name(),
		DefaultModel:    "test-model",
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv
}

func postChat(t *testing.T, ts *httptest.Server, body map[string]any) []sseEvent {
	t.Helper()
	payload, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var events []sseEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad SSE payload %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func eventsByType(events []sseEvent, typ string) []sseEvent {
	var out []sseEvent
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestChatStreamsTokensAndDone(t *testing.T) {
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		return &llm.Result{Content: "Hello! How can I help?"}, nil
	}}
	ts, _ := newTestServer(t, provider)

	events := postChat(t, ts, map[string]any{"message": "hi"})

	tokens := eventsByType(events, "token")
	if len(tokens) == 0 || tokens[0].Content != "Hello! How can I help?" {
		t.Fatalf("unexpected token events: %v", tokens)
	}
	done := eventsByType(events, "done")
	if len(done) != 1 || done[0].Content != "Hello! How can I help?" {
		t.Fatalf("unexpected done event: %v", done)
	}
	if done[0].ConversationID == "" {
		t.Error("done event missing conversation id")
	}
}

func TestChatEmitsToolEvents(t *testing.T) {
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		if n == 0 {
			return &llm.Result{ToolCalls: []llm.ToolCall{{
				ID:        "t1",
				Name:      "get_entity_state",
				Arguments: map[string]any{"entity_id": "light.kitchen_ceiling"},
			}}}, nil
		}
		return &llm.Result{Content: "The kitchen light is on."}, nil
	}}
	ts, _ := newTestServer(t, provider)

	events := postChat(t, ts, map[string]any{
		"message":    "what is the state of the kitchen light?",
		"session_id": "s1",
	})

	tools := eventsByType(events, "tool")
	if len(tools) != 1 || tools[0].Tool != "get_entity_state" {
		t.Fatalf("unexpected tool events: %v", tools)
	}
	if len(eventsByType(events, "done")) != 1 {
		t.Fatal("missing done event")
	}
}

func TestChatSessionContinuityPersistsOneConversation(t *testing.T) {
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		return &llm.Result{Content: fmt.Sprintf("Reply %d.", n)}, nil
	}}
	ts, _ := newTestServer(t, provider)

	first := postChat(t, ts, map[string]any{"message": "hello", "session_id": "s1"})
	second := postChat(t, ts, map[string]any{"message": "hello again", "session_id": "s1"})

	firstDone := eventsByType(first, "done")[0]
	secondDone := eventsByType(second, "done")[0]
	if firstDone.ConversationID != secondDone.ConversationID {
		t.Fatal("turns in one session must share a conversation")
	}

	resp, err := http.Get(ts.URL + "/api/conversations/" + firstDone.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var conv conversation.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		t.Fatal(err)
	}
	if len(conv.Messages) != 4 {
		t.Errorf("expected 4 messages across two turns, got %d", len(conv.Messages))
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		return &llm.Result{Content: "unused"}, nil
	}}
	ts, _ := newTestServer(t, provider)

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message": "  "}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChatRejectsUnknownProvider(t *testing.T) {
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		return &llm.Result{Content: "unused"}, nil
	}}
	ts, _ := newTestServer(t, provider)

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message": "hi", "provider": "nonexistent"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChatBusySessionConflicts(t *testing.T) {
	provider := &scriptedProvider{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		gen: func(n int, req llm.Request) (*llm.Result, error) {
			return &llm.Result{Content: "Finally done."}, nil
		},
	}
	ts, _ := newTestServer(t, provider)

	done := make(chan error, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/api/chat", "application/json",
			strings.NewReader(`{"message": "hi", "session_id": "busy"}`))
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		done <- err
	}()
	<-provider.entered

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message": "hi", "session_id": "busy"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a busy session, got %d", resp.StatusCode)
	}

	// Abort targets the in-flight request.
	abortResp, err := http.Post(ts.URL+"/api/chat/abort", "application/json",
		strings.NewReader(`{"session_id": "busy"}`))
	if err != nil {
		t.Fatal(err)
	}
	abortResp.Body.Close()
	if abortResp.StatusCode != http.StatusOK {
		t.Errorf("expected abort to succeed, got %d", abortResp.StatusCode)
	}

	close(provider.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("chat request did not finish")
	}
}

func TestAbortWithoutInflightRequest(t *testing.T) {
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		return &llm.Result{Content: "unused"}, nil
	}}
	ts, _ := newTestServer(t, provider)

	resp, err := http.Post(ts.URL+"/api/chat/abort", "application/json",
		strings.NewReader(`{"session_id": "idle"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestConversationLifecycle(t *testing.T) {
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		return &llm.Result{Content: "Done."}, nil
	}}
	ts, _ := newTestServer(t, provider)

	events := postChat(t, ts, map[string]any{"message": "hello"})
	convID := eventsByType(events, "done")[0].ConversationID

	resp, err := http.Get(ts.URL + "/api/conversations")
	if err != nil {
		t.Fatal(err)
	}
	var listing struct {
		Count int `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&listing)
	resp.Body.Close()
	if listing.Count != 1 {
		t.Fatalf("expected 1 conversation, got %d", listing.Count)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/conversations/"+convID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delResp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/api/conversations/" + convID)
	if err != nil {
		t.Fatal(err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getResp.StatusCode)
	}
}

func TestHealthReportsPlatformAndProviders(t *testing.T) {
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		return &llm.Result{Content: "unused"}, nil
	}}
	ts, _ := newTestServer(t, provider)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var health struct {
		Status        string   `json:"status"`
		HomeAssistant string   `json:"home_assistant"`
		Providers     []string `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.HomeAssistant != "ok" {
		t.Errorf("unexpected health: %+v", health)
	}
	if len(health.Providers) != 1 || health.Providers[0] != "scripted" {
		t.Errorf("unexpected providers: %v", health.Providers)
	}
}

func TestChatTextConfirmationArmsContinuity(t *testing.T) {
	var confirmTurn string
	provider := &scriptedProvider{gen: func(n int, req llm.Request) (*llm.Result, error) {
		if n == 0 {
			return &llm.Result{Content: "Deleting 'Evening' (automation.evening) cannot be undone. Do you want me to proceed?"}, nil
		}
		for _, m := range req.Messages {
			if m.Role == "user" {
				confirmTurn = m.Content
			}
		}
		return &llm.Result{Content: "Done, the automation is gone."}, nil
	}}
	ts, _ := newTestServer(t, provider)

	postChat(t, ts, map[string]any{"message": "delete the evening automation"})
	postChat(t, ts, map[string]any{"message": "yes"})

	// The assistant asked in text only, with no confirmation_required
	// tool result; the bare yes must still inherit the delete intent.
	if !strings.Contains(confirmTurn, "Confirmed. Proceed") {
		t.Errorf("follow-up yes was not rewritten by continuity, provider saw %q", confirmTurn)
	}
}

func TestSeeksConfirmation(t *testing.T) {
	tests := []struct {
		intentName string
		content    string
		want       bool
	}{
		{intent.IntentDelete, "This cannot be undone. Shall I proceed?", true},
		{intent.IntentModifyAuto, "Here is the new YAML. Apply it?", true},
		{intent.IntentCreateAuto, "Shall I create it?\n", true},
		{intent.IntentDelete, "Deleted the automation.", false},
		{intent.IntentQueryState, "Anything else you want to check?", false},
		{intent.IntentChat, "How are you today?", false},
	}
	for _, tt := range tests {
		if got := seeksConfirmation(tt.intentName, tt.content); got != tt.want {
			t.Errorf("seeksConfirmation(%s, %q) = %v, want %v", tt.intentName, tt.content, got, tt.want)
		}
	}
}
