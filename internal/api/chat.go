package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hearthside-ai/hearthside/internal/conversation"
	"github.com/hearthside-ai/hearthside/internal/executor"
	"github.com/hearthside-ai/hearthside/internal/homeassistant"
	"github.com/hearthside-ai/hearthside/internal/intent"
	"github.com/hearthside-ai/hearthside/internal/llm"
	"github.com/hearthside-ai/hearthside/internal/orchestrator"
)

// session is the in-memory state of one chat session: its running
// transcript, executor context, and the abort flag for the in-flight
// request. One request per session at a time.
type session struct {
	conversationID string
	messages       []llm.Message
	exec           *executor.SessionContext
	lastIntent     string
	awaitingYes    bool
	abort          atomic.Bool
	inflight       atomic.Bool
}

func (s *Server) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{exec: &executor.SessionContext{SessionID: id}}
		s.sessions[id] = sess
	}
	return sess
}

// ChatRequest is the POST /api/chat body. Context carries pasted blobs
// (YAML, logs) that ride along with the message but are stripped before
// classification and persistence.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	Context   string `json:"context,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
}

// sseEvent is one line of the chat stream. Type is one of token, tool,
// status, clear, done, error.
type sseEvent struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	Tool           string `json:"tool,omitempty"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	sess := s.session(req.SessionID)
	if !sess.inflight.CompareAndSwap(false, true) {
		s.errorResponse(w, http.StatusConflict, "session already has a request in flight")
		return
	}
	defer sess.inflight.Store(false)
	sess.abort.Store(false)

	log := s.logger.With("session", req.SessionID)

	full := req.Message
	if req.Context != "" {
		full = req.Message + "\n\n" + req.Context
	}
	stripped := intent.StripAttachedContext(full)

	dec := s.opts.Classifier.Classify(stripped, intent.Tail{
		PrevIntent:           sess.lastIntent,
		AwaitingConfirmation: sess.awaitingYes,
	})
	log.Info("classified", "intent", dec.Intent, "tools", len(dec.Tools))

	// Snapshot entities up front: the executor falls back to this cache
	// when the platform goes away mid-conversation, and the classifier's
	// pre-search grounds the prompt in real entity ids.
	if states, err := s.opts.HA.GetStates(r.Context()); err == nil {
		sess.exec.EntityCache = states
		if hint := presearchHint(states, stripped); hint != "" {
			dec.Prompt += hint
		}
	} else {
		log.Warn("entity snapshot unavailable", "error", err)
	}

	provider, model, err := s.resolveSelection(req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	// A confirmed destructive follow-up unlocks destructive tools for
	// exactly this request.
	userTurn := full
	if dec.Message != "" {
		userTurn = dec.Message
		sess.exec.Confirmed = dec.SpecificTarget
	}
	defer func() { sess.exec.Confirmed = false }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	rc := http.NewResponseController(w)

	emit := func(ev sseEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Debug("failed to marshal SSE event", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			log.Debug("failed to write SSE event", "error", err)
			return
		}
		flusher.Flush()
		// Tool rounds can run long; keep resetting the write deadline.
		if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
			log.Debug("failed to reset write deadline", "error", err)
		}
	}

	notify := func(state, detail string) {
		if s.opts.Activity != nil {
			s.opts.Activity.Activity(req.SessionID, state, detail)
		}
	}
	notify("thinking", "")
	defer notify("idle", "")

	history := append(append([]llm.Message(nil), sess.messages...),
		llm.Message{Role: "user", Content: userTurn})

	run := &orchestrator.Session{
		ID:       req.SessionID,
		Messages: history,
		Exec:     sess.exec,
		Abort:    &sess.abort,
	}

	out, err := s.opts.Orchestrator.Run(r.Context(), provider, model, run, dec, func(e orchestrator.Event) {
		switch e.Kind {
		case orchestrator.EventText:
			emit(sseEvent{Type: "token", Content: e.Text})
		case orchestrator.EventTool:
			notify("executing", e.Tool)
			emit(sseEvent{Type: "tool", Tool: e.Tool})
		case orchestrator.EventStatus:
			emit(sseEvent{Type: "status", Message: e.Text})
		case orchestrator.EventClear:
			emit(sseEvent{Type: "clear"})
		}
	})
	if err != nil {
		log.Error("chat request failed", "error", err)
		emit(sseEvent{Type: "error", Message: s.opts.Orchestrator.HumanizeError(err)})
		return
	}

	sess.messages = append(history, out.Messages...)
	sess.lastIntent = dec.Intent
	sess.awaitingYes = awaitsConfirmation(out.Messages) || seeksConfirmation(dec.Intent, out.Content)

	s.persist(sess, req.SessionID, provider.Name(), model)

	emit(sseEvent{Type: "done", Content: out.Content, ConversationID: sess.conversationID})
}

// resolveSelection picks the provider and model: request override, then
// the stored selection, then the configured default. An explicit
// request choice becomes the new stored selection.
func (s *Server) resolveSelection(req ChatRequest) (llm.Provider, string, error) {
	name := req.Provider
	model := req.Model

	if name == "" && model == "" {
		if sel, err := s.opts.Conversations.GetSelection(); err == nil && sel != nil {
			name, model = sel.Provider, sel.Model
		}
	}
	if name == "" {
		name = s.opts.DefaultProvider
	}
	if model == "" {
		model = s.opts.DefaultModel
	}

	provider, err := s.opts.Providers.Get(name)
	if err != nil {
		return nil, "", err
	}

	if req.Provider != "" || req.Model != "" {
		if err := s.opts.Conversations.SaveSelection(provider.Name(), model); err != nil {
			s.logger.Warn("failed to persist selection", "error", err)
		}
	}
	return provider, model, nil
}

// persist writes the session transcript as one conversation row,
// updated in place across turns.
func (s *Server) persist(sess *session, sessionID, provider, model string) {
	conv := &conversation.Conversation{
		ID:        sess.conversationID,
		SessionID: sessionID,
		Provider:  provider,
		Model:     model,
		Messages:  toStored(sess.messages),
	}
	if err := s.opts.Conversations.Append(conv); err != nil {
		s.logger.Warn("failed to persist conversation", "error", err)
		return
	}
	sess.conversationID = conv.ID
}

func toStored(msgs []llm.Message) []conversation.Message {
	stored := make([]conversation.Message, 0, len(msgs))
	for _, m := range msgs {
		stored = append(stored, conversation.Message{
			Role:     m.Role,
			Content:  m.Content,
			ToolName: m.ToolName,
		})
	}
	return stored
}

// seeksConfirmation reports whether the assistant's final text is the
// confirmation question a write-flow prompt instructs it to ask, so
// the follow-up yes/no inherits this intent instead of being
// reclassified.
func seeksConfirmation(intentName, content string) bool {
	switch intentName {
	case intent.IntentModifyAuto, intent.IntentModifyScript,
		intent.IntentCreateAuto, intent.IntentCreateScript,
		intent.IntentDelete:
	default:
		return false
	}
	trimmed := strings.TrimRight(strings.TrimSpace(content), " \n\t*_`")
	return strings.HasSuffix(trimmed, "?")
}

// awaitsConfirmation reports whether the round set ended with a
// destructive tool waiting for the user's yes.
func awaitsConfirmation(msgs []llm.Message) bool {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != "tool" {
			continue
		}
		if strings.Contains(msgs[i].Content, `"status":"confirmation_required"`) {
			return true
		}
	}
	return false
}

// presearchHint renders the classifier's entity pre-search as a prompt
// addendum so the model starts from real entity ids.
func presearchHint(states []homeassistant.State, message string) string {
	matches := intent.Presearch(states, message)
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nEntities likely relevant to this request:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s (%s): %s\n", m.EntityID, m.FriendlyName, m.State)
	}
	return b.String()
}

// AbortRequest is the POST /api/chat/abort body.
type AbortRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	s.mu.Lock()
	sess := s.sessions[req.SessionID]
	s.mu.Unlock()

	if sess == nil || !sess.inflight.Load() {
		s.errorResponse(w, http.StatusNotFound, "no request in flight for this session")
		return
	}

	sess.abort.Store(true)
	s.logger.Info("abort requested", "session", req.SessionID)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "aborting"}, s.logger)
}
