// Package executor runs tool calls against Home Assistant. Every call
// passes the same gauntlet: write guard, destructive-confirmation
// guard, entity-id validation, then the tool handler, with the output
// truncated to a per-tool budget before it reaches the model.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hearthside-ai/hearthside/internal/homeassistant"
	"github.com/hearthside-ai/hearthside/internal/llm"
	"github.com/hearthside-ai/hearthside/internal/registry"
	"github.com/hearthside-ai/hearthside/internal/snapshot"
)

const (
	truncateDefault = 8000
	truncateLong    = 20000

	maxSuggestions = 3
)

// Options configures an Executor.
type Options struct {
	Registry  *registry.Registry
	HA        *homeassistant.Client
	WS        *homeassistant.WSClient
	Snapshots *snapshot.Store
	// ConfigDir is the Home Assistant config directory. File tools are
	// rejected when empty.
	ConfigDir string
	// ReadOnly blocks write tools for every session.
	ReadOnly bool
	Language string
	Logger   *slog.Logger
}

// Executor dispatches tool calls to their handlers.
type Executor struct {
	registry  *registry.Registry
	ha        *homeassistant.Client
	ws        *homeassistant.WSClient
	snapshots *snapshot.Store
	configDir string
	readOnly  bool
	lang      string
	msgs      messages
	logger    *slog.Logger
}

func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	return &Executor{
		registry:  opts.Registry,
		ha:        opts.HA,
		ws:        opts.WS,
		snapshots: opts.Snapshots,
		configDir: opts.ConfigDir,
		readOnly:  opts.ReadOnly,
		lang:      lang,
		msgs:      messagesFor(opts.Language),
		logger:    logger.With("component", "executor"),
	}
}

// SessionContext carries per-session execution state. Tool calls within
// a session run sequentially, so no locking is needed.
type SessionContext struct {
	SessionID string
	// ReadOnly blocks write tools for this session only.
	ReadOnly bool
	// Confirmed is set when the user explicitly confirmed a pending
	// destructive action. Destructive tools are rejected without it.
	Confirmed bool
	// EntityCache is the classifier's pre-search snapshot, used for
	// validation when the platform is unreachable mid-conversation.
	EntityCache []homeassistant.State

	drafts map[string]*htmlDraft
}

// Result is the outcome of one tool call, formatted for the model.
type Result struct {
	Text    string
	Success bool
	// Status echoes the payload's status field when present
	// ("read_only", "draft_started", ...). The orchestrator's
	// auto-stop logic keys off it.
	Status string
	// ViewsCount mirrors the payload's views_count, -1 when absent.
	ViewsCount int
}

// Execute runs one tool call and returns its result. Failures are
// returned as results, not errors: the model sees them first and can
// self-correct.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall, sess *SessionContext) Result {
	def := e.registry.Get(call.Name)
	if def == nil {
		return e.fail(fmt.Sprintf(e.msgs.UnknownTool, call.Name), nil)
	}

	log := e.logger.With("tool", call.Name, "session", sess.SessionID)

	if def.Write && (e.readOnly || sess.ReadOnly) {
		log.Info("write tool blocked in read-only mode")
		return e.readOnlyResult(call)
	}
	if def.Destructive && !sess.Confirmed {
		log.Info("destructive tool blocked, awaiting confirmation")
		return e.fail(fmt.Sprintf(e.msgs.ConfirmDelete, call.Name), map[string]any{
			"status": "confirmation_required",
		})
	}

	if bad := e.validateEntities(ctx, call, sess); bad != nil {
		return *bad
	}

	payload, err := e.dispatch(ctx, call, sess)
	if err != nil {
		log.Warn("tool failed", "error", err)
		return e.fail(err.Error(), nil)
	}

	text, err := marshalPayload(payload)
	if err != nil {
		return e.fail(fmt.Sprintf("encode result: %v", err), nil)
	}
	text = truncate(text, budgetFor(def))

	res := Result{Text: text, Success: true, ViewsCount: -1}
	if s, ok := payload["status"].(string); ok {
		res.Status = s
	}
	if n, ok := payload["views_count"].(int); ok {
		res.ViewsCount = n
	}
	log.Debug("tool executed", "bytes", len(text), "status", res.Status)
	return res
}

func (e *Executor) dispatch(ctx context.Context, call llm.ToolCall, sess *SessionContext) (map[string]any, error) {
	args := call.Arguments
	switch call.Name {
	case "search_entities":
		return e.searchEntities(ctx, args, sess)
	case "get_entity_state":
		return e.getEntityState(ctx, args)
	case "list_entities":
		return e.listEntities(ctx, args, sess)
	case "get_entity_history":
		return e.getEntityHistory(ctx, args)
	case "call_service":
		return e.callService(ctx, args)
	case "get_automations":
		return e.getAutomations(ctx, args, sess)
	case "create_automation":
		return e.createAutomation(ctx, args)
	case "update_automation":
		return e.updateAutomation(ctx, args)
	case "delete_automation":
		return e.deleteAutomation(ctx, args)
	case "create_script":
		return e.createScript(ctx, args)
	case "update_script":
		return e.updateScript(ctx, args)
	case "delete_script":
		return e.deleteScript(ctx, args)
	case "create_dashboard":
		return e.createDashboard(ctx, args)
	case "update_dashboard":
		return e.updateDashboard(ctx, args)
	case "get_dashboard_config":
		return e.getDashboardConfig(ctx, args)
	case "delete_dashboard":
		return e.deleteDashboard(ctx, args)
	case "create_html_dashboard":
		return e.createHTMLDashboard(ctx, args, sess)
	case "read_config_file":
		return e.readConfigFile(args)
	case "write_config_file":
		return e.writeConfigFile(args)
	case "list_config_files":
		return e.listConfigFiles()
	case "check_config":
		return e.checkConfig(ctx)
	case "list_snapshots":
		return e.listSnapshots(args)
	case "restore_snapshot":
		return e.restoreSnapshot(args)
	}
	return nil, fmt.Errorf(e.msgs.UnknownTool, call.Name)
}

// validateEntities checks every entity id referenced in the arguments
// against the live registry, falling back to the session's cached
// snapshot. Returns a failure result for the first unknown id, with
// close matches so the model can self-correct.
func (e *Executor) validateEntities(ctx context.Context, call llm.ToolCall, sess *SessionContext) *Result {
	ids := collectEntityIDs(call.Arguments)
	if len(ids) == 0 {
		return nil
	}

	states, err := e.statesFor(ctx, sess)
	if err != nil {
		// Can't validate without a state source; let the platform
		// report the error instead of guessing.
		e.logger.Warn("entity validation skipped", "tool", call.Name, "error", err)
		return nil
	}

	known := make(map[string]bool, len(states))
	for _, s := range states {
		known[s.EntityID] = true
	}

	for _, id := range ids {
		if known[id] {
			continue
		}
		msg := fmt.Sprintf(e.msgs.EntityNotFound, id)
		payload := map[string]any{"status": "error", "invalid_entity": id}
		if sug := suggestEntities(id, states, maxSuggestions); len(sug) > 0 {
			msg += " " + fmt.Sprintf(e.msgs.DidYouMean, strings.Join(sug, ", "))
			payload["suggestions"] = sug
		}
		res := e.fail(msg, payload)
		return &res
	}
	return nil
}

// statesFor returns the live entity states, or the session's cached
// snapshot when the platform is unreachable.
func (e *Executor) statesFor(ctx context.Context, sess *SessionContext) ([]homeassistant.State, error) {
	states, err := e.ha.GetStates(ctx)
	if err == nil {
		return states, nil
	}
	if len(sess.EntityCache) > 0 {
		e.logger.Warn("falling back to cached entity snapshot", "error", err)
		return sess.EntityCache, nil
	}
	return nil, err
}

// readOnlyResult renders the blocked call as a YAML preview so the
// model can show the user exactly what would have been done.
func (e *Executor) readOnlyResult(call llm.ToolCall) Result {
	preview, err := yaml.Marshal(call.Arguments)
	if err != nil {
		preview = []byte(fmt.Sprintf("# could not render arguments: %v", err))
	}
	text, _ := marshalPayload(map[string]any{
		"status":       "read_only",
		"message":      fmt.Sprintf(e.msgs.ReadOnlyBlocked, call.Name),
		"yaml_preview": string(preview),
		"note":         e.msgs.ReadOnlyNote,
	})
	return Result{Text: text, Success: true, Status: "read_only", ViewsCount: -1}
}

func (e *Executor) fail(msg string, extra map[string]any) Result {
	payload := map[string]any{"error": msg}
	status := ""
	for k, v := range extra {
		payload[k] = v
		if k == "status" {
			status, _ = v.(string)
		}
	}
	text, err := marshalPayload(payload)
	if err != nil {
		text = fmt.Sprintf(`{"error": %q}`, msg)
	}
	return Result{Text: text, Success: false, Status: status, ViewsCount: -1}
}

func marshalPayload(payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func budgetFor(def *registry.Definition) int {
	if def.LongOutput {
		return truncateLong
	}
	return truncateDefault
}

// truncate bounds text to limit chars, noting the original size so the
// model knows content was cut rather than complete.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + fmt.Sprintf("\n... [TRUNCATED - %d chars total]", len(text))
}

// argString reads a string argument, trimmed.
func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// argInt reads an integer argument; JSON decoding yields float64.
func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// argList reads an array argument.
func argList(args map[string]any, key string) []any {
	l, _ := args[key].([]any)
	return l
}
