package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlPreviewLimit bounds the old/new YAML shown alongside automation
// edits; the full payload budget still applies on top.
const yamlPreviewLimit = 2500

func yamlPreview(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("# render failed: %v", err)
	}
	s := string(data)
	if len(s) > yamlPreviewLimit {
		s = s[:yamlPreviewLimit] + "\n... [TRUNCATED]"
	}
	return s
}

func (e *Executor) getAutomations(ctx context.Context, args map[string]any, sess *SessionContext) (map[string]any, error) {
	query := strings.ToLower(argString(args, "query"))

	states, err := e.statesFor(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("fetch entity states: %w", err)
	}

	var total int
	var automations []map[string]any
	for _, s := range states {
		if s.Domain() != "automation" {
			continue
		}
		total++
		name := s.FriendlyName()
		if query != "" &&
			!strings.Contains(strings.ToLower(name), query) &&
			!strings.Contains(strings.ToLower(s.EntityID), query) {
			continue
		}
		id, _ := s.Attributes["id"].(string)
		lastTriggered, _ := s.Attributes["last_triggered"].(string)
		automations = append(automations, map[string]any{
			"entity_id":      s.EntityID,
			"state":          s.State,
			"friendly_name":  name,
			"id":             id,
			"last_triggered": lastTriggered,
		})
	}

	return map[string]any{
		"total":       total,
		"returned":    len(automations),
		"automations": automations,
		"edit_hint":   "To modify one, use update_automation with its id.",
	}, nil
}

func (e *Executor) createAutomation(ctx context.Context, args map[string]any) (map[string]any, error) {
	alias := argString(args, "alias")
	trigger := argList(args, "trigger")
	action := argList(args, "action")
	if alias == "" || len(trigger) == 0 || len(action) == 0 {
		return nil, fmt.Errorf("alias, trigger and action are required")
	}

	def := map[string]any{
		"alias":   alias,
		"trigger": trigger,
		"action":  action,
		"mode":    "single",
	}
	if d := argString(args, "description"); d != "" {
		def["description"] = d
	}
	if c := argList(args, "condition"); len(c) > 0 {
		def["condition"] = c
	}
	if m := argString(args, "mode"); m != "" {
		def["mode"] = m
	}

	// The UI editor uses millisecond timestamps as config ids; match it
	// so our automations look native.
	id := fmt.Sprintf("%d", time.Now().UnixMilli())
	if err := e.ha.UpsertAutomation(ctx, id, def); err != nil {
		return nil, fmt.Errorf("create automation %q: %w", alias, err)
	}

	return map[string]any{
		"status":        "success",
		"automation_id": id,
		"message":       fmt.Sprintf("Automation '%s' created.", alias),
		"yaml":          yamlPreview(def),
		"display_hint":  "Show the user the automation YAML in a yaml code block.",
	}, nil
}

// updateAutomation replaces an automation after merging the requested
// changes over the current definition. Changes may arrive nested under
// a 'changes' object or as top-level fields; both are accepted.
func (e *Executor) updateAutomation(ctx context.Context, args map[string]any) (map[string]any, error) {
	id := argString(args, "automation_id")
	if id == "" {
		return nil, fmt.Errorf("automation_id is required")
	}

	changes := collectChanges(args, "alias", "description", "trigger", "condition", "action", "mode")
	if len(changes) == 0 {
		return nil, fmt.Errorf("no changes provided: pass the fields to update (alias, trigger, condition, action, mode)")
	}

	current, err := e.ha.GetAutomation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("automation '%s' not found: %w", id, err)
	}

	def := map[string]any{"alias": current.Alias}
	if current.Description != "" {
		def["description"] = current.Description
	}
	if current.Mode != "" {
		def["mode"] = current.Mode
	}
	if current.Trigger != nil {
		def["trigger"] = current.Trigger
	}
	if current.Condition != nil {
		def["condition"] = current.Condition
	}
	if current.Action != nil {
		def["action"] = current.Action
	}
	oldYAML := yamlPreview(def)

	for k, v := range changes {
		def[k] = v
	}

	if err := e.ha.UpsertAutomation(ctx, id, def); err != nil {
		return nil, fmt.Errorf("update automation '%s': %w", id, err)
	}

	return map[string]any{
		"status":        "success",
		"automation_id": id,
		"message":       fmt.Sprintf("Automation '%s' updated.", id),
		"old_yaml":      oldYAML,
		"new_yaml":      yamlPreview(def),
		"display_hint":  "Summarize what changed; do not re-fetch the automation to verify.",
	}, nil
}

func (e *Executor) deleteAutomation(ctx context.Context, args map[string]any) (map[string]any, error) {
	id := argString(args, "automation_id")
	if id == "" {
		return nil, fmt.Errorf("automation_id is required")
	}
	if err := e.ha.DeleteAutomation(ctx, id); err != nil {
		return nil, fmt.Errorf("delete automation '%s': %w", id, err)
	}
	return map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Automation '%s' deleted.", id),
	}, nil
}

func (e *Executor) createScript(ctx context.Context, args map[string]any) (map[string]any, error) {
	scriptID := argString(args, "script_id")
	alias := argString(args, "alias")
	sequence := argList(args, "sequence")
	if scriptID == "" || alias == "" || len(sequence) == 0 {
		return nil, fmt.Errorf("script_id, alias and sequence are required")
	}

	def := map[string]any{"alias": alias, "sequence": sequence}
	if err := e.ha.UpsertScript(ctx, scriptID, def); err != nil {
		return nil, fmt.Errorf("create script '%s': %w", scriptID, err)
	}

	return map[string]any{
		"status":       "success",
		"script_id":    scriptID,
		"entity_id":    "script." + scriptID,
		"message":      fmt.Sprintf("Script '%s' created as script.%s.", alias, scriptID),
		"yaml":         yamlPreview(def),
		"display_hint": "Show the user the script YAML in a yaml code block.",
	}, nil
}

func (e *Executor) updateScript(ctx context.Context, args map[string]any) (map[string]any, error) {
	scriptID := argString(args, "script_id")
	if scriptID == "" {
		return nil, fmt.Errorf("script_id is required")
	}

	changes := collectChanges(args, "alias", "sequence")
	if len(changes) == 0 {
		return nil, fmt.Errorf("no changes provided: pass alias and/or sequence")
	}

	def, err := e.ha.GetScript(ctx, scriptID)
	if err != nil {
		return nil, fmt.Errorf("script '%s' not found: %w", scriptID, err)
	}
	oldYAML := yamlPreview(def)

	for k, v := range changes {
		def[k] = v
	}

	if err := e.ha.UpsertScript(ctx, scriptID, def); err != nil {
		return nil, fmt.Errorf("update script '%s': %w", scriptID, err)
	}

	return map[string]any{
		"status":    "success",
		"script_id": scriptID,
		"message":   fmt.Sprintf("Script '%s' updated.", scriptID),
		"old_yaml":  oldYAML,
		"new_yaml":  yamlPreview(def),
	}, nil
}

func (e *Executor) deleteScript(ctx context.Context, args map[string]any) (map[string]any, error) {
	scriptID := argString(args, "script_id")
	if scriptID == "" {
		return nil, fmt.Errorf("script_id is required")
	}
	if err := e.ha.DeleteScript(ctx, scriptID); err != nil {
		return nil, fmt.Errorf("delete script '%s': %w", scriptID, err)
	}
	return map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Script '%s' deleted.", scriptID),
	}, nil
}

// collectChanges gathers update fields from a nested 'changes' object
// or, when absent, from the listed top-level keys.
func collectChanges(args map[string]any, allowed ...string) map[string]any {
	changes, _ := args["changes"].(map[string]any)
	if len(changes) > 0 {
		return changes
	}
	changes = map[string]any{}
	for _, k := range allowed {
		if v, ok := args[k]; ok && v != nil {
			changes[k] = v
		}
	}
	return changes
}
