package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthside-ai/hearthside/internal/intent"
)

const (
	defaultSearchLimit = 10
	defaultListLimit   = 20
	defaultHistoryHrs  = 24
)

// usefulAttributes is the whitelist of attributes worth sending to the
// model. Full attribute maps (zigbee diagnostics, color gamuts) burn
// context for nothing.
var usefulAttributes = map[string]bool{
	"friendly_name":       true,
	"unit_of_measurement": true,
	"device_class":        true,
	"brightness":          true,
	"color_temp":          true,
	"temperature":         true,
	"current_temperature": true,
	"hvac_modes":          true,
	"hvac_action":         true,
	"preset_mode":         true,
	"source":              true,
	"media_title":         true,
	"id":                  true, // automation config id
}

func (e *Executor) searchEntities(ctx context.Context, args map[string]any, sess *SessionContext) (map[string]any, error) {
	query := argString(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	domain := argString(args, "domain")
	limit := argInt(args, "limit", defaultSearchLimit)

	states, err := e.statesFor(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("fetch entity states: %w", err)
	}
	if domain != "" {
		filtered := states[:0:0]
		for _, s := range states {
			if s.Domain() == domain {
				filtered = append(filtered, s)
			}
		}
		states = filtered
	}

	matches := intent.KeywordSearch(states, query, limit)
	results := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]any{
			"entity_id":      m.EntityID,
			"state":          m.State,
			"friendly_name":  m.FriendlyName,
			"match_quality":  m.Quality,
			"token_coverage": m.TokenCoverage,
			"missing_tokens": m.MissingTokens,
		})
	}

	payload := map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	}
	if len(results) == 0 {
		payload["hint"] = "No matches. Try different terms or list_entities to browse a domain."
	} else if matches[0].Quality == "low" {
		payload["hint"] = "Only low-quality matches. Verify with the user before acting on these."
	}
	return payload, nil
}

func (e *Executor) getEntityState(ctx context.Context, args map[string]any) (map[string]any, error) {
	entityID := argString(args, "entity_id")
	if entityID == "" {
		return nil, fmt.Errorf("entity_id is required")
	}

	state, err := e.ha.GetState(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("get state of %s: %w", entityID, err)
	}

	attrs := map[string]any{}
	for k, v := range state.Attributes {
		if usefulAttributes[k] {
			attrs[k] = v
		}
	}
	return map[string]any{
		"entity_id":     state.EntityID,
		"state":         state.State,
		"friendly_name": state.FriendlyName(),
		"last_changed":  state.LastChanged.Format(time.RFC3339),
		"attributes":    attrs,
	}, nil
}

func (e *Executor) listEntities(ctx context.Context, args map[string]any, sess *SessionContext) (map[string]any, error) {
	domain := argString(args, "domain")
	if domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	limit := argInt(args, "limit", defaultListLimit)

	states, err := e.statesFor(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("fetch entity states: %w", err)
	}

	var total int
	entities := make([]map[string]any, 0, limit)
	for _, s := range states {
		if s.Domain() != domain {
			continue
		}
		total++
		if len(entities) >= limit {
			continue
		}
		entities = append(entities, map[string]any{
			"entity_id":     s.EntityID,
			"state":         s.State,
			"friendly_name": s.FriendlyName(),
		})
	}
	return map[string]any{
		"domain":   domain,
		"total":    total,
		"returned": len(entities),
		"entities": entities,
	}, nil
}

func (e *Executor) getEntityHistory(ctx context.Context, args map[string]any) (map[string]any, error) {
	entityID := argString(args, "entity_id")
	if entityID == "" {
		return nil, fmt.Errorf("entity_id is required")
	}
	hours := argInt(args, "hours", defaultHistoryHrs)
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	history, err := e.ha.GetHistory(ctx, entityID, since)
	if err != nil {
		return nil, fmt.Errorf("get history of %s: %w", entityID, err)
	}

	var changes []map[string]any
	for _, segment := range history {
		for _, s := range segment {
			changes = append(changes, map[string]any{
				"state":        s.State,
				"last_changed": s.LastChanged.Format(time.RFC3339),
			})
		}
	}
	return map[string]any{
		"entity_id": entityID,
		"hours":     hours,
		"count":     len(changes),
		"changes":   changes,
	}, nil
}

// callService normalizes the argument shapes different models produce
// (entity_id at top level, service_data instead of data, explicit
// target objects) before calling the platform.
func (e *Executor) callService(ctx context.Context, args map[string]any) (map[string]any, error) {
	domain := argString(args, "domain")
	service := argString(args, "service")
	if domain == "" || service == "" {
		return nil, fmt.Errorf("domain and service are required, e.g. domain=light service=turn_on data={entity_id: light.living_room}")
	}

	data, _ := args["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	if eid := argString(args, "entity_id"); eid != "" {
		if _, has := data["entity_id"]; !has {
			if _, hasTarget := data["target"]; !hasTarget {
				data["entity_id"] = eid
			}
		}
	}
	if sd, ok := args["service_data"].(map[string]any); ok {
		for k, v := range sd {
			if _, has := data[k]; !has {
				data[k] = v
			}
		}
	}
	if target, ok := args["target"].(map[string]any); ok {
		if _, has := data["target"]; !has {
			data["target"] = target
		}
	}

	if data["entity_id"] == nil && data["target"] == nil {
		return nil, fmt.Errorf("missing target for %s.%s: provide entity_id or a target object", domain, service)
	}

	if err := e.ha.CallService(ctx, domain, service, data); err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", domain, service, err)
	}
	return map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Service %s.%s called on %s.", domain, service, describeTarget(data)),
	}, nil
}

func describeTarget(data map[string]any) string {
	if eid, ok := data["entity_id"].(string); ok {
		return eid
	}
	if target, ok := data["target"].(map[string]any); ok {
		if eid, ok := target["entity_id"].(string); ok {
			return eid
		}
	}
	return "the requested target"
}
