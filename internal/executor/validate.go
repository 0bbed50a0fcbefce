package executor

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/hearthside-ai/hearthside/internal/homeassistant"
)

// collectEntityIDs walks the tool arguments and gathers every entity id
// reference, however deeply nested. Automation triggers, dashboard
// views and service targets all carry entity ids under the same keys.
func collectEntityIDs(v any) []string {
	seen := map[string]bool{}
	var walk func(key string, v any)
	walk = func(key string, v any) {
		switch t := v.(type) {
		case map[string]any:
			for k, child := range t {
				walk(k, child)
			}
		case []any:
			for _, child := range t {
				walk(key, child)
			}
		case string:
			if key != "entity_id" && key != "entities" {
				return
			}
			if isValidatableEntityID(t) {
				seen[t] = true
			}
		}
	}
	walk("", v)

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// isValidatableEntityID filters out values that look like an entity id
// slot but cannot be checked against the registry: templates, the
// special "all"/"none" targets, and strings without a domain.
func isValidatableEntityID(s string) bool {
	if s == "" || s == "all" || s == "none" {
		return false
	}
	if strings.Contains(s, "{{") || strings.Contains(s, "{%") {
		return false
	}
	return strings.Contains(s, ".")
}

// suggestEntities returns up to limit close matches for an unknown
// entity id, matching against both ids and friendly names.
func suggestEntities(unknown string, states []homeassistant.State, limit int) []string {
	ids := make([]string, len(states))
	names := make([]string, len(states))
	for i, s := range states {
		ids[i] = s.EntityID
		names[i] = s.FriendlyName()
	}

	var out []string
	seen := map[string]bool{}
	add := func(id string) {
		if !seen[id] && len(out) < limit {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, m := range fuzzy.Find(unknown, ids) {
		add(ids[m.Index])
	}
	// The part after the domain often carries the user's wording.
	if _, object, ok := strings.Cut(unknown, "."); ok && object != "" {
		for _, m := range fuzzy.Find(object, names) {
			add(ids[m.Index])
		}
	}
	return out
}
