package registry

// catalog returns every tool definition. Descriptions are written for
// the model: concrete, example-heavy, and explicit about when to use
// which tool.
func catalog() []*Definition {
	return []*Definition{
		{
			Name:        "search_entities",
			Description: "Search Home Assistant entities by name or keyword. Use this first when you only know what the user called a device (e.g., 'kitchen light', 'garage door') and need its entity_id.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search terms, e.g. 'living room temperature'",
					},
					"domain": map[string]any{
						"type":        "string",
						"description": "Optional domain filter (light, sensor, switch, climate, ...)",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum results (default 10)",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "get_entity_state",
			Description: "Get the current state and attributes of one entity. Use to check if lights are on, read temperatures, door positions, etc.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"entity_id": map[string]any{
						"type":        "string",
						"description": "The entity ID (e.g., light.living_room, sensor.outdoor_temperature)",
					},
				},
				"required": []string{"entity_id"},
			},
		},
		{
			Name:        "list_entities",
			Description: "List entities in a domain (all lights, all sensors, ...). Use to discover what exists when search finds nothing.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"domain": map[string]any{
						"type":        "string",
						"description": "The domain to list (light, switch, sensor, binary_sensor, climate, cover)",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of entities to return (default 20)",
					},
				},
				"required": []string{"domain"},
			},
		},
		{
			Name:        "get_entity_history",
			Description: "Get recorded state history for an entity over the last hours. Use for questions like 'when did the door last open' or 'temperature trend today'.",
			LongOutput:  true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"entity_id": map[string]any{
						"type":        "string",
						"description": "The entity ID to query",
					},
					"hours": map[string]any{
						"type":        "integer",
						"description": "How many hours back to look (default 24)",
					},
				},
				"required": []string{"entity_id"},
			},
		},
		{
			Name:        "call_service",
			Description: "Call a Home Assistant service to control a device: turn lights on/off, set thermostat temperature, lock doors, open covers.",
			Write:       true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"domain": map[string]any{
						"type":        "string",
						"description": "The service domain (light, switch, climate, lock, cover)",
					},
					"service": map[string]any{
						"type":        "string",
						"description": "The service to call (turn_on, turn_off, set_temperature, lock)",
					},
					"entity_id": map[string]any{
						"type":        "string",
						"description": "The target entity ID",
					},
					"data": map[string]any{
						"type":        "object",
						"description": "Additional service data (brightness, temperature, position, ...)",
					},
				},
				"required": []string{"domain", "service", "entity_id"},
			},
		},
		{
			Name:        "get_automations",
			Description: "List existing automations with their ids, aliases and descriptions. Use before modifying or when asked 'what automations do I have'.",
			LongOutput:  true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Optional substring filter on alias/description",
					},
				},
			},
		},
		{
			Name:        "create_automation",
			Description: "Create a new automation. Provide alias, trigger(s), optional condition(s) and action(s). Entity ids must exist — verify with search_entities first.",
			Write:       true,
			AutoStop:    true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"alias": map[string]any{
						"type":        "string",
						"description": "Human-readable automation name",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "What the automation does",
					},
					"trigger": map[string]any{
						"type":        "array",
						"description": "Automation triggers (HA trigger platform objects)",
						"items":       map[string]any{"type": "object"},
					},
					"condition": map[string]any{
						"type":        "array",
						"description": "Optional conditions",
						"items":       map[string]any{"type": "object"},
					},
					"action": map[string]any{
						"type":        "array",
						"description": "Actions to perform",
						"items":       map[string]any{"type": "object"},
					},
					"mode": map[string]any{
						"type":        "string",
						"description": "Execution mode (single, restart, queued, parallel)",
					},
				},
				"required": []string{"alias", "trigger", "action"},
			},
		},
		{
			Name:        "update_automation",
			Description: "Replace an existing automation's definition. Fetch it with get_automations first, then send the complete updated definition — partial updates are not merged.",
			Write:       true,
			AutoStop:    true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"automation_id": map[string]any{
						"type":        "string",
						"description": "The automation's config id",
					},
					"alias":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"trigger": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "object"},
					},
					"condition": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "object"},
					},
					"action": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "object"},
					},
					"mode": map[string]any{"type": "string"},
				},
				"required": []string{"automation_id"},
			},
		},
		{
			Name:        "delete_automation",
			Description: "Permanently delete an automation by id. Only call after the user has confirmed the deletion.",
			Write:       true,
			Destructive: true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"automation_id": map[string]any{
						"type":        "string",
						"description": "The automation's config id",
					},
				},
				"required": []string{"automation_id"},
			},
		},
		{
			Name:        "create_script",
			Description: "Create a new script (a reusable action sequence callable as script.<id>).",
			Write:       true,
			AutoStop:    true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"script_id": map[string]any{
						"type":        "string",
						"description": "Object id (snake_case, becomes script.<id>)",
					},
					"alias": map[string]any{"type": "string"},
					"sequence": map[string]any{
						"type":        "array",
						"description": "Actions to perform in order",
						"items":       map[string]any{"type": "object"},
					},
				},
				"required": []string{"script_id", "alias", "sequence"},
			},
		},
		{
			Name:        "update_script",
			Description: "Replace an existing script's definition. Send the complete updated definition.",
			Write:       true,
			AutoStop:    true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"script_id": map[string]any{
						"type":        "string",
						"description": "The script's object id",
					},
					"alias": map[string]any{"type": "string"},
					"sequence": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "object"},
					},
				},
				"required": []string{"script_id"},
			},
		},
		{
			Name:        "delete_script",
			Description: "Permanently delete a script by object id. Only call after the user has confirmed.",
			Write:       true,
			Destructive: true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"script_id": map[string]any{
						"type":        "string",
						"description": "The script's object id",
					},
				},
				"required": []string{"script_id"},
			},
		},
		{
			Name:        "create_dashboard",
			Description: "Create a new Lovelace dashboard with the given views and cards. Every entity referenced must exist.",
			Write:       true,
			AutoStop:    true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url_path": map[string]any{
						"type":        "string",
						"description": "URL slug for the dashboard (kebab-case)",
					},
					"title": map[string]any{"type": "string"},
					"icon": map[string]any{
						"type":        "string",
						"description": "Optional mdi: icon",
					},
					"views": map[string]any{
						"type":        "array",
						"description": "Lovelace view objects with cards",
						"items":       map[string]any{"type": "object"},
					},
				},
				"required": []string{"url_path", "title", "views"},
			},
		},
		{
			Name:        "update_dashboard",
			Description: "Replace the configuration of an existing dashboard. Fetch the current config with get_dashboard_config first and send the complete result.",
			Write:       true,
			AutoStop:    true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url_path": map[string]any{
						"type":        "string",
						"description": "The dashboard's URL slug",
					},
					"views": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "object"},
					},
					"title": map[string]any{"type": "string"},
				},
				"required": []string{"url_path", "views"},
			},
		},
		{
			Name:        "get_dashboard_config",
			Description: "Get the full Lovelace configuration of a dashboard, or list all dashboards when called without url_path.",
			LongOutput:  true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url_path": map[string]any{
						"type":        "string",
						"description": "The dashboard's URL slug (omit to list dashboards)",
					},
				},
			},
		},
		{
			Name:        "delete_dashboard",
			Description: "Permanently delete a dashboard by URL slug. Only call after the user has confirmed.",
			Write:       true,
			Destructive: true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url_path": map[string]any{
						"type":        "string",
						"description": "The dashboard's URL slug",
					},
				},
				"required": []string{"url_path"},
			},
		},
		{
			Name:        "create_html_dashboard",
			Description: "Create a dashboard from a full HTML document rendered in a single webpage card. For large documents send mode=start with the first chunk, then mode=append for the rest, and mode=finish to publish.",
			Write:       true,
			AutoStop:    true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url_path": map[string]any{"type": "string"},
					"title":    map[string]any{"type": "string"},
					"html": map[string]any{
						"type":        "string",
						"description": "HTML chunk (complete document for single-shot calls)",
					},
					"mode": map[string]any{
						"type":        "string",
						"description": "single (default), start, append, or finish",
					},
					"entities": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Entity ids the page monitors; substituted into __ENTITIES_JSON__",
					},
					"accent_color": map[string]any{
						"type":        "string",
						"description": "Accent color hex (e.g. '#667eea'); substituted into __ACCENT__",
					},
					"theme": map[string]any{
						"type":        "string",
						"description": "auto (default), dark, or light; selects the __THEME_CSS__ override",
					},
				},
				"required": []string{"url_path", "title"},
			},
		},
		{
			Name:        "read_config_file",
			Description: "Read a YAML file from the Home Assistant config directory (configuration.yaml, automations.yaml, ...). Paths are relative to the config dir.",
			LongOutput:  true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Relative file path, e.g. 'configuration.yaml'",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "write_config_file",
			Description: "Write a YAML file in the config directory. A snapshot of the previous content is taken automatically first. Run check_config afterwards.",
			Write:       true,
			AutoStop:    true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Relative file path",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Complete new file content",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        "list_config_files",
			Description: "List YAML files in the Home Assistant config directory.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "check_config",
			Description: "Ask Home Assistant to validate its configuration. Always run this after write_config_file.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "list_snapshots",
			Description: "List saved config-file snapshots, newest first. Each entry has an id usable with restore_snapshot.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Optional relative path filter",
					},
				},
			},
		},
		{
			Name:        "restore_snapshot",
			Description: "Restore a config file to a previously snapshotted version by snapshot id.",
			Write:       true,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"snapshot_id": map[string]any{
						"type":        "string",
						"description": "Snapshot id from list_snapshots",
					},
				},
				"required": []string{"snapshot_id"},
			},
		},
	}
}
