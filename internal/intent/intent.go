// Package intent classifies chat messages locally so each request
// carries only the tool subset and focused prompt it needs, instead of
// the full catalog on every round.
package intent

import (
	"log/slog"
	"regexp"
	"strings"
)

// Intent names produced by Classify.
const (
	IntentChat            = "chat"
	IntentFindAutomation  = "find_automation"
	IntentModifyAuto      = "modify_automation"
	IntentModifyScript    = "modify_script"
	IntentCreateAuto      = "create_automation"
	IntentCreateScript    = "create_script"
	IntentCreateDashboard = "create_dashboard"
	IntentCreateHTMLDash  = "create_html_dashboard"
	IntentModifyDashboard = "modify_dashboard"
	IntentControlDevice   = "control_device"
	IntentDelete          = "delete"
	IntentQueryState      = "query_state"
	IntentQueryHistory    = "query_history"
	IntentConfigEdit      = "config_edit"
	IntentHelpers         = "helpers"
	IntentGeneric         = "generic"
)

// toolSets maps each intent to the registry tool names it may use.
// nil means the full catalog; an empty set means no tools at all.
var toolSets = map[string][]string{
	IntentChat:            {},
	IntentFindAutomation:  {"get_automations"},
	IntentModifyAuto:      {"get_automations", "update_automation"},
	IntentModifyScript:    {"update_script"},
	IntentCreateAuto:      {"create_automation", "search_entities", "get_entity_state"},
	IntentCreateScript:    {"create_script", "search_entities", "get_entity_state"},
	IntentCreateDashboard: {"create_dashboard", "update_dashboard", "search_entities"},
	IntentCreateHTMLDash:  {"create_html_dashboard", "search_entities"},
	IntentModifyDashboard: {"get_dashboard_config", "update_dashboard"},
	IntentControlDevice:   {"call_service", "search_entities", "get_entity_state"},
	IntentDelete:          {"delete_automation", "delete_script", "delete_dashboard"},
	IntentQueryState:      {"list_entities", "get_entity_state", "search_entities"},
	IntentQueryHistory:    {"get_entity_history", "search_entities"},
	IntentConfigEdit:      {"read_config_file", "write_config_file", "check_config", "list_config_files", "list_snapshots", "restore_snapshot"},
	IntentHelpers:         {"search_entities", "list_entities", "call_service"},
	IntentGeneric:         nil,
}

// Decision is the classification result attached to a chat turn.
type Decision struct {
	Intent         string
	Tools          []string // nil = full catalog
	Prompt         string   // "" = default system prompt
	MaxRounds      int      // 0 = orchestrator default
	SpecificTarget bool
	// Message replaces the user message when confirmation continuity
	// rewrote a bare yes/no into an explicit instruction.
	Message string
}

// Tail carries the relevant state of the previous conversation turn.
type Tail struct {
	// PrevIntent is the intent of the previous user turn, if any.
	PrevIntent string
	// AwaitingConfirmation is true when the previous assistant turn
	// ended by asking the user to confirm an action.
	AwaitingConfirmation bool
}

// Classifier performs keyword-based intent detection for a single
// configured language.
type Classifier struct {
	lang   string
	logger *slog.Logger
}

func NewClassifier(lang string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if _, ok := keywordTables[lang]; !ok {
		lang = "en"
	}
	return &Classifier{lang: lang, logger: logger.With("component", "intent")}
}

// Language returns the classifier's configured language code.
func (c *Classifier) Language() string { return c.lang }

// timeLiteralRe spots schedule-change requests that never say the word
// "automation" ("change the schedule, turn on at 22:00").
var timeLiteralRe = regexp.MustCompile(`\b([01]?\d|2[0-3])[:.][0-5]\d\b`)

var scheduleWords = []string{"schedule", "orario", "horario", "horaire"}

// Classify detects the intent of message. The message should already
// have attached context stripped via StripAttachedContext.
func (c *Classifier) Classify(message string, tail Tail) Decision {
	msg := strings.ToLower(strings.TrimSpace(message))
	kw := tableFor(c.lang)

	// Confirmation continuity: a bare yes/no after a confirmation
	// question inherits the intent that asked the question.
	if tail.AwaitingConfirmation && tail.PrevIntent != "" && tail.PrevIntent != IntentGeneric {
		if d, ok := c.continuity(msg, tail, kw); ok {
			return d
		}
	}

	// Short greetings before anything else.
	words := strings.Fields(strings.TrimRight(msg, "!?.,"))
	if len(words) <= 5 && containsAny(msg, kw.Chat) {
		return c.decide(IntentChat, false, 1)
	}

	hasCreate := containsAny(msg, kw.Create)
	hasModify := containsAny(msg, kw.Modify)
	hasAuto := containsAny(msg, kw.Automation)
	hasScript := containsAny(msg, kw.Script)
	hasDash := containsAny(msg, kw.Dashboard)
	hasDelete := containsAny(msg, kw.Delete)

	// Schedule changes usually mean automation edits even when the
	// word "automation" is absent.
	schedule := hasModify && (containsAny(msg, scheduleWords) || timeLiteralRe.MatchString(msg))

	switch {
	case hasModify && (hasAuto || schedule):
		return c.decide(IntentModifyAuto, false, 0)

	case hasModify && hasScript:
		return c.decide(IntentModifyScript, false, 0)

	case hasAuto && !hasCreate && containsAny(msg, kw.Exists):
		return c.decide(IntentFindAutomation, false, 2)

	case hasCreate && hasAuto:
		return c.decide(IntentCreateAuto, false, 0)

	case hasCreate && hasScript:
		return c.decide(IntentCreateScript, false, 0)

	case hasDash && hasCreate:
		if containsAny(msg, htmlDashboardKeywords) {
			return c.decide(IntentCreateHTMLDash, false, 0)
		}
		return c.decide(IntentCreateDashboard, false, 0)

	case hasDash && hasModify:
		return c.decide(IntentModifyDashboard, false, 0)

	case hasDash && !hasDelete:
		// "dashboard" with no explicit verb reads as a creation request.
		if containsAny(msg, htmlDashboardKeywords) {
			return c.decide(IntentCreateHTMLDash, false, 0)
		}
		return c.decide(IntentCreateDashboard, false, 0)

	case containsAny(msg, kw.Control):
		return c.decide(IntentControlDevice, false, 0)

	// Deletion outranks state queries: "remove the kitchen automation"
	// also matches query keywords in some languages.
	case hasDelete && (hasAuto || hasScript || hasDash):
		return c.decide(IntentDelete, false, 0)

	case containsAny(msg, kw.Query):
		return c.decide(IntentQueryState, false, 0)

	case containsAny(msg, kw.History):
		return c.decide(IntentQueryHistory, false, 0)

	case containsAny(msg, kw.Config):
		return c.decide(IntentConfigEdit, false, 0)

	case containsAny(msg, kw.Helper):
		return c.decide(IntentHelpers, false, 0)
	}

	return c.decide(IntentGeneric, false, 0)
}

// continuity handles a short yes/no reply to a pending confirmation.
func (c *Classifier) continuity(msg string, tail Tail, kw keywordTable) (Decision, bool) {
	token := strings.TrimRight(msg, "!?. ,")
	if len(strings.Fields(token)) > 3 {
		return Decision{}, false
	}

	if matchesToken(token, kw.Yes) {
		d := c.decide(tail.PrevIntent, true, 0)
		d.Message = "Confirmed. Proceed with the action you proposed."
		c.logger.Debug("confirmation continuity", "intent", tail.PrevIntent, "answer", "yes")
		return d, true
	}
	if matchesToken(token, kw.No) {
		d := c.decide(IntentChat, false, 1)
		d.Message = "The user declined. Acknowledge and do not perform the action."
		c.logger.Debug("confirmation continuity", "intent", tail.PrevIntent, "answer", "no")
		return d, true
	}
	return Decision{}, false
}

func (c *Classifier) decide(intent string, specific bool, maxRounds int) Decision {
	return Decision{
		Intent:         intent,
		Tools:          toolSets[intent],
		Prompt:         promptFor(intent, c.lang),
		MaxRounds:      maxRounds,
		SpecificTarget: specific,
	}
}

func containsAny(msg string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

// matchesToken checks whether the whole (short) message is one of the
// given tokens, not just a substring of it: "no" must not match "now".
func matchesToken(msg string, tokens []string) bool {
	for _, t := range tokens {
		if msg == t {
			return true
		}
	}
	return false
}
