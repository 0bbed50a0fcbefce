package intent

import (
	"strings"
	"testing"
)

func TestClassifyEnglish(t *testing.T) {
	c := NewClassifier("en", nil)

	tests := []struct {
		name    string
		message string
		intent  string
	}{
		{"greeting", "hello there", IntentChat},
		{"modify automation", "change the morning automation to 7am", IntentModifyAuto},
		{"schedule change without automation word", "change the schedule, turn on at 22:00", IntentModifyAuto},
		{"find automation", "is there an automation for the porch light?", IntentFindAutomation},
		{"create automation", "create an automation that turns off the heater at night", IntentCreateAuto},
		{"create script", "create a script for movie night", IntentCreateScript},
		{"lovelace dashboard", "create a dashboard for my solar panels", IntentCreateDashboard},
		{"html dashboard", "create a custom html dashboard with live charts", IntentCreateHTMLDash},
		{"bare dashboard request", "a dashboard for the garden sensors please", IntentCreateDashboard},
		{"control", "turn on the kitchen lights", IntentControlDevice},
		{"delete automation", "delete the old garage automation", IntentDelete},
		{"query state", "what is the temperature in the bedroom", IntentQueryState},
		{"history", "show me the temperature history for yesterday", IntentQueryHistory},
		{"config edit", "fix the configuration.yaml file", IntentConfigEdit},
		{"helper", "set the input_boolean for guest mode", IntentHelpers},
		{"generic fallback", "my house feels weird lately", IntentGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Classify(tt.message, Tail{})
			if d.Intent != tt.intent {
				t.Errorf("Classify(%q) = %s, want %s", tt.message, d.Intent, tt.intent)
			}
		})
	}
}

func TestClassifyItalian(t *testing.T) {
	c := NewClassifier("it", nil)

	tests := []struct {
		message string
		intent  string
	}{
		{"ciao", IntentChat},
		{"modifica l'automazione del mattino", IntentModifyAuto},
		{"c'è un'automazione per le luci del giardino?", IntentFindAutomation},
		{"crea un'automazione per spegnere le luci", IntentCreateAuto},
		{"accendi la luce della cucina", IntentControlDevice},
		{"elimina lo script delle vacanze", IntentDelete},
		{"qual è lo stato del sensore", IntentQueryState},
	}

	for _, tt := range tests {
		d := c.Classify(tt.message, Tail{})
		if d.Intent != tt.intent {
			t.Errorf("Classify(%q) = %s, want %s", tt.message, d.Intent, tt.intent)
		}
	}
}

func TestClassifyDeleteBeatsQuery(t *testing.T) {
	c := NewClassifier("en", nil)
	// "remove" + "is the" both match; deletion must win when a
	// deletable thing is named.
	d := c.Classify("remove the automation, is the old one still there?", Tail{})
	if d.Intent != IntentDelete {
		t.Errorf("expected delete, got %s", d.Intent)
	}
}

func TestClassifyChatOnlyForShortMessages(t *testing.T) {
	c := NewClassifier("en", nil)
	d := c.Classify("hello, can you create an automation that greets me every morning", Tail{})
	if d.Intent == IntentChat {
		t.Error("long message with greeting word must not classify as chat")
	}
}

func TestClassifyToolSubsets(t *testing.T) {
	c := NewClassifier("en", nil)

	d := c.Classify("hi", Tail{})
	if d.Tools == nil || len(d.Tools) != 0 {
		t.Errorf("chat intent should carry an empty tool set, got %v", d.Tools)
	}
	if d.MaxRounds != 1 {
		t.Errorf("chat intent should cap rounds at 1, got %d", d.MaxRounds)
	}

	d = c.Classify("turn on the kitchen lights", Tail{})
	want := []string{"call_service", "search_entities", "get_entity_state"}
	if len(d.Tools) != len(want) {
		t.Fatalf("unexpected tools: %v", d.Tools)
	}
	for i, name := range want {
		if d.Tools[i] != name {
			t.Errorf("tools[%d] = %s, want %s", i, d.Tools[i], name)
		}
	}

	d = c.Classify("something entirely unrelated", Tail{})
	if d.Tools != nil {
		t.Errorf("generic intent should carry the full catalog (nil), got %v", d.Tools)
	}
}

func TestClassifyConfirmationContinuity(t *testing.T) {
	c := NewClassifier("en", nil)
	tail := Tail{PrevIntent: IntentCreateAuto, AwaitingConfirmation: true}

	d := c.Classify("yes", tail)
	if d.Intent != IntentCreateAuto {
		t.Errorf("expected inherited intent, got %s", d.Intent)
	}
	if d.Message == "" || !strings.Contains(d.Message, "Proceed") {
		t.Errorf("expected rewritten proceed instruction, got %q", d.Message)
	}

	d = c.Classify("no", tail)
	if d.Intent != IntentChat {
		t.Errorf("expected chat after decline, got %s", d.Intent)
	}
	if !strings.Contains(d.Message, "declined") {
		t.Errorf("expected decline instruction, got %q", d.Message)
	}

	// A full sentence is not a bare confirmation.
	d = c.Classify("yes but first change the trigger time in the automation", tail)
	if d.Message != "" {
		t.Error("long reply must not be treated as a confirmation token")
	}

	// "now" must not match the "no" token.
	d = c.Classify("now", tail)
	if d.Message != "" {
		t.Errorf("substring must not match a yes/no token, got %q", d.Message)
	}
}

func TestClassifyItalianConfirmation(t *testing.T) {
	c := NewClassifier("it", nil)
	tail := Tail{PrevIntent: IntentModifyAuto, AwaitingConfirmation: true}

	d := c.Classify("sì", tail)
	if d.Intent != IntentModifyAuto {
		t.Errorf("expected inherited intent, got %s", d.Intent)
	}
	d = c.Classify("si", tail)
	if d.Intent != IntentModifyAuto {
		t.Errorf("unaccented si should confirm too, got %s", d.Intent)
	}
}

func TestClassifyUnknownLanguageFallsBackToEnglish(t *testing.T) {
	c := NewClassifier("de", nil)
	if c.Language() != "en" {
		t.Errorf("expected fallback to en, got %s", c.Language())
	}
	d := c.Classify("turn on the light", Tail{})
	if d.Intent != IntentControlDevice {
		t.Errorf("unexpected intent: %s", d.Intent)
	}
}

func TestClassifyPromptCarriesLanguageInstruction(t *testing.T) {
	c := NewClassifier("it", nil)
	d := c.Classify("accendi la luce", Tail{})
	if !strings.Contains(d.Prompt, "italiano") {
		t.Errorf("expected italian respond instruction in prompt, got %q", d.Prompt)
	}
}
