package llm

import (
	"testing"
)

func TestProvidersRegisterAndGet(t *testing.T) {
	p := NewProviders()
	scripted := &scriptedProvider{}
	p.Register(scripted)

	got, err := p.Get("scripted")
	if err != nil {
		t.Fatal(err)
	}
	if got != Provider(scripted) {
		t.Error("expected registered provider back")
	}

	// First registration becomes the default.
	def, err := p.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if def.Name() != "scripted" {
		t.Errorf("unexpected default: %s", def.Name())
	}

	if _, err := p.Get("nope"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestProvidersSetDefault(t *testing.T) {
	p := NewProviders()
	p.Register(&scriptedProvider{})

	if err := p.SetDefault("missing"); err == nil {
		t.Error("expected error for unknown default")
	}
	if err := p.SetDefault("scripted"); err != nil {
		t.Fatal(err)
	}

	names := p.Names()
	if len(names) != 1 || names[0] != "scripted" {
		t.Errorf("unexpected names: %v", names)
	}
}
