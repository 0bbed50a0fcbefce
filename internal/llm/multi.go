package llm

import (
	"context"
	"fmt"
	"sort"
)

// Providers routes requests to configured adapters by provider name.
// The zero value is not usable; construct with NewProviders.
type Providers struct {
	byName      map[string]Provider
	defaultName string
}

// NewProviders creates an empty provider table.
func NewProviders() *Providers {
	return &Providers{byName: make(map[string]Provider)}
}

// Register adds a provider under its own name. The first registered
// provider becomes the default until SetDefault overrides it.
func (p *Providers) Register(provider Provider) {
	if p.defaultName == "" {
		p.defaultName = provider.Name()
	}
	p.byName[provider.Name()] = provider
}

// SetDefault selects the provider used when a request names none.
func (p *Providers) SetDefault(name string) error {
	if _, ok := p.byName[name]; !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	p.defaultName = name
	return nil
}

// Get returns the provider for name, or the default when name is empty.
func (p *Providers) Get(name string) (Provider, error) {
	if name == "" {
		name = p.defaultName
	}
	provider, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("no provider configured for %q", name)
	}
	return provider, nil
}

// Names returns the registered provider names, sorted.
func (p *Providers) Names() []string {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ping checks the default provider.
func (p *Providers) Ping(ctx context.Context) error {
	provider, err := p.Get("")
	if err != nil {
		return err
	}
	return provider.Ping(ctx)
}
