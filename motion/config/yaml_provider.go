package config

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLProvider is a Provider backed by an in-memory YAML document, the
// way x/marshaller/yaml wraps gopkg.in/yaml.v3 elsewhere in this module.
// It exists so the motion core is exercisable standalone and in tests
// without the real (out-of-scope) persistent configuration store.
type YAMLProvider struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewYAMLProvider parses doc (a flat token->value YAML mapping) into a
// Provider.
func NewYAMLProvider(doc []byte) (*YAMLProvider, error) {
	var raw map[string]string
	if len(doc) > 0 {
		if err := yaml.Unmarshal(doc, &raw); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	if raw == nil {
		raw = map[string]string{}
	}
	return &YAMLProvider{values: raw}, nil
}

// Get implements Provider.
func (p *YAMLProvider) Get(token string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[token]
	return v, ok
}

// Set implements Provider, writing through synchronously. Unrecognized
// tokens are rejected rather than silently stored, matching the firmware's
// behavior of reporting an error back to the command that tried to set
// them.
func (p *YAMLProvider) Set(token, value string) error {
	if !KnownToken(token) {
		return ErrUnknownToken(token)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[token] = value
	return nil
}

// Marshal returns the provider's current contents re-encoded as YAML,
// mirroring x/marshaller/yaml.Marshaller's encoder settings (2-space
// indent).
func (p *YAMLProvider) Marshal() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return yaml.Marshal(p.values)
}
