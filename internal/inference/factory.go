package inference

import (
	"fmt"

	"docpipe/internal/config"
	"docpipe/internal/port"
)

// ProviderFactory is a function that creates an InferenceClient from the
// inference config.
type ProviderFactory func(cfg *config.InferenceConfig) (port.InferenceClient, error)

// registry of provider factories, populated by init() in each provider
// package or explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers an inference provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewClient creates an InferenceClient using the registered factory for the
// configured provider.
func NewClient(cfg *config.InferenceConfig) (port.InferenceClient, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown inference provider: %s", cfg.Provider)
	}
	return factory(cfg)
}
