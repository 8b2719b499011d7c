package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"wrpl-inspect/internal/config"
	"wrpl-inspect/internal/metrics"
)

// Env carries what handler factories may need besides their own config.
type Env struct {
	Out     io.Writer
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// HandlerConfig represents a handler configuration. Config holds the sink
// options as JSON.
type HandlerConfig struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// HandlerFactory creates a handler from JSON config.
type HandlerFactory func(config json.RawMessage, env Env) (Handler, error)

// registry holds all registered handler factories.
var registry = map[string]HandlerFactory{}

// Register adds a handler factory to the registry.
func Register(name string, factory HandlerFactory) {
	registry[name] = factory
}

// FromSinks converts the [[sinks]] tables of the config file.
func FromSinks(sinks []config.SinkConfig) ([]HandlerConfig, error) {
	out := make([]HandlerConfig, 0, len(sinks))
	for i, s := range sinks {
		hc := HandlerConfig{Type: s.Type}
		if len(s.Options) > 0 {
			raw, err := json.Marshal(s.Options)
			if err != nil {
				return nil, fmt.Errorf("sinks[%d] options: %w", i, err)
			}
			hc.Config = raw
		}
		out = append(out, hc)
	}
	return out, nil
}

// BuildChain creates a handler chain from configuration.
func BuildChain(configs []HandlerConfig, env Env) (*Chain, error) {
	if env.Out == nil {
		env.Out = io.Discard
	}
	var handlers []Handler
	for _, cfg := range configs {
		factory, ok := registry[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("unknown handler type: %s", cfg.Type)
		}
		h, err := factory(cfg.Config, env)
		if err != nil {
			return nil, fmt.Errorf("failed to create handler %s: %w", cfg.Type, err)
		}
		handlers = append(handlers, h)
	}
	return NewChain(handlers...), nil
}

// ListHandlers returns all registered handler names, sorted.
func ListHandlers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeConfig unmarshals raw into out, leaving out untouched when raw is
// empty.
func decodeConfig(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
