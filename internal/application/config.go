package application

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fairfound/agentcore/internal/domain"
	"github.com/fairfound/agentcore/internal/ports"
)

// validate is the shared validator instance for config structs.
var validate = validator.New()

// Duration wraps time.Duration so YAML configs can use human-readable
// values like "500ms" or "2s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// RetryConfig is the YAML shape of a retry policy.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// Delay is the base delay before the first retry, e.g. "1s".
	Delay Duration `yaml:"delay"`

	// BackoffFactor multiplies the delay for each retry. Zero means the
	// default of 2.
	BackoffFactor float64 `yaml:"backoff_factor" validate:"omitempty,min=1"`
}

// Policy converts the config into a scheduler retry policy, filling
// unset fields from the defaults.
func (c RetryConfig) Policy() RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = c.MaxRetries
	if c.Delay > 0 {
		policy.Delay = time.Duration(c.Delay)
	}
	if c.BackoffFactor >= 1 {
		policy.BackoffFactor = c.BackoffFactor
	}
	return policy
}

// AgentConfig describes one agent in a pipeline config file.
type AgentConfig struct {
	// ID uniquely identifies the agent within the pipeline.
	ID string `yaml:"id" validate:"required"`

	// Capabilities lists what the agent can do, for discovery.
	Capabilities []string `yaml:"capabilities"`

	// Dependencies lists agent IDs that must succeed first.
	Dependencies []string `yaml:"dependencies"`

	// Priority breaks ties between agents that are ready at the same
	// time; higher runs first.
	Priority int `yaml:"priority"`

	// Kind classifies the agent's role.
	Kind string `yaml:"kind" validate:"omitempty,oneof=scoring collector evaluation other"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	// Version is an optional agent version label.
	Version string `yaml:"version"`

	// Description is optional human-readable documentation.
	Description string `yaml:"description"`
}

// PipelineConfig is the root of a pipeline YAML document.
type PipelineConfig struct {
	// Retry is the pipeline-wide retry policy.
	Retry RetryConfig `yaml:"retry"`

	// MaxHistory bounds the event bus history. Zero keeps the default.
	MaxHistory int `yaml:"max_history" validate:"min=0"`

	// QueueSize bounds the async publish queue. Zero keeps the default.
	QueueSize int `yaml:"queue_size" validate:"min=0"`

	// MaxConcurrency enables wave-parallel execution when above one.
	MaxConcurrency int `yaml:"max_concurrency" validate:"min=0"`

	// Agents lists the pipeline's agent descriptors.
	Agents []AgentConfig `yaml:"agents" validate:"required,min=1,dive"`
}

// LoadPipelineConfig reads and validates a pipeline config document.
func LoadPipelineConfig(r io.Reader) (*PipelineConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg PipelineConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPipelineConfigFile reads and validates a pipeline config file.
func LoadPipelineConfigFile(path string) (*PipelineConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pipeline config: %w", err)
	}
	defer f.Close()
	return LoadPipelineConfig(f)
}

// Validate checks field constraints plus the cross-agent invariants:
// unique IDs, no self-dependencies, and every dependency referencing a
// configured agent.
func (c *PipelineConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validating pipeline config: %w", err)
	}

	ids := make(map[string]bool, len(c.Agents))
	for _, agent := range c.Agents {
		if ids[agent.ID] {
			return fmt.Errorf("duplicate agent id %q in pipeline config", agent.ID)
		}
		ids[agent.ID] = true
	}

	for _, agent := range c.Agents {
		for _, dep := range agent.Dependencies {
			if dep == agent.ID {
				return fmt.Errorf("agent %q depends on itself", agent.ID)
			}
			if !ids[dep] {
				return fmt.Errorf("agent %q depends on unknown agent %q", agent.ID, dep)
			}
		}
	}
	return nil
}

// Info converts the config into an agent descriptor.
func (c AgentConfig) Info() domain.AgentInfo {
	enabled := true
	if c.Enabled != nil {
		enabled = *c.Enabled
	}
	kind := domain.AgentKind(c.Kind)
	if kind == "" {
		kind = domain.KindOther
	}
	return domain.AgentInfo{
		ID:           c.ID,
		Capabilities: c.Capabilities,
		Dependencies: c.Dependencies,
		Priority:     c.Priority,
		Kind:         kind,
		Enabled:      enabled,
		Version:      c.Version,
		Description:  c.Description,
	}
}

// BuildRegistry creates a registry from a validated config, binding each
// descriptor to its implementation. Every configured agent must have a
// runner.
func BuildRegistry(
	cfg *PipelineConfig,
	runners map[string]ports.Agent,
	opts ...RegistryOption,
) (*Registry, error) {
	registry := NewRegistry(opts...)
	for _, agent := range cfg.Agents {
		runner, ok := runners[agent.ID]
		if !ok {
			return nil, fmt.Errorf("no implementation provided for agent %q", agent.ID)
		}
		if err := registry.Register(agent.Info(), runner); err != nil {
			return nil, fmt.Errorf("registering agent %q: %w", agent.ID, err)
		}
	}
	return registry, nil
}
