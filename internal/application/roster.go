package application

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Laisky/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/domain"
	"github.com/ahrav/go-maestro/internal/ports"
)

// Roster declares the agent tree: one orchestrator and the specialists it
// delegates to.
type Roster struct {
	Orchestrator AgentSpec   `yaml:"orchestrator"`
	Specialists  []AgentSpec `yaml:"specialists" validate:"required,min=1,dive"`
}

// AgentSpec is the declarative form of one agent.
type AgentSpec struct {
	// Name is the agent identifier. For specialists it is also the tool
	// name the orchestrator calls and the agent name recorded in traces.
	Name string `yaml:"name" validate:"required,identifier"`

	// Description is what a parent model reads when choosing a specialist.
	Description string `yaml:"description" validate:"required,max=1024"`

	Prompt string `yaml:"prompt" validate:"required"`

	// Model overrides the configured default "provider/model".
	Model string `yaml:"model,omitempty" validate:"omitempty,modelformat"`

	// Tools lists the concrete tools of a specialist. The orchestrator's
	// tools are the specialists themselves, so it leaves this empty.
	Tools []string `yaml:"tools,omitempty" validate:"dive,identifier"`

	// RoundLimit overrides the configured round limit.
	RoundLimit int `yaml:"round_limit,omitempty" validate:"min=0,max=20"`

	// Temperature and MaxTokens override the configured sampling settings.
	Temperature *float64 `yaml:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" validate:"min=0"`
}

// LoadRoster reads and validates a roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	return ParseRoster(bytes.NewReader(data))
}

// ParseRoster decodes a roster document with unknown fields rejected and
// validates it.
func ParseRoster(r io.Reader) (*Roster, error) {
	var roster Roster
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&roster); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}

	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	if err := v.Struct(&roster); err != nil {
		return nil, fmt.Errorf("struct validation failed: %w", err)
	}
	if err := roster.validateSemantics(); err != nil {
		return nil, err
	}
	return &roster, nil
}

// validateSemantics checks the rules struct tags cannot express: agent
// names are unique and every specialist owns at least one tool.
func (r *Roster) validateSemantics() error {
	verr := domain.NewValidationError("Roster")

	seen := map[string]struct{}{r.Orchestrator.Name: {}}
	if len(r.Orchestrator.Tools) > 0 {
		verr.AddError(fmt.Sprintf("orchestrator %s must not list tools", r.Orchestrator.Name))
	}
	for _, s := range r.Specialists {
		if _, dup := seen[s.Name]; dup {
			verr.AddError(fmt.Sprintf("duplicate agent name %q", s.Name))
		}
		seen[s.Name] = struct{}{}

		if len(s.Tools) == 0 {
			verr.AddError(fmt.Sprintf("specialist %s has no tools", s.Name))
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// ModelSpecs returns the distinct "provider/model" specs the roster uses,
// orchestrator first, with defaultModel standing in for agents that name
// none.
func (r *Roster) ModelSpecs(defaultModel string) []string {
	var specs []string
	seen := make(map[string]bool)
	for _, spec := range append([]AgentSpec{r.Orchestrator}, r.Specialists...) {
		m := spec.Model
		if m == "" {
			m = defaultModel
		}
		if m != "" && !seen[m] {
			seen[m] = true
			specs = append(specs, m)
		}
	}
	return specs
}

// ModelResolver maps a "provider/model" spec to a chat client.
type ModelResolver func(spec string) (ports.ChatModel, error)

// BuildOptions carries the runtime settings shared by every agent of a
// roster.
type BuildOptions struct {
	DefaultModel string
	RoundLimit   int
	MaxDepth     int

	// Temperature and MaxTokens apply to every agent whose spec does not
	// set its own. A nil Temperature leaves the provider default.
	Temperature *float64
	MaxTokens   int

	// Wrap, when set, decorates every agent before it is exposed to its
	// parent or returned, e.g. with a budget guard.
	Wrap func(ports.Agent) ports.Agent

	// AgentOptions are applied to every agent.
	AgentOptions []AgentOption

	Logger *zap.Logger
}

// BuildOrchestrator assembles the agent tree described by r. Specialist
// tools are taken from available; a specialist whose tools are not all
// available, because their integration is disabled, is left out with a
// warning. The orchestrator sees each remaining specialist as a
// DelegateTool.
func BuildOrchestrator(r *Roster, available *tools.Registry, resolve ModelResolver, opts BuildOptions) (ports.Agent, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	wrap := opts.Wrap
	if wrap == nil {
		wrap = func(a ports.Agent) ports.Agent { return a }
	}

	delegates, err := tools.NewRegistry()
	if err != nil {
		return nil, err
	}

	var listing []string
	for _, spec := range r.Specialists {
		if missing := missingTools(available, spec.Tools); len(missing) > 0 {
			logger.Warn("specialist disabled: tools unavailable",
				zap.String("specialist", spec.Name),
				zap.Strings("missing", missing),
			)
			continue
		}

		toolset, err := available.Subset(spec.Tools...)
		if err != nil {
			return nil, fmt.Errorf("specialist %s: %w", spec.Name, err)
		}
		agent, err := buildAgent(spec, toolset, resolve, opts)
		if err != nil {
			return nil, err
		}
		if err := delegates.Register(NewDelegateTool(wrap(agent))); err != nil {
			return nil, err
		}
		listing = append(listing, fmt.Sprintf("- %s: %s", spec.Name, oneLine(spec.Description)))
	}

	if len(listing) == 0 {
		return nil, fmt.Errorf("roster: %w: no specialist has its tools available", domain.ErrInvalidConfiguration)
	}

	orchestrator := r.Orchestrator
	orchestrator.Prompt = strings.TrimSpace(orchestrator.Prompt) +
		"\n\n사용 가능한 전문가 목록은 다음과 같습니다:\n" + strings.Join(listing, "\n")

	agent, err := buildAgent(orchestrator, delegates, resolve, opts)
	if err != nil {
		return nil, err
	}
	return wrap(agent), nil
}

func buildAgent(spec AgentSpec, toolset *tools.Registry, resolve ModelResolver, opts BuildOptions) (*Agent, error) {
	modelSpec := spec.Model
	if modelSpec == "" {
		modelSpec = opts.DefaultModel
	}
	model, err := resolve(modelSpec)
	if err != nil {
		return nil, fmt.Errorf("agent %s: resolve model %s: %w", spec.Name, modelSpec, err)
	}

	roundLimit := opts.RoundLimit
	if spec.RoundLimit > 0 {
		roundLimit = spec.RoundLimit
	}

	agentOpts := append([]AgentOption{}, opts.AgentOptions...)
	if opts.Logger != nil {
		agentOpts = append(agentOpts, WithLogger(opts.Logger))
	}

	temperature := opts.Temperature
	if spec.Temperature != nil {
		temperature = spec.Temperature
	}
	if temperature != nil {
		agentOpts = append(agentOpts, WithTemperature(*temperature))
	}
	maxTokens := opts.MaxTokens
	if spec.MaxTokens > 0 {
		maxTokens = spec.MaxTokens
	}
	if maxTokens > 0 {
		agentOpts = append(agentOpts, WithMaxTokens(maxTokens))
	}

	return NewAgent(AgentConfig{
		Name:        spec.Name,
		Description: spec.Description,
		Prompt:      spec.Prompt,
		Model:       model,
		Tools:       toolset,
		RoundLimit:  roundLimit,
		MaxDepth:    opts.MaxDepth,
	}, agentOpts...)
}

func missingTools(available *tools.Registry, names []string) []string {
	var missing []string
	for _, n := range names {
		if _, ok := available.Lookup(n); !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
