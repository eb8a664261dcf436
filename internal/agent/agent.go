// Package agent lets a language model pick the analysis tools in a bounded
// loop, using a plain-text tool call syntax.
package agent

import (
	"context"
	"fmt"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/llm"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/metrics"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/tools"
)

const (
	// DefaultMaxTurns bounds the model calls of one run.
	DefaultMaxTurns = 15
	// TooManySteps is returned when the turn budget runs out.
	TooManySteps = "I needed too many steps. Here is what I have so far."
)

// Config wires an Agent.
type Config struct {
	Provider llm.Provider
	Registry *tools.Registry
	MaxTurns int
	Logger   logging.Logger
}

// Agent runs the model-driven loop. It is safe for concurrent runs as long
// as each run uses its own state.
type Agent struct {
	provider llm.Provider
	registry *tools.Registry
	parser   *Parser
	prompt   string
	maxTurns int
	logger   logging.Logger
}

// New creates an Agent.
func New(cfg Config) *Agent {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Agent{
		provider: cfg.Provider,
		registry: cfg.Registry,
		parser:   NewParser(cfg.Registry.Names()),
		prompt:   SystemPrompt(cfg.Registry),
		maxTurns: maxTurns,
		logger:   logger,
	}
}

// Result of an agent run.
type Result struct {
	Text      string
	State     *tools.State
	Turns     int
	ToolCalls []string
}

// Run answers userMessage. It never fails: model errors become the answer
// text and an exhausted turn budget yields TooManySteps. A nil prior starts
// from an empty state; otherwise prior is updated in place.
func (a *Agent) Run(ctx context.Context, userMessage string, prior *tools.State) Result {
	state := prior
	if state == nil {
		state = tools.NewState()
	}
	res := Result{State: state}
	defer func() { metrics.AgentTurns.Observe(float64(res.Turns)) }()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: a.prompt},
		{Role: llm.RoleUser, Content: userMessage},
	}

	for turn := 1; turn <= a.maxTurns; turn++ {
		res.Turns = turn
		log := a.logger.WithFields(logging.Fields{"turn": turn, "max_turns": a.maxTurns})

		reply, err := a.provider.Chat(ctx, messages)
		if err != nil {
			log.WithError(err).Warn("model call failed")
			res.Text = fmt.Sprintf("Sorry, I could not reach the language model: %v", err)
			return res
		}

		call, ok := a.parser.Parse(reply)
		if !ok {
			log.Info("agent finished")
			res.Text = a.parser.Clean(reply)
			return res
		}

		log.WithField("tool", call.Name).Info("tool call")
		res.ToolCalls = append(res.ToolCalls, call.Name)
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: reply})

		text := a.registry.Invoke(ctx, call.Name, call.Args, state)
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Result of %s:\n\n%s\n\nContinue with the next step.", call.Name, text),
		})
	}

	a.logger.WithField("max_turns", a.maxTurns).Warn("agent ran out of turns")
	res.Text = TooManySteps
	return res
}
