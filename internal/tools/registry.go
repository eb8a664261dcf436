// Package tools holds the named operations shared by the fixed pipeline and
// the model-driven agent. Both drive the same Registry.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/metrics"
)

// Handler runs one operation. A non-nil Result.Value is stored in the state
// under the tool name.
type Handler func(ctx context.Context, args map[string]any, state *State) (Result, error)

// Result is a short human-readable status plus an optional structured value.
type Result struct {
	Text  string
	Value any
}

// Tool is a named operation.
type Tool struct {
	Name        string
	Description string
	// Arguments documents the accepted argument names for the model.
	Arguments string
	// Progress is a one-line status shown while the tool runs.
	Progress string
	Handler  Handler
}

// Validate checks that the tool can be registered.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: %s", ErrToolHandlerNil, t.Name)
	}
	return nil
}

// Registry holds the available tools. Registration is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{tools: make(map[string]*Tool), logger: logger}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// MustRegister registers a tool and panics on error.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the tools sorted by name.
func (r *Registry) All() []*Tool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n])
	}
	return out
}

// Call runs a tool and stores its value in state. A panicking handler
// returns a *PanicError.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any, state *State) (Result, error) {
	tool := r.Get(name)
	if tool == nil {
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if state == nil {
		state = NewState()
	}

	// Argument values may hold credentials; only keys are logged.
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	log := r.logger.WithFields(logging.Fields{"tool": name, "args": keys})
	log.Info(tool.Progress)

	start := time.Now()
	res, err := runHandler(ctx, tool, args, state)
	log = log.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		var pe *PanicError
		if errors.As(err, &pe) {
			metrics.ToolCalls.WithLabelValues(name, "panic").Inc()
			log.WithField("panic", pe.Error()).Error("tool panicked")
			return Result{}, err
		}
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		log.WithError(err).Warn("tool failed")
		return Result{}, err
	}
	if res.Value != nil {
		state.Set(name, res.Value)
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	log.Debug("tool finished")
	return res, nil
}

// runHandler turns a panic in the handler into a *PanicError.
func runHandler(ctx context.Context, tool *Tool, args map[string]any, state *State) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = Result{}, &PanicError{Value: p}
		}
	}()
	return tool.Handler(ctx, args, state)
}

// Invoke is Call for callers that only understand text: every failure,
// including a panic in the handler, comes back as "operation <name> failed: <reason>".
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, state *State) string {
	res, err := r.Call(ctx, name, args, state)
	if err != nil {
		return FailureText(name, err)
	}
	return res.Text
}

// FailureText formats a tool failure for the model.
func FailureText(name string, err error) string {
	return fmt.Sprintf("operation %s failed: %v", name, err)
}
