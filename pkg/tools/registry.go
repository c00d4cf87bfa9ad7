package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrUnknownTool is returned when invoking a name no tool is registered
// under. This is a programming error, not a degraded result.
var ErrUnknownTool = errors.New("unknown tool")

// ErrAlreadyRegistered is returned by Register when the name is taken and
// override was not requested.
var ErrAlreadyRegistered = errors.New("tool already registered")

type registration struct {
	tool Tool
	tags []string
}

// Registry is the process-wide mapping of tool name to capability. Structural
// mutations take the write lock; Execute reads an immutable snapshot.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]registration
	retry  RetryPolicy
	masker OutputMasker
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error // test hook
}

// OutputMasker redacts sensitive material from tool output before it leaves
// the registry. Satisfied by masking.Service.
type OutputMasker interface {
	Mask(data string) string
}

// NewRegistry creates an empty registry with the given retry policy.
func NewRegistry(retry RetryPolicy) *Registry {
	return &Registry{
		tools:  make(map[string]registration),
		retry:  retry,
		logger: slog.Default().With("component", "tools"),
		sleep:  sleepCtx,
	}
}

// SetMasker installs an output masker applied to every successful result.
func (r *Registry) SetMasker(m OutputMasker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.masker = m
}

// Register adds a tool under its own name. With override false a duplicate
// name is an error; with override true the existing registration is replaced.
func (r *Registry) Register(tool Tool, override bool, tags ...string) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists && !override {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.tools[name] = registration{tool: tool, tags: tags}
	r.logger.Debug("tool registered", "tool", name, "tags", tags)
	return nil
}

// Discover registers every candidate that satisfies the Tool protocol,
// skipping the rest. Returns the names registered.
func (r *Registry) Discover(candidates ...any) []string {
	var names []string
	for _, c := range candidates {
		tool, ok := c.(Tool)
		if !ok {
			continue
		}
		if err := r.Register(tool, false); err != nil {
			r.logger.Warn("tool discovery skipped duplicate", "tool", tool.Name())
			continue
		}
		names = append(names, tool.Name())
	}
	return names
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// List returns definitions for all registered tools, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for name, reg := range r.tools {
		defs = append(defs, Definition{
			Name:        name,
			Description: reg.tool.Description(),
			Schema:      reg.tool.Schema(),
			Tags:        reg.tags,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute invokes a tool by name, gated by the run's budget and wrapped in
// the retry policy. The error return is reserved for fatal conditions
// (unknown tool, exhausted budget, context cancellation); everything else is
// expressed through the Result so callers can degrade instead of aborting.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, budget *Budget) (*Result, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	retry := r.retry
	masker := r.masker
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if err := budget.Take(); err != nil {
		return nil, err
	}

	start := time.Now()
	attempts := retry.attempts()
	var result *Result
	var err error
	var attempt int
	for attempt = 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := retry.Backoff << (attempt - 1)
			r.logger.Debug("retrying tool call", "tool", name, "attempt", attempt+1, "backoff", wait)
			if serr := r.sleep(ctx, wait); serr != nil {
				return nil, serr
			}
		}
		result, err = reg.tool.Invoke(ctx, args)
		if err == nil {
			break
		}
		if !Transient(err) {
			// Fail-fast: non-transient errors propagate as a failed Result.
			r.logger.Warn("tool call failed", "tool", name, "error", err)
			return annotate(Fail(err), name, attempt+1, start), nil
		}
		r.logger.Warn("transient tool failure", "tool", name, "attempt", attempt+1, "error", err)
	}
	if err != nil {
		// Retries exhausted.
		res := Fail(err).WithMeta("error_type", errorType(err))
		return annotate(res, name, attempt, start), nil
	}
	if result == nil {
		result = Ok("")
	}
	if masker != nil && result.Output != "" {
		result.Output = masker.Mask(result.Output)
	}
	return annotate(result, name, attempt+1, start), nil
}

func annotate(res *Result, name string, attempts int, start time.Time) *Result {
	return res.
		WithMeta("tool", name).
		WithMeta("attempts", attempts).
		WithMeta("duration_ms", time.Since(start).Milliseconds())
}

func errorType(err error) string {
	var to *TimeoutError
	if errors.As(err, &to) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if Transient(err) {
		return "transient"
	}
	return "error"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
