package controller

import "github.com/codeready-toolchain/scout/pkg/agent"

// Policy controls when the continuation loop keeps driving the LLM.
type Policy struct {
	ContinueOnToolCalls bool
	ContinueOnLength    bool
	StopOnToolFailure   bool
	MaxIterations       int
	Parallel            bool // execute sibling tool calls concurrently
}

// DefaultPolicy continues on tool calls, stops on natural completion, and
// bounds the loop at ten iterations.
var DefaultPolicy = Policy{
	ContinueOnToolCalls: true,
	MaxIterations:       10,
}

// StopCause explains why the loop stopped.
type StopCause string

const (
	StopNatural       StopCause = "natural_stop"
	StopLength        StopCause = "length"
	StopToolFailure   StopCause = "tool_failure"
	StopMaxIterations StopCause = "max_iterations"
	StopCancelled     StopCause = "cancelled"
)

// Decision is the outcome of one continuation check.
type Decision struct {
	Continue bool
	Cause    StopCause // set when Continue is false
}

// Decide is the pure continuation function: given the completed iteration
// count, the finish reason, whether tool calls were detected, and whether any
// tool failed, it returns whether the loop re-invokes the LLM. Order matters:
// the iteration budget outranks everything, then tool failure, then the
// tool-call and length continuation rules.
func Decide(iterations int, reason agent.FinishReason, hasToolCalls, toolFailed bool, p Policy) Decision {
	if p.MaxIterations > 0 && iterations >= p.MaxIterations {
		return Decision{Cause: StopMaxIterations}
	}
	if toolFailed && p.StopOnToolFailure {
		return Decision{Cause: StopToolFailure}
	}
	if hasToolCalls && p.ContinueOnToolCalls {
		return Decision{Continue: true}
	}
	if reason.Truncated() {
		if p.ContinueOnLength {
			return Decision{Continue: true}
		}
		return Decision{Cause: StopLength}
	}
	return Decision{Cause: StopNatural}
}
