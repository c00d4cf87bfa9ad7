package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/scout/pkg/agent"
)

func TestDecide(t *testing.T) {
	base := Policy{ContinueOnToolCalls: true, MaxIterations: 5}

	tests := []struct {
		name         string
		iterations   int
		reason       agent.FinishReason
		hasToolCalls bool
		toolFailed   bool
		policy       Policy
		wantContinue bool
		wantCause    StopCause
	}{
		{
			name: "natural stop ends the loop",
			iterations: 1, reason: agent.FinishStop,
			policy: base, wantCause: StopNatural,
		},
		{
			name: "end_turn is also natural",
			iterations: 1, reason: agent.FinishEndTurn,
			policy: base, wantCause: StopNatural,
		},
		{
			name: "tool calls continue",
			iterations: 1, reason: agent.FinishToolCalls, hasToolCalls: true,
			policy: base, wantContinue: true,
		},
		{
			name: "iteration budget outranks tool calls",
			iterations: 5, reason: agent.FinishToolCalls, hasToolCalls: true,
			policy: base, wantCause: StopMaxIterations,
		},
		{
			name: "tool failure with stop policy",
			iterations: 1, reason: agent.FinishToolCalls, hasToolCalls: true, toolFailed: true,
			policy: Policy{ContinueOnToolCalls: true, StopOnToolFailure: true, MaxIterations: 5},
			wantCause: StopToolFailure,
		},
		{
			name: "tool failure without stop policy continues",
			iterations: 1, reason: agent.FinishToolCalls, hasToolCalls: true, toolFailed: true,
			policy: base, wantContinue: true,
		},
		{
			name: "length without continue policy stops",
			iterations: 1, reason: agent.FinishLength,
			policy: base, wantCause: StopLength,
		},
		{
			name: "length with continue policy continues",
			iterations: 1, reason: agent.FinishMaxTokens,
			policy: Policy{ContinueOnLength: true, MaxIterations: 5},
			wantContinue: true,
		},
		{
			name: "zero max iterations means unbounded here",
			iterations: 100, reason: agent.FinishToolCalls, hasToolCalls: true,
			policy: Policy{ContinueOnToolCalls: true}, wantContinue: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.iterations, tc.reason, tc.hasToolCalls, tc.toolFailed, tc.policy)
			assert.Equal(t, tc.wantContinue, d.Continue)
			if !tc.wantContinue {
				assert.Equal(t, tc.wantCause, d.Cause)
			}
		})
	}
}

func TestDecideIsPure(t *testing.T) {
	p := Policy{ContinueOnToolCalls: true, MaxIterations: 3}
	first := Decide(2, agent.FinishToolCalls, true, false, p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Decide(2, agent.FinishToolCalls, true, false, p))
	}
}
