package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool is a scriptable tool for registry tests.
type fakeTool struct {
	name    string
	invoke  func(ctx context.Context, args map[string]any) (*Result, error)
	invoked int
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool" }
func (f *fakeTool) Schema() string      { return `{"type":"object"}` }
func (f *fakeTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	f.invoked++
	return f.invoke(ctx, args)
}

func newTestRegistry(t *testing.T, retry RetryPolicy) (*Registry, *[]time.Duration) {
	t.Helper()
	reg := NewRegistry(retry)
	var waits []time.Duration
	reg.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return reg, &waits
}

func TestRegistryRegister(t *testing.T) {
	reg, _ := newTestRegistry(t, RetryPolicy{})
	tool := &fakeTool{name: "echo", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
		return Ok("hi"), nil
	}}

	require.NoError(t, reg.Register(tool, false))

	t.Run("duplicate without override fails", func(t *testing.T) {
		err := reg.Register(tool, false)
		assert.ErrorIs(t, err, ErrAlreadyRegistered)
	})

	t.Run("duplicate with override replaces", func(t *testing.T) {
		replacement := &fakeTool{name: "echo", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
			return Ok("replaced"), nil
		}}
		require.NoError(t, reg.Register(replacement, true))
		res, err := reg.Execute(context.Background(), "echo", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "replaced", res.Output)
	})

	t.Run("list is sorted", func(t *testing.T) {
		other := &fakeTool{name: "a_first", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
			return Ok(""), nil
		}}
		require.NoError(t, reg.Register(other, false, "test"))
		defs := reg.List()
		require.Len(t, defs, 2)
		assert.Equal(t, "a_first", defs[0].Name)
		assert.Equal(t, []string{"test"}, defs[0].Tags)
	})
}

func TestRegistryDiscover(t *testing.T) {
	reg, _ := newTestRegistry(t, RetryPolicy{})
	tool := &fakeTool{name: "found", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
		return Ok(""), nil
	}}

	names := reg.Discover(tool, "not a tool", 42, nil)
	assert.Equal(t, []string{"found"}, names)

	_, ok := reg.Get("found")
	assert.True(t, ok)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	reg, _ := newTestRegistry(t, RetryPolicy{})
	_, err := reg.Execute(context.Background(), "missing", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistryBudget(t *testing.T) {
	reg, _ := newTestRegistry(t, RetryPolicy{})
	tool := &fakeTool{name: "counted", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
		return Ok("ok"), nil
	}}
	require.NoError(t, reg.Register(tool, false))

	budget := NewBudget(2)
	for i := 0; i < 2; i++ {
		_, err := reg.Execute(context.Background(), "counted", nil, budget)
		require.NoError(t, err)
	}

	// Third call breaches the budget and is fatal; the count never exceeds
	// the limit and the tool is not invoked.
	_, err := reg.Execute(context.Background(), "counted", nil, budget)
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, 2, budget.Used())
	assert.Equal(t, 2, tool.invoked)
}

func TestBudgetUnlimited(t *testing.T) {
	budget := NewBudget(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, budget.Take())
	}
	assert.Equal(t, 100, budget.Used())

	t.Run("nil budget is unlimited", func(t *testing.T) {
		var b *Budget
		assert.NoError(t, b.Take())
		assert.Equal(t, 0, b.Used())
	})
}

func TestBudgetConcurrent(t *testing.T) {
	budget := NewBudget(50)
	var wg sync.WaitGroup
	granted := make(chan struct{}, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if budget.Take() == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)
	assert.Equal(t, 50, len(granted))
	assert.Equal(t, 50, budget.Used())
}

func TestRegistryRetryTransient(t *testing.T) {
	reg, waits := newTestRegistry(t, RetryPolicy{Enabled: true, MaxAttempts: 3, Backoff: time.Second})
	attempts := 0
	tool := &fakeTool{name: "flaky", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
		attempts++
		if attempts < 3 {
			return nil, Transientf("rate limited")
		}
		return Ok("finally"), nil
	}}
	require.NoError(t, reg.Register(tool, false))

	res, err := reg.Execute(context.Background(), "flaky", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "finally", res.Output)
	// Exponential backoff: b, 2b.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
	assert.Equal(t, 3, res.Metadata["attempts"])
}

func TestRegistryRetryExhausted(t *testing.T) {
	reg, waits := newTestRegistry(t, RetryPolicy{Enabled: true, MaxAttempts: 2, Backoff: 100 * time.Millisecond})
	tool := &fakeTool{name: "down", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
		return nil, Transientf("still down")
	}}
	require.NoError(t, reg.Register(tool, false))

	res, err := reg.Execute(context.Background(), "down", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "still down")
	assert.Equal(t, "transient", res.Metadata["error_type"])
	assert.Len(t, *waits, 1)
	assert.Equal(t, 2, tool.invoked)
}

func TestRegistryFailFastOnNonTransient(t *testing.T) {
	reg, waits := newTestRegistry(t, RetryPolicy{Enabled: true, MaxAttempts: 5, Backoff: time.Second})
	tool := &fakeTool{name: "broken", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
		return nil, errors.New("bad input")
	}}
	require.NoError(t, reg.Register(tool, false))

	res, err := reg.Execute(context.Background(), "broken", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "bad input")
	assert.Empty(t, *waits, "non-transient errors must not retry")
	assert.Equal(t, 1, tool.invoked)
}

func TestRegistryRetryDisabled(t *testing.T) {
	reg, waits := newTestRegistry(t, RetryPolicy{Enabled: false, MaxAttempts: 5, Backoff: time.Second})
	tool := &fakeTool{name: "flaky", invoke: func(_ context.Context, _ map[string]any) (*Result, error) {
		return nil, Transientf("rate limited")
	}}
	require.NoError(t, reg.Register(tool, false))

	res, err := reg.Execute(context.Background(), "flaky", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, *waits)
	assert.Equal(t, 1, tool.invoked)
}

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"marked transient", Transientf("x"), true},
		{"wrapped transient", fmt.Errorf("outer: %w", Transientf("x")), true},
		{"timeout error", &TimeoutError{Tool: "t", Elapsed: time.Second}, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancellation", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.transient, Transient(tc.err))
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("result passthrough", func(t *testing.T) {
		r := &Result{Success: true, Output: "x"}
		assert.Same(t, r, Normalize(r))
	})
	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "hello", Normalize("hello").Output)
	})
	t.Run("struct is JSON encoded", func(t *testing.T) {
		res := Normalize(map[string]int{"n": 3})
		assert.True(t, res.Success)
		assert.JSONEq(t, `{"n":3}`, res.Output)
	})
	t.Run("error wraps as failure", func(t *testing.T) {
		res := Normalize(errors.New("boom"))
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "boom")
	})
	t.Run("nil is empty success", func(t *testing.T) {
		res := Normalize(nil)
		assert.True(t, res.Success)
		assert.Empty(t, res.Output)
	})
}

func TestFuncTool(t *testing.T) {
	type args struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}
	tool := NewFunc("lookup", "looks things up", func(_ context.Context, a args) (any, error) {
		return fmt.Sprintf("%s/%d", a.Query, a.Limit), nil
	})

	assert.Equal(t, "lookup", tool.Name())
	assert.Contains(t, tool.Schema(), "query")

	res, err := tool.Invoke(context.Background(), map[string]any{"query": "go", "limit": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "go/3", res.Output)

	t.Run("malformed arguments degrade to failed result", func(t *testing.T) {
		res, err := tool.Invoke(context.Background(), map[string]any{"limit": "not a number"})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})
}
