package tools

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrBudgetExceeded is returned when a run's cumulative tool-call budget is
// exhausted. It is fatal: the run terminates with a diagnostic final report.
var ErrBudgetExceeded = errors.New("tool call budget exceeded")

// Budget is a run-scoped cumulative tool-call counter. A limit of 0 means
// unlimited. Safe for concurrent use by parallel searchers.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget creates a budget with the given limit; limit <= 0 is unlimited.
func NewBudget(limit int) *Budget {
	b := &Budget{}
	if limit > 0 {
		b.limit = int64(limit)
	}
	return b
}

// Take consumes one call from the budget. The call that would push the count
// past the limit fails, so the count never exceeds the limit.
func (b *Budget) Take() error {
	if b == nil {
		return nil
	}
	n := b.used.Add(1)
	if b.limit > 0 && n > b.limit {
		b.used.Add(-1)
		return fmt.Errorf("%w: limit %d", ErrBudgetExceeded, b.limit)
	}
	return nil
}

// Used returns the number of calls consumed so far.
func (b *Budget) Used() int {
	if b == nil {
		return 0
	}
	return int(b.used.Load())
}

// Limit returns the configured limit; 0 means unlimited.
func (b *Budget) Limit() int {
	if b == nil {
		return 0
	}
	return int(b.limit)
}
