package tx

import (
	"context"
	"sync"

	dErrors "gestionale/pkg/domain-errors"
)

// LockRunner is the in-memory counterpart of Runner: it serialises units of work
// behind a single mutex. There is no rollback, so a failing fn leaves earlier
// writes in place.
type LockRunner struct {
	mu sync.Mutex
}

// NewLockRunner creates a LockRunner.
func NewLockRunner() *LockRunner {
	return &LockRunner{}
}

// RunInTx runs fn while holding the lock. Calls must not nest.
func (r *LockRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}
