package memory

import (
	"context"
	"sync"

	"jokernotes/internal/domain/repositories"
)

// TransactionManager serializes units of work. Each repository call is
// already atomic; there is no rollback, so a failing fn leaves earlier
// writes in place.
type TransactionManager struct {
	mu sync.Mutex
}

// NewTransactionManager creates a serializing transaction manager
func NewTransactionManager() repositories.TransactionManager {
	return &TransactionManager{}
}

// ExecTx runs fn while holding the transaction lock
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return fn(ctx)
}
