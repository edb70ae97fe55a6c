// Package memory provides in-process repositories for development and tests.
// They keep the same semantics as the Postgres repositories: approval status
// changes are compare-and-swap, and writes made inside ExecTx are undone when
// the transaction function fails. Approval records written by an open
// transaction are locked until it ends, like a row lock.
package memory

import (
	"context"
	"sync"

	"council/internal/domain/repositories"
)

type txContextKey struct{}

// undoLog records how to reverse the writes made in one transaction, and what
// to release once it commits or rolls back.
type undoLog struct {
	mu   sync.Mutex
	fns  []func()
	done []func()
}

func (l *undoLog) add(fn func()) {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

func (l *undoLog) rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.fns) - 1; i >= 0; i-- {
		l.fns[i]()
	}
	l.fns = nil
}

func (l *undoLog) onDone(fn func()) {
	l.mu.Lock()
	l.done = append(l.done, fn)
	l.mu.Unlock()
}

func (l *undoLog) finish() {
	l.mu.Lock()
	done := l.done
	l.done = nil
	l.mu.Unlock()
	for _, fn := range done {
		fn()
	}
}

// txLog returns the transaction open in ctx, or nil.
func txLog(ctx context.Context) *undoLog {
	log, _ := ctx.Value(txContextKey{}).(*undoLog)
	return log
}

// onRollback registers fn to run if the transaction in ctx fails.
// Outside a transaction it does nothing.
func onRollback(ctx context.Context, fn func()) {
	if log := txLog(ctx); log != nil {
		log.add(fn)
	}
}

// TransactionManager runs transaction functions one at a time.
type TransactionManager struct {
	mu sync.Mutex
}

// NewTransactionManager creates a transaction manager for the memory repositories.
func NewTransactionManager() repositories.TransactionManager {
	return &TransactionManager{}
}

// ExecTx runs fn in a transaction. Nested calls join the outer transaction.
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if txLog(ctx) != nil {
		return fn(ctx)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	log := &undoLog{}
	defer log.finish()
	if err := fn(context.WithValue(ctx, txContextKey{}, log)); err != nil {
		log.rollback()
		return err
	}
	return nil
}
