package indexer

import (
	"sync"
	"sync/atomic"
)

// IndexLock provides non-blocking lock semantics using atomic operations.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// manualLocks hands out one IndexLock per manual ID
type manualLocks struct {
	mu    sync.Mutex
	locks map[string]*IndexLock
}

func (m *manualLocks) get(manualID string) *IndexLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]*IndexLock)
	}
	l, ok := m.locks[manualID]
	if !ok {
		l = &IndexLock{}
		m.locks[manualID] = l
	}
	return l
}
