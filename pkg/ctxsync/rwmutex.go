// Package ctxsync contains locks whose acquisition can be abandoned through
// a context.
package ctxsync

import (
	"context"
	"sync"
)

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	held chan struct{}
}

// NewMutex creates a new instance of Mutex.
func NewMutex() *Mutex {
	return &Mutex{held: make(chan struct{}, 1)}
}

// Lock locks the mutex with a context.Background().
func (m *Mutex) Lock() {
	_ = m.LockWithContext(context.Background())
}

// LockWithContext locks until Unlock is called or ctx is done, returning
// the cause of ctx in the latter case.
func (m *Mutex) LockWithContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	default:
	}
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case m.held <- struct{}{}:
		return nil
	}
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	select {
	case m.held <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock unlocks m.
func (m *Mutex) Unlock() {
	select {
	case <-m.held:
	default:
		panic("ctxsync: unlock of unlocked mutex")
	}
}

// RWMutex is a reader/writer lock. A waiting writer blocks new readers, so
// writers are not starved by a steady flow of reads.
type RWMutex struct {
	// gate is held by writers for their whole critical section and by
	// readers only while registering.
	gate *Mutex

	mu      sync.Mutex
	readers int
	// idle is closed whenever readers is zero.
	idle chan struct{}
}

// NewRWMutex creates a new instance of RWMutex.
func NewRWMutex() *RWMutex {
	idle := make(chan struct{})
	close(idle)
	return &RWMutex{gate: NewMutex(), idle: idle}
}

// RLock locks m for reading with a context.Background().
func (m *RWMutex) RLock() {
	_ = m.RLockWithContext(context.Background())
}

// RLockWithContext locks m for reading until ctx is done.
func (m *RWMutex) RLockWithContext(ctx context.Context) error {
	if err := m.gate.LockWithContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.readers++
	if m.readers == 1 {
		m.idle = make(chan struct{})
	}
	m.mu.Unlock()
	m.gate.Unlock()
	return nil
}

// RUnlock undoes a single RLock call.
func (m *RWMutex) RUnlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readers == 0 {
		panic("ctxsync: RUnlock of unlocked RWMutex")
	}
	m.readers--
	if m.readers == 0 {
		close(m.idle)
	}
}

// Lock locks m for writing with a context.Background().
func (m *RWMutex) Lock() {
	_ = m.LockWithContext(context.Background())
}

// LockWithContext locks m for writing, waiting for active readers to
// leave, until ctx is done.
func (m *RWMutex) LockWithContext(ctx context.Context) error {
	if err := m.gate.LockWithContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()
	select {
	case <-ctx.Done():
		m.gate.Unlock()
		return context.Cause(ctx)
	case <-idle:
		return nil
	}
}

// Unlock unlocks m for writing.
func (m *RWMutex) Unlock() {
	m.gate.Unlock()
}
