package auth

import (
	"context"
	"strings"
	"sync"
)

// IdentityLocker serializes sign in work for one identity. Lock blocks
// until the key is free or ctx is done, the returned func releases it.
type IdentityLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// NoopLocker never blocks. Concurrent sign ins stay independent.
type NoopLocker struct{}

// Lock implements IdentityLocker
func (NoopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// MemoryLocker is an in process IdentityLocker. Use the redis locker when
// more than one instance serves sign ins.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker returns a ready MemoryLocker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: map[string]*lockSlot{}}
}

// Lock implements IdentityLocker
func (m *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	slot, ok := m.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		m.slots[key] = slot
	}
	slot.refs++
	m.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			m.release(key, slot)
		})
	}, nil
}

func (m *MemoryLocker) release(key string, slot *lockSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(m.slots, key)
	}
}

// Len returns the number of keys currently held or waited on
func (m *MemoryLocker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// LockKey is the sign in lock key of a subject. Keys are trimmed and case
// folded.
func LockKey(identifier string) string {
	return "signin:" + strings.ToLower(strings.TrimSpace(identifier))
}
