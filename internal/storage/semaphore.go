package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Priority is a connection-request priority tier (spec §5:
// "{LOW, NORMAL, HIGH}").
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Semaphore is the process-wide, per-server connection-count limiter of
// spec §4.F/§5: "a process-wide semaphore with priorities... limits
// concurrent connections" to a given server id (Specifier.ServerID:
// scheme, user, host and port). Two backends with the same server id
// share one slot set.
type Semaphore struct {
	mu              sync.Mutex
	servers         map[string]*serverSlots
	defaultCapacity int
}

type serverSlots struct {
	tokens      chan struct{}
	pendingHigh int32 // atomic
}

// NewSemaphore returns a Semaphore whose servers default to capacity slots
// unless overridden with SetCapacity before first use.
func NewSemaphore(defaultCapacity int) *Semaphore {
	if defaultCapacity <= 0 {
		defaultCapacity = 1
	}
	return &Semaphore{servers: make(map[string]*serverSlots), defaultCapacity: defaultCapacity}
}

// SetCapacity fixes server id's connection limit before its first
// Allocate call. Calling it after slots have been created is a no-op.
func (s *Semaphore) SetCapacity(id string, capacity int) {
	if capacity <= 0 {
		capacity = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[id]; ok {
		return
	}
	s.servers[id] = newServerSlots(capacity)
}

func newServerSlots(capacity int) *serverSlots {
	slots := &serverSlots{tokens: make(chan struct{}, capacity)}
	for i := 0; i < capacity; i++ {
		slots.tokens <- struct{}{}
	}
	return slots
}

func (s *Semaphore) slotsFor(id string) *serverSlots {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.servers[id]
	if !ok {
		slots = newServerSlots(s.defaultCapacity)
		s.servers[id] = slots
	}
	return slots
}

// Allocate blocks until a connection slot for id is free, timeout elapses,
// or ctx is cancelled (spec §4.F "allocateServer(id, priority, timeoutMs)
// -> bool"). A HIGH priority request marks itself pending for the
// duration of the wait so concurrent low-priority holders observe
// IsServerAllocationPending and can yield cooperatively (spec §5).
func (s *Semaphore) Allocate(ctx context.Context, id string, priority Priority, timeout time.Duration) (bool, error) {
	slots := s.slotsFor(id)
	if priority == PriorityHigh {
		atomic.AddInt32(&slots.pendingHigh, 1)
		defer atomic.AddInt32(&slots.pendingHigh, -1)
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-slots.tokens:
		return true, nil
	case <-timeoutCh:
		return false, fmt.Errorf("%w: server %s", ErrTooManyConnections, id)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Free releases a connection slot acquired via Allocate.
func (s *Semaphore) Free(id string) {
	slots := s.slotsFor(id)
	select {
	case slots.tokens <- struct{}{}:
	default:
		// Defensive: more Frees than Allocates for id would otherwise
		// block forever or panic on a full channel.
	}
}

// IsServerAllocationPending reports whether a HIGH priority Allocate call
// is currently waiting on id's slots — a cooperative preemption signal a
// long-running LOW/NORMAL transfer checks at fragment boundaries (spec §5
// "isServerAllocationPending... lets long-running low-priority transfers
// yield").
func (s *Semaphore) IsServerAllocationPending(id string) bool {
	slots := s.slotsFor(id)
	return atomic.LoadInt32(&slots.pendingHigh) > 0
}
