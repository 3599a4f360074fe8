// Package store is the console's in-memory state. Each partition carries
// {data, loading, error} plus a version, and applies fetch results in the
// order the fetches were begun.
package store

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of a partition
type Snapshot[T any] struct {
	Data      T
	Loading   bool
	Err       error
	Version   uint64    // bumped on every applied change
	UpdatedAt time.Time // when Data last changed, zero if never
}

// Loaded reports whether data has ever been applied since the last clear
func (s Snapshot[T]) Loaded() bool {
	return !s.UpdatedAt.IsZero()
}

// Ticket identifies one fetch started with Begin
type Ticket struct {
	seq uint64
}

// Partition is a generic {begin, success, failure} state holder. All methods
// are safe for concurrent use and take effect before they return.
type Partition[T any] struct {
	name  string
	clone func(T) T

	mu      sync.Mutex
	snap    Snapshot[T]
	issued  uint64 // last ticket handed out
	applied uint64 // last ticket whose result was applied

	nextSub int
	subs    map[int]func(Snapshot[T])
}

// NewPartition creates an empty partition. clone, when non-nil, copies data
// before it leaves the partition.
func NewPartition[T any](name string, clone func(T) T) *Partition[T] {
	return &Partition[T]{
		name:  name,
		clone: clone,
		subs:  make(map[int]func(Snapshot[T])),
	}
}

// Name returns the partition name
func (p *Partition[T]) Name() string {
	return p.name
}

// Begin marks the partition loading and returns the ticket for this fetch
func (p *Partition[T]) Begin() Ticket {
	p.mu.Lock()
	p.issued++
	t := Ticket{seq: p.issued}
	p.snap.Loading = true
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
	return t
}

// Success applies data fetched under t. Results for tickets older than the
// last applied one are dropped and Success returns false.
func (p *Partition[T]) Success(t Ticket, data T) bool {
	p.mu.Lock()
	if t.seq <= p.applied {
		p.mu.Unlock()
		return false
	}
	p.applied = t.seq
	p.snap.Data = data
	p.snap.Err = nil
	p.snap.Loading = p.applied < p.issued
	p.snap.Version++
	p.snap.UpdatedAt = time.Now()
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
	return true
}

// Failure records err for the fetch t. Existing data is kept.
func (p *Partition[T]) Failure(t Ticket, err error) bool {
	p.mu.Lock()
	if t.seq <= p.applied {
		p.mu.Unlock()
		return false
	}
	p.applied = t.seq
	p.snap.Err = err
	p.snap.Loading = p.applied < p.issued
	p.snap.Version++
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
	return true
}

// Snapshot returns a copy of the current state
func (p *Partition[T]) Snapshot() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

// Data returns a copy of the current data
func (p *Partition[T]) Data() T {
	return p.Snapshot().Data
}

// Mutate applies fn to the data in place of a fetch. It does not touch tickets,
// so an outstanding fetch still lands afterwards.
func (p *Partition[T]) Mutate(fn func(T) T) {
	p.mu.Lock()
	p.snap.Data = fn(p.snap.Data)
	p.snap.Version++
	p.snap.UpdatedAt = time.Now()
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
}

// Set replaces the data
func (p *Partition[T]) Set(data T) {
	p.Mutate(func(T) T { return data })
}

// SetError records an error raised outside a fetch, e.g. by a failed mutation
func (p *Partition[T]) SetError(err error) {
	p.mu.Lock()
	p.snap.Err = err
	p.snap.Version++
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
}

// DismissError clears the error shown for the partition
func (p *Partition[T]) DismissError() {
	p.SetError(nil)
}

// Reset empties the partition and invalidates every outstanding ticket
func (p *Partition[T]) Reset() {
	p.mu.Lock()
	var zero T
	p.snap.Data = zero
	p.snap.Err = nil
	p.snap.Loading = false
	p.snap.UpdatedAt = time.Time{}
	p.snap.Version++
	p.applied = p.issued
	snap, subs := p.publishLocked()
	p.mu.Unlock()

	notify(subs, snap)
}

// Subscribe calls fn with a snapshot after every change. The returned func
// removes the subscription.
func (p *Partition[T]) Subscribe(fn func(Snapshot[T])) (unsubscribe func()) {
	p.mu.Lock()
	p.nextSub++
	id := p.nextSub
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Partition[T]) copyLocked() Snapshot[T] {
	s := p.snap
	if p.clone != nil {
		s.Data = p.clone(s.Data)
	}
	return s
}

// publishLocked captures what subscribers should see. Callers notify after
// unlocking so a subscriber may read the partition.
func (p *Partition[T]) publishLocked() (Snapshot[T], []func(Snapshot[T])) {
	if len(p.subs) == 0 {
		return Snapshot[T]{}, nil
	}
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Snapshot[T]), len(ids))
	for i, id := range ids {
		subs[i] = p.subs[id]
	}
	return p.copyLocked(), subs
}

func notify[T any](subs []func(Snapshot[T]), snap Snapshot[T]) {
	for _, fn := range subs {
		fn(snap)
	}
}
