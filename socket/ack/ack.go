// Package ack correlates emitted events with the acknowledgements that answer
// them.
package ack

import (
	"fmt"
	"sort"
	"time"

	"github.com/kleeedolinux/socketio-client/socket/parser"
)

// Callback receives the acknowledgement payload, or a non-nil err when the
// acknowledgement timed out or can no longer arrive.
type Callback func(args []parser.Value, err error)

// Scheduler runs f after d unless the returned cancel function is called
// first. Implementations used by a Registry must deliver f on the same
// goroutine (or event loop) that drives the Registry.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// TimeoutError is passed to a Callback whose deadline elapsed.
type TimeoutError struct {
	ID      uint32
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ack %d timed out after %v", e.ID, e.Timeout)
}

// Timeout lets callers test for timeouts through an interface, as with net.Error.
func (e *TimeoutError) Timeout() bool { return true }

type entry struct {
	cb      Callback
	cancel  func()
	timeout time.Duration
}

// Registry tracks pending acknowledgements. It is not safe for concurrent
// use; callers confine it to one goroutine or event loop.
type Registry struct {
	sched   Scheduler
	next    uint32
	pending map[uint32]*entry
}

// NewRegistry returns an empty Registry. A nil scheduler disables timeouts.
func NewRegistry(s Scheduler) *Registry {
	return &Registry{
		sched:   s,
		pending: make(map[uint32]*entry),
	}
}

// Next allocates the next correlation id. Ids increase monotonically and
// wrap at 2^32, skipping ids that are still pending.
func (r *Registry) Next() uint32 {
	for {
		id := r.next
		r.next++
		if _, busy := r.pending[id]; !busy {
			return id
		}
	}
}

// Register stores cb under id. A positive timeout arms a deadline after which
// cb is called with a *TimeoutError and the entry is removed.
func (r *Registry) Register(id uint32, cb Callback, timeout time.Duration) {
	if old, ok := r.pending[id]; ok && old.cancel != nil {
		old.cancel()
	}

	e := &entry{cb: cb}
	r.pending[id] = e

	if timeout <= 0 || r.sched == nil {
		return
	}
	e.timeout = timeout
	e.cancel = r.sched.AfterFunc(timeout, func() {
		if cur, ok := r.pending[id]; !ok || cur != e {
			return
		}
		delete(r.pending, id)
		e.cb(nil, &TimeoutError{ID: id, Timeout: timeout})
	})
}

// Resolve consumes the entry for id and invokes its callback with args. It
// reports false when no entry is pending, e.g. after a timeout or a
// duplicate acknowledgement.
func (r *Registry) Resolve(id uint32, args []parser.Value) bool {
	e, ok := r.pending[id]
	if !ok {
		return false
	}
	delete(r.pending, id)
	if e.cancel != nil {
		e.cancel()
	}
	e.cb(args, nil)
	return true
}

// Remove drops the entry for id without invoking its callback.
func (r *Registry) Remove(id uint32) bool {
	e, ok := r.pending[id]
	if !ok {
		return false
	}
	delete(r.pending, id)
	if e.cancel != nil {
		e.cancel()
	}
	return true
}

// Fail invokes every pending callback with err and empties the registry.
// It returns the number of callbacks invoked.
func (r *Registry) Fail(err error) int {
	pending := r.pending
	r.pending = make(map[uint32]*entry)
	for _, e := range pending {
		if e.cancel != nil {
			e.cancel()
		}
	}
	for _, id := range sortedIDs(pending) {
		pending[id].cb(nil, err)
	}
	return len(pending)
}

// Timeout returns the timeout armed for a pending entry, if it has one. The
// timer itself runs on the Registry's Scheduler.
func (r *Registry) Timeout(id uint32) (time.Duration, bool) {
	e, ok := r.pending[id]
	if !ok || e.timeout <= 0 {
		return 0, false
	}
	return e.timeout, true
}

func (r *Registry) Pending(id uint32) bool {
	_, ok := r.pending[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.pending)
}

func sortedIDs(m map[uint32]*entry) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}
