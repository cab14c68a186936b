package ack

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kleeedolinux/socketio-client/socket/parser"
)

type task struct {
	d         time.Duration
	f         func()
	cancelled bool
}

type fakeScheduler struct {
	tasks []*task
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() {
	tk := &task{d: d, f: f}
	s.tasks = append(s.tasks, tk)
	return func() { tk.cancelled = true }
}

func (s *fakeScheduler) fire(i int) {
	if tk := s.tasks[i]; !tk.cancelled {
		tk.f()
	}
}

func TestRegistryNext(t *testing.T) {
	r := NewRegistry(nil)
	if id := r.Next(); id != 0 {
		t.Errorf("Expected first id to be 0, got %v instead", id)
	}
	if id := r.Next(); id != 1 {
		t.Errorf("Expected second id to be 1, got %v instead", id)
	}
}

func TestRegistryNextWrapsAndSkipsPending(t *testing.T) {
	r := NewRegistry(nil)
	r.next = math.MaxUint32
	r.Register(0, func([]parser.Value, error) {}, 0)

	if id := r.Next(); id != math.MaxUint32 {
		t.Fatalf("Expected %d, got %d", uint32(math.MaxUint32), id)
	}
	if id := r.Next(); id != 1 {
		t.Fatalf("Expected pending id 0 to be skipped, got %d", id)
	}
}

func TestRegistryResolveOnce(t *testing.T) {
	sched := &fakeScheduler{}
	r := NewRegistry(sched)

	calls := 0
	var got []parser.Value
	id := r.Next()
	r.Register(id, func(args []parser.Value, err error) {
		calls++
		got = args
		if err != nil {
			t.Errorf("unexpected error %v", err)
		}
	}, time.Second)

	if !r.Resolve(id, []parser.Value{parser.Int(42)}) {
		t.Fatalf("expected pending ack to resolve")
	}
	if r.Resolve(id, []parser.Value{parser.Int(43)}) {
		t.Fatalf("duplicate ack must be a no-op")
	}
	if calls != 1 {
		t.Fatalf("callback called %d times", calls)
	}
	if n, _ := got[0].AsInt(); n != 42 {
		t.Fatalf("unexpected payload %v", got)
	}
	if !sched.tasks[0].cancelled {
		t.Fatalf("resolving must cancel the timeout")
	}
	if r.Len() != 0 {
		t.Fatalf("registry should be empty, has %d", r.Len())
	}
}

func TestRegistryTimeout(t *testing.T) {
	sched := &fakeScheduler{}
	r := NewRegistry(sched)

	var errs []error
	id := r.Next()
	r.Register(id, func(args []parser.Value, err error) {
		errs = append(errs, err)
	}, 50*time.Millisecond)

	if d, ok := r.Timeout(id); !ok || d != 50*time.Millisecond {
		t.Fatalf("expected a 50ms timeout, got %v (%v)", d, ok)
	}
	if sched.tasks[0].d != 50*time.Millisecond {
		t.Fatalf("unexpected timer duration %v", sched.tasks[0].d)
	}

	sched.fire(0)
	if len(errs) != 1 {
		t.Fatalf("expected one timeout callback, got %d", len(errs))
	}
	var te *TimeoutError
	if !errors.As(errs[0], &te) || te.ID != id {
		t.Fatalf("expected TimeoutError for %d, got %v", id, errs[0])
	}

	if _, ok := r.Timeout(id); ok {
		t.Fatalf("expired entry should have no timeout")
	}
	if r.Resolve(id, nil) {
		t.Fatalf("late ack must be ignored")
	}
	if len(errs) != 1 {
		t.Fatalf("callback must not run again")
	}
}

func TestRegistryStaleTimerIgnoredAfterReregister(t *testing.T) {
	sched := &fakeScheduler{}
	r := NewRegistry(sched)

	first, second := 0, 0
	r.Register(5, func([]parser.Value, error) { first++ }, time.Second)
	r.Register(5, func([]parser.Value, error) { second++ }, time.Second)

	sched.tasks[0].f()
	if first != 0 || second != 0 {
		t.Fatalf("stale timer fired a callback: first=%d second=%d", first, second)
	}
	sched.fire(1)
	if second != 1 {
		t.Fatalf("expected current timer to fire")
	}
}

func TestRegistryFail(t *testing.T) {
	sched := &fakeScheduler{}
	r := NewRegistry(sched)
	boom := errors.New("closed")

	var order []uint32
	for i := 0; i < 3; i++ {
		id := r.Next()
		r.Register(id, func(args []parser.Value, err error) {
			if !errors.Is(err, boom) {
				t.Errorf("unexpected error %v", err)
			}
			order = append(order, id)
		}, time.Second)
	}

	if n := r.Fail(boom); n != 3 {
		t.Fatalf("expected 3 failures, got %d", n)
	}
	if len(order) != 3 || order[0] != 0 || order[2] != 2 {
		t.Fatalf("callbacks should run in id order, got %v", order)
	}
	for i, tk := range sched.tasks {
		if !tk.cancelled {
			t.Fatalf("timer %d still armed", i)
		}
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(nil)
	called := false
	r.Register(1, func([]parser.Value, error) { called = true }, time.Second)
	if _, ok := r.Timeout(1); ok {
		t.Fatalf("nil scheduler should disable timeouts")
	}
	if !r.Remove(1) || r.Pending(1) {
		t.Fatalf("remove failed")
	}
	if called {
		t.Fatalf("remove must not invoke the callback")
	}
}
