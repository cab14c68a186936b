package socket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// eventLoop runs posted functions one at a time in FIFO order. A goroutine
// is started on demand and exits once the queue is empty, so an idle
// Manager holds no goroutines.
type eventLoop struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	log     zerolog.Logger
}

func (l *eventLoop) post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.drain()
}

func (l *eventLoop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(fn)
	}
}

func (l *eventLoop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("recovered panic in event loop")
		}
	}()
	fn()
}

// clock arms raw timers. f runs on an arbitrary goroutine.
type clock interface {
	AfterFunc(d time.Duration, f func()) (stop func())
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// loopScheduler delivers timer callbacks on the event loop. A timer that
// was stopped never runs its callback, even if it already fired and is
// sitting in the queue.
type loopScheduler struct {
	loop  *eventLoop
	clock clock
}

func (s loopScheduler) AfterFunc(d time.Duration, f func()) func() {
	var cancelled atomic.Bool
	stop := s.clock.AfterFunc(d, func() {
		s.loop.post(func() {
			if cancelled.Load() {
				return
			}
			f()
		})
	})
	return func() {
		cancelled.Store(true)
		stop()
	}
}
