package socket

import (
	"sync"

	"github.com/kleeedolinux/socketio-client/socket/transport"
)

// writer owns the write side of one transport. Batches are sent in order
// from a dedicated goroutine so a slow transport never stalls the event
// loop. Once closing, the queue is flushed and the transport closed.
type writer struct {
	tr      transport.Transport
	onError func(error)

	mu      sync.Mutex
	queue   [][]transport.Frame
	closing bool
	aborted bool
	wake    chan struct{}
	done    chan struct{}
}

func newWriter(tr transport.Transport, onError func(error)) *writer {
	w := &writer{
		tr:      tr,
		onError: onError,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.sendLoop()
	return w
}

func (w *writer) enqueue(frames []transport.Frame) {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, frames)
	w.mu.Unlock()
	w.signal()
}

// close flushes pending batches, then closes the transport.
func (w *writer) close() {
	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()
	w.signal()
}

// abort drops pending batches and closes the transport.
func (w *writer) abort() {
	w.mu.Lock()
	w.closing = true
	w.aborted = true
	w.queue = nil
	w.mu.Unlock()
	w.signal()
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) sendLoop() {
	defer close(w.done)
	failed := false

	for range w.wake {
		for {
			w.mu.Lock()
			if len(w.queue) == 0 || failed {
				closing := w.closing
				w.queue = nil
				w.mu.Unlock()
				if closing {
					_ = w.tr.Close()
					return
				}
				break
			}
			batch := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mu.Unlock()

			if err := w.tr.Send(batch...); err != nil {
				failed = true
				w.mu.Lock()
				aborted := w.aborted
				w.mu.Unlock()
				if !aborted {
					w.onError(err)
				}
			}
		}
	}
}
