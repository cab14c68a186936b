package transport

import (
	"testing"
	"time"
)

type recorder struct {
	open     chan struct{}
	messages chan Frame
	errs     chan error
	closes   chan string
}

func newRecorder() *recorder {
	return &recorder{
		open:     make(chan struct{}, 1),
		messages: make(chan Frame, 16),
		errs:     make(chan error, 4),
		closes:   make(chan string, 4),
	}
}

func (r *recorder) OnOpen()               { r.open <- struct{}{} }
func (r *recorder) OnMessage(f Frame)     { r.messages <- f }
func (r *recorder) OnError(err error)     { r.errs <- err }
func (r *recorder) OnClose(reason string) { r.closes <- reason }

func (r *recorder) message(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-r.messages:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Frame{}
}

func (r *recorder) closed(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-r.closes:
		return reason
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close")
	}
	return ""
}

func (r *recorder) failed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
	return nil
}
