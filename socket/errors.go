package socket

import (
	"errors"
	"fmt"

	"github.com/kleeedolinux/socketio-client/socket/ack"
	"github.com/kleeedolinux/socketio-client/socket/parser"
)

var (
	// ErrClosed is passed to acknowledgement callbacks that were still
	// pending when the application disconnected the socket or manager.
	ErrClosed = errors.New("socket: closed")

	ErrReservedEvent  = errors.New("socket: reserved event name")
	ErrEmptyEvent     = errors.New("socket: empty event name")
	ErrConnectTimeout = errors.New("socket: connect timeout")
)

// TransportError reports a failure to open, write to or read from the
// underlying transport. It triggers reconnection.
type TransportError struct {
	Op        string
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("socket: transport %s %s: %v", e.Transport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AckTimeoutError is delivered to an acknowledgement callback whose
// deadline elapsed.
type AckTimeoutError = ack.TimeoutError

// ReconnectExhaustedError is emitted once with "reconnect_failed" when the
// reconnection attempt cap is reached.
type ReconnectExhaustedError struct {
	Attempts int
}

func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("socket: reconnection failed after %d attempts", e.Attempts)
}

// ConnectError is emitted with "connect_error" when the server refuses a
// namespace, typically from a middleware.
type ConnectError struct {
	Namespace string
	Message   string
	Data      parser.Value
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("socket: connect to %s refused: %s", e.Namespace, e.Message)
}

var reservedEvents = map[string]bool{
	EventConnect:      true,
	EventConnectError: true,
	EventDisconnect:   true,
	"disconnecting":   true,
	"newListener":     true,
	"removeListener":  true,
}
