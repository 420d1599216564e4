package realtime

import (
	"errors"
	"fmt"
)

// Error taxonomy for the room channel. NotConnected and Timeout are retried a
// bounded number of times before surfacing; JoinRejected and SendRejected are
// terminal for the attempt and must reach the caller.
var (
	// ErrNotConnected indicates an operation was attempted before the
	// transport became ready, or readiness was not reached within the bound.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrTimeout indicates no acknowledgement arrived within the bound.
	ErrTimeout = errors.New("realtime: acknowledgement timed out")
	// ErrTransportLost indicates the session dropped mid-operation.
	ErrTransportLost = errors.New("realtime: transport lost")
	// ErrJoinRejected indicates the server declined a room join.
	ErrJoinRejected = errors.New("realtime: join rejected")
	// ErrSendRejected indicates the server declined a message.
	ErrSendRejected = errors.New("realtime: send rejected")
	// ErrNotJoined indicates a room operation that requires Joined state.
	ErrNotJoined = errors.New("realtime: room not joined")
	// ErrClosed indicates the connection was closed by the owner.
	ErrClosed = errors.New("realtime: connection closed")
)

func joinRejected(reason string) error {
	if reason == "" {
		reason = "unknown reason"
	}
	return fmt.Errorf("%w: %s", ErrJoinRejected, reason)
}

func sendRejected(reason string) error {
	if reason == "" {
		reason = "unknown reason"
	}
	return fmt.Errorf("%w: %s", ErrSendRejected, reason)
}
