// Package channel keeps a persistent duplex channel to the peer alive and
// correlates requests with their responses.
package channel

import (
	"context"
	"errors"
	"fmt"
)

// Close codes used on the wire.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)

var (
	// ErrDisconnected rejects requests pending when the channel is torn down.
	ErrDisconnected = errors.New("channel disconnected")

	// ErrRequestTimeout rejects requests that got no response in time.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrReconnectExhausted is returned by Connect while the manager is in
	// ERROR. Call Reset first.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrQueueFull is reported when a queued message evicts an older one.
	ErrQueueFull = errors.New("outbound queue full")
)

// Dialer opens transport connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one established transport connection. Read is called from a
// single goroutine; Write calls are serialized by the manager. Close may be
// called concurrently with both.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, text []byte) error
	Close(code int, reason string) error
}

// CloseError reports a close frame received from the peer.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("channel closed with code %d", e.Code)
	}
	return fmt.Sprintf("channel closed with code %d: %s", e.Code, e.Reason)
}

// Normal reports whether the peer closed the channel on purpose.
func (e *CloseError) Normal() bool {
	return e.Code == CloseNormal
}
