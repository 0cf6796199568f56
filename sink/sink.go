// Package sink carries events from the fan-out worker to one live
// connection's write loop.
package sink

import (
	"context"
	"fmt"

	"chat-hub/domain/event"
)

// ConnectionSink is a buffered inbox owned by a single connection. The
// fan-out worker writes; the transport's write pump reads.
type ConnectionSink struct {
	Events chan event.DomainEvent
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume hands the event to the connection, waiting up to the caller's
// delivery deadline for buffer space. On expiry the event is lost for
// this connection only; the client reconciles via a REST pull.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection buffer full, dropping %s: %w", e.Name(), ctx.Err())
	}
}
