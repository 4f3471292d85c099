package protocol

import "context"

// Connection is the transport session the engine talks to.
type Connection interface {
	ID() string
	// Send is best effort and fails once the connection is closed.
	Send(ctx context.Context, frame []byte) error
	// Close writes a close frame with code and reason and terminates the socket.
	Close(code int, reason string) error
	IsClosed() bool
	Context() context.Context
}

// Handle is the opaque token an EventSource returns for a subscription.
type Handle any

// Event is one result delivered by an EventSource.
// Exactly one of Data or Err is meaningful.
type Event struct {
	Data any
	Err  error
}

// Sink receives the events of one subscription. It is safe to call from any goroutine.
type Sink interface {
	Send(event Event)
}

// SubscriptionParams is the request handed to EventSource.Subscribe.
type SubscriptionParams struct {
	Query         string
	Variables     map[string]any
	OperationName string
	// Context is derived from the handshake result.
	Context any
	Sink    Sink
}

// EventSource executes subscriptions. One instance is shared by every
// connection and must be safe for concurrent use.
type EventSource interface {
	Subscribe(ctx context.Context, params *SubscriptionParams) (Handle, error)
	Unsubscribe(handle Handle)
}
