package hub

import "context"

// Connection is a tracked transport connection.
type Connection interface {
	ID() string
	Type() string
	Send(ctx context.Context, frame []byte) error
	Close(code int, reason string) error
	IsClosed() bool
	Context() context.Context
}

// FrameHandler consumes the inbound side of a connection.
// HandleMessage is called in arrival order; HandleClose exactly once.
type FrameHandler interface {
	HandleMessage(frame []byte)
	HandleClose()
}
