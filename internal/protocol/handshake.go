package protocol

import (
	"context"
	"fmt"
	"time"

	"go-subscription-ws/internal/infrastructure/logger"
)

// DefaultHandshakeFlushDelay is how long a rejected connection stays open so
// the connection_error frame can reach the client.
const DefaultHandshakeFlushDelay = 10 * time.Millisecond

// ConnectFunc validates a connection_init payload. Its result becomes the
// context of every subscription on the connection. Returning false or an
// error rejects the connection.
type ConnectFunc func(ctx context.Context, payload any, conn Connection) (any, error)

// HandshakeController gates subscription traffic on a single handshake outcome.
type HandshakeController struct {
	hook    ConnectFunc
	settled *Settled
	started bool
	logger  logger.Logger
}

// NewHandshakeController creates the controller for one connection. Without
// a hook the handshake is optional and the outcome is settled to true at once.
func NewHandshakeController(hook ConnectFunc, log logger.Logger) *HandshakeController {
	h := &HandshakeController{
		hook:    hook,
		settled: NewSettled(),
		logger:  log,
	}
	if hook == nil {
		h.settled.Resolve(true, nil)
	}
	return h
}

// Settled returns the outcome every subscription message waits on.
func (h *HandshakeController) Settled() *Settled {
	return h.settled
}

// Begin handles a connection_init. Only the first call runs the hook and
// reports true; later calls return the same settled value.
func (h *HandshakeController) Begin(ctx context.Context, payload any, conn Connection) (*Settled, bool) {
	if h.started {
		return h.settled, false
	}
	h.started = true

	if h.hook == nil {
		return h.settled, true
	}

	go func() {
		value, err := h.invoke(ctx, payload, conn)
		if err == nil {
			if ok, isBool := value.(bool); isBool && !ok {
				err = ErrProhibitedConnection
			}
		}
		h.settled.Resolve(value, err)
	}()
	return h.settled, true
}

func (h *HandshakeController) invoke(ctx context.Context, payload any, conn Connection) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorf("connect hook panicked: %v", r)
			err = fmt.Errorf("%v", r)
		}
	}()
	return h.hook(ctx, payload, conn)
}
