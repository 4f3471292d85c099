package protocol

import (
	"context"
	"errors"
	"time"

	"go-subscription-ws/internal/infrastructure/logger"
)

// SubscribeFunc may rewrite the parameters of a subscription_start before
// the event source sees them. Returning an error fails the subscription.
type SubscribeFunc func(ctx context.Context, message *Message, params *SubscriptionParams, conn Connection) (*SubscriptionParams, error)

// ConnectionFunc is notified about connection level events.
type ConnectionFunc func(conn Connection)

// Options configures a Server.
type Options struct {
	EventSource EventSource
	// Codec defaults to JSONCodec.
	Codec Codec
	// KeepAlive is the ka period. Zero disables keepalive.
	KeepAlive time.Duration
	// HandshakeFlushDelay defaults to DefaultHandshakeFlushDelay.
	HandshakeFlushDelay time.Duration

	OnConnect     ConnectFunc
	OnSubscribe   SubscribeFunc
	OnUnsubscribe ConnectionFunc
	OnDisconnect  ConnectionFunc

	Logger logger.Logger
}

// Server runs the protocol for every accepted connection. It holds no
// connection state of its own.
type Server struct {
	opts   Options
	source EventSource
	codec  Codec
	logger logger.Logger
}

// NewServer validates opts and fills in defaults.
func NewServer(opts Options) (*Server, error) {
	if opts.EventSource == nil {
		return nil, errors.New("protocol: event source is required")
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.HandshakeFlushDelay <= 0 {
		opts.HandshakeFlushDelay = DefaultHandshakeFlushDelay
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDiscardLogger()
	}

	return &Server{
		opts:   opts,
		source: opts.EventSource,
		codec:  opts.Codec,
		logger: opts.Logger.WithField("component", "protocol"),
	}, nil
}

// Codec returns the codec frames are encoded with.
func (s *Server) Codec() Codec {
	return s.codec
}

// Accept installs keepalive and handshake state for conn and starts its
// dispatch loop. The transport must feed frames to HandleMessage in arrival
// order and call HandleClose once when the connection ends.
func (s *Server) Accept(conn Connection) *Session {
	ctx, cancel := context.WithCancel(conn.Context())
	log := s.logger.WithField("connection_id", conn.ID())

	session := &Session{
		server:    s,
		conn:      conn,
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
		mailbox:   newMailbox(),
		handshake: NewHandshakeController(s.opts.OnConnect, log),
		keepalive: NewKeepaliveScheduler(s.codec, log),
		registry:  NewRegistry(),
		pending:   make(map[string]uint64),
		done:      make(chan struct{}),
	}

	session.keepalive.Start(conn, s.opts.KeepAlive)
	go session.run()

	log.Debug("connection accepted")
	return session
}
