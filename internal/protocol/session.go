package protocol

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go-subscription-ws/internal/infrastructure/logger"
)

const sendTimeout = 5 * time.Second

// Session is the protocol state of one connection. All fields below the
// mailbox are owned by the dispatch loop and never touched from elsewhere.
type Session struct {
	server *Server
	conn   Connection
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mailbox *mailbox

	handshake *HandshakeController
	keepalive *KeepaliveScheduler
	registry  *Registry
	// pending holds the registration sequence of every start that has passed
	// the handshake but is not installed yet.
	pending  map[string]uint64
	seq      uint64
	waiters  []func(value any, err error)
	watching bool
	closed   bool

	done chan struct{}
}

// HandleMessage queues a raw frame for dispatch.
func (s *Session) HandleMessage(frame []byte) {
	s.mailbox.post(func() { s.dispatch(frame) })
}

// HandleClose tears the session down: every subscription is unsubscribed
// and no further messages are processed.
func (s *Session) HandleClose() {
	s.mailbox.post(s.teardown)
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer close(s.done)

	for {
		<-s.mailbox.notify
		for _, fn := range s.mailbox.drain() {
			fn()
		}
		if s.closed {
			// Completions posted before the mailbox closed still need to
			// release their handles.
			for _, fn := range s.mailbox.drain() {
				fn()
			}
			return
		}
	}
}

func (s *Session) dispatch(frame []byte) {
	if s.closed {
		return
	}

	msg, err := s.server.codec.Decode(frame)
	if err != nil {
		s.logger.Warnf("failed to decode message: %v", err)
		s.send(failMessage("", formatError(err)))
		return
	}

	switch msg.Type {
	case MessageTypeConnectionInit:
		s.onConnectionInit(msg)
	case MessageTypeSubscriptionStart:
		s.onSubscriptionStart(msg)
	case MessageTypeSubscriptionEnd:
		s.onSubscriptionEnd(msg)
	default:
		s.logger.Warnf("invalid message type %q", msg.Type)
		s.send(failMessage(msg.ID, formatError(ErrInvalidMessageType)))
	}
}

func (s *Session) onConnectionInit(msg *Message) {
	if _, first := s.handshake.Begin(s.ctx, msg.Payload, s.conn); !first {
		s.logger.Debug("ignoring repeated connection_init")
		return
	}

	s.afterHandshake(func(_ any, err error) {
		if err != nil {
			s.rejectHandshake(err)
			return
		}
		s.send(ackMessage())
	})
}

func (s *Session) rejectHandshake(err error) {
	s.logger.Infof("handshake rejected: %v", err)
	s.send(connectionErrorMessage(err.Error()))

	conn := s.conn
	time.AfterFunc(s.server.opts.HandshakeFlushDelay, func() {
		if err := conn.Close(CloseUnexpectedCondition, "handshake rejected"); err != nil {
			s.logger.Debugf("failed to close rejected connection: %v", err)
		}
	})
}

// afterHandshake runs fn on the loop once the handshake is settled. Callbacks
// run in the order they were registered, so messages keep their arrival order.
func (s *Session) afterHandshake(fn func(value any, err error)) {
	settled := s.handshake.Settled()
	if len(s.waiters) == 0 && settled.Resolved() {
		value, err := settled.Result()
		fn(value, err)
		return
	}

	s.waiters = append(s.waiters, fn)
	if s.watching {
		return
	}
	s.watching = true

	go func() {
		select {
		case <-settled.Done():
			s.mailbox.post(s.flushWaiters)
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) flushWaiters() {
	s.watching = false
	if s.closed {
		return
	}

	value, err := s.handshake.Settled().Result()
	waiters := s.waiters
	s.waiters = nil
	for _, fn := range waiters {
		if s.closed {
			return
		}
		fn(value, err)
	}
}

func (s *Session) onSubscriptionStart(msg *Message) {
	id := msg.ID

	s.afterHandshake(func(value any, err error) {
		if err != nil {
			s.logger.Debugf("dropping subscription %s: handshake rejected", id)
			return
		}

		s.seq++
		seq := s.seq
		s.pending[id] = seq

		// The previous stream on this id ends here, whatever the new start's outcome.
		if old, ok := s.registry.Take(id); ok {
			s.unsubscribe(old)
		}

		params := &SubscriptionParams{
			Query:         msg.Query,
			Variables:     msg.Variables,
			OperationName: msg.OperationName,
			Context:       connectionContext(value),
			Sink:          &subscriptionSink{session: s, id: id, seq: seq},
		}

		hook := s.server.opts.OnSubscribe
		if hook == nil {
			s.register(id, seq, params, nil)
			return
		}

		go func() {
			p, err := s.invokeSubscribeHook(hook, msg, params)
			if p != nil && p.Sink == nil {
				p.Sink = params.Sink
			}
			s.mailbox.post(func() { s.register(id, seq, p, err) })
		}()
	})
}

func (s *Session) invokeSubscribeHook(hook SubscribeFunc, msg *Message, params *SubscriptionParams) (p *SubscriptionParams, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("subscribe hook panicked: %v", r)
			err = fmt.Errorf("%v", r)
		}
	}()
	return hook(s.ctx, msg, params, s.conn)
}

// register calls the event source for a start that passed its hook. It is a
// no-op when the start was superseded or cancelled meanwhile.
func (s *Session) register(id string, seq uint64, params *SubscriptionParams, err error) {
	if s.closed || s.pending[id] != seq {
		return
	}
	if err == nil && params == nil {
		err = ErrInvalidParams
	}
	if err != nil {
		delete(s.pending, id)
		s.logger.Infof("subscription %s rejected: %v", id, err)
		s.send(failMessage(id, formatError(err)))
		return
	}

	go func() {
		handle, err := s.subscribe(params)
		posted := s.mailbox.post(func() { s.install(id, seq, handle, err) })
		if !posted && err == nil {
			s.server.source.Unsubscribe(handle)
		}
	}()
}

func (s *Session) subscribe(params *SubscriptionParams) (handle Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("event source panicked on subscribe: %v", r)
			err = fmt.Errorf("%v", r)
		}
	}()
	return s.server.source.Subscribe(s.ctx, params)
}

func (s *Session) install(id string, seq uint64, handle Handle, err error) {
	if s.closed || s.pending[id] != seq {
		// Ended, replaced or closed while the event source was working.
		if err == nil {
			s.logger.Debugf("releasing stale subscription %s", id)
			s.unsubscribe(&subscription{id: id, handle: handle, seq: seq})
		}
		return
	}
	delete(s.pending, id)

	if err != nil {
		s.logger.Infof("subscription %s failed: %v", id, err)
		s.send(failMessage(id, formatError(err)))
		return
	}

	s.registry.Put(id, &subscription{id: id, handle: handle, seq: seq})
	s.logger.Debugf("subscription %s started", id)
	s.send(successMessage(id))
}

func (s *Session) onSubscriptionEnd(msg *Message) {
	id := msg.ID

	s.afterHandshake(func(_ any, err error) {
		if err != nil {
			return
		}

		cancelled := false
		if _, ok := s.pending[id]; ok {
			delete(s.pending, id)
			cancelled = true
		}
		if sub, ok := s.registry.Take(id); ok {
			s.unsubscribe(sub)
			cancelled = true
		}
		if !cancelled {
			return
		}

		s.logger.Debugf("subscription %s ended", id)
		if hook := s.server.opts.OnUnsubscribe; hook != nil {
			s.invokeConnectionHook("unsubscribe", hook)
		}
	})
}

func (s *Session) unsubscribe(sub *subscription) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("event source panicked on unsubscribe of %s: %v", sub.id, r)
		}
	}()
	s.server.source.Unsubscribe(sub.handle)
}

func (s *Session) invokeConnectionHook(name string, hook ConnectionFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("%s hook panicked: %v", name, r)
		}
	}()
	hook(s.conn)
}

// current reports whether seq is still the live registration for id.
func (s *Session) current(id string, seq uint64) bool {
	if s.pending[id] == seq {
		return true
	}
	sub, ok := s.registry.Get(id)
	return ok && sub.seq == seq
}

func (s *Session) deliver(id string, seq uint64, event Event) {
	if s.closed || !s.current(id, seq) {
		return
	}

	var payload any = event.Data
	if event.Err != nil {
		payload = ErrorPayload{Errors: formatError(event.Err)}
	}
	s.send(dataMessage(id, payload))
}

func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	s.mailbox.close()
	s.keepalive.Stop()

	subs := s.registry.RemoveAll()
	for _, sub := range subs {
		s.unsubscribe(sub)
	}
	clear(s.pending)
	s.waiters = nil
	s.cancel()

	s.logger.Infof("connection closed, released %d subscriptions", len(subs))
	if hook := s.server.opts.OnDisconnect; hook != nil {
		s.invokeConnectionHook("disconnect", hook)
	}
}

func (s *Session) send(msg *Message) {
	frame, err := s.server.codec.Encode(msg)
	if err != nil {
		s.logger.Errorf("failed to encode %s message: %v", msg.Type, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.conn.Send(ctx, frame); err != nil {
		s.logger.Debugf("failed to send %s message: %v", msg.Type, err)
	}
}

// connectionContext keeps structured handshake results and replaces
// anything else with an empty context.
func connectionContext(value any) any {
	if value == nil {
		return map[string]any{}
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Map, reflect.Struct:
		return value
	case reflect.Pointer:
		if !v.IsNil() && v.Elem().Kind() == reflect.Struct {
			return value
		}
	}
	return map[string]any{}
}

// subscriptionSink marshals events from the event source onto the session loop.
type subscriptionSink struct {
	session *Session
	id      string
	seq     uint64
}

func (k *subscriptionSink) Send(event Event) {
	k.session.mailbox.post(func() { k.session.deliver(k.id, k.seq, event) })
}
