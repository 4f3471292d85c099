package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	frames    []map[string]any
	sentAt    []time.Time
	attempts  int
	closed    bool
	closeCode int
}

func newFakeConn() *fakeConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeConn{id: "conn-test", ctx: ctx, cancel: cancel}
}

func (c *fakeConn) ID() string               { return c.id }
func (c *fakeConn) Context() context.Context { return c.ctx }

func (c *fakeConn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.closed {
		return ErrConnectionClosed
	}
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	c.sentAt = append(c.sentAt, time.Now())
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.cancel()
	}
	return nil
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) snapshot() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.frames...)
}

func (c *fakeConn) sendAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *fakeConn) keepAliveTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Time
	for i, f := range c.frames {
		if f["type"] == string(MessageTypeKeepAlive) {
			out = append(out, c.sentAt[i])
		}
	}
	return out
}

func (c *fakeConn) framesOfType(t MessageType) []map[string]any {
	var out []map[string]any
	for _, f := range c.snapshot() {
		if f["type"] == string(t) {
			out = append(out, f)
		}
	}
	return out
}

type fakeSource struct {
	mu           sync.Mutex
	calls        []string
	next         int
	sinks        map[string]Sink
	params       []*SubscriptionParams
	subscribeErr error
	block        chan struct{}
	blocked      int
}

func newFakeSource() *fakeSource {
	return &fakeSource{sinks: make(map[string]Sink)}
}

func (f *fakeSource) Subscribe(ctx context.Context, params *SubscriptionParams) (Handle, error) {
	f.mu.Lock()
	block := f.block
	if block != nil {
		f.blocked++
	}
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	if f.subscribeErr != nil {
		f.calls = append(f.calls, "subscribe:error")
		return nil, f.subscribeErr
	}
	f.next++
	h := fmt.Sprintf("h%d", f.next)
	f.calls = append(f.calls, "subscribe:"+h)
	f.sinks[h] = params.Sink
	return h, nil
}

func (f *fakeSource) Unsubscribe(handle Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("unsubscribe:%v", handle))
}

func (f *fakeSource) emit(handle string, event Event) {
	f.mu.Lock()
	sink := f.sinks[handle]
	f.mu.Unlock()
	sink.Send(event)
}

func (f *fakeSource) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSource) countPrefix(prefix string) int {
	n := 0
	for _, c := range f.callLog() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (k *KeepaliveScheduler) isActive() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

func newTestSession(t *testing.T, opts Options) (*Session, *fakeConn, *fakeSource) {
	t.Helper()

	source, ok := opts.EventSource.(*fakeSource)
	if !ok {
		source = newFakeSource()
		opts.EventSource = source
	}
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	conn := newFakeConn()
	session := srv.Accept(conn)
	t.Cleanup(func() {
		session.HandleClose()
		<-session.Done()
	})
	return session, conn, source
}

func sendJSON(t *testing.T, s *Session, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s.HandleMessage(data)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func errorMessages(t *testing.T, frame map[string]any) []string {
	t.Helper()
	payload, ok := frame["payload"].(map[string]any)
	if !ok {
		t.Fatalf("frame has no payload object: %v", frame)
	}
	list, ok := payload["errors"].([]any)
	if !ok {
		t.Fatalf("payload has no errors list: %v", payload)
	}
	var out []string
	for _, e := range list {
		out = append(out, e.(map[string]any)["message"].(string))
	}
	return out
}
