package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames []string
	closes int
	closed chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan struct{})}
}

func (h *recordingHandler) HandleMessage(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, string(frame))
}

func (h *recordingHandler) HandleClose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	if h.closes == 1 {
		close(h.closed)
	}
}

func (h *recordingHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frames...)
}

// startPair returns a server side WebSocketConnection and the client socket.
func startPair(t *testing.T, handler FrameHandler) (*WebSocketConnection, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *WebSocketConnection, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conn := NewWebSocketConnection("ws-test", ws, WebSocketConfig{}, &mockLogger{})
		conn.Start(handler)
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-connCh:
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server connection was not created")
		return nil, nil
	}
}

func TestWebSocketConnection_DeliversFramesInOrder(t *testing.T) {
	handler := newRecordingHandler()
	_, client := startPair(t, handler)

	want := []string{"one", "two", "three"}
	for _, m := range want {
		if err := client.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(handler.snapshot()) < len(want) {
		time.Sleep(10 * time.Millisecond)
	}

	got := handler.snapshot()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected frames %v, got %v", want, got)
	}
}

func TestWebSocketConnection_CloseFlushesQueuedFrames(t *testing.T) {
	handler := newRecordingHandler()
	conn, client := startPair(t, handler)

	ctx := context.Background()
	if err := conn.Send(ctx, []byte(`{"type":"connection_error"}`)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := conn.Close(websocket.CloseInternalServerErr, "handshake rejected"); err != nil {
		t.Logf("close returned: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Expected queued frame before close, got error: %v", err)
	}
	if string(data) != `{"type":"connection_error"}` {
		t.Errorf("Unexpected frame %s", data)
	}

	_, _, err = client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Errorf("Expected close 1011, got %v", err)
	}

	if !conn.IsClosed() {
		t.Error("Connection should report closed")
	}
	if err := conn.Send(ctx, []byte("late")); err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed after close, got %v", err)
	}

	select {
	case <-handler.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleClose was not called")
	}
}

func TestWebSocketConnection_ClientDisconnectCallsHandleCloseOnce(t *testing.T) {
	handler := newRecordingHandler()
	conn, client := startPair(t, handler)

	client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	client.Close()

	select {
	case <-handler.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleClose was not called")
	}

	select {
	case <-conn.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Connection context should be cancelled")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.closes != 1 {
		t.Errorf("Expected exactly one HandleClose, got %d", handler.closes)
	}
}

func TestWebSocketConnection_SendHonoursContextWhenBufferFull(t *testing.T) {
	// pumps are never started, so the buffer only drains through the test
	conn := NewWebSocketConnection("ws-full", nil, WebSocketConfig{SendBuffer: 1}, &mockLogger{})

	if err := conn.Send(context.Background(), []byte("first")); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := conn.Send(ctx, []byte("second"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Send outlived its context: %v", elapsed)
	}
}
