package protocol

import (
	"context"
	"sync"
	"time"

	"go-subscription-ws/internal/infrastructure/logger"
)

// KeepaliveScheduler sends a ka message on a fixed period while a connection is open.
type KeepaliveScheduler struct {
	codec  Codec
	logger logger.Logger

	mu     sync.Mutex
	stop   chan struct{}
	ticks  int
	active bool
}

// NewKeepaliveScheduler creates a stopped scheduler.
func NewKeepaliveScheduler(codec Codec, log logger.Logger) *KeepaliveScheduler {
	return &KeepaliveScheduler{
		codec:  codec,
		logger: log,
	}
}

// Start begins sending keepalives on conn every interval.
// A zero or negative interval disables keepalive for the connection.
func (k *KeepaliveScheduler) Start(conn Connection, interval time.Duration) {
	if interval <= 0 {
		return
	}

	frame, err := k.codec.Encode(keepAliveMessage())
	if err != nil {
		k.logger.Errorf("failed to encode keepalive: %v", err)
		return
	}

	k.mu.Lock()
	if k.active {
		k.mu.Unlock()
		return
	}
	k.active = true
	k.stop = make(chan struct{})
	stop := k.stop
	k.mu.Unlock()

	go k.run(conn, interval, frame, stop)
}

// Stop cancels the timer. It is safe to call more than once.
func (k *KeepaliveScheduler) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.active {
		return
	}
	k.active = false
	close(k.stop)
}

// Ticks returns how many keepalives were sent.
func (k *KeepaliveScheduler) Ticks() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

func (k *KeepaliveScheduler) run(conn Connection, interval time.Duration, frame []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if conn.IsClosed() {
				k.Stop()
				return
			}

			ctx, cancel := context.WithTimeout(conn.Context(), interval)
			err := conn.Send(ctx, frame)
			cancel()
			if err != nil {
				k.logger.Debugf("keepalive send failed: %v", err)
				continue
			}

			k.mu.Lock()
			k.ticks++
			k.mu.Unlock()

		case <-stop:
			return
		}
	}
}
