package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultRestartDelay is the pause before reopening a recognition stream
// that ended while the listener still wants to be listening.
const DefaultRestartDelay = 100 * time.Millisecond

// Stream is one continuous recognition stream from a speech source.
// Recv blocks until the next result; it returns io.EOF when the stream ends.
type Stream interface {
	Recv() (Result, error)
}

// StreamFactory opens a new recognition stream.
type StreamFactory func(ctx context.Context) (Stream, error)

// Listener pumps recognition results from a stream into the relay. If the
// stream ends while the listener has not been explicitly stopped, it reopens
// the stream after a short fixed delay; Stop suppresses the restart.
type Listener struct {
	relay        *Relay
	open         StreamFactory
	sessionID    string
	restartDelay time.Duration

	mu        sync.Mutex
	listening bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewListener creates a listener for one session's speech source.
func NewListener(r *Relay, open StreamFactory, sessionID string, restartDelay time.Duration) *Listener {
	if restartDelay <= 0 {
		restartDelay = DefaultRestartDelay
	}
	return &Listener{
		relay:        r,
		open:         open,
		sessionID:    sessionID,
		restartDelay: restartDelay,
	}
}

// Start begins listening in a background goroutine. Calling Start while
// already listening is a no-op.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	if l.listening {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.listening = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx)
}

// Stop ends listening and suppresses any automatic restart. It blocks until
// the background goroutine has exited.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.listening {
		l.mu.Unlock()
		return
	}
	l.listening = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
}

// Active reports whether the listener currently wants to be listening.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	for {
		stream, err := l.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("open recognition stream", "session_id", l.sessionID, "error", err)
		} else {
			l.consume(ctx, stream)
		}

		if !l.Active() || ctx.Err() != nil {
			return
		}

		// Stream ended unexpectedly: restart after a fixed delay.
		slog.Info("recognition stream ended, restarting", "session_id", l.sessionID)
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.restartDelay):
		}
	}
}

func (l *Listener) consume(ctx context.Context, stream Stream) {
	for {
		res, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				slog.Error("recognition stream", "session_id", l.sessionID, "error", err)
			}
			return
		}
		l.relay.Handle(ctx, l.sessionID, res)
	}
}
