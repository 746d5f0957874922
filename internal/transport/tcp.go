package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

// Listener accepts inbound connections from peer processes and hands
// each to a handler goroutine.
type Listener struct {
	listener net.Listener
}

// Listen opens a TCP listener on the given address (e.g. ":8101" or
// "127.0.0.1:0"; ":0" picks a random available port).
func Listen(address string) (*Listener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}
	return &Listener{listener: listener}, nil
}

// Address returns the bound address in "host:port" format.
func (l *Listener) Address() string {
	return l.listener.Addr().String()
}

// Serve accepts connections and dispatches each to handler in its own
// goroutine until ctx ends or Close is called. Handler panics are not
// recovered: a panic in connection handling is a bug, not a condition
// to limp past.
func (l *Listener) Serve(ctx context.Context, handler func(ctx context.Context, conn *Conn)) error {
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		raw, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go handler(ctx, NewConn(raw))
	}
}

// Close shuts down the listener. In-flight connections are left to
// their handlers.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// dialTimeout bounds one connection attempt.
const dialTimeout = 3 * time.Second

// Dial opens a connection to address.
func Dial(ctx context.Context, address string) (*Conn, error) {
	raw, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewConn(raw), nil
}

// DialReady dials with exponential backoff until the peer accepts or
// ctx ends. Services are started in dependency order but a dependency
// may not be listening yet; waiting here is what lets startup order be
// a soft constraint instead of a crash.
func DialReady(ctx context.Context, address string) (*Conn, error) {
	backoff := retry.WithCappedDuration(2*time.Second, retry.NewExponential(50*time.Millisecond))

	var conn *Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := Dial(ctx, address)
		if err != nil {
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", address, err)
	}
	return conn, nil
}
