package authority

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/onekgame/onek/internal/schema"
	"github.com/onekgame/onek/internal/transport"
)

// Server exposes an authority over TCP: subscribe for the ordered
// delta stream, propose transactions, heartbeat. Protocol errors are
// fatal to the offending connection and only that connection.
type Server struct {
	authority *Authority
	listener  *transport.Listener
}

// NewServer binds the listen address. Run starts serving.
func NewServer(a *Authority, address string) (*Server, error) {
	listener, err := transport.Listen(address)
	if err != nil {
		return nil, err
	}
	return &Server{authority: a, listener: listener}, nil
}

// Address returns the bound listen address, useful when the configured
// port was zero.
func (s *Server) Address() string {
	return s.listener.Address()
}

// Run accepts connections until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.listener.Serve(ctx, s.handle)
}

// Close stops accepting connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handle(ctx context.Context, conn *transport.Conn) {
	defer conn.Close()

	peer, err := conn.ServerHello()
	if err != nil {
		log.Printf("handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	service := peer.Service
	if service == "" {
		service = conn.RemoteAddr()
	}
	log.Printf("%s connected", service)
	defer log.Printf("%s disconnected", service)

	// One streaming goroutine per connection at most; writes interleave
	// safely with request replies through the conn's write lock.
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	streaming := false

	for {
		frame, err := conn.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Printf("read from %s: %v", service, err)
			}
			return
		}

		switch frame.Type {
		case transport.TypeSubscribe:
			var req schema.SubscribeRequest
			if err := frame.Decode(&req); err != nil {
				conn.WriteError(err.Error())
				return
			}
			if streaming {
				conn.WriteError("already subscribed on this connection")
				return
			}
			streaming = true
			go func() {
				if err := s.stream(streamCtx, conn, service, req.FromVersion); err != nil && streamCtx.Err() == nil {
					log.Printf("stream to %s: %v", service, err)
					conn.Close()
				}
			}()

		case transport.TypePropose:
			var tx schema.Transaction
			if err := frame.Decode(&tx); err != nil {
				conn.WriteError(err.Error())
				return
			}
			result, err := s.authority.Propose(ctx, tx)
			if err != nil {
				log.Printf("propose %s from %s: %v", tx.ID, service, err)
				conn.WriteError(fmt.Sprintf("commit failed: %v", err))
				return
			}
			if err := conn.Write(transport.TypeTransactionResult, result); err != nil {
				return
			}

		case transport.TypeHeartbeat:
			_ = conn.Write(transport.TypeHeartbeat, schema.Heartbeat{SentAtMillis: time.Now().UnixMilli()})

		default:
			conn.WriteError(fmt.Sprintf("unexpected frame 0x%02x", frame.Type))
			return
		}
	}
}

// stream feeds one subscriber: snapshot or backlog first, then live
// deltas. A lagged session comes back as a closed channel, in which
// case the subscriber is resynced in place from a fresh snapshot.
func (s *Server) stream(ctx context.Context, conn *transport.Conn, service string, fromVersion uint64) error {
	for {
		sub, err := s.authority.Subscribe(fromVersion)
		if err != nil {
			return err
		}

		if sub.Snapshot != nil {
			if err := conn.Write(transport.TypeSnapshot, *sub.Snapshot); err != nil {
				s.authority.Unsubscribe(sub.Session)
				return err
			}
			fromVersion = sub.Snapshot.World.Version
		}
		for _, d := range sub.Backlog {
			if err := conn.Write(transport.TypeDelta, d); err != nil {
				s.authority.Unsubscribe(sub.Session)
				return err
			}
			fromVersion = d.Version
		}

		lagged := false
		for {
			var d schema.Delta
			var open bool
			select {
			case <-ctx.Done():
				s.authority.Unsubscribe(sub.Session)
				return ctx.Err()
			case d, open = <-sub.Session.Deltas():
			}
			if !open {
				lagged = sub.Session.lagged
				break
			}
			if err := conn.Write(transport.TypeDelta, d); err != nil {
				s.authority.Unsubscribe(sub.Session)
				return err
			}
			fromVersion = d.Version
		}
		if !lagged {
			// Authority shut down.
			return nil
		}
		log.Printf("resyncing lagged subscriber %s from snapshot", service)
		// Loop resubscribes; an aged-out fromVersion yields a snapshot.
	}
}
