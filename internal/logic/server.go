package logic

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

// Server exposes the engine's intent port: one intent in, one result
// out, per connection in order. The backend aggregator and the
// scripted test driver are its clients.
type Server struct {
	engine   *Engine
	listener *transport.Listener
}

// NewServer binds the listen address. Run starts serving.
func NewServer(engine *Engine, address string) (*Server, error) {
	listener, err := transport.Listen(address)
	if err != nil {
		return nil, err
	}
	return &Server{engine: engine, listener: listener}, nil
}

// Address returns the bound listen address.
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

	for {
		frame, err := conn.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Printf("read from %s: %v", service, err)
			}
			return
		}
		switch frame.Type {
		case transport.TypeIntent:
			var intent schema.Intent
			if err := frame.Decode(&intent); err != nil {
				conn.WriteError(err.Error())
				return
			}
			result, err := s.engine.HandleIntent(ctx, intent)
			if err != nil {
				log.Printf("handle %s intent from %s: %v", intent.Kind, service, err)
				conn.WriteError(fmt.Sprintf("intent failed: %v", err))
				return
			}
			if err := conn.Write(transport.TypeIntentResult, result); err != nil {
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
