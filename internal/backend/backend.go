package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onekgame/onek/internal/client"
	"github.com/onekgame/onek/internal/schema"
	"github.com/onekgame/onek/internal/transport"
)

// Backend is the session multiplexer. One mirror of the world feeds
// rendered views to every connected front end; intents flow the other
// way through per-session logic connections.
type Backend struct {
	logicAddress string
	mirror       *client.Client
	listener     *transport.Listener

	mu          sync.Mutex
	sessions    map[uint64]*session
	nextSession uint64
}

// session is one connected front end.
type session struct {
	id   uint64
	conn *transport.Conn
	// views holds the latest pending view. Pushing replaces any undrawn
	// frame: a slow session skips intermediate frames instead of
	// lagging ever further behind.
	views chan View
}

// push hands the session a new view, displacing an undelivered one.
func (s *session) push(v View) {
	for {
		select {
		case s.views <- v:
			return
		default:
			select {
			case <-s.views:
			default:
			}
		}
	}
}

// New builds a backend listening on listenAddress, mirroring the
// authority and forwarding intents to the logic engine.
func New(authorityAddress, logicAddress, listenAddress string) (*Backend, error) {
	b := &Backend{
		logicAddress: logicAddress,
		sessions:     map[uint64]*session{},
	}
	b.mirror = client.New(authorityAddress, "backend",
		client.WithOnDelta(func(_ schema.Delta, world schema.World) { b.fanout(world) }),
		client.WithOnResync(b.fanout),
	)
	listener, err := transport.Listen(listenAddress)
	if err != nil {
		return nil, err
	}
	b.listener = listener
	return b, nil
}

// Address returns the bound listen address.
func (b *Backend) Address() string {
	return b.listener.Address()
}

// Run drives the mirror and the session listener until ctx is
// canceled.
func (b *Backend) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.mirror.Run(ctx) })
	g.Go(func() error { return b.listener.Serve(ctx, b.handle) })
	return g.Wait()
}

// Close stops accepting sessions.
func (b *Backend) Close() error {
	return b.listener.Close()
}

// fanout renders the world once and offers the view to every session.
func (b *Backend) fanout(world schema.World) {
	view := Render(world)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		s.push(view)
	}
}

func (b *Backend) register(conn *transport.Conn) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &session{id: b.nextSession, conn: conn, views: make(chan View, 1)}
	b.nextSession++
	b.sessions[s.id] = s
	return s
}

func (b *Backend) unregister(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, s.id)
}

func (b *Backend) handle(ctx context.Context, conn *transport.Conn) {
	defer conn.Close()

	peer, err := conn.ServerHello()
	if err != nil {
		log.Printf("handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	name := peer.Service
	if name == "" {
		name = conn.RemoteAddr()
	}

	// A session gets its own logic connection, so one front end's
	// in-flight intent cannot stall another's.
	intents, err := client.DialIntents(ctx, b.logicAddress, fmt.Sprintf("backend-session-%s", name))
	if err != nil {
		log.Printf("session %s: logic engine unreachable: %v", name, err)
		conn.WriteError("logic engine unreachable")
		return
	}
	defer intents.Close()

	s := b.register(conn)
	defer b.unregister(s)
	log.Printf("session %s connected", name)
	defer log.Printf("session %s disconnected", name)

	// Seed the session with the current frame.
	s.push(Render(b.mirror.World()))

	writerCtx, stopWriter := context.WithCancel(ctx)
	defer stopWriter()
	go func() {
		for {
			select {
			case <-writerCtx.Done():
				return
			case view := <-s.views:
				if err := conn.Write(transport.TypeView, view); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		frame, err := conn.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Printf("session %s: read: %v", name, err)
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
			result, err := intents.Send(ctx, intent)
			if err != nil {
				log.Printf("session %s: forward %s intent: %v", name, intent.Kind, err)
				conn.WriteError("logic engine unavailable")
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
