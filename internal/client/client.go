package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/onekgame/onek/internal/authority"
	"github.com/onekgame/onek/internal/schema"
	"github.com/onekgame/onek/internal/transport"
)

// ErrNotConnected is returned by Propose while the client has no live
// authority connection.
var ErrNotConnected = errors.New("not connected to state authority")

const heartbeatInterval = 30 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithOnDelta registers a callback invoked after each delta is applied
// to the mirror. The world value is the post-apply mirror; callbacks
// must treat it as read-only and must not block, since they run on the
// stream goroutine.
func WithOnDelta(fn func(delta schema.Delta, world schema.World)) Option {
	return func(c *Client) { c.onDelta = fn }
}

// WithOnResync registers a callback invoked after the mirror is
// replaced wholesale by a snapshot.
func WithOnResync(fn func(world schema.World)) Option {
	return func(c *Client) { c.onResync = fn }
}

// Client is a self-healing mirror of the authoritative world.
type Client struct {
	address string
	service string

	onDelta  func(schema.Delta, schema.World)
	onResync func(schema.World)

	mu       sync.Mutex
	conn     *transport.Conn
	world    schema.World
	lastHash string
	pending  map[string]chan schema.TransactionResult
	waiters  []waiter

	syncedOnce sync.Once
	synced     chan struct{}
}

// New builds a client for the authority at address. Run must be
// started for the mirror to fill.
func New(address, service string, opts ...Option) *Client {
	c := &Client{
		address: address,
		service: service,
		world:   schema.NewWorld(),
		pending: map[string]chan schema.TransactionResult{},
		synced:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects, subscribes, and consumes the stream until ctx is
// canceled, reconnecting and resubscribing from the mirror's version
// after any failure.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("%s: authority stream ended: %v; reconnecting", c.service, err)
	}
}

// WaitSynced blocks until the client has an active subscription, i.e.
// the mirror is guaranteed to converge on the live world.
func (c *Client) WaitSynced(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.synced:
		return nil
	}
}

// waiter is one WaitVersion caller parked until the mirror reaches its
// version.
type waiter struct {
	version uint64
	ch      chan struct{}
}

// WaitVersion blocks until the mirror has applied the given version.
// Proposers use it to read their own writes: Propose returns at
// commit, the delta lands on the mirror asynchronously.
func (c *Client) WaitVersion(ctx context.Context, version uint64) error {
	c.mu.Lock()
	if c.world.Version >= version {
		c.mu.Unlock()
		return nil
	}
	w := waiter{version: version, ch: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ch:
		return nil
	}
}

// signalWaiters releases WaitVersion callers the mirror has caught up
// to. Caller holds the lock.
func (c *Client) signalWaiters() {
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if c.world.Version >= w.version {
			close(w.ch)
		} else {
			kept = append(kept, w)
		}
	}
	c.waiters = kept
}

// Version returns the mirror's current world version.
func (c *Client) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world.Version
}

// World returns a detached copy of the mirror.
func (c *Client) World() schema.World {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.world.Clone()
}

// View runs fn against the live mirror under the client lock. fn must
// not mutate the world or block.
func (c *Client) View(fn func(world schema.World)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.world)
}

// Propose submits a transaction and blocks for the authority's
// synchronous verdict.
func (c *Client) Propose(ctx context.Context, tx schema.Transaction) (schema.TransactionResult, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return schema.TransactionResult{}, ErrNotConnected
	}
	ch := make(chan schema.TransactionResult, 1)
	c.pending[tx.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, tx.ID)
		c.mu.Unlock()
	}()

	if err := conn.Write(transport.TypePropose, tx); err != nil {
		return schema.TransactionResult{}, fmt.Errorf("send proposal: %w", err)
	}
	select {
	case <-ctx.Done():
		return schema.TransactionResult{}, ctx.Err()
	case result, ok := <-ch:
		if !ok {
			return schema.TransactionResult{}, ErrNotConnected
		}
		return result, nil
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, err := transport.DialReady(ctx, c.address)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer c.detach(conn)

	if err := conn.ClientHello(c.service); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	from := c.world.Version
	c.mu.Unlock()

	if err := conn.Write(transport.TypeSubscribe, schema.SubscribeRequest{FromVersion: from}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.syncedOnce.Do(func() { close(c.synced) })

	// Close the conn on cancellation to unblock the read below.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go heartbeats(conn, heartbeatDone)

	for {
		frame, err := conn.Read()
		if err != nil {
			return err
		}
		switch frame.Type {
		case transport.TypeSnapshot:
			var snap schema.Snapshot
			if err := frame.Decode(&snap); err != nil {
				return err
			}
			c.adoptSnapshot(snap)
		case transport.TypeDelta:
			var delta schema.Delta
			if err := frame.Decode(&delta); err != nil {
				return err
			}
			if err := c.applyDelta(delta); err != nil {
				return err
			}
		case transport.TypeTransactionResult:
			var result schema.TransactionResult
			if err := frame.Decode(&result); err != nil {
				return err
			}
			c.dispatch(result)
		case transport.TypeHeartbeat:
		case transport.TypeError:
			var msg struct {
				Detail string `cbor:"detail"`
			}
			_ = frame.Decode(&msg)
			return fmt.Errorf("%w: %s", transport.ErrProtocol, msg.Detail)
		default:
			return fmt.Errorf("%w: unexpected frame 0x%02x", transport.ErrProtocol, frame.Type)
		}
	}
}

// detach drops the session's conn and fails every in-flight proposal.
func (c *Client) detach(conn *transport.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

func (c *Client) adoptSnapshot(snap schema.Snapshot) {
	c.mu.Lock()
	c.world = snap.World
	c.lastHash = ""
	c.signalWaiters()
	world := c.world
	c.mu.Unlock()

	log.Printf("%s: resynced from snapshot at version %d", c.service, world.Version)
	if c.onResync != nil {
		c.onResync(world)
	}
}

// applyDelta folds one delta into the mirror, enforcing version
// continuity and the hash chain. Any violation resets the mirror and
// errors out of the session; the resubscribe lands on a fresh
// snapshot.
func (c *Client) applyDelta(delta schema.Delta) error {
	c.mu.Lock()
	if delta.Version != c.world.Version+1 {
		c.reset()
		c.mu.Unlock()
		return fmt.Errorf("delta gap: mirror at version %d, received %d", c.world.Version, delta.Version)
	}
	prev := c.lastHash
	if prev == "" && c.world.Version > 0 {
		// First delta after a snapshot; adopt its anchor.
		prev = delta.PrevHash
	}
	want, err := authority.DeltaHash(prev, delta.Version, delta.TxID, delta.Effects)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if delta.PrevHash != prev || delta.Hash != want {
		c.reset()
		c.mu.Unlock()
		return fmt.Errorf("state divergence at version %d: delta hash %q, recomputed %q", delta.Version, delta.Hash, want)
	}
	if err := c.world.Apply(delta.Effects); err != nil {
		c.reset()
		c.mu.Unlock()
		return fmt.Errorf("apply delta %d: %w", delta.Version, err)
	}
	c.world.Version = delta.Version
	c.lastHash = delta.Hash
	c.signalWaiters()
	world := c.world
	c.mu.Unlock()

	if c.onDelta != nil {
		c.onDelta(delta, world)
	}
	return nil
}

// reset discards the mirror so the next subscription starts from
// scratch. Caller holds the lock.
func (c *Client) reset() {
	c.world = schema.NewWorld()
	c.lastHash = ""
}

func (c *Client) dispatch(result schema.TransactionResult) {
	c.mu.Lock()
	ch, ok := c.pending[result.TxID]
	if ok {
		delete(c.pending, result.TxID)
	}
	c.mu.Unlock()
	if ok {
		ch <- result
	}
}

func heartbeats(conn *transport.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.Write(transport.TypeHeartbeat, schema.Heartbeat{SentAtMillis: time.Now().UnixMilli()}); err != nil {
				return
			}
		}
	}
}
