package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/onekgame/onek/internal/schema"
	"github.com/onekgame/onek/internal/transport"
)

// IntentClient speaks to the logic engine's intent port: one intent in,
// one result out, in order. Used by the backend aggregator and the
// scripted test driver.
type IntentClient struct {
	mu   sync.Mutex
	conn *transport.Conn
}

// DialIntents connects to the logic engine, waiting for the port to
// come up.
func DialIntents(ctx context.Context, address, service string) (*IntentClient, error) {
	conn, err := transport.DialReady(ctx, address)
	if err != nil {
		return nil, err
	}
	if err := conn.ClientHello(service); err != nil {
		conn.Close()
		return nil, err
	}
	return &IntentClient{conn: conn}, nil
}

// Send submits one intent and blocks for the logic engine's result.
// Requests on one client are serialized; open more clients for
// concurrency.
func (c *IntentClient) Send(ctx context.Context, intent schema.Intent) (schema.IntentResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	if err := c.conn.Write(transport.TypeIntent, intent); err != nil {
		return schema.IntentResult{}, fmt.Errorf("send intent: %w", err)
	}
	frame, err := c.conn.Read()
	if err != nil {
		return schema.IntentResult{}, fmt.Errorf("read intent result: %w", err)
	}
	switch frame.Type {
	case transport.TypeIntentResult:
		var result schema.IntentResult
		if err := frame.Decode(&result); err != nil {
			return schema.IntentResult{}, err
		}
		return result, nil
	case transport.TypeError:
		var msg struct {
			Detail string `cbor:"detail"`
		}
		_ = frame.Decode(&msg)
		return schema.IntentResult{}, fmt.Errorf("%w: %s", transport.ErrProtocol, msg.Detail)
	default:
		return schema.IntentResult{}, fmt.Errorf("%w: unexpected frame 0x%02x", transport.ErrProtocol, frame.Type)
	}
}

// Close closes the connection.
func (c *IntentClient) Close() error {
	return c.conn.Close()
}
