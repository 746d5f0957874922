package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/onekgame/onek/internal/codec"
	"github.com/onekgame/onek/internal/schema"
)

// ErrProtocol marks a violation of the wire protocol: a malformed
// frame, an unexpected message type, or an incompatible Hello. It is
// fatal to the connection it occurred on and only that connection.
var ErrProtocol = errors.New("protocol error")

// Conn wraps a byte stream with typed, length-prefixed CBOR framing.
// Reads and writes are independently serialized so one reader and one
// writer goroutine may share the conn, which is how delta streaming
// and request/response traffic interleave on a single connection.
type Conn struct {
	raw net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewConn wraps an established network connection.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// Write encodes v and sends it as a frame of the given type.
func (c *Conn) Write(frameType byte, v any) error {
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame 0x%02x: %w", frameType, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.raw, Frame{Type: frameType, Payload: payload})
}

// Read blocks for the next frame.
func (c *Conn) Read() (Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return ReadFrame(c.raw)
}

// Decode unpacks a frame payload into v.
func (f Frame) Decode(v any) error {
	if err := codec.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("%w: decode frame 0x%02x: %v", ErrProtocol, f.Type, err)
	}
	return nil
}

// Close closes the underlying connection. Safe to call from any
// goroutine to unblock a pending Read.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the peer address for logs.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}

// WriteError sends a terminal error description to the peer. Best
// effort: the connection is about to close either way.
func (c *Conn) WriteError(detail string) {
	_ = c.Write(TypeError, struct {
		Detail string `cbor:"detail"`
	}{Detail: detail})
}

// ClientHello performs the client side of the version handshake:
// sends this build's Hello, reads the server's, and checks major
// compatibility.
func (c *Conn) ClientHello(service string) error {
	hello := schema.Hello{Major: schema.ProtocolMajor, Minor: schema.ProtocolMinor, Service: service}
	if err := c.Write(TypeHello, hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	return c.readHello()
}

// ServerHello performs the server side of the handshake: reads the
// peer's Hello first, then answers with this build's.
func (c *Conn) ServerHello() (schema.Hello, error) {
	peer, err := c.readPeerHello()
	if err != nil {
		return schema.Hello{}, err
	}
	hello := schema.Hello{Major: schema.ProtocolMajor, Minor: schema.ProtocolMinor}
	if err := c.Write(TypeHello, hello); err != nil {
		return schema.Hello{}, fmt.Errorf("send hello: %w", err)
	}
	return peer, nil
}

func (c *Conn) readHello() error {
	_, err := c.readPeerHello()
	return err
}

func (c *Conn) readPeerHello() (schema.Hello, error) {
	frame, err := c.Read()
	if err != nil {
		return schema.Hello{}, fmt.Errorf("read hello: %w", err)
	}
	if frame.Type != TypeHello {
		return schema.Hello{}, fmt.Errorf("%w: expected hello frame, got 0x%02x", ErrProtocol, frame.Type)
	}
	var hello schema.Hello
	if err := frame.Decode(&hello); err != nil {
		return schema.Hello{}, err
	}
	if err := hello.CheckCompatible(); err != nil {
		c.WriteError(err.Error())
		return schema.Hello{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return hello, nil
}
