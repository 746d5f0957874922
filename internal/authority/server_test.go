package authority

import (
	"context"
	"testing"
	"time"

	"github.com/onekgame/onek/internal/schema"
	"github.com/onekgame/onek/internal/transport"
)

func startServer(t *testing.T) (*Authority, string) {
	t.Helper()
	a, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	server, err := NewServer(a, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		server.Close()
		<-done
		a.Close()
	})
	return a, server.Address()
}

func dialService(t *testing.T, address, service string) *transport.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.DialReady(ctx, address)
	if err != nil {
		t.Fatalf("DialReady: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.ClientHello(service); err != nil {
		t.Fatalf("ClientHello: %v", err)
	}
	return conn
}

func TestServerProposeAndStream(t *testing.T) {
	_, address := startServer(t)

	subscriber := dialService(t, address, "tester-sub")
	if err := subscriber.Write(transport.TypeSubscribe, schema.SubscribeRequest{FromVersion: 0}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	proposer := dialService(t, address, "tester-prop")
	loc := schema.Point{X: 0, Y: 0}
	terrain := schema.TerrainDirt
	spawn, err := schema.SpawnEffect(schema.Entity{ID: 3, Position: &loc, Terrain: &terrain})
	if err != nil {
		t.Fatalf("spawn effect: %v", err)
	}
	if err := proposer.Write(transport.TypePropose, schema.Transaction{ID: "tx-net", Effects: []schema.Effect{spawn}}); err != nil {
		t.Fatalf("propose: %v", err)
	}

	frame, err := proposer.Read()
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if frame.Type != transport.TypeTransactionResult {
		t.Fatalf("frame type 0x%02x, want transaction result", frame.Type)
	}
	var result schema.TransactionResult
	if err := frame.Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Committed() || result.Version != 1 {
		t.Fatalf("result = %+v, want commit at version 1", result)
	}

	frame, err = subscriber.Read()
	if err != nil {
		t.Fatalf("read delta: %v", err)
	}
	if frame.Type != transport.TypeDelta {
		t.Fatalf("frame type 0x%02x, want delta", frame.Type)
	}
	var delta schema.Delta
	if err := frame.Decode(&delta); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if delta.Version != 1 || delta.TxID != "tx-net" {
		t.Fatalf("delta = %+v, want version 1 from tx-net", delta)
	}
	if err := VerifyChain([]schema.Delta{delta}, ""); err != nil {
		t.Fatalf("delta chain: %v", err)
	}
}

func TestServerSnapshotResyncForStaleSubscriber(t *testing.T) {
	a, address := startServer(t)

	// Commit some history, then subscribe from an aged-out version.
	loc := schema.Point{X: 0, Y: 0}
	terrain := schema.TerrainDirt
	spawn, err := schema.SpawnEffect(schema.Entity{ID: 3, Position: &loc, Terrain: &terrain})
	if err != nil {
		t.Fatalf("spawn effect: %v", err)
	}
	if _, err := a.Propose(context.Background(), schema.Transaction{ID: "tx-h1", Effects: []schema.Effect{spawn}}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	subscriber := dialService(t, address, "tester-late")
	if err := subscriber.Write(transport.TypeSubscribe, schema.SubscribeRequest{FromVersion: 100}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	frame, err := subscriber.Read()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if frame.Type != transport.TypeSnapshot {
		t.Fatalf("frame type 0x%02x, want snapshot", frame.Type)
	}
	var snap schema.Snapshot
	if err := frame.Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.World.Version != 1 {
		t.Fatalf("snapshot version %d, want 1", snap.World.Version)
	}
	if _, ok := snap.World.Entity(3); !ok {
		t.Fatal("snapshot missing entity 3")
	}
}

func TestServerHeartbeatEcho(t *testing.T) {
	_, address := startServer(t)
	conn := dialService(t, address, "tester-hb")
	if err := conn.Write(transport.TypeHeartbeat, schema.Heartbeat{SentAtMillis: time.Now().UnixMilli()}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	frame, err := conn.Read()
	if err != nil {
		t.Fatalf("read heartbeat: %v", err)
	}
	if frame.Type != transport.TypeHeartbeat {
		t.Fatalf("frame type 0x%02x, want heartbeat", frame.Type)
	}
}

func TestServerRejectsUnexpectedFrames(t *testing.T) {
	_, address := startServer(t)
	conn := dialService(t, address, "tester-bad")
	if err := conn.Write(transport.TypeIntent, schema.Intent{Kind: schema.IntentBump}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame, err := conn.Read()
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if frame.Type != transport.TypeError {
		t.Fatalf("frame type 0x%02x, want error", frame.Type)
	}
}
