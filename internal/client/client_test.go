package client

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/onekgame/onek/internal/authority"
	"github.com/onekgame/onek/internal/schema"
)

func startAuthority(t *testing.T, cfg authority.Config) (*authority.Authority, string) {
	t.Helper()
	a, err := authority.New(cfg)
	if err != nil {
		t.Fatalf("authority.New: %v", err)
	}
	server, err := authority.NewServer(a, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("authority.NewServer: %v", err)
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

func startClient(t *testing.T, address, service string, opts ...Option) *Client {
	t.Helper()
	c := New(address, service, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	syncCtx, syncCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer syncCancel()
	if err := c.WaitSynced(syncCtx); err != nil {
		t.Fatalf("WaitSynced: %v", err)
	}
	return c
}

func seedTransaction(t *testing.T, id string) schema.Transaction {
	t.Helper()
	var effects []schema.Effect
	for i, oid := range []schema.Oid{3, 4, 5} {
		loc := schema.Point{X: int32(i), Y: 0}
		terrain := schema.TerrainDirt
		eff, err := schema.SpawnEffect(schema.Entity{ID: oid, Position: &loc, Terrain: &terrain})
		if err != nil {
			t.Fatalf("spawn effect: %v", err)
		}
		effects = append(effects, eff)
	}
	loc := schema.Point{X: 0, Y: 0}
	blocker, err := schema.SpawnEffect(schema.Entity{
		ID:         6,
		Position:   &loc,
		Renderable: &schema.Renderable{Symbol: 'b', Blocking: true},
	})
	if err != nil {
		t.Fatalf("spawn blocker: %v", err)
	}
	return schema.Transaction{ID: id, Effects: append(effects, blocker)}
}

func TestClientMirrorsCommits(t *testing.T) {
	a, address := startAuthority(t, authority.Config{})

	applied := make(chan schema.Delta, 16)
	c := startClient(t, address, "tester", WithOnDelta(func(d schema.Delta, _ schema.World) {
		applied <- d
	}))

	result, err := c.Propose(context.Background(), seedTransaction(t, "tx-seed"))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if !result.Committed() || result.Version != 1 {
		t.Fatalf("result = %+v, want commit at version 1", result)
	}

	select {
	case d := <-applied:
		if d.Version != 1 {
			t.Fatalf("applied delta version %d, want 1", d.Version)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delta never reached the mirror")
	}

	if diff := cmp.Diff(a.Snapshot().World, c.World()); diff != "" {
		t.Fatalf("mirror differs from authority (-authority +mirror):\n%s", diff)
	}
}

func TestClientResyncsFromSnapshotWhenBehind(t *testing.T) {
	a, address := startAuthority(t, authority.Config{ReplayBufferSize: 1})

	// History the replay buffer cannot bridge from version zero.
	if _, err := a.Propose(context.Background(), seedTransaction(t, "tx-h1")); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	move, err := schema.SetEffect(6, schema.ComponentPosition, schema.Point{X: 1, Y: 0})
	if err != nil {
		t.Fatalf("set effect: %v", err)
	}
	if _, err := a.Propose(context.Background(), schema.Transaction{ID: "tx-h2", Effects: []schema.Effect{move}}); err != nil {
		t.Fatalf("Propose: %v", err)
	}

	resynced := make(chan schema.World, 1)
	c := startClient(t, address, "tester", WithOnResync(func(w schema.World) {
		select {
		case resynced <- w:
		default:
		}
	}))

	select {
	case w := <-resynced:
		if w.Version != 2 {
			t.Fatalf("resynced at version %d, want 2", w.Version)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client never resynced from snapshot")
	}
	if diff := cmp.Diff(a.Snapshot().World, c.World()); diff != "" {
		t.Fatalf("mirror differs after resync (-authority +mirror):\n%s", diff)
	}
}

func TestClientPropagatesRejections(t *testing.T) {
	_, address := startAuthority(t, authority.Config{})
	c := startClient(t, address, "tester")

	if _, err := c.Propose(context.Background(), seedTransaction(t, "tx-seed")); err != nil {
		t.Fatalf("Propose seed: %v", err)
	}

	// Second blocker on the occupied cell violates position
	// exclusivity.
	loc := schema.Point{X: 0, Y: 0}
	overlap, err := schema.SpawnEffect(schema.Entity{
		ID:         7,
		Position:   &loc,
		Renderable: &schema.Renderable{Symbol: 'x', Blocking: true},
	})
	if err != nil {
		t.Fatalf("spawn effect: %v", err)
	}
	result, err := c.Propose(context.Background(), schema.Transaction{ID: "tx-overlap", Effects: []schema.Effect{overlap}})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if result.Committed() {
		t.Fatal("invariant-violating proposal committed")
	}
	if result.Rejected.Reason != schema.RejectInvariant {
		t.Fatalf("reason = %q, want %q", result.Rejected.Reason, schema.RejectInvariant)
	}
}

func TestClientFollowsConcurrentCommits(t *testing.T) {
	a, address := startAuthority(t, authority.Config{})

	versions := make(chan uint64, 64)
	c := startClient(t, address, "tester", WithOnDelta(func(d schema.Delta, _ schema.World) {
		versions <- d.Version
	}))

	if _, err := a.Propose(context.Background(), seedTransaction(t, "tx-seed")); err != nil {
		t.Fatalf("Propose seed: %v", err)
	}
	positions := []schema.Point{{X: 1, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	for i, p := range positions {
		move, err := schema.SetEffect(6, schema.ComponentPosition, p)
		if err != nil {
			t.Fatalf("set effect: %v", err)
		}
		if _, err := a.Propose(context.Background(), schema.Transaction{ID: "tx-" + string(rune('a'+i)), Effects: []schema.Effect{move}}); err != nil {
			t.Fatalf("Propose %d: %v", i, err)
		}
	}

	want := uint64(1)
	deadline := time.After(5 * time.Second)
	for want <= uint64(len(positions))+1 {
		select {
		case v := <-versions:
			if v != want {
				t.Fatalf("delta version %d, want %d (ordering broken)", v, want)
			}
			want++
		case <-deadline:
			t.Fatalf("timed out waiting for version %d", want)
		}
	}

	if diff := cmp.Diff(a.Snapshot().World, c.World()); diff != "" {
		t.Fatalf("mirror diverged (-authority +mirror):\n%s", diff)
	}
}
