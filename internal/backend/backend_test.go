package backend

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/onekgame/onek/internal/authority"
	"github.com/onekgame/onek/internal/client"
	"github.com/onekgame/onek/internal/logic"
	"github.com/onekgame/onek/internal/schema"
	"github.com/onekgame/onek/internal/transport"
)

// startStack boots the full pipeline: authority, logic engine with its
// intent port, and a backend, returning the backend's session address.
func startStack(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a, err := authority.New(authority.Config{})
	if err != nil {
		t.Fatalf("authority.New: %v", err)
	}
	authServer, err := authority.NewServer(a, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("authority.NewServer: %v", err)
	}
	go func() { _ = authServer.Run(ctx) }()
	t.Cleanup(func() {
		authServer.Close()
		a.Close()
	})

	mirror := client.New(authServer.Address(), "logic")
	go func() { _ = mirror.Run(ctx) }()
	logicServer, err := logic.NewServer(logic.NewEngine(mirror), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("logic.NewServer: %v", err)
	}
	go func() { _ = logicServer.Run(ctx) }()
	t.Cleanup(func() { logicServer.Close() })

	b, err := New(authServer.Address(), logicServer.Address(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go func() { _ = b.Run(ctx) }()
	t.Cleanup(func() { b.Close() })
	return b.Address()
}

func dialSession(t *testing.T, address, name string) *transport.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.DialReady(ctx, address)
	if err != nil {
		t.Fatalf("DialReady: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.ClientHello(name); err != nil {
		t.Fatalf("ClientHello: %v", err)
	}
	return conn
}

// pumpSession reads frames until an intent result arrives, returning
// it along with any views that came through meanwhile.
func pumpSession(t *testing.T, conn *transport.Conn) (schema.IntentResult, []View) {
	t.Helper()
	var views []View
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		frame, err := conn.Read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		switch frame.Type {
		case transport.TypeView:
			var view View
			if err := frame.Decode(&view); err != nil {
				t.Fatalf("decode view: %v", err)
			}
			views = append(views, view)
		case transport.TypeIntentResult:
			var result schema.IntentResult
			if err := frame.Decode(&result); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			return result, views
		default:
			t.Fatalf("unexpected frame 0x%02x", frame.Type)
		}
	}
	t.Fatal("no intent result before deadline")
	return schema.IntentResult{}, nil
}

// waitForView reads until a view at or past version arrives.
func waitForView(t *testing.T, conn *transport.Conn, version uint64, seen []View) View {
	t.Helper()
	for _, v := range seen {
		if v.Version >= version {
			return v
		}
	}
	for {
		frame, err := conn.Read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Type != transport.TypeView {
			continue
		}
		var view View
		if err := frame.Decode(&view); err != nil {
			t.Fatalf("decode view: %v", err)
		}
		if view.Version >= version {
			return view
		}
	}
}

func TestSessionIntentAndViewFlow(t *testing.T) {
	address := startStack(t)
	conn := dialSession(t, address, "terminal-1")

	level := "####\n#@ #\n####"
	if err := conn.Write(transport.TypeIntent, schema.Intent{Kind: schema.IntentReset, Map: level, Reason: "test"}); err != nil {
		t.Fatalf("send reset: %v", err)
	}
	result, views := pumpSession(t, conn)
	if result.Version == 0 {
		t.Fatalf("reset result = %+v, want a committed version", result)
	}

	view := waitForView(t, conn, result.Version, views)
	if got := view.ASCII(); got != level {
		t.Fatalf("view after reset:\n%s\nwant:\n%s", got, level)
	}

	// Move right; the next view shows the player one cell over.
	if err := conn.Write(transport.TypeIntent, schema.Intent{Kind: schema.IntentBump, Target: schema.Point{X: 2, Y: 1}}); err != nil {
		t.Fatalf("send bump: %v", err)
	}
	result, views = pumpSession(t, conn)
	if result.Discarded || result.Version == 0 {
		t.Fatalf("bump result = %+v, want a commit", result)
	}
	view = waitForView(t, conn, result.Version, views)
	if got := view.ASCII(); got != "####\n# @#\n####" {
		t.Fatalf("view after move:\n%s", got)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	address := startStack(t)

	first := dialSession(t, address, "terminal-1")
	second := dialSession(t, address, "terminal-2")

	// Kill the first session mid-stream; the second must keep working.
	first.Close()

	level := "#@#"
	if err := second.Write(transport.TypeIntent, schema.Intent{Kind: schema.IntentReset, Map: level, Reason: "isolation"}); err != nil {
		t.Fatalf("send reset: %v", err)
	}
	result, views := pumpSession(t, second)
	if result.Version == 0 {
		t.Fatalf("reset on surviving session = %+v, want a commit", result)
	}
	view := waitForView(t, second, result.Version, views)
	if !strings.Contains(view.ASCII(), "@") {
		t.Fatalf("surviving session view missing player:\n%s", view.ASCII())
	}
}
