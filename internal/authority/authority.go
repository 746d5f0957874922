package authority

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/onekgame/onek/internal/codec"
	"github.com/onekgame/onek/internal/invariant"
	"github.com/onekgame/onek/internal/schema"
)

// ErrClosed is returned by operations on an authority that has shut
// down.
var ErrClosed = errors.New("authority closed")

// Config tunes a new authority. Zero values pick working defaults.
type Config struct {
	// Journal persists committed deltas. Nil gets an in-memory journal
	// with no durability.
	Journal Journal
	// Checks are the world invariants enforced before every commit.
	// Nil gets the default registry.
	Checks *invariant.Registry
	// ReplayBufferSize bounds how many recent deltas are kept for
	// subscriber catch-up. Older subscribers are forced to resync from
	// a snapshot.
	ReplayBufferSize int
	// SessionBufferSize bounds each subscriber's pending delta queue.
	// A subscriber that falls this far behind has its session closed
	// and must resync.
	SessionBufferSize int
	// SnapshotEvery saves a restore snapshot to the journal every N
	// commits. Zero disables periodic snapshots.
	SnapshotEvery uint64
}

const (
	defaultReplayBufferSize  = 512
	defaultSessionBufferSize = 128
)

// Authority owns the world. All mutation funnels through Propose under
// a single mutex, which is what makes version assignment, hash
// chaining, journaling, and broadcast ordering trivially consistent.
type Authority struct {
	journal       Journal
	checks        *invariant.Registry
	sessionBuffer int
	snapshotEvery uint64

	mu          sync.Mutex
	closed      bool
	world       schema.World
	lastHash    string
	replay      *replayBuffer
	sessions    map[uint64]*Session
	nextSession uint64
}

// New builds an authority, restoring the world from the journal when
// it holds prior history. Restore replays the journaled delta chain on
// top of the latest snapshot and verifies every link.
func New(cfg Config) (*Authority, error) {
	journal := cfg.Journal
	if journal == nil {
		journal = NewMemoryJournal()
	}
	checks := cfg.Checks
	if checks == nil {
		checks = invariant.Default()
	}
	replaySize := cfg.ReplayBufferSize
	if replaySize <= 0 {
		replaySize = defaultReplayBufferSize
	}
	sessionBuffer := cfg.SessionBufferSize
	if sessionBuffer <= 0 {
		sessionBuffer = defaultSessionBufferSize
	}

	a := &Authority{
		journal:       journal,
		checks:        checks,
		sessionBuffer: sessionBuffer,
		snapshotEvery: cfg.SnapshotEvery,
		world:         schema.NewWorld(),
		replay:        newReplayBuffer(replaySize),
		sessions:      map[uint64]*Session{},
	}
	if err := a.restore(); err != nil {
		return nil, err
	}
	return a, nil
}

// restore rebuilds world state from the journal: latest snapshot
// first, then every delta after it, re-verifying the hash chain.
func (a *Authority) restore() error {
	ctx := context.Background()

	snap, ok, err := a.journal.LatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if ok {
		a.world = snap.World
	}

	deltas, err := a.journal.DeltasSince(ctx, a.world.Version)
	if err != nil {
		return fmt.Errorf("load deltas: %w", err)
	}
	for _, d := range deltas {
		if d.Version != a.world.Version+1 {
			return fmt.Errorf("journal gap: world at version %d, next delta is %d", a.world.Version, d.Version)
		}
		want, err := DeltaHash(a.lastHashAt(d), d.Version, d.TxID, d.Effects)
		if err != nil {
			return err
		}
		if d.Hash != want {
			return fmt.Errorf("journal corrupt: delta %d hash %q does not match recomputed %q", d.Version, d.Hash, want)
		}
		if err := a.world.Apply(d.Effects); err != nil {
			return fmt.Errorf("replay delta %d: %w", d.Version, err)
		}
		a.world.Version = d.Version
		a.lastHash = d.Hash
		a.replay.Append(d)
	}
	if a.lastHash == "" && a.world.Version > 0 {
		// Snapshot sits at the journal head; recover the chain anchor
		// from the head delta so the next commit extends it.
		head, err := a.journal.DeltasSince(ctx, a.world.Version-1)
		if err != nil {
			return fmt.Errorf("load head delta: %w", err)
		}
		if len(head) > 0 {
			a.lastHash = head[len(head)-1].Hash
		}
	}
	if a.world.Version > 0 {
		log.Printf("restored world at version %d (%d entities, %d deltas replayed)", a.world.Version, len(a.world.Entities), len(deltas))
	}
	return nil
}

// lastHashAt resolves the chain anchor for a replayed delta. When the
// restore started from a snapshot the in-memory lastHash is empty, so
// the first delta's own PrevHash is trusted; every later link is
// verified against the recomputed chain.
func (a *Authority) lastHashAt(d schema.Delta) string {
	if a.lastHash == "" && a.world.Version > 0 {
		return d.PrevHash
	}
	return a.lastHash
}

// Version returns the current world version.
func (a *Authority) Version() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.world.Version
}

// Snapshot returns a full, detached copy of the world at its current
// version.
func (a *Authority) Snapshot() schema.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return schema.Snapshot{World: a.world.Clone()}
}

// Propose validates and, if every precondition and invariant holds,
// commits a transaction. The returned result carries either the commit
// version or a classified rejection; rejections leave no trace on the
// world. A non-nil error means an internal failure (journal down,
// encoding bug), not a rejection.
func (a *Authority) Propose(ctx context.Context, tx schema.Transaction) (schema.TransactionResult, error) {
	if rej := validate(tx); rej != nil {
		return schema.TransactionResult{TxID: tx.ID, Rejected: rej}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return schema.TransactionResult{}, ErrClosed
	}

	if rej, err := a.checkPreconditions(tx); err != nil {
		return schema.TransactionResult{}, err
	} else if rej != nil {
		return schema.TransactionResult{TxID: tx.ID, Rejected: rej}, nil
	}

	// Apply to a working copy so a failing effect leaves the live world
	// untouched.
	working := a.world.Clone()
	if err := working.Apply(tx.Effects); err != nil {
		return schema.TransactionResult{TxID: tx.ID, Rejected: &schema.Rejection{
			Reason: schema.RejectInvalid,
			Detail: err.Error(),
		}}, nil
	}
	working.Version = a.world.Version + 1

	if err := a.checks.Check(working); err != nil {
		return schema.TransactionResult{TxID: tx.ID, Rejected: &schema.Rejection{
			Reason: schema.RejectInvariant,
			Detail: err.Error(),
		}}, nil
	}

	hash, err := DeltaHash(a.lastHash, working.Version, tx.ID, tx.Effects)
	if err != nil {
		return schema.TransactionResult{}, err
	}
	delta := schema.Delta{
		Version:  working.Version,
		TxID:     tx.ID,
		Hash:     hash,
		PrevHash: a.lastHash,
		Effects:  tx.Effects,
	}
	if err := a.journal.Append(ctx, delta); err != nil {
		return schema.TransactionResult{}, fmt.Errorf("journal delta %d: %w", delta.Version, err)
	}

	a.world = working
	a.lastHash = hash
	a.replay.Append(delta)
	a.broadcast(delta)

	if a.snapshotEvery > 0 && a.world.Version%a.snapshotEvery == 0 {
		if err := a.journal.SaveSnapshot(ctx, schema.Snapshot{World: a.world.Clone()}); err != nil {
			log.Printf("save snapshot at version %d: %v", a.world.Version, err)
		}
	}

	return schema.TransactionResult{TxID: tx.ID, Version: delta.Version}, nil
}

// validate rejects syntactically malformed proposals before any state
// is consulted.
func validate(tx schema.Transaction) *schema.Rejection {
	reject := func(detail string) *schema.Rejection {
		return &schema.Rejection{Reason: schema.RejectInvalid, Detail: detail}
	}
	if tx.ID == "" {
		return reject("transaction id is required")
	}
	if len(tx.Effects) == 0 {
		return reject("transaction has no effects")
	}
	for i, e := range tx.Effects {
		switch e.Op {
		case schema.OpSpawn:
			if len(e.Value) == 0 {
				return reject(fmt.Sprintf("effect %d: spawn without entity value", i))
			}
		case schema.OpDespawn:
		case schema.OpSet:
			if !schema.KnownComponent(e.Component) {
				return reject(fmt.Sprintf("effect %d: unknown component %q", i, e.Component))
			}
			if len(e.Value) == 0 {
				return reject(fmt.Sprintf("effect %d: set without value", i))
			}
		case schema.OpRemove:
			if !schema.KnownComponent(e.Component) {
				return reject(fmt.Sprintf("effect %d: unknown component %q", i, e.Component))
			}
		default:
			return reject(fmt.Sprintf("effect %d: unknown op %q", i, e.Op))
		}
		if e.Entity == schema.NullOid {
			return reject(fmt.Sprintf("effect %d: null entity", i))
		}
	}
	return nil
}

// checkPreconditions evaluates every guard against the live world.
// Caller holds the mutex.
func (a *Authority) checkPreconditions(tx schema.Transaction) (*schema.Rejection, error) {
	for i, p := range tx.Preconditions {
		if p.Version != nil {
			if *p.Version != a.world.Version {
				return &schema.Rejection{
					Reason: schema.RejectStaleVersion,
					Detail: fmt.Sprintf("guard %d: world is at version %d, guard requires %d", i, a.world.Version, *p.Version),
				}, nil
			}
			continue
		}

		e, exists := a.world.Entities[p.Entity]
		if !p.MustExist && p.Expected == nil {
			// Absence guard.
			if exists {
				return &schema.Rejection{
					Reason: schema.RejectMissingEntity,
					Detail: fmt.Sprintf("guard %d: entity %v exists but was asserted absent", i, p.Entity),
				}, nil
			}
			continue
		}
		if !exists {
			return &schema.Rejection{
				Reason: schema.RejectMissingEntity,
				Detail: fmt.Sprintf("guard %d: entity %v does not exist", i, p.Entity),
			}, nil
		}

		value := e.Component(p.Component)
		if value == nil {
			return &schema.Rejection{
				Reason: schema.RejectComponentMismatch,
				Detail: fmt.Sprintf("guard %d: entity %v has no %s component", i, p.Entity, p.Component),
			}, nil
		}
		current, err := codec.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("guard %d: encode current %s: %w", i, p.Component, err)
		}
		if !bytes.Equal(current, p.Expected) {
			return &schema.Rejection{
				Reason: schema.RejectComponentMismatch,
				Detail: fmt.Sprintf("guard %d: entity %v component %s changed since observation", i, p.Entity, p.Component),
			}, nil
		}
	}
	return nil, nil
}

// Subscribe registers a delta feed starting after fromVersion. The
// subscription's snapshot-or-backlog and its session are captured
// under the commit mutex, so no delta can fall between them.
func (a *Authority) Subscribe(fromVersion uint64) (Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return Subscription{}, ErrClosed
	}

	session := &Session{id: a.nextSession, ch: make(chan schema.Delta, a.sessionBuffer)}
	a.nextSession++
	a.sessions[session.id] = session

	sub := Subscription{Session: session}
	switch {
	case fromVersion == a.world.Version:
		// Already current.
	case fromVersion > a.world.Version:
		// Claims a future version; its mirror is not ours. Resync.
		snap := schema.Snapshot{World: a.world.Clone()}
		sub.Snapshot = &snap
	default:
		if backlog, ok := a.replay.Since(fromVersion); ok {
			sub.Backlog = backlog
		} else {
			snap := schema.Snapshot{World: a.world.Clone()}
			sub.Snapshot = &snap
		}
	}
	return sub, nil
}

// Unsubscribe removes a session. Safe to call after the session was
// already force-closed for lagging.
func (a *Authority) Unsubscribe(s *Session) {
	if s == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[s.id]; !ok {
		return
	}
	delete(a.sessions, s.id)
	close(s.ch)
}

// broadcast fans a committed delta out to every session. A full
// session buffer means the subscriber cannot keep up; its channel is
// closed so the consumer resyncs from a snapshot instead of stalling
// the commit path. Caller holds the mutex.
func (a *Authority) broadcast(d schema.Delta) {
	for id, s := range a.sessions {
		select {
		case s.ch <- d:
		default:
			s.lagged = true
			delete(a.sessions, id)
			close(s.ch)
			log.Printf("session %d lagged at version %d, forcing resync", id, d.Version)
		}
	}
}

// Close shuts the authority down: every session channel closes and the
// journal is released. In-flight Propose calls finish first.
func (a *Authority) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	for id, s := range a.sessions {
		delete(a.sessions, id)
		close(s.ch)
	}
	a.mu.Unlock()
	return a.journal.Close()
}
