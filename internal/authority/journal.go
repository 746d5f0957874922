package authority

import (
	"context"
	"sync"

	"github.com/onekgame/onek/internal/schema"
)

// Journal persists the committed delta chain so the authority can
// restore the world across restarts and so any world version can be
// rebuilt by deterministic replay. Append must be durable before it
// returns: a commit is not acknowledged until its delta is journaled.
type Journal interface {
	// Append records one committed delta. Versions arrive strictly
	// ascending with no gaps.
	Append(ctx context.Context, delta schema.Delta) error
	// DeltasSince returns every journaled delta with a version greater
	// than fromVersion, ascending.
	DeltasSince(ctx context.Context, fromVersion uint64) ([]schema.Delta, error)
	// SaveSnapshot records a full world copy as a restore shortcut.
	SaveSnapshot(ctx context.Context, snap schema.Snapshot) error
	// LatestSnapshot returns the newest saved snapshot, if any.
	LatestSnapshot(ctx context.Context) (schema.Snapshot, bool, error)
	Close() error
}

// MemoryJournal is an in-process Journal with no durability. Used by
// tests and by authorities running without a storage path configured.
type MemoryJournal struct {
	mu       sync.Mutex
	deltas   []schema.Delta
	snapshot *schema.Snapshot
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(_ context.Context, delta schema.Delta) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deltas = append(j.deltas, delta)
	return nil
}

func (j *MemoryJournal) DeltasSince(_ context.Context, fromVersion uint64) ([]schema.Delta, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []schema.Delta
	for _, d := range j.deltas {
		if d.Version > fromVersion {
			out = append(out, d)
		}
	}
	return out, nil
}

func (j *MemoryJournal) SaveSnapshot(_ context.Context, snap schema.Snapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	copied := snap
	copied.World = snap.World.Clone()
	j.snapshot = &copied
	return nil
}

func (j *MemoryJournal) LatestSnapshot(_ context.Context) (schema.Snapshot, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snapshot == nil {
		return schema.Snapshot{}, false, nil
	}
	out := *j.snapshot
	out.World = j.snapshot.World.Clone()
	return out, true, nil
}

func (j *MemoryJournal) Close() error {
	return nil
}
