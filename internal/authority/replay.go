package authority

import "github.com/onekgame/onek/internal/schema"

// replayBuffer holds the most recent committed deltas, ascending and
// contiguous by version, so reconnecting subscribers can catch up
// without a full snapshot. Not safe for concurrent use; the authority
// mutex guards it.
type replayBuffer struct {
	capacity int
	deltas   []schema.Delta
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &replayBuffer{capacity: capacity}
}

// Append records a committed delta, evicting the oldest once the
// buffer is full.
func (b *replayBuffer) Append(d schema.Delta) {
	if len(b.deltas) == b.capacity {
		copy(b.deltas, b.deltas[1:])
		b.deltas = b.deltas[:len(b.deltas)-1]
	}
	b.deltas = append(b.deltas, d)
}

// Since returns every buffered delta with a version greater than
// fromVersion. ok is false when the buffer cannot bridge the gap:
// fromVersion has aged out and the caller must fall back to a
// snapshot.
func (b *replayBuffer) Since(fromVersion uint64) ([]schema.Delta, bool) {
	if len(b.deltas) == 0 {
		return nil, false
	}
	oldest := b.deltas[0].Version
	newest := b.deltas[len(b.deltas)-1].Version
	if fromVersion >= newest {
		return nil, fromVersion == newest
	}
	if fromVersion+1 < oldest {
		return nil, false
	}
	start := int(fromVersion + 1 - oldest)
	out := make([]schema.Delta, len(b.deltas)-start)
	copy(out, b.deltas[start:])
	return out, true
}
