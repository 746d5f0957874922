package authority

import "github.com/onekgame/onek/internal/schema"

// Session is one subscriber's ordered delta feed. Deltas arrive on the
// channel in strict version order with no gaps or duplicates. The
// channel closes when the subscriber falls too far behind or the
// authority shuts down; either way the consumer must resubscribe and
// resync from a fresh snapshot.
type Session struct {
	id uint64
	ch chan schema.Delta

	// lagged is set under the authority mutex when the session's buffer
	// overflowed and the channel was closed on it.
	lagged bool
}

// Deltas is the receive side of the session's feed.
func (s *Session) Deltas() <-chan schema.Delta {
	return s.ch
}

// Subscription is the authority's answer to a subscribe request: how
// the subscriber reaches the current version, plus the live session
// carrying everything after.
type Subscription struct {
	// Snapshot is non-nil when the requested version could not be
	// served from the replay buffer; the subscriber must replace its
	// mirror wholesale before consuming the session.
	Snapshot *schema.Snapshot
	// Backlog holds the buffered deltas bridging the requested version
	// to the current one. Empty when Snapshot is set or the subscriber
	// is already current.
	Backlog []schema.Delta
	// Session delivers every delta committed after this subscription
	// was registered.
	Session *Session
}
