package p2p

import (
	"sync"

	"github.com/nodekit-sh/tm-toolkit/nodeid"
	"github.com/nodekit-sh/tm-toolkit/transport"
)

// connEntry is a Connection pending upgrade, along with how it was
// established.
type connEntry struct {
	conn      transport.Connection
	direction transport.Direction
}

// state is the single authoritative peer table (spec.md §3): the
// mutex-guarded connected/peers maps. Exactly the two maps are covered by
// the lock (spec.md §5) — nothing else may be added here without widening
// the lock's scope beyond what the Send worker's in-lock call requires.
type state struct {
	mu        sync.Mutex
	connected map[nodeid.ID]connEntry
	peers     map[nodeid.ID]runningPeer

	// preferOldConnOnDuplicate resolves Open Question OQ-2 (spec.md §9,
	// SPEC_FULL.md §4.3): true keeps the existing pending connection and
	// rejects the new one; false evicts the existing one in favor of the
	// new arrival.
	preferOldConnOnDuplicate bool
}

func newState(preferOldConnOnDuplicate bool) *state {
	return &state{
		connected:                make(map[nodeid.ID]connEntry),
		peers:                    make(map[nodeid.ID]runningPeer),
		preferOldConnOnDuplicate: preferOldConnOnDuplicate,
	}
}

// insertConnected inserts conn under id. If id is already connected, the
// outcome depends on preferOldConnOnDuplicate: when true (the default) the
// existing connection is kept and insertConnected returns (false, nil) so
// the caller rejects the new one; when false the existing connection is
// evicted and returned as evicted so the caller can close it, and the new
// connection takes its place.
func (s *state) insertConnected(id nodeid.ID, conn transport.Connection, dir transport.Direction) (ok bool, evicted transport.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.connected[id]
	if !exists {
		s.connected[id] = connEntry{conn: conn, direction: dir}
		return true, nil
	}
	if s.preferOldConnOnDuplicate {
		return false, nil
	}
	s.connected[id] = connEntry{conn: conn, direction: dir}
	return true, existing.conn
}

// removeConnected removes and returns the pending connection for id, used
// by the Upgrade worker (spec.md §4.3).
func (s *state) removeConnected(id nodeid.ID) (connEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.connected[id]
	if ok {
		delete(s.connected, id)
	}
	return entry, ok
}

// insertPeer inserts a newly-upgraded Running peer, returning false if a
// peer is already present for id (a re-upgrade, spec.md §9).
func (s *state) insertPeer(id nodeid.ID, p runningPeer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.peers[id]; exists {
		return false
	}
	s.peers[id] = p
	return true
}

// removePeer removes and returns the Running peer for id, used by the Stop
// worker (spec.md §4.3) before the (potentially slow) call to peer.Stop()
// happens outside the lock.
func (s *state) removePeer(id nodeid.ID) (runningPeer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[id]
	if ok {
		delete(s.peers, id)
	}
	return p, ok
}

// withPeer runs fn with the state lock held and the Running peer for id, if
// present. The Send worker uses this: spec.md §5 explicitly sanctions
// holding the lock across the send call, on the condition (enforced by
// peer.Running.Send) that it is bounded and non-blocking.
func (s *state) withPeer(id nodeid.ID, fn func(runningPeer) error) (found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[id]
	if !ok {
		return false, nil
	}
	return true, fn(p)
}

// snapshotPeers copies the current id->peer mapping for the main
// coordinator to build its selector from (spec.md §4.5: "peer receivers
// must be re-enumerated each iteration").
func (s *state) snapshotPeers() map[nodeid.ID]runningPeer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[nodeid.ID]runningPeer, len(s.peers))
	for id, p := range s.peers {
		out[id] = p
	}
	return out
}

// assertDisjoint reports whether the connected and peers key sets are
// disjoint (spec.md §3 invariant, §8 Testable Property 1). Exported for
// tests via state_test.go (same package).
func (s *state) assertDisjoint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.peers {
		if _, ok := s.connected[id]; ok {
			return false
		}
	}
	return true
}
