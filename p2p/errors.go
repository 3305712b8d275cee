package p2p

import "github.com/go-errors/errors"

// ErrStateLockPoisoned is reserved for documentation parity with the
// original Rust source's Error::StateLockPoisoned. Go mutexes cannot be
// poisoned; the closest equivalent — a panic inside the main coordinator —
// is recovered and reported as a terminal event instead of this error type
// ever being constructed at runtime (see supervisor.go).
var ErrStateLockPoisoned = errors.New("p2p: state lock poisoned")

// ErrSupervisorStopped is returned by Command once the Supervisor has
// terminated and its command channel has been closed (spec.md §4.7, §8
// Testable Property 3).
var ErrSupervisorStopped = errors.New("p2p: supervisor stopped")

// ErrEventChannelClosed is returned by Recv once the event channel has
// been closed.
var ErrEventChannelClosed = errors.New("p2p: event channel closed")

// ErrSendToUnknownPeer surfaces the Send worker's "peer not found" case
// (spec.md §4.3) as a typed, observable condition rather than a panic or a
// silent drop. It indicates a mismatch between the Protocol's notion of
// which peers are upgraded and the Supervisor's peer table, and is always
// a bug if observed (spec.md §9 design notes, §7 "Protocol inconsistency").
var ErrSendToUnknownPeer = errors.New("p2p: send to unknown peer")

// ErrAlreadyUpgraded surfaces an attempted re-upgrade of a NodeId already
// present in the upgraded set — another protocol-inconsistency condition
// that the original source's todo!() left unhandled.
var ErrAlreadyUpgraded = errors.New("p2p: node id already upgraded")

// ErrConnNotFound is the reason attached to UpgradeFailed when the Upgrade
// worker finds no pending connection for the given NodeId (spec.md §4.3).
var ErrConnNotFound = errors.New("p2p: connection not found")

// ErrIngressClosed is the reason attached to Disconnected when a peer's
// ingress channel closed without an explicit Stop command — the original
// source's unhandled "inbound channel disconnect" case (spec.md §9).
var ErrIngressClosed = errors.New("p2p: ingress channel closed")
