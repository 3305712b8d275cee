package p2p

import (
	"github.com/nodekit-sh/tm-toolkit/message"
	"github.com/nodekit-sh/tm-toolkit/nodeid"
	"github.com/nodekit-sh/tm-toolkit/peer"
	"github.com/nodekit-sh/tm-toolkit/transport"
)

// Command is the set of control instructions a caller may issue to the
// Supervisor (spec.md §6).
type Command interface {
	isCommand()
}

// CommandAccept requests that the next pending inbound connection be
// accepted. It may complete after an arbitrary delay if no connection is
// pending (spec.md §4.3).
type CommandAccept struct{}

// CommandConnect dials the remote described by Info.
type CommandConnect struct {
	Info transport.ConnectInfo
}

// CommandDisconnect tears down the peer known by ID.
type CommandDisconnect struct {
	ID nodeid.ID
}

// CommandMsg enqueues Msg for delivery to the peer known by ID. If ID is
// not currently upgraded the command is silently dropped (spec.md §4.4,
// Testable Scenario S3).
type CommandMsg struct {
	ID  nodeid.ID
	Msg message.Send
}

func (CommandAccept) isCommand()     {}
func (CommandConnect) isCommand()    {}
func (CommandDisconnect) isCommand() {}
func (CommandMsg) isCommand()        {}

// Event is the set of significant occurrences the Supervisor surfaces to
// callers (spec.md §6).
type Event interface {
	isEvent()
	// PeerID returns the NodeId an event pertains to, e.g. for
	// cmd/tm-supervisord's per-event websocket envelope.
	PeerID() nodeid.ID
}

// EventConnected reports a newly established connection, not yet upgraded.
type EventConnected struct {
	ID        nodeid.ID
	Direction transport.Direction
}

// EventDisconnected reports that a peer has torn down. Err is nil for a
// caller-initiated, graceful disconnect (observable as reason "ok" per
// spec.md Scenario S1); Reason renders either case as a string.
type EventDisconnected struct {
	ID  nodeid.ID
	Err error
}

// Reason renders the disconnect cause, or "ok" for a graceful teardown.
func (e EventDisconnected) Reason() string {
	if e.Err == nil {
		return "ok"
	}
	return e.Err.Error()
}

// EventMessage reports an inbound message from a peer.
type EventMessage struct {
	ID  nodeid.ID
	Msg message.Receive
}

// EventUpgraded reports that a connection successfully upgraded to a
// Running peer session.
type EventUpgraded struct {
	ID nodeid.ID
}

// EventUpgradeFailed reports that the upgrade of a connection failed.
type EventUpgradeFailed struct {
	ID  nodeid.ID
	Err error
}

// EventDuplicateRejected reports that a duplicate connection for an
// already-connected NodeId was rejected and closed (spec.md Scenario S2).
type EventDuplicateRejected struct {
	ID  nodeid.ID
	Err error
}

// EventProtocolError surfaces a protocol/state inconsistency as a typed
// event rather than a panic (spec.md §7, §9).
type EventProtocolError struct {
	ID  nodeid.ID
	Err error
}

func (e EventConnected) isEvent()         {}
func (e EventDisconnected) isEvent()      {}
func (e EventMessage) isEvent()           {}
func (e EventUpgraded) isEvent()          {}
func (e EventUpgradeFailed) isEvent()     {}
func (e EventDuplicateRejected) isEvent() {}
func (e EventProtocolError) isEvent()     {}

func (e EventConnected) PeerID() nodeid.ID         { return e.ID }
func (e EventDisconnected) PeerID() nodeid.ID      { return e.ID }
func (e EventMessage) PeerID() nodeid.ID           { return e.ID }
func (e EventUpgraded) PeerID() nodeid.ID          { return e.ID }
func (e EventUpgradeFailed) PeerID() nodeid.ID     { return e.ID }
func (e EventDuplicateRejected) PeerID() nodeid.ID { return e.ID }
func (e EventProtocolError) PeerID() nodeid.ID     { return e.ID }

// internal is dispatched from the Protocol to a worker; it never leaves the
// package.
type internal interface {
	isInternal()
}

type internalAccept struct{}
type internalConnect struct{ info transport.ConnectInfo }
type internalSendMessage struct {
	id  nodeid.ID
	msg message.Send
}
type internalStop struct{ id nodeid.ID }
type internalUpgrade struct{ id nodeid.ID }

func (internalAccept) isInternal()      {}
func (internalConnect) isInternal()     {}
func (internalSendMessage) isInternal() {}
func (internalStop) isInternal()        {}
func (internalUpgrade) isInternal()     {}

// output is either an externally observable Event or an Internal
// dispatched back to a worker (spec.md §2, "Output").
type output struct {
	event    Event
	internal internal
}

func outEvent(e Event) output       { return output{event: e} }
func outInternal(i internal) output { return output{internal: i} }

// protoInput is consumed by the pure Protocol state machine. It is the
// union of caller Commands, worker completions, and per-peer inbound
// messages (spec.md §2).
type protoInput interface {
	isProtoInput()
}

type inputAccepted struct{ id nodeid.ID }
type inputCommand struct{ cmd Command }
type inputConnected struct{ id nodeid.ID }
type inputDuplicateConnRejected struct {
	id  nodeid.ID
	err error
}
type inputReceive struct {
	id  nodeid.ID
	msg message.Receive
}
type inputStopped struct {
	id  nodeid.ID
	err error
}
type inputUpgraded struct{ id nodeid.ID }
type inputUpgradeFailed struct {
	id  nodeid.ID
	err error
}
type inputSendToUnknownPeer struct{ id nodeid.ID }
type inputIngressClosed struct{ id nodeid.ID }

func (inputAccepted) isProtoInput()             {}
func (inputCommand) isProtoInput()              {}
func (inputConnected) isProtoInput()             {}
func (inputDuplicateConnRejected) isProtoInput() {}
func (inputReceive) isProtoInput()               {}
func (inputStopped) isProtoInput()               {}
func (inputUpgraded) isProtoInput()              {}
func (inputUpgradeFailed) isProtoInput()         {}
func (inputSendToUnknownPeer) isProtoInput()     {}
func (inputIngressClosed) isProtoInput()         {}

// runningPeer is the subset of *peer.Running the p2p package depends on,
// narrowed to ease testing with fakes.
type runningPeer interface {
	Send(msg message.Send) error
	Stop() error
	Inbound() <-chan message.Receive
}

var _ runningPeer = (*peer.Running)(nil)
