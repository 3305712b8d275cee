// Package message defines the envelope types the Supervisor's Protocol
// dispatches on. The wire Codec that actually encodes these onto a
// transport's byte stream is an external collaborator (see spec.md §1); this
// package only carries the typed payload far enough for the Protocol and
// Peer session to agree on what "a message" is.
package message

import "fmt"

// Type identifies the kind of payload carried by a Send or Receive value,
// mirroring lnwire.MessageType's role as a closed, versionable enum.
type Type uint16

const (
	// TypePing requests a liveness response from the remote peer.
	TypePing Type = 1
	// TypePong answers a Ping.
	TypePong Type = 2
	// TypeData carries an opaque, stream-addressed application payload.
	// Concrete application protocols layered on top of the Supervisor
	// (e.g. PEX, block sync) define their own sub-framing within Data.
	TypeData Type = 3
)

func (t Type) String() string {
	switch t {
	case TypePing:
		return "Ping"
	case TypePong:
		return "Pong"
	case TypeData:
		return "Data"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

// ErrUnknownType is returned when a Type discriminant has no registered
// payload shape, matching the "unknown discriminants fail rather than
// default silently" requirement in spec.md §6/§7.
type ErrUnknownType struct {
	Type Type
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("message: unknown type %s", e.Type)
}

// Send is a message queued by the caller (or a higher-level protocol) to be
// delivered to a single peer.
type Send struct {
	Stream  string
	Type    Type
	Payload []byte
}

// Receive is a message that arrived from a peer's ingress stream.
type Receive struct {
	Stream  string
	Type    Type
	Payload []byte
}

// Validate reports whether t is a recognized discriminant.
func Validate(t Type) error {
	switch t {
	case TypePing, TypePong, TypeData:
		return nil
	default:
		return &ErrUnknownType{Type: t}
	}
}
