// Package transport defines the Transport capability consumed by the p2p
// Supervisor: binding a local address, accepting inbound connections, and
// dialing outbound ones. Everything downstream of a Connection (framing,
// multiplexing) belongs to the peer package; everything upstream (actual
// socket I/O) belongs here.
package transport

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Direction records how a Connection came to be established.
type Direction int

const (
	// Incoming connections were accepted from the Transport's listener.
	Incoming Direction = iota
	// Outgoing connections were dialed by us.
	Outgoing
)

func (d Direction) String() string {
	switch d {
	case Incoming:
		return "Incoming"
	case Outgoing:
		return "Outgoing"
	default:
		return "Unknown"
	}
}

// BindInfo is transport-specific configuration for Bind. The TCP
// implementation interprets it as a listen address.
type BindInfo struct {
	Address string
}

// ConnectInfo is transport-specific configuration for Connect. The TCP
// implementation interprets it as a dial address plus the remote's expected
// long-term public key.
type ConnectInfo struct {
	Address   string
	RemotePub *btcec.PublicKey
}

// Connection is an authenticated, full-duplex byte stream plus the remote
// peer's public key. Exactly one of {accept worker, peer table, peer
// session} owns a Connection at any time (spec.md §3); on exit from any
// holder it is either handed off (upgrade) or closed.
type Connection interface {
	io.ReadWriteCloser

	// PublicKey returns the remote's authenticated long-term public key.
	PublicKey() *btcec.PublicKey

	// RemoteAddr returns a human-readable remote address for logging.
	RemoteAddr() string
}

// AcceptResult is one element of an IncomingStream.
type AcceptResult struct {
	Conn Connection
	Err  error
}

// IncomingStream is a finite sequence of accept results; the channel is
// closed to signal permanent shutdown of the listener, which the Accept
// worker observes as "nothing left to do" (spec.md §4.1).
type IncomingStream <-chan AcceptResult

// Endpoint dials outbound connections on a bound Transport.
type Endpoint interface {
	Connect(info ConnectInfo) (Connection, error)
}

// Transport is the capability the Supervisor is built over: bind a local
// address and obtain both a dialing Endpoint and a lazy stream of inbound
// Connections.
type Transport interface {
	Bind(info BindInfo) (Endpoint, IncomingStream, error)
}

// ErrBindFailed wraps a transport-specific bind failure; run() surfaces it
// verbatim and fails fast (spec.md §4.7 — the only fatal error from Run).
type ErrBindFailed struct {
	Address string
	Cause   error
}

func (e *ErrBindFailed) Error() string {
	return fmt.Sprintf("transport: bind %q failed: %v", e.Address, e.Cause)
}

func (e *ErrBindFailed) Unwrap() error { return e.Cause }
