package transport

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Mock is a deterministic, in-process Transport for tests, grounded on the
// mock-channel-link style of htlcswitch/mock.go: no real sockets, just
// net.Pipe() wired together under test control.
type Mock struct {
	mu       sync.Mutex
	priv     *btcec.PrivateKey
	incoming chan AcceptResult
	dialed   chan Connection
}

// NewMock constructs a Mock transport authenticating as priv.
func NewMock(priv *btcec.PrivateKey) *Mock {
	return &Mock{
		priv:     priv,
		incoming: make(chan AcceptResult, 16),
		dialed:   make(chan Connection, 16),
	}
}

// Dialed yields the far side of every Connection this Mock's Endpoint has
// dialed out, in order, so a test can drive the "remote" side of an
// outbound Connect the same way it drives Inject's inbound side.
func (m *Mock) Dialed() <-chan Connection {
	return m.dialed
}

// Bind implements Transport. The returned IncomingStream is fed by Inject.
func (m *Mock) Bind(_ BindInfo) (Endpoint, IncomingStream, error) {
	return &mockEndpoint{m: m}, m.incoming, nil
}

// Inject simulates an inbound dial from remotePub, handing the Accept
// worker one half of an in-memory pipe and returning the other half so the
// test can drive the "remote" side directly.
func (m *Mock) Inject(remotePub *btcec.PublicKey) (Connection, error) {
	a, b := net.Pipe()

	local := &mockConn{Conn: a, remotePub: remotePub, localAddr: "mock-local"}
	remote := &mockConn{Conn: b, remotePub: m.priv.PubKey(), localAddr: "mock-remote"}

	m.incoming <- AcceptResult{Conn: local}

	return remote, nil
}

// InjectError simulates a transient accept error (e.g. a reset connection)
// without producing a Connection.
func (m *Mock) InjectError(err error) {
	m.incoming <- AcceptResult{Err: err}
}

// Close permanently shuts down the mock's incoming stream.
func (m *Mock) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.incoming)
}

type mockEndpoint struct {
	m *Mock
}

// Connect implements Endpoint by synthesizing a connected pipe; the
// ConnectInfo.RemotePub becomes the dialed peer's identity.
func (e *mockEndpoint) Connect(info ConnectInfo) (Connection, error) {
	if info.RemotePub == nil {
		return nil, fmt.Errorf("mock: Connect requires ConnectInfo.RemotePub")
	}

	a, b := net.Pipe()
	e.m.dialed <- &mockConn{Conn: b, remotePub: e.m.priv.PubKey(), localAddr: "mock-remote"}
	return &mockConn{Conn: a, remotePub: info.RemotePub, localAddr: info.Address}, nil
}

// mockConn implements Connection directly over net.Pipe, with no framing or
// encryption — appropriate for unit tests that want to control bytes
// exactly, or that only exercise the Supervisor's bookkeeping and never read
// past the handshake.
type mockConn struct {
	net.Conn
	remotePub *btcec.PublicKey
	localAddr string
}

func (c *mockConn) PublicKey() *btcec.PublicKey { return c.remotePub }
func (c *mockConn) RemoteAddr() string          { return c.localAddr }

var _ io.ReadWriteCloser = (*mockConn)(nil)
