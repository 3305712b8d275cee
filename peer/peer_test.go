package peer_test

import (
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/nodekit-sh/tm-toolkit/message"
	"github.com/nodekit-sh/tm-toolkit/peer"
	"github.com/nodekit-sh/tm-toolkit/transport"
)

// fakeConn adapts a net.Conn half of a net.Pipe into transport.Connection
// for tests, with no encryption — peer-package tests only care about
// negotiation and framing above the Connection boundary.
type fakeConn struct {
	net.Conn
	pub *btcec.PublicKey
}

func (f *fakeConn) PublicKey() *btcec.PublicKey { return f.pub }
func (f *fakeConn) RemoteAddr() string          { return "fake" }

func newPipePair(t *testing.T) (transport.Connection, transport.Connection) {
	t.Helper()
	a, b := net.Pipe()

	privA, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	privB, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return &fakeConn{Conn: a, pub: privB.PubKey()}, &fakeConn{Conn: b, pub: privA.PubKey()}
}

func TestRunNegotiatesCommonStreams(t *testing.T) {
	connA, connB := newPipePair(t)

	hA, err := peer.FromConnection(connA)
	require.NoError(t, err)
	hB, err := peer.FromConnection(connB)
	require.NoError(t, err)

	var runningA, runningB *peer.Running
	var errA, errB error

	done := make(chan struct{}, 2)
	go func() {
		runningA, errA = hA.Run([]peer.StreamSpec{{Name: "gossip"}, {Name: "block-sync"}})
		done <- struct{}{}
	}()
	go func() {
		runningB, errB = hB.Run([]peer.StreamSpec{{Name: "block-sync"}, {Name: "evidence"}})
		done <- struct{}{}
	}()
	<-done
	<-done

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.Equal(t, []string{"block-sync"}, runningA.Streams())
	require.Equal(t, []string{"block-sync"}, runningB.Streams())

	require.NoError(t, runningA.Stop())
	require.NoError(t, runningB.Stop())
}

func TestRunFailsWithNoCommonStream(t *testing.T) {
	connA, connB := newPipePair(t)

	hA, err := peer.FromConnection(connA)
	require.NoError(t, err)
	hB, err := peer.FromConnection(connB)
	require.NoError(t, err)

	errCh := make(chan error, 2)
	go func() {
		_, err := hA.Run([]peer.StreamSpec{{Name: "gossip"}})
		errCh <- err
	}()
	go func() {
		_, err := hB.Run([]peer.StreamSpec{{Name: "evidence"}})
		errCh <- err
	}()

	require.Error(t, <-errCh)
	require.Error(t, <-errCh)
}

func TestSendAndReceive(t *testing.T) {
	connA, connB := newPipePair(t)

	hA, err := peer.FromConnection(connA)
	require.NoError(t, err)
	hB, err := peer.FromConnection(connB)
	require.NoError(t, err)

	var runningA, runningB *peer.Running
	done := make(chan struct{}, 2)
	go func() {
		runningA, _ = hA.Run([]peer.StreamSpec{{Name: "gossip"}})
		done <- struct{}{}
	}()
	go func() {
		runningB, _ = hB.Run([]peer.StreamSpec{{Name: "gossip"}})
		done <- struct{}{}
	}()
	<-done
	<-done
	require.NotNil(t, runningA)
	require.NotNil(t, runningB)

	require.NoError(t, runningA.Send(message.Send{
		Stream:  "gossip",
		Type:    message.TypePing,
		Payload: []byte("hi"),
	}))

	select {
	case recv := <-runningB.Inbound():
		require.Equal(t, message.TypePing, recv.Type)
		require.Equal(t, []byte("hi"), recv.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.NoError(t, runningA.Stop())
	require.NoError(t, runningB.Stop())
}

func TestSendRejectsUnknownType(t *testing.T) {
	connA, connB := newPipePair(t)

	hA, err := peer.FromConnection(connA)
	require.NoError(t, err)
	hB, err := peer.FromConnection(connB)
	require.NoError(t, err)

	var runningA *peer.Running
	done := make(chan struct{}, 2)
	go func() {
		runningA, _ = hA.Run([]peer.StreamSpec{{Name: "gossip"}})
		done <- struct{}{}
	}()
	go func() {
		hB.Run([]peer.StreamSpec{{Name: "gossip"}})
		done <- struct{}{}
	}()
	<-done
	<-done

	err = runningA.Send(message.Send{Type: message.Type(250)})
	require.Error(t, err)

	runningA.Stop()
}
