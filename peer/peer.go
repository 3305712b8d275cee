// Package peer converts an authenticated transport.Connection into a
// message-multiplexed session: the "Upgrade" step of spec.md §4.2.
package peer

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/queue"

	"github.com/nodekit-sh/tm-toolkit/message"
	"github.com/nodekit-sh/tm-toolkit/nodeid"
	"github.com/nodekit-sh/tm-toolkit/transport"
)

// outgoingQueueLen bounds the number of messages a caller may have
// in-flight to a single peer before Send starts rejecting, the same
// constant (and the same rationale — callers must never be allowed to
// stall behind a slow remote) that the teacher's peer.go uses.
const outgoingQueueLen = 50

// StreamSpec names one logical, multiplexed stream a Peer session should
// negotiate during Run, along with transport-agnostic configuration for it.
// The multiplex negotiation itself (§4.2) only cares about the Name.
type StreamSpec struct {
	Name   string
	Config interface{}
}

// ErrSendQueueFull is returned by Running.Send when the peer's outgoing
// queue is already at capacity, per SPEC_FULL.md OQ-1: a bounded queue plus
// an explicit error, rather than blocking the caller (and, transitively,
// the Supervisor's Send worker, which holds the state lock across this
// call — spec.md §5).
var ErrSendQueueFull = errors.New("peer: outgoing queue full")

// ErrNoCommonStream is returned by Run when the local and requested stream
// sets share no common name with the remote's announced set.
var ErrNoCommonStream = errors.New("peer: no common stream negotiated")

// Log is the package-level logger, following the teacher's UseLogger
// convention (see lnd_test.go's btclog.Disabled usage). Defaults to a
// disabled logger so importers must opt in.
var Log = btclogDisabled()

// Handshaking is a Connection that has not yet completed multiplex
// negotiation.
type Handshaking struct {
	conn transport.Connection
	id   nodeid.ID
}

// FromConnection derives the remote NodeId and returns a Handshaking peer.
// It can fail if the connection's public key cannot be converted to a
// NodeId (spec.md §7, Identity error kind).
func FromConnection(conn transport.Connection) (*Handshaking, error) {
	id, err := nodeid.FromPublicKey(conn.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("peer: deriving node id: %w", err)
	}

	return &Handshaking{conn: conn, id: id}, nil
}

// ID returns the peer's NodeId, known as soon as the Connection is
// authenticated, i.e. before the session is fully Run.
func (h *Handshaking) ID() nodeid.ID { return h.id }

// Run negotiates the requested logical streams and, on success, spawns the
// ingress reader and returns a Running peer. A Run failure (version
// mismatch, no common stream, I/O error) leaves the Connection closed.
func (h *Handshaking) Run(streams []StreamSpec) (*Running, error) {
	names := make([]string, len(streams))
	for i, s := range streams {
		names[i] = s.Name
	}

	negotiated, err := negotiateStreams(h.conn, names)
	if err != nil {
		h.conn.Close()
		return nil, err
	}

	r := &Running{
		ID:      h.id,
		conn:    h.conn,
		streams: negotiated,
		inbound: make(chan message.Receive, 64),
		queue:   queue.NewConcurrentQueue(outgoingQueueLen),
	}

	r.queue.Start()
	r.wg.Add(2)
	go r.readLoop()
	go r.writeLoop()

	return r, nil
}

// negotiateStreams exchanges each side's requested stream names as a
// newline-joined frame and returns the intersection, in our local order.
// This is deliberately the simplest possible multiplex negotiation — a real
// deployment would negotiate per-stream transport configuration too, but
// that belongs to the (explicitly out-of-scope) Codec layer.
func negotiateStreams(conn transport.Connection, local []string) ([]string, error) {
	payload := []byte(joinNames(local))
	// Both sides send their offer first, so the write runs concurrently with
	// the read: on an unbuffered Connection (e.g. net.Pipe) two sequential
	// writes would block each other forever.
	writeErr := make(chan error, 1)
	go func() { writeErr <- writeFrame(conn, payload) }()

	remoteRaw, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("peer: reading stream offer: %w", err)
	}
	if err := <-writeErr; err != nil {
		return nil, fmt.Errorf("peer: sending stream offer: %w", err)
	}
	remote := splitNames(string(remoteRaw))

	remoteSet := make(map[string]struct{}, len(remote))
	for _, n := range remote {
		remoteSet[n] = struct{}{}
	}

	var negotiated []string
	for _, n := range local {
		if _, ok := remoteSet[n]; ok {
			negotiated = append(negotiated, n)
		}
	}

	if len(local) > 0 && len(negotiated) == 0 {
		return nil, ErrNoCommonStream
	}

	return negotiated, nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += "\n"
		}
		out += n
	}
	return out
}

func splitNames(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// writeFrame/readFrame implement the minimal length-prefixed framing the
// negotiation step and message payloads share; the transport.Connection
// already authenticates and encrypts the underlying bytes.
func writeFrame(w io.Writer, payload []byte) error {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Running is a Connection upgraded to a multiplexed, bidirectional
// session. It is exclusively owned by the peer table once inserted
// (spec.md §3); dropping it implies graceful teardown via Stop.
type Running struct {
	ID      nodeid.ID
	streams []string

	conn  transport.Connection
	queue *queue.ConcurrentQueue

	// Inbound is read by the Supervisor's main coordinator — one case per
	// Running peer is added to its selector each iteration (spec.md §4.5).
	inbound chan message.Receive

	pending int32 // atomic: items currently queued or in-flight to the wire

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Inbound returns the channel the Supervisor selects on for messages this
// peer has received.
func (r *Running) Inbound() <-chan message.Receive { return r.inbound }

// Streams returns the negotiated stream names.
func (r *Running) Streams() []string { return r.streams }

// Send enqueues msg for delivery. It is non-blocking up to outgoingQueueLen
// in-flight messages, per spec.md §4.2 and SPEC_FULL.md OQ-1.
func (r *Running) Send(msg message.Send) error {
	if err := message.Validate(msg.Type); err != nil {
		return err
	}

	if atomic.LoadInt32(&r.pending) >= outgoingQueueLen {
		return ErrSendQueueFull
	}
	atomic.AddInt32(&r.pending, 1)

	select {
	case r.queue.ChanIn() <- msg:
		return nil
	default:
		atomic.AddInt32(&r.pending, -1)
		return ErrSendQueueFull
	}
}

// Stop tears down all streams and the underlying Connection. It is
// idempotent and guarantees release of the Connection on all paths
// (spec.md §4.2).
func (r *Running) Stop() error {
	var closeErr error
	r.stopOnce.Do(func() {
		closeErr = r.conn.Close()
		r.queue.Stop()
		r.wg.Wait()
		close(r.inbound)
	})
	return closeErr
}

func (r *Running) writeLoop() {
	defer r.wg.Done()

	for item := range r.queue.ChanOut() {
		msg, ok := item.(message.Send)
		if !ok {
			continue
		}

		payload := make([]byte, 0, len(msg.Payload)+2)
		payload = append(payload, byte(msg.Type>>8), byte(msg.Type))
		payload = append(payload, msg.Payload...)

		if err := writeFrame(r.conn, payload); err != nil {
			Log.Errorf("peer %s: write failed: %v", r.ID, err)
			atomic.AddInt32(&r.pending, -1)
			return
		}
		Log.Tracef("peer %s: sent %s on %s: %s", r.ID, msg.Type, msg.Stream, spew.Sdump(msg.Payload))
		atomic.AddInt32(&r.pending, -1)
	}
}

func (r *Running) readLoop() {
	defer r.wg.Done()
	defer func() {
		// A closed inbound channel (because Stop already ran) must never
		// be written to; recover defensively rather than let a racing
		// final read panic the whole process (spec.md §9's "never
		// panic" rule, generalized past channel sends).
		recover()
	}()

	for {
		raw, err := readFrame(r.conn)
		if err != nil {
			return
		}
		if len(raw) < 2 {
			continue
		}

		typ := message.Type(uint16(raw[0])<<8 | uint16(raw[1]))
		msg := message.Receive{Type: typ, Payload: raw[2:]}

		select {
		case r.inbound <- msg:
		default:
			// Supervisor is behind; drop rather than block the reader
			// indefinitely. Events are never dropped (spec.md §5) — only
			// this raw ingress queue is, and only under sustained
			// backpressure the caller isn't draining.
		}
	}
}
