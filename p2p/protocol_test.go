package p2p

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodekit-sh/tm-toolkit/message"
	"github.com/nodekit-sh/tm-toolkit/nodeid"
)

// eventKind maps an Event to a single-letter symbol for the grammar checker
// below, mirroring spec.md §8 Testable Property 2's regular expression
// `(Connected (Message* Upgraded Message* Disconnected) | Connected UpgradeFailed)*`.
func eventKind(e Event) byte {
	switch e.(type) {
	case EventConnected:
		return 'C'
	case EventMessage:
		return 'M'
	case EventUpgraded:
		return 'U'
	case EventDisconnected:
		return 'D'
	case EventUpgradeFailed:
		return 'F'
	default:
		return '?'
	}
}

// checkGrammar walks seq and reports whether it matches
// (C (M* U M* D) | C F)*.
func checkGrammar(seq []byte) bool {
	i := 0
	for i < len(seq) {
		if seq[i] != 'C' {
			return false
		}
		i++
		if i < len(seq) && seq[i] == 'F' {
			i++
			continue
		}
		for i < len(seq) && seq[i] == 'M' {
			i++
		}
		if i >= len(seq) || seq[i] != 'U' {
			return false
		}
		i++
		for i < len(seq) && seq[i] == 'M' {
			i++
		}
		if i >= len(seq) || seq[i] != 'D' {
			return false
		}
		i++
	}
	return true
}

func TestGrammarCheckerAcceptsKnownGoodSequences(t *testing.T) {
	require.True(t, checkGrammar([]byte("CUD")))
	require.True(t, checkGrammar([]byte("CMUMD")))
	require.True(t, checkGrammar([]byte("CF")))
	require.True(t, checkGrammar([]byte("CUDCUD")))
	require.True(t, checkGrammar(nil))
}

func TestGrammarCheckerRejectsBadSequences(t *testing.T) {
	require.False(t, checkGrammar([]byte("UD")))
	require.False(t, checkGrammar([]byte("CD")))
	require.False(t, checkGrammar([]byte("CU")))
	require.False(t, checkGrammar([]byte("CUF")))
}

// TestProtocolHappyPathMatchesGrammar drives the happy accept-upgrade-
// message-disconnect path (spec.md Scenario S1) directly through the
// Protocol and checks the resulting per-peer Event sequence.
func TestProtocolHappyPathMatchesGrammar(t *testing.T) {
	p := newProtocol()
	var seq []byte
	id := nodeid.ID{1}

	for _, out := range p.transition(inputAccepted{id: id}) {
		if out.event != nil {
			seq = append(seq, eventKind(out.event))
		}
	}
	for _, out := range p.transition(inputUpgraded{id: id}) {
		if out.event != nil {
			seq = append(seq, eventKind(out.event))
		}
	}
	for _, out := range p.transition(inputReceive{id: id, msg: message.Receive{Type: message.TypePing}}) {
		if out.event != nil {
			seq = append(seq, eventKind(out.event))
		}
	}
	for _, out := range p.transition(inputStopped{id: id, err: nil}) {
		if out.event != nil {
			seq = append(seq, eventKind(out.event))
		}
	}

	require.True(t, checkGrammar(seq), "sequence %q did not match grammar", seq)
	require.Equal(t, []byte("CUMD"), seq)
}

// TestProtocolUpgradeFailurePath drives Connected -> UpgradeFailed.
func TestProtocolUpgradeFailurePath(t *testing.T) {
	p := newProtocol()
	var seq []byte
	id := nodeid.ID{2}

	for _, out := range p.transition(inputConnected{id: id}) {
		if out.event != nil {
			seq = append(seq, eventKind(out.event))
		}
	}
	for _, out := range p.transition(inputUpgradeFailed{id: id, err: ErrConnNotFound}) {
		if out.event != nil {
			seq = append(seq, eventKind(out.event))
		}
	}

	require.True(t, checkGrammar(seq))
	require.Equal(t, []byte("CF"), seq)
}

// TestProtocolDuplicateConnRejectedDoesNotAdvanceState asserts Scenario S2:
// a duplicate rejection emits its own event and leaves the Accepted peer's
// state untouched.
func TestProtocolDuplicateConnRejectedDoesNotAdvanceState(t *testing.T) {
	p := newProtocol()
	id := nodeid.ID{3}

	outs := p.transition(inputAccepted{id: id})
	require.Len(t, outs, 2)

	dupOuts := p.transition(inputDuplicateConnRejected{id: id, err: nil})
	require.Len(t, dupOuts, 1)
	ev, ok := dupOuts[0].event.(EventDuplicateRejected)
	require.True(t, ok)
	require.Equal(t, id, ev.ID)

	_, upgraded := p.upgraded[id]
	require.False(t, upgraded)
}

func TestProtocolReUpgradeAttemptSurfacesProtocolError(t *testing.T) {
	p := newProtocol()
	id := nodeid.ID{4}

	p.transition(inputAccepted{id: id})
	p.transition(inputUpgraded{id: id})
	outs := p.transition(inputUpgraded{id: id})

	require.Len(t, outs, 1)
	ev, ok := outs[0].event.(EventProtocolError)
	require.True(t, ok)
	require.ErrorIs(t, ev.Err, ErrAlreadyUpgraded)
}

func TestProtocolSendToUnknownPeerSurfacesProtocolError(t *testing.T) {
	p := newProtocol()
	id := nodeid.ID{5}

	outs := p.transition(inputSendToUnknownPeer{id: id})
	require.Len(t, outs, 1)
	ev, ok := outs[0].event.(EventProtocolError)
	require.True(t, ok)
	require.ErrorIs(t, ev.Err, ErrSendToUnknownPeer)
}

func TestProtocolCommandMsgDroppedWhenNotUpgraded(t *testing.T) {
	p := newProtocol()
	id := nodeid.ID{6}

	outs := p.transition(inputCommand{cmd: CommandMsg{ID: id, Msg: message.Send{Type: message.TypePing}}})
	require.Empty(t, outs)
}

func TestProtocolIngressClosedTreatedAsStopped(t *testing.T) {
	p := newProtocol()
	id := nodeid.ID{7}

	p.transition(inputAccepted{id: id})
	p.transition(inputUpgraded{id: id})
	outs := p.transition(inputIngressClosed{id: id})

	require.Len(t, outs, 1)
	ev, ok := outs[0].event.(EventDisconnected)
	require.True(t, ok)
	require.ErrorIs(t, ev.Err, ErrIngressClosed)
	require.Equal(t, ErrIngressClosed.Error(), ev.Reason())
}
