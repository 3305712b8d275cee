package p2p

import (
	"github.com/nodekit-sh/tm-toolkit/message"
	"github.com/nodekit-sh/tm-toolkit/nodeid"
	"github.com/nodekit-sh/tm-toolkit/transport"
)

// protocol is the pure state machine translating protoInputs into outputs
// (spec.md §4.4). It performs no I/O and holds no locks; every method here
// is a plain function of its receiver and its argument.
type protocol struct {
	connected map[nodeid.ID]transport.Direction
	upgraded  map[nodeid.ID]struct{}
	stopped   map[nodeid.ID]struct{}
}

func newProtocol() *protocol {
	return &protocol{
		connected: make(map[nodeid.ID]transport.Direction),
		upgraded:  make(map[nodeid.ID]struct{}),
		stopped:   make(map[nodeid.ID]struct{}),
	}
}

// transition is the sole entry point, mirroring supervisor.rs's
// Protocol::transition match.
func (p *protocol) transition(in protoInput) []output {
	switch v := in.(type) {
	case inputAccepted:
		return p.handleAccepted(v.id)
	case inputCommand:
		return p.handleCommand(v.cmd)
	case inputConnected:
		return p.handleConnected(v.id)
	case inputDuplicateConnRejected:
		return p.handleDuplicateConnRejected(v.id, v.err)
	case inputReceive:
		return p.handleReceive(v.id, v.msg)
	case inputStopped:
		return p.handleStopped(v.id, v.err)
	case inputUpgraded:
		return p.handleUpgraded(v.id)
	case inputUpgradeFailed:
		return p.handleUpgradeFailed(v.id, v.err)
	case inputSendToUnknownPeer:
		return p.handleSendToUnknownPeer(v.id)
	case inputIngressClosed:
		return p.handleStopped(v.id, ErrIngressClosed)
	default:
		return nil
	}
}

func (p *protocol) handleAccepted(id nodeid.ID) []output {
	// TODO: a higher-level protocol (e.g. PEX) should enforce one
	// connection per NodeId; the Supervisor only enforces it against its
	// own connected/peers tables (see state.go).
	p.connected[id] = transport.Incoming

	return []output{
		outEvent(EventConnected{ID: id, Direction: transport.Incoming}),
		outInternal(internalUpgrade{id: id}),
	}
}

func (p *protocol) handleConnected(id nodeid.ID) []output {
	p.connected[id] = transport.Outgoing

	return []output{
		outEvent(EventConnected{ID: id, Direction: transport.Outgoing}),
		outInternal(internalUpgrade{id: id}),
	}
}

func (p *protocol) handleDuplicateConnRejected(id nodeid.ID, err error) []output {
	return []output{outEvent(EventDuplicateRejected{ID: id, Err: err})}
}

func (p *protocol) handleReceive(id nodeid.ID, msg message.Receive) []output {
	return []output{outEvent(EventMessage{ID: id, Msg: msg})}
}

func (p *protocol) handleStopped(id nodeid.ID, err error) []output {
	delete(p.upgraded, id)
	p.stopped[id] = struct{}{}

	return []output{outEvent(EventDisconnected{ID: id, Err: err})}
}

func (p *protocol) handleUpgraded(id nodeid.ID) []output {
	if _, already := p.upgraded[id]; already {
		return []output{outEvent(EventProtocolError{ID: id, Err: ErrAlreadyUpgraded})}
	}

	p.upgraded[id] = struct{}{}

	return []output{outEvent(EventUpgraded{ID: id})}
}

func (p *protocol) handleUpgradeFailed(id nodeid.ID, err error) []output {
	delete(p.connected, id)

	return []output{outEvent(EventUpgradeFailed{ID: id, Err: err})}
}

func (p *protocol) handleSendToUnknownPeer(id nodeid.ID) []output {
	return []output{outEvent(EventProtocolError{ID: id, Err: ErrSendToUnknownPeer})}
}

func (p *protocol) handleCommand(cmd Command) []output {
	switch c := cmd.(type) {
	case CommandAccept:
		return []output{outInternal(internalAccept{})}
	case CommandConnect:
		return []output{outInternal(internalConnect{info: c.Info})}
	case CommandDisconnect:
		return []output{outInternal(internalStop{id: c.ID})}
	case CommandMsg:
		if _, ok := p.upgraded[c.ID]; ok {
			return []output{outInternal(internalSendMessage{id: c.ID, msg: c.Msg})}
		}
		// Not upgraded: silently dropped, per spec.md §4.4 and Scenario S3.
		return nil
	default:
		return nil
	}
}
