package p2p

import (
	"github.com/nodekit-sh/tm-toolkit/nodeid"
	"github.com/nodekit-sh/tm-toolkit/peer"
	"github.com/nodekit-sh/tm-toolkit/transport"
)

// workerChanCap bounds the internal dispatch channels (spec.md §5:
// "implementers MAY bound them"). Go has no unbounded channel primitive;
// this is the bound chosen for SPEC_FULL.md's concurrency model.
const workerChanCap = 64

// workerChannels are the internal dispatch channels the Protocol's outputs
// feed and the five workers consume — one channel per worker, matching
// spec.md §4.3's table.
type workerChannels struct {
	accept  chan struct{}
	connect chan transport.ConnectInfo
	upgrade chan nodeid.ID
	send    chan internalSendMessage
	stop    chan nodeid.ID
}

func newWorkerChannels() *workerChannels {
	return &workerChannels{
		accept:  make(chan struct{}, workerChanCap),
		connect: make(chan transport.ConnectInfo, workerChanCap),
		upgrade: make(chan nodeid.ID, workerChanCap),
		send:    make(chan internalSendMessage, workerChanCap),
		stop:    make(chan nodeid.ID, workerChanCap),
	}
}

// dispatch routes a Protocol-emitted Internal to the worker channel that
// owns it. It prefers dropping peer-scoped work over blocking the main
// coordinator (spec.md §5): if the owning worker's channel is full, dispatch
// logs and drops rather than waiting, and always yields to done so shutdown
// is never blocked on a stalled worker.
func (w *workerChannels) dispatch(i internal, done <-chan struct{}) {
	switch v := i.(type) {
	case internalAccept:
		select {
		case w.accept <- struct{}{}:
		case <-done:
		default:
			Log.Errorf("p2p: dropped Accept token, worker channel full")
		}
	case internalConnect:
		select {
		case w.connect <- v.info:
		case <-done:
		default:
			Log.Errorf("p2p: dropped Connect request for %s, worker channel full", v.info.Address)
		}
	case internalUpgrade:
		select {
		case w.upgrade <- v.id:
		case <-done:
		default:
			Log.Errorf("p2p: dropped Upgrade request for %s, worker channel full", v.id)
		}
	case internalSendMessage:
		select {
		case w.send <- v:
		case <-done:
		default:
			Log.Errorf("p2p: dropped Send to %s, worker channel full", v.id)
		}
	case internalStop:
		select {
		case w.stop <- v.id:
		case <-done:
		default:
			Log.Errorf("p2p: dropped Stop request for %s, worker channel full", v.id)
		}
	}
}

// runAccept is the Accept worker (spec.md §4.3): for every token received on
// tokens, it blocks on the next AcceptResult from incoming.
func runAccept(tokens <-chan struct{}, incoming transport.IncomingStream, st *state, protoIn chan<- protoInput, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-tokens:
			select {
			case <-done:
				return
			case res, ok := <-incoming:
				if !ok {
					// Permanent transport shutdown: nothing more to accept.
					return
				}
				if res.Err != nil {
					Log.Errorf("accept worker: %v", res.Err)
					continue
				}
				acceptConnection(res.Conn, transport.Incoming, st, protoIn, done)
			}
		}
	}
}

// runConnect is the Connect worker: awaits a ConnectInfo, dials, and
// applies the same insertion rules as Accept, emitting Connected(id)
// instead of Accepted(id).
func runConnect(requests <-chan transport.ConnectInfo, endpoint transport.Endpoint, st *state, protoIn chan<- protoInput, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case info, ok := <-requests:
			if !ok {
				return
			}
			conn, err := endpoint.Connect(info)
			if err != nil {
				Log.Errorf("connect worker: dial %s: %v", info.Address, err)
				continue
			}
			acceptConnection(conn, transport.Outgoing, st, protoIn, done)
		}
	}
}

// acceptConnection applies the shared Accept/Connect insertion rule
// (spec.md §4.3): under the state lock, insert into connected if the
// NodeId is absent. On a duplicate, config.Config.PreferOldConnOnDuplicate
// (threaded in as st.preferOldConnOnDuplicate) decides the winner: the new
// connection is closed and rejected when true (the default), or the old
// one is evicted and closed in favor of the new one when false.
func acceptConnection(conn transport.Connection, dir transport.Direction, st *state, protoIn chan<- protoInput, done <-chan struct{}) {
	id, err := nodeid.FromPublicKey(conn.PublicKey())
	if err != nil {
		conn.Close()
		Log.Errorf("accept/connect: derive NodeId: %v", err)
		return
	}

	ok, evicted := st.insertConnected(id, conn, dir)
	if !ok {
		closeErr := conn.Close()
		send(protoIn, inputDuplicateConnRejected{id: id, err: closeErr}, done)
		return
	}
	if evicted != nil {
		if err := evicted.Close(); err != nil {
			Log.Errorf("accept/connect: closing evicted duplicate for %s: %v", id, err)
		}
	}

	if dir == transport.Incoming {
		send(protoIn, inputAccepted{id: id}, done)
	} else {
		send(protoIn, inputConnected{id: id}, done)
	}
}

// runUpgrade implements spec.md §4.3's Upgrade: awaits a NodeId, removes
// the pending Connection, performs the handshake + stream negotiation, and
// installs the resulting Running peer into the peer table.
func runUpgrade(requests <-chan nodeid.ID, streams []peer.StreamSpec, st *state, protoIn chan<- protoInput, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case id, ok := <-requests:
			if !ok {
				return
			}

			entry, found := st.removeConnected(id)
			if !found {
				send(protoIn, inputUpgradeFailed{id: id, err: ErrConnNotFound}, done)
				continue
			}

			handshaking, err := peer.FromConnection(entry.conn)
			if err != nil {
				entry.conn.Close()
				send(protoIn, inputUpgradeFailed{id: id, err: err}, done)
				continue
			}

			running, err := handshaking.Run(streams)
			if err != nil {
				send(protoIn, inputUpgradeFailed{id: id, err: err}, done)
				continue
			}

			if !st.insertPeer(id, running) {
				running.Stop()
				send(protoIn, inputUpgradeFailed{id: id, err: ErrAlreadyUpgraded}, done)
				continue
			}

			send(protoIn, inputUpgraded{id: id}, done)
		}
	}
}

// runSend implements spec.md §4.3's Send worker: looks the peer up under
// the state lock and enqueues directly while the lock is held, relying on
// peer.Running.Send's bounded, non-blocking contract (spec.md §5).
func runSend(requests <-chan internalSendMessage, st *state, protoIn chan<- protoInput, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			found, err := st.withPeer(req.id, func(p runningPeer) error {
				return p.Send(req.msg)
			})
			if !found {
				send(protoIn, inputSendToUnknownPeer{id: req.id}, done)
				continue
			}
			if err != nil {
				Log.Errorf("send worker: peer %s: %v", req.id, err)
			}
		}
	}
}

// runStop implements spec.md §4.3's Stop worker: removes the Running peer
// from the table and tears it down outside the lock, guaranteeing release
// on all paths.
func runStop(requests <-chan nodeid.ID, st *state, protoIn chan<- protoInput, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case id, ok := <-requests:
			if !ok {
				return
			}
			p, found := st.removePeer(id)
			if !found {
				continue
			}
			err := p.Stop()
			send(protoIn, inputStopped{id: id, err: err}, done)
		}
	}
}

// send delivers v on ch unless done fires first, so a worker blocked on a
// full protoIn channel still exits promptly on shutdown.
func send(ch chan<- protoInput, v protoInput, done <-chan struct{}) {
	select {
	case ch <- v:
	case <-done:
	}
}
