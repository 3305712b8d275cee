package p2p

import (
	"reflect"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/sync/errgroup"

	"github.com/nodekit-sh/tm-toolkit/message"
	"github.com/nodekit-sh/tm-toolkit/nodeid"
	"github.com/nodekit-sh/tm-toolkit/peer"
	"github.com/nodekit-sh/tm-toolkit/transport"
)

// cmdChanCap bounds the Command channel (spec.md §5).
const cmdChanCap = 64

// eventChanCap bounds the Event channel delivered to callers.
const eventChanCap = 64

// Supervisor is the public peer-lifecycle manager (spec.md §2, §4.7): a
// Transport, a pure Protocol, and the peer table, wired together by the
// main coordinator goroutine.
type Supervisor struct {
	cmds   chan Command
	events chan Event

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// Run starts a Supervisor bound to tr, listening per bind and upgrading
// connections with streams. preferOldConnOnDuplicate resolves Open Question
// OQ-2 (spec.md §9): true (the usual choice, matching
// config.Config.PreferOldConnOnDuplicate's default) keeps the existing
// connection on a duplicate NodeId and rejects the new one; false does the
// reverse. Run returns immediately; the coordinator and its five workers
// run in background goroutines until Stop is called or a permanent
// transport failure occurs.
func Run(tr transport.Transport, bind transport.BindInfo, streams []peer.StreamSpec, preferOldConnOnDuplicate bool) (*Supervisor, error) {
	endpoint, incoming, err := tr.Bind(bind)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cmds:    make(chan Command, cmdChanCap),
		events:  make(chan Event, eventChanCap),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	st := newState(preferOldConnOnDuplicate)
	workers := newWorkerChannels()
	protoIn := make(chan protoInput, workerChanCap)

	// The five long-running workers are supervised by an errgroup.Group:
	// none of them is expected to return (spec.md §4.3), so g.Wait()
	// unblocking at all, for any reason, is itself the signal to tear the
	// Supervisor down.
	var g errgroup.Group
	g.Go(func() error {
		// runAccept returning before Stop means the IncomingStream closed:
		// a permanent transport failure, which ends the whole Supervisor.
		runAccept(workers.accept, incoming, st, protoIn, s.done)
		s.Stop()
		return nil
	})
	g.Go(func() error { runConnect(workers.connect, endpoint, st, protoIn, s.done); return nil })
	g.Go(func() error { runUpgrade(workers.upgrade, streams, st, protoIn, s.done); return nil })
	g.Go(func() error { runSend(workers.send, st, protoIn, s.done); return nil })
	g.Go(func() error { runStop(workers.stop, st, protoIn, s.done); return nil })

	go func() {
		if err := g.Wait(); err != nil {
			Log.Errorf("p2p: worker supervision: %v", err)
		}
		s.Stop()
	}()

	go s.mainLoop(st, workers, protoIn)

	return s, nil
}

// Command submits cmd to the Supervisor. It returns ErrSupervisorStopped
// once the Supervisor has terminated (spec.md §8 Testable Property 3).
func (s *Supervisor) Command(cmd Command) error {
	select {
	case <-s.stopped:
		return ErrSupervisorStopped
	default:
	}

	select {
	case s.cmds <- cmd:
		return nil
	case <-s.stopped:
		return ErrSupervisorStopped
	}
}

// Recv blocks for the next Event. It returns ErrEventChannelClosed once the
// event channel has drained and closed after termination.
func (s *Supervisor) Recv() (Event, error) {
	e, ok := <-s.events
	if !ok {
		return nil, ErrEventChannelClosed
	}
	return e, nil
}

// Stop terminates the Supervisor: all worker and coordinator goroutines
// exit, and Command/Recv begin returning their terminal errors. Idempotent.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// mainLoop is the coordinator (spec.md §4.5): each iteration rebuilds a
// reflect.Select case list from the Command channel, the worker-output
// channel, and one case per currently upgraded peer's ingress channel, so
// newly upgraded or torn-down peers are picked up without a restart.
func (s *Supervisor) mainLoop(st *state, workers *workerChannels, protoIn chan protoInput) {
	defer func() {
		if r := recover(); r != nil {
			// The closest Go equivalent to the original's poisoned-mutex
			// termination path (spec.md §4.5, §7): log and terminate.
			Log.Errorf("p2p: coordinator panic: %v", r)
		}
		close(s.stopped)
		s.Stop()
		s.drainWorkersAndClose(st)
	}()

	proto := newProtocol()

	const (
		caseDone = iota
		caseCmds
		caseProtoIn
		caseFirstPeer
	)

	for {
		peers := st.snapshotPeers()
		ids := make([]nodeid.ID, 0, len(peers))
		for id := range peers {
			ids = append(ids, id)
		}

		cases := make([]reflect.SelectCase, caseFirstPeer+len(ids))
		cases[caseDone] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.done)}
		cases[caseCmds] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.cmds)}
		cases[caseProtoIn] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(protoIn)}
		for i, id := range ids {
			cases[caseFirstPeer+i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(peers[id].Inbound())}
		}

		chosen, value, ok := reflect.Select(cases)

		switch {
		case chosen == caseDone:
			return

		case chosen == caseCmds:
			if !ok {
				return
			}
			cmd := value.Interface().(Command)
			s.apply(proto, workers, inputCommand{cmd: cmd})

		case chosen == caseProtoIn:
			if !ok {
				return
			}
			in := value.Interface().(protoInput)
			s.apply(proto, workers, in)

		default:
			id := ids[chosen-caseFirstPeer]
			if !ok {
				// Peer's read loop exited without an explicit Stop command
				// (spec.md §9's unhandled "inbound channel disconnect"). A
				// peer the Stop worker already removed from the table is
				// reported by that worker's own Stopped input instead.
				if _, found := st.removePeer(id); found {
					s.apply(proto, workers, inputIngressClosed{id: id})
				}
				continue
			}
			msg := value.Interface().(message.Receive)
			s.apply(proto, workers, inputReceive{id: id, msg: msg})
		}
	}
}

// apply runs a single Protocol transition and routes its outputs: events
// to the caller-facing channel, internals to their owning worker.
func (s *Supervisor) apply(proto *protocol, workers *workerChannels, in protoInput) {
	for _, out := range proto.transition(in) {
		if out.event != nil {
			Log.Debugf("p2p: event %s", spew.Sdump(out.event))
			select {
			case s.events <- out.event:
			case <-s.done:
				return
			}
		}
		if out.internal != nil {
			workers.dispatch(out.internal, s.done)
		}
	}
}

// drainWorkersAndClose stops every remaining Running peer and closes the
// event channel, guaranteeing release on all paths (spec.md §4.2) and
// letting blocked Recv callers observe termination.
func (s *Supervisor) drainWorkersAndClose(st *state) {
	for id, p := range st.snapshotPeers() {
		st.removePeer(id)
		p.Stop()
	}
	close(s.events)
}
