// Command tm-supervisord runs a p2p.Supervisor and a Fork Detector bound to
// a real TCP transport, exposing Events over a websocket for
// tm-supervisorctl and metrics for Prometheus scraping.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/nodekit-sh/tm-toolkit/config"
	"github.com/nodekit-sh/tm-toolkit/metrics"
	"github.com/nodekit-sh/tm-toolkit/p2p"
	"github.com/nodekit-sh/tm-toolkit/peer"
	"github.com/nodekit-sh/tm-toolkit/transport"
)

// autoAcceptInterval is how often the daemon issues a CommandAccept{} on
// its own, keeping the accept pipeline primed between explicit requests
// from a control client.
const autoAcceptInterval = 2 * time.Second

var shutdownChannel = make(chan struct{})

// eventBroadcaster fans a single Recv loop out to every connected websocket
// client, the way the teacher's rpcserver fans subscription updates out to
// multiple streaming gRPC clients.
type eventBroadcaster struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newEventBroadcaster() *eventBroadcaster {
	return &eventBroadcaster{clients: make(map[*websocket.Conn]struct{})}
}

func (b *eventBroadcaster) add(c *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *eventBroadcaster) remove(c *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
	c.Close()
}

func (b *eventBroadcaster) broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(b.clients, c)
			c.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func supervisordMain(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}

	priv, err := transport.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating node key: %w", err)
	}

	tr := transport.NewTCP(priv)

	// lightSyncStream is always negotiated in addition to whatever the
	// operator configured, so the Fork Detector's peer-backed LightClient
	// has a stream to ride on regardless of cfg.Streams.
	streams := make([]peer.StreamSpec, 0, len(cfg.Streams)+1)
	for _, s := range cfg.Streams {
		streams = append(streams, peer.StreamSpec{Name: s.Name, Config: s.Config})
	}
	streams = append(streams, peer.StreamSpec{Name: lightSyncStream})

	sup, err := p2p.Run(tr, transport.BindInfo{Address: cfg.BindAddress}, streams, cfg.PreferOldConnOnDuplicate)
	if err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}

	m := metrics.New("tm_supervisord")
	registry := prometheus.NewRegistry()
	for _, c := range m.Collectors() {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	broadcaster := newEventBroadcaster()
	router := newLightBlockRouter()
	upgradedPeers := newPeerSet()

	go func() {
		for {
			ev, err := sup.Recv()
			if err != nil {
				close(shutdownChannel)
				return
			}

			kind := eventKind(ev)
			m.ObserveEventKind(kind)

			// ConnectedPeers counts Connections pending upgrade; every
			// EventConnected enters that state and leaves it via either
			// EventUpgraded (success) or EventUpgradeFailed (failure).
			// UpgradedPeers tracks Running peers, entered via EventUpgraded
			// and left via EventDisconnected (the Stop worker only reports a
			// peer it removed from the peer table, p2p/workers.go).
			switch v := ev.(type) {
			case p2p.EventConnected:
				m.ConnectedPeers.Inc()
			case p2p.EventUpgraded:
				m.ConnectedPeers.Dec()
				upgradedPeers.add(v.ID)
				m.UpgradedPeers.Set(float64(len(upgradedPeers.list())))
			case p2p.EventUpgradeFailed:
				m.ConnectedPeers.Dec()
			case p2p.EventDisconnected:
				upgradedPeers.remove(v.ID)
				m.UpgradedPeers.Set(float64(len(upgradedPeers.list())))
			case p2p.EventMessage:
				if v.Msg.Stream == lightSyncStream {
					handleLightSyncMessage(sup, router, v.ID, v.Msg)
				}
			}

			payload, err := json.Marshal(eventEnvelope{Kind: kind, Peer: ev.PeerID().String()})
			if err != nil {
				continue
			}
			broadcaster.broadcast(payload)
		}
	}()

	// A ticker.Ticker periodically requests one more inbound accept,
	// keeping the accept pipeline primed without a caller having to poll
	// manually (spec.md §4.3's Accept is token-driven by design).
	acceptTicker := ticker.New(autoAcceptInterval)
	acceptTicker.Resume()
	go func() {
		for {
			select {
			case <-acceptTicker.Ticks():
				sup.Command(p2p.CommandAccept{})
			case <-shutdownChannel:
				acceptTicker.Stop()
				return
			}
		}
	}()

	// A second ticker.Ticker drives the Fork Detector against whatever
	// peers are currently upgraded (spec.md §4.6). forkWatcher.tick is a
	// no-op until at least two peers are upgraded.
	fw := newForkWatcher(sup, router, clock.NewDefaultClock(), m)
	forkTicker := ticker.New(forkCheckInterval)
	forkTicker.Resume()
	go func() {
		for {
			select {
			case <-forkTicker.Ticks():
				fw.tick(upgradedPeers.list())
			case <-shutdownChannel:
				forkTicker.Stop()
				return
			}
		}
	}()

	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	http.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		broadcaster.add(conn)
	})

	go func() {
		fmt.Fprintln(os.Stderr, http.ListenAndServe(cfg.AdminAddress, nil))
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-interrupt:
	case <-shutdownChannel:
	}

	sup.Stop()
	return nil
}

type eventEnvelope struct {
	Kind string `json:"kind"`
	Peer string `json:"peer"`
}

func eventKind(ev p2p.Event) string {
	switch ev.(type) {
	case p2p.EventConnected:
		return "Connected"
	case p2p.EventDisconnected:
		return "Disconnected"
	case p2p.EventMessage:
		return "Message"
	case p2p.EventUpgraded:
		return "Upgraded"
	case p2p.EventUpgradeFailed:
		return "UpgradeFailed"
	case p2p.EventDuplicateRejected:
		return "DuplicateRejected"
	case p2p.EventProtocolError:
		return "ProtocolError"
	default:
		return "Unknown"
	}
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	app := cli.NewApp()
	app.Name = "tm-supervisord"
	app.Usage = "run a Supervisor bound to a real TCP transport"
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "start the daemon; flags are forwarded to the config parser",
			Action: func(c *cli.Context) error {
				return supervisordMain(c.Args())
			},
		},
	}

	// Call the "real" main in a nested manner so deferred cleanup runs
	// even on early return.
	if err := app.Run(os.Args); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
