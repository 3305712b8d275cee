// Package config defines the recognized configuration options relevant to
// the Supervisor/Fork Detector core (spec.md §6: "only the recognized
// options relevant to the core"), parsed the way the teacher's lndMain
// parses its own flags.
package config

import (
	"fmt"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// StreamConfig is one (name, config) pair from stream_specs.
type StreamConfig struct {
	Name   string `long:"name" description:"logical stream name negotiated with peers"`
	Config string `long:"config" description:"opaque, stream-specific configuration blob"`
}

// TrustThreshold is the rational num/den fraction of a trusted validator
// set that must sign an untrusted header to transfer trust, constrained to
// [1/3, 1] (spec.md §6, Glossary "Trust threshold").
type TrustThreshold struct {
	Num int64 `long:"trust-threshold-num" description:"trust threshold numerator" default:"1"`
	Den int64 `long:"trust-threshold-den" description:"trust threshold denominator" default:"3"`
}

// Validate checks 1/3 <= Num/Den <= 1.
func (t TrustThreshold) Validate() error {
	if t.Den <= 0 {
		return fmt.Errorf("config: trust threshold denominator must be positive, got %d", t.Den)
	}
	if 3*t.Num < t.Den || t.Num > t.Den {
		return fmt.Errorf("config: trust threshold %d/%d is out of range [1/3, 1]", t.Num, t.Den)
	}
	return nil
}

// Config is the core's recognized option set (spec.md §6): bind/connect
// addressing, the negotiated stream specs, the light client's trust
// threshold, its trusting period, permitted clock drift, and the
// duplicate-outbound-connect policy resolved from Open Question OQ-2 (see
// DESIGN.md).
type Config struct {
	BindAddress   string         `long:"bind" description:"address to bind the Transport's accept endpoint on"`
	// ConnectAddress, if set, names an address to dial outbound. Dialing
	// also requires the remote's public key (transport.ConnectInfo), which
	// this option set has no field for yet, so cmd/tm-supervisord does not
	// currently issue a CommandConnect from it; it is accepted and parsed
	// for forward compatibility with a future pubkey-bearing connect flag.
	ConnectAddress string        `long:"connect" description:"address to dial outbound peers at, if any"`
	AdminAddress  string         `long:"admin" description:"address to serve /events and /metrics on" default:"127.0.0.1:9900"`
	Streams       []StreamConfig `long:"stream" description:"one or more logical streams to negotiate with peers"`

	TrustThreshold TrustThreshold `group:"trust-threshold"`
	TrustingPeriod time.Duration  `long:"trusting-period" description:"duration a trusted light block remains valid" default:"336h"`
	ClockDrift     time.Duration  `long:"clock-drift" description:"maximum tolerated clock drift between this node and a witness" default:"10s"`

	// PreferOldConnOnDuplicate resolves Open Question OQ-2: when a
	// duplicate outbound connect races an already-connected NodeId, true
	// (the default) keeps the existing connection and rejects the new
	// one; false does the reverse. Threaded into p2p.Run and consulted by
	// state.insertConnected on every Accept/Connect race.
	PreferOldConnOnDuplicate bool `long:"prefer-old-conn-on-duplicate" description:"keep the existing connection on a duplicate outbound connect" default:"true"`
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	return Config{
		AdminAddress:             "127.0.0.1:9900",
		TrustThreshold:           TrustThreshold{Num: 1, Den: 3},
		TrustingPeriod:           336 * time.Hour,
		ClockDrift:               10 * time.Second,
		PreferOldConnOnDuplicate: true,
	}
}

// Parse parses args (typically os.Args[1:]) into a Config seeded with
// Default, the same flags.NewParser/Parse pattern the teacher's lndMain
// uses for its own top-level config.
func Parse(args []string) (*Config, error) {
	cfg := Default()
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.TrustThreshold.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
