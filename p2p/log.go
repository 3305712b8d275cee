package p2p

import "github.com/btcsuite/btclog"

// Log is the package-wide logger, disabled by default until the caller
// installs one with UseLogger — mirrors the teacher's per-package logger
// convention (peer.Log, lnd's subsystem loggers).
var Log = btclog.Disabled

// UseLogger installs logger as the package-wide logger, used by the Accept,
// Connect and Send workers, dropped dispatches, and the coordinator for
// failures that are logged rather than surfaced as a terminal error.
func UseLogger(logger btclog.Logger) {
	Log = logger
}
