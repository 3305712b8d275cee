package peer

import "github.com/btcsuite/btclog"

func btclogDisabled() btclog.Logger {
	return btclog.Disabled
}

// UseLogger sets the package-level logger used by the peer package,
// mirroring the teacher's per-package UseLogger convention.
func UseLogger(logger btclog.Logger) {
	Log = logger
}
