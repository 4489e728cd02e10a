package trampoline

import "github.com/btcsuite/btclog"

// log is the package-wide logger used by the trampoline relay state
// machine. It defaults to a disabled logger so that importing the package
// is silent until the node wires in its own subsystem logger.
var log btclog.Logger = btclog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
