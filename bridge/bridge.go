// Package bridge is the foreign-caller facade over the daemon runtime.
// Every exported function is panic-isolated: panics are recovered at the
// boundary and surfaced as *Error with KindInternalPanic, never allowed
// to unwind into the host. All results are flat, binding-friendly values;
// timestamps cross as epoch milliseconds and absent optionals as nil
// pointers.
package bridge

import (
	"log/slog"
	"sync"

	"github.com/basket/pocketclaw/internal/daemon"
)

// Version is the library version reported to hosts.
const Version = "0.0.6"

// processRuntime is built lazily on first use and lives for the process.
var processRuntime = sync.OnceValue(func() *daemon.Runtime {
	return daemon.New(daemon.Options{Logger: slog.Default(), Quiet: true})
})

func rt() *daemon.Runtime { return processRuntime() }

// GetVersion returns the library version.
func GetVersion() string { return Version }
