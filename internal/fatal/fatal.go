// Package fatal centralizes the "this is a programmer error, not a
// recoverable condition" abort path. Its callers are the orchestrator
// (Run invoked twice, which would double-initialize the registry) and
// the router (a handler registered for Unknown or an out-of-range
// symbol). F8 range violations and over-capacity RegisterAll do not go
// through this package: they are reported to the caller as ok=false or
// a returned error.
package fatal

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Invariant logs the violated invariant at fatal level and aborts the
// process. It never returns. Callers should not attempt to recover from
// an invariant break — by definition it signals a bug, not a
// transient condition.
func Invariant(what string, args ...any) {
	log.Fatal().Msg(fmt.Sprintf(what, args...))
}

// InvariantErr is Invariant for the common case of wrapping an error
// value produced by the invariant check itself.
func InvariantErr(err error, what string) {
	log.Fatal().Err(err).Msg(what)
}
