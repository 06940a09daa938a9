package bridge

import (
	"errors"
	"fmt"

	"github.com/basket/pocketclaw/internal/daemon"
)

// Kind classifies a boundary error for the host.
type Kind int

const (
	// KindConfig is invalid caller input: bad config text, bad paths,
	// oversized payloads.
	KindConfig Kind = iota
	// KindState is a lifecycle violation: daemon not running, already
	// running, or a required backend not initialised.
	KindState
	// KindSpawn is a runtime failure while the daemon was otherwise
	// healthy: backend access errors, dispatch failures.
	KindSpawn
	// KindStateCorrupted means a panic poisoned the lifecycle slot; the
	// daemon is unrecoverable in this process.
	KindStateCorrupted
	// KindShutdown is reserved for shutdown-path failures. No entry point
	// produces it today.
	KindShutdown
	// KindInternalPanic wraps a panic caught at the boundary.
	KindInternalPanic
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config error"
	case KindState:
		return "state error"
	case KindSpawn:
		return "spawn error"
	case KindStateCorrupted:
		return "internal state corrupted"
	case KindShutdown:
		return "shutdown error"
	case KindInternalPanic:
		return "internal panic"
	default:
		return "unknown error"
	}
}

// Error is the only error type exported functions return. Detail is always
// human-readable; hosts switch on Kind, humans read Detail.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Detail
}

// convert maps internal errors onto the boundary taxonomy. Unclassified
// errors become Spawn: the daemon was up but the operation failed.
func convert(err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, daemon.ErrCorrupted) {
		return &Error{Kind: KindStateCorrupted, Detail: err.Error()}
	}
	var cfgErr *daemon.ConfigError
	if errors.As(err, &cfgErr) {
		return &Error{Kind: KindConfig, Detail: cfgErr.Detail}
	}
	var stErr *daemon.StateError
	if errors.As(err, &stErr) {
		return &Error{Kind: KindState, Detail: stErr.Detail}
	}
	return &Error{Kind: KindSpawn, Detail: err.Error()}
}

// panicDetail extracts a readable message from a recovered panic value.
func panicDetail(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return "unknown panic"
	}
}

// guard runs f and converts both returned errors and panics into *Error.
// Every exported function with no result wraps its body in guard.
func guard(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &Error{Kind: KindInternalPanic, Detail: panicDetail(p)}
		}
	}()
	return convert(f())
}

// guardErr is guard for functions with one result.
func guardErr[T any](f func() (T, error)) (out T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			out = zero
			err = &Error{Kind: KindInternalPanic, Detail: panicDetail(p)}
		}
	}()
	out, err = f()
	err = convert(err)
	return out, err
}
