package daemon

import (
	"errors"
	"fmt"
)

// ErrCorrupted is returned once a panic has unwound a critical section
// while the lifecycle lock was held. The runtime refuses further
// lifecycle operations after that.
var ErrCorrupted = errors.New("daemon state corrupted: lifecycle lock poisoned")

// StateError reports an operation attempted in the wrong lifecycle state,
// such as stopping a daemon that is not running.
type StateError struct {
	Detail string
}

func (e *StateError) Error() string { return e.Detail }

// ErrNotRunning is the StateError every browse facade returns when no
// daemon is installed in the lifecycle slot.
var ErrNotRunning = &StateError{Detail: "daemon not running"}

// ConfigError reports invalid caller-supplied configuration or input.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string { return e.Detail }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

func stateErrorf(format string, args ...any) error {
	return &StateError{Detail: fmt.Sprintf(format, args...)}
}
