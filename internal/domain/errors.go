package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the daemon, the player adapter and the control channel.
var (
	// ErrBackendUnreachable indicates the player backend cannot be reached.
	// It is an expected condition: the daemon degrades and retries.
	ErrBackendUnreachable = errors.New("player backend unreachable")

	// ErrPlay indicates a player command was rejected or failed mid-flight.
	ErrPlay = errors.New("player command failed")

	// ErrUnknownStation indicates a station id that is not in the registry.
	ErrUnknownStation = errors.New("unknown station")

	// ErrNotRunning indicates the daemon loop is not accepting commands.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrInvalidCommand indicates a control command with bad arguments.
	ErrInvalidCommand = errors.New("invalid command")
)

// ConfigError reports a malformed or invalid configuration document.
// The daemon never stops on it; it keeps the last known good registry.
type ConfigError struct {
	Path   string
	Issues []string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid configuration")
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if len(e.Issues) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Issues, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Unreachable wraps cause so that errors.Is(err, ErrBackendUnreachable) holds.
func Unreachable(cause error) error {
	if cause == nil {
		return ErrBackendUnreachable
	}
	return fmt.Errorf("%w: %v", ErrBackendUnreachable, cause)
}

// PlayFailure wraps cause so that errors.Is(err, ErrPlay) holds.
func PlayFailure(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrPlay, op, cause)
}
