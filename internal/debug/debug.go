package debug

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

var enabled atomic.Bool

// Enable turns on per-packet debug logging.
func Enable() {
	enabled.Store(true)
}

// Disable turns off per-packet debug logging.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether debug logging is enabled.
func IsEnabled() bool {
	return enabled.Load()
}

// Logger returns l adjusted to the debug switch: at debug level when
// enabled, and never below info otherwise.
func Logger(l zerolog.Logger) zerolog.Logger {
	if enabled.Load() {
		if l.GetLevel() > zerolog.DebugLevel {
			return l.Level(zerolog.DebugLevel)
		}
		return l
	}
	if l.GetLevel() < zerolog.InfoLevel {
		return l.Level(zerolog.InfoLevel)
	}
	return l
}
