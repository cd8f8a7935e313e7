// Package gpio provides button sampling with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Sampler reports debounced pin levels as bit words.
//
// Bit N of rawState is the level of pin N (1 = high).
// Bit N of changeMask is set when pin N settled at a new level since the
// previous Read. FirstReport is set in changeMask on the first Read.
type Sampler interface {
	// Read returns the current stable levels and the change mask, then
	// clears the change mask.
	Read() (rawState, changeMask uint32)

	// Available reports whether a new report is waiting.
	Available() bool

	// Close releases GPIO resources.
	Close() error
}

// FirstReport marks the first report after setup.
const FirstReport uint32 = 1 << 31

// Defaults for the button input.
const (
	DefaultPinButton = 12
	// Five stable samples at 10ms.
	DefaultDebounce = 50 * time.Millisecond
)
