//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealSampler is not available on non-Linux platforms.
type RealSampler struct{}

// NewRealSampler returns an error on non-Linux platforms.
func NewRealSampler(chip string, pin int, debounce time.Duration) (*RealSampler, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (r *RealSampler) Read() (uint32, uint32) {
	return 0xFFFFFFFF, 0
}

// Available is not implemented on non-Linux platforms.
func (r *RealSampler) Available() bool {
	return false
}

// Close is not implemented on non-Linux platforms.
func (r *RealSampler) Close() error {
	return nil
}
