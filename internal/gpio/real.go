//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealSampler reads the button from actual hardware using the Linux GPIO
// character device. The kernel debounces the line and reports edges, which
// are folded into the raw state and change mask words.
type RealSampler struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	pin  int

	mu        sync.Mutex
	raw       uint32
	mask      uint32
	available bool
	edgeSeen  bool
}

// NewRealSampler requests pin on chip (e.g. "gpiochip0") as a pulled-up,
// debounced input watched on both edges.
func NewRealSampler(chip string, pin int, debounce time.Duration) (*RealSampler, error) {
	if pin < 0 || pin > 30 {
		return nil, fmt.Errorf("button pin %d out of range 0..30", pin)
	}

	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// The initial report is in place before the event handler can run.
	s := &RealSampler{chip: c, pin: pin, raw: 0xFFFFFFFF, mask: FirstReport, available: true}

	// Buttons pull the line low; the pull-up keeps it high when released.
	line, err := c.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithEventHandler(s.handleEvent))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	s.line = line

	level, err := line.Value()
	if err != nil {
		line.Close()
		c.Close()
		return nil, fmt.Errorf("read button pin %d: %w", pin, err)
	}

	s.applyInitial(level)

	return s, nil
}

// applyInitial records the level read at setup unless an edge event has
// already reported a newer one.
func (s *RealSampler) applyInitial(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.edgeSeen {
		s.setLevel(level)
	}
}

// handleEvent runs on the gpiocdev watcher goroutine.
func (s *RealSampler) handleEvent(evt gpiocdev.LineEvent) {
	level := 0
	if evt.Type == gpiocdev.LineEventRisingEdge {
		level = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.edgeSeen = true
	before := s.raw
	s.setLevel(level)
	if s.raw != before {
		s.mask |= 1 << s.pin
		s.available = true
	}
}

// setLevel requires s.mu.
func (s *RealSampler) setLevel(level int) {
	if level == 0 {
		s.raw &^= 1 << s.pin
	} else {
		s.raw |= 1 << s.pin
	}
}

// Read returns the debounced levels and the change mask, clearing the mask.
func (s *RealSampler) Read() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, mask := s.raw, s.mask
	s.mask = 0
	s.available = false
	return raw, mask
}

// Available reports whether a report is waiting since the last Read.
func (s *RealSampler) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Close releases GPIO resources.
// The line is reconfigured to a plain input first so the pin is left in a
// safe state for other users.
func (s *RealSampler) Close() error {
	var errs []error

	if s.line != nil {
		if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure button pin: %w", err))
		}
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pin: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
