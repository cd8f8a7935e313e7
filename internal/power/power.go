// Package power provides the host stand-ins for the node's power manager
// and tick timer. The host scheduler drives both from its own loop.
package power

import "time"

// RequestKind is the action the controller asked the power manager for.
type RequestKind int

const (
	RequestNone RequestKind = iota
	RequestSleep
	RequestReset
)

func (k RequestKind) String() string {
	switch k {
	case RequestSleep:
		return "SLEEP"
	case RequestReset:
		return "RESET"
	default:
		return "NONE"
	}
}

// Request is a pending sleep or reset.
type Request struct {
	Kind       RequestKind
	DurationMs uint32
	RetainRAM  bool
}

// Duration returns the sleep length.
func (r Request) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Host records sleep and reset requests for the scheduler to act on after
// the current tick. Not safe for concurrent use.
type Host struct {
	start   time.Time
	now     func() time.Time
	pending Request
}

// NewHost creates a power manager whose millisecond clock starts at now().
func NewHost(now func() time.Time) *Host {
	return &Host{start: now(), now: now}
}

// Sleep asks the scheduler to suspend the node for durationMs.
func (h *Host) Sleep(durationMs uint32, retainRAM bool) {
	h.pending = Request{Kind: RequestSleep, DurationMs: durationMs, RetainRAM: retainRAM}
}

// ResetSystem asks the scheduler to restart the node from cold boot.
// A reset overrides any pending sleep.
func (h *Host) ResetSystem() {
	h.pending = Request{Kind: RequestReset}
}

// NowMs returns milliseconds since the host started, wrapping at 2^32.
func (h *Host) NowMs() uint32 {
	return uint32(h.now().Sub(h.start).Milliseconds())
}

// Take returns the pending request and clears it.
func (h *Host) Take() Request {
	r := h.pending
	h.pending = Request{}
	return r
}
