// Package logic contains the cycle controller of a battery powered button node.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via PowerManager.NowMs.
package logic

import "errors"

// State identifies the current step of a wake cycle.
type State string

const (
	StateInit               State = "INIT"
	StateWorkingJob         State = "WORKING_JOB"
	StateRequesting         State = "REQUESTING"
	StateAwaitingCompletion State = "AWAITING_COMPLETION"
	StateExitNormal         State = "EXIT_NORMAL"
	StateExitFatal          State = "EXIT_FATAL"
)

// Terminal reports whether the state ends the cycle.
func (s State) Terminal() bool {
	return s == StateExitNormal || s == StateExitFatal
}

// Fatal conditions. Both end in a full system reset.
var (
	ErrTransmitRequestFailed = errors.New("tx request failed")
	ErrTransmitTimeout       = errors.New("tx timeout")
)

// CompletionToken identifies an issued transmit request.
type CompletionToken uint32

// Destination is a logical or long radio address.
type Destination uint32

const (
	// DestParent addresses the parent device.
	DestParent Destination = 0x00
	// DestBroadcast delivers to every child in range.
	DestBroadcast Destination = 0xFF
)

// DelaySpec controls when a packet goes on air.
// The first send is delayed by a random value in [MinMs, MaxMs];
// each retry follows RetrySpacingMs later.
type DelaySpec struct {
	MinMs          uint16
	MaxMs          uint16
	RetrySpacingMs uint16
}

// Packet is a transmit request handed to the Transmitter.
type Packet struct {
	Source  uint8
	Dest    Destination
	Retry   uint8 // extra sends after the first
	Delay   DelaySpec
	Payload []byte
}

// InputSampler reports debounced button states.
//
// Bit N of rawState is the level of pin N (1 = high).
// Bit N of changeMask is set when pin N changed since the previous Read.
// Bit 31 of changeMask marks the first report after setup.
type InputSampler interface {
	Read() (rawState, changeMask uint32)
	Available() bool
}

// Transmitter queues packets on the network and reports their completion.
type Transmitter interface {
	Send(pkt Packet) (CompletionToken, error)
	IsComplete(tok CompletionToken) bool
}

// TickTimer is true once per tick period.
type TickTimer interface {
	Available() bool
}

// PowerManager owns the sleep and reset primitives and the millisecond clock.
type PowerManager interface {
	Sleep(durationMs uint32, retainRAM bool)
	ResetSystem()
	NowMs() uint32
}

// Random is a seedable pseudo-random source. *math/rand.Rand satisfies it.
type Random interface {
	Int63n(n int64) int64
}

// CycleInfo is a read-only view of the controller for status reporting.
type CycleInfo struct {
	State       State
	Cycle       int    // wake cycles since cold boot
	Remaining   int    // work counter, valid in WORKING_JOB
	Pressed     bool   // button reading of the last transmit
	LastMessage string // message of the last transmit
	LastToken   CompletionToken
	LastSleepMs uint32
	Fatal       error // set in EXIT_FATAL
}
