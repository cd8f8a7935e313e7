package mqtt

import (
	"github.com/sweeney/button-node/internal/logic"
)

// FakeTransmitter records sent packets for test assertions.
type FakeTransmitter struct {
	// Packets contains all packets that were sent. The index is the token.
	Packets []logic.Packet

	// SendError, if set, will be returned by Send.
	SendError error

	// CompleteAfter is how many IsComplete polls a token reports false
	// before completing. Negative means tokens never complete.
	CompleteAfter int

	// Polls counts IsComplete calls.
	Polls int

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	polls map[logic.CompletionToken]int
}

// NewFakeTransmitter creates a FakeTransmitter whose tokens complete on
// the first poll.
func NewFakeTransmitter() *FakeTransmitter {
	return &FakeTransmitter{}
}

// Send records the packet and returns its index as token.
func (f *FakeTransmitter) Send(pkt logic.Packet) (logic.CompletionToken, error) {
	if f.SendError != nil {
		return 0, f.SendError
	}
	f.Packets = append(f.Packets, pkt)
	return logic.CompletionToken(len(f.Packets) - 1), nil
}

// IsComplete reports completion according to CompleteAfter.
func (f *FakeTransmitter) IsComplete(tok logic.CompletionToken) bool {
	f.Polls++
	if int(tok) >= len(f.Packets) || f.CompleteAfter < 0 {
		return false
	}
	if f.polls == nil {
		f.polls = make(map[logic.CompletionToken]int)
	}
	f.polls[tok]++
	return f.polls[tok] > f.CompleteAfter
}

// PublishSystem records the system event.
func (f *FakeTransmitter) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the transmitter as closed.
func (f *FakeTransmitter) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake transmitter is "connected".
func (f *FakeTransmitter) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded packets and events.
func (f *FakeTransmitter) Reset() {
	f.Packets = nil
	f.SendError = nil
	f.CompleteAfter = 0
	f.Polls = 0
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.PublishSystemError = nil
	f.Closed = false
	f.Connected = false
	f.polls = nil
}
