package logic

import (
	"errors"
	"fmt"
)

// Defaults for a child node.
const (
	DefaultAppID            uint32 = 0x1234abcd
	DefaultChannel          uint8  = 13
	DefaultLogicalID        uint8  = 0xFE // anonymous child
	DefaultButtonPin        uint8  = 12
	DefaultSleepMs          uint32 = 60 * 60 * 1000
	DefaultSleepToleranceMs uint32 = 0
	DefaultRetry            uint8  = 1
	DefaultTxTimeoutMs      uint32 = 100
	DefaultWorkCount               = 100

	// MessageLen is the fixed size of the message field in a payload.
	MessageLen = 10
)

// Config holds the node settings used by the controller.
type Config struct {
	AppID            uint32
	Channel          uint8
	LogicalID        uint8
	Dest             Destination
	ButtonPin        uint8
	SleepMs          uint32
	SleepToleranceMs uint32
	Retry            uint8
	Delay            DelaySpec
	TxTimeoutMs      uint32
	WorkCount        int
}

// DefaultConfig returns the stock node settings.
func DefaultConfig() Config {
	return Config{
		AppID:            DefaultAppID,
		Channel:          DefaultChannel,
		LogicalID:        DefaultLogicalID,
		Dest:             DestBroadcast,
		ButtonPin:        DefaultButtonPin,
		SleepMs:          DefaultSleepMs,
		SleepToleranceMs: DefaultSleepToleranceMs,
		Retry:            DefaultRetry,
		Delay:            DelaySpec{MinMs: 0, MaxMs: 0, RetrySpacingMs: 2},
		TxTimeoutMs:      DefaultTxTimeoutMs,
		WorkCount:        DefaultWorkCount,
	}
}

// Validate rejects settings the node cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Channel < 11 || c.Channel > 26 {
		errs = append(errs, fmt.Errorf("channel %d out of range 11..26", c.Channel))
	}
	if c.LogicalID == 0xFF {
		errs = append(errs, errors.New("logical id 0xFF is reserved for broadcast"))
	}
	if c.Dest != DestParent && c.Dest != DestBroadcast && (c.Dest < 1 || c.Dest > 0xEF) {
		errs = append(errs, fmt.Errorf("destination %#x is not parent, broadcast or a child id", uint32(c.Dest)))
	}
	if c.ButtonPin > 30 {
		errs = append(errs, fmt.Errorf("button pin %d out of range 0..30", c.ButtonPin))
	}
	if c.SleepToleranceMs > c.SleepMs {
		errs = append(errs, fmt.Errorf("sleep tolerance %dms exceeds sleep %dms", c.SleepToleranceMs, c.SleepMs))
	}
	if c.WorkCount < 1 {
		errs = append(errs, fmt.Errorf("work count %d must be at least 1", c.WorkCount))
	}
	if c.Delay.MinMs > c.Delay.MaxMs {
		errs = append(errs, fmt.Errorf("tx delay min %dms exceeds max %dms", c.Delay.MinMs, c.Delay.MaxMs))
	}
	if c.TxTimeoutMs == 0 {
		errs = append(errs, errors.New("tx timeout must be positive"))
	}
	return errors.Join(errs...)
}
