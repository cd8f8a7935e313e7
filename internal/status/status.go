// Package status provides a thread-safe status tracker for the button-node daemon.
// It is designed to be read by HTTP handlers and lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-node/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	AppID            uint32
	Channel          uint8
	LogicalID        uint8
	ButtonPin        uint8
	SleepMs          uint32
	SleepToleranceMs uint32
	TickMs           int64
	Broker           string
	HTTPPort         string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Cycle         logic.CycleInfo
	Boots         int // cold boots, including resets
	Resets        int
	LastReset     string
	Asleep        bool
	WakeAt        time.Time // valid while Asleep
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update sets the controller view. Called from the scheduler after every tick.
func (t *Tracker) Update(info logic.CycleInfo) {
	t.mu.Lock()
	t.snap.Cycle = info
	t.mu.Unlock()
}

// Booted counts a cold boot.
func (t *Tracker) Booted() {
	t.mu.Lock()
	t.snap.Boots++
	t.mu.Unlock()
}

// Reset records a fatal reset and its reason.
func (t *Tracker) Reset(reason string) {
	t.mu.Lock()
	t.snap.Resets++
	t.snap.LastReset = reason
	t.mu.Unlock()
}

// SetAsleep marks the node asleep until wakeAt, or awake when asleep is false.
func (t *Tracker) SetAsleep(asleep bool, wakeAt time.Time) {
	t.mu.Lock()
	t.snap.Asleep = asleep
	if asleep {
		t.snap.WakeAt = wakeAt
	} else {
		t.snap.WakeAt = time.Time{}
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
