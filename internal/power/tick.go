package power

// TickLatch is a tick timer fed by the scheduler: Set latches one tick,
// Available consumes it.
type TickLatch struct {
	pending bool
}

// Set records that a tick period elapsed.
func (l *TickLatch) Set() {
	l.pending = true
}

// Available reports and clears a latched tick.
func (l *TickLatch) Available() bool {
	p := l.pending
	l.pending = false
	return p
}
