package logic

// FirstReport is the change mask bit set on the first report after setup.
const FirstReport uint32 = 1 << 31

// ButtonObservation is one (raw state, change mask) reading of the sampler.
type ButtonObservation struct {
	Raw        uint32
	ChangeMask uint32
}

// Pressed reports whether the button on pin went down: the pin settled low
// (active-low against a pull-up) and either its change bit or the first
// report bit is set. A button held down across readings with no change
// bit is not a press.
func (o ButtonObservation) Pressed(pin uint8) bool {
	low := o.Raw&(1<<pin) == 0
	return low && (o.Changed(pin) || o.Initial())
}

// Changed reports whether pin moved to a new stable level since the
// previous reading.
func (o ButtonObservation) Changed(pin uint8) bool {
	return o.ChangeMask&(1<<pin) != 0
}

// Initial reports whether this is the first reading after setup.
func (o ButtonObservation) Initial() bool {
	return o.ChangeMask&FirstReport != 0
}
