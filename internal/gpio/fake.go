package gpio

// FakeSampler is a test double that returns scripted button reports.
type FakeSampler struct {
	// Samples contains scripted reports to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Reads counts calls to Read.
	Reads int

	// Closed tracks if Close was called
	Closed bool
}

// Sample is a single scripted report.
type Sample struct {
	Raw        uint32
	ChangeMask uint32
}

// NewFakeSampler creates a FakeSampler with the given samples.
func NewFakeSampler(samples []Sample) *FakeSampler {
	return &FakeSampler{Samples: samples}
}

// Released returns a first report with every pin high.
func Released() Sample {
	return Sample{Raw: 0xFFFFFFFF, ChangeMask: FirstReport}
}

// Pressed returns a first report with pin low and every other pin high.
func Pressed(pin int) Sample {
	return Sample{Raw: ^(uint32(1) << pin), ChangeMask: FirstReport}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly with an empty
// change mask. With no samples it reports every pin high.
func (f *FakeSampler) Read() (uint32, uint32) {
	f.Reads++
	if len(f.Samples) == 0 {
		return 0xFFFFFFFF, 0
	}
	if f.index >= len(f.Samples) {
		return f.Samples[len(f.Samples)-1].Raw, 0
	}

	sample := f.Samples[f.index]
	f.index++
	return sample.Raw, sample.ChangeMask
}

// Available reports whether unread samples remain.
func (f *FakeSampler) Available() bool {
	return f.index < len(f.Samples)
}

// Close marks the sampler as closed.
func (f *FakeSampler) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the sampler to the beginning of samples.
func (f *FakeSampler) Reset() {
	f.index = 0
	f.Reads = 0
	f.Closed = false
}
