package control

// LowPassFilter is a single-pole IIR filter used to smooth the measured velocity
type LowPassFilter struct {
	a     float64
	b     float64
	last  float64
	ready bool
}

// NewLowPassFilter creates a filter with time constant tau and sample period ts
func NewLowPassFilter(tau, ts float64) *LowPassFilter {
	a := 1.0 / (tau/ts + 1.0)
	return &LowPassFilter{
		a: a,
		b: 1.0 - a,
	}
}

// Filt feeds one sample and returns the filtered value. The first sample seeds
// the state as-is.
func (f *LowPassFilter) Filt(value float64) float64 {
	if !f.ready {
		f.last = value
		f.ready = true
		return value
	}
	f.last = f.a*value + f.b*f.last
	return f.last
}

// Get returns the last filtered value
func (f *LowPassFilter) Get() float64 {
	return f.last
}

// Ready reports whether at least one sample has been filtered
func (f *LowPassFilter) Ready() bool {
	return f.ready
}

// Reset forgets the filter history; the next sample seeds it again
func (f *LowPassFilter) Reset() {
	f.last = 0.0
	f.ready = false
}
