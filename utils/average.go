package utils

// RollingAverage is a fixed-window mean over the most recent samples. Until the window fills,
// only the samples added so far count.
type RollingAverage struct {
	data  []float64
	pos   int
	count int
}

// NewRollingAverage returns a RollingAverage over numSamples samples.
func NewRollingAverage(numSamples int) *RollingAverage {
	if numSamples < 1 {
		numSamples = 1
	}
	return &RollingAverage{data: make([]float64, numSamples)}
}

// NumSamples is the window size.
func (ra *RollingAverage) NumSamples() int {
	return len(ra.data)
}

// Len is the number of samples currently in the window.
func (ra *RollingAverage) Len() int {
	return ra.count
}

// Add pushes a sample, evicting the oldest once the window is full.
func (ra *RollingAverage) Add(x float64) {
	ra.data[ra.pos] = x
	ra.pos++
	if ra.pos >= len(ra.data) {
		ra.pos = 0
	}
	if ra.count < len(ra.data) {
		ra.count++
	}
}

// Average returns the mean of the samples in the window, or 0 when empty.
func (ra *RollingAverage) Average() float64 {
	if ra.count == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < ra.count; i++ {
		sum += ra.data[i]
	}
	return sum / float64(ra.count)
}

// Reset empties the window.
func (ra *RollingAverage) Reset() {
	ra.pos = 0
	ra.count = 0
}
