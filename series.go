package moorsim

import (
	"fmt"
	"math"
)

// Source identifies the generator of a force series.
type Source uint8

const (
	// SourceWave is the first order wave excitation.
	SourceWave Source = iota + 1
	// SourceDrift is the wave drift force.
	SourceDrift
	// SourceWind is the dynamic wind force.
	SourceWind
	// SourcePassingShip is the force induced by a passing vessel.
	SourcePassingShip
	// SourceCurrent is the steady current force.
	SourceCurrent
)

func (s Source) String() string {
	switch s {
	case SourceWave:
		return "wave"
	case SourceDrift:
		return "drift"
	case SourceWind:
		return "wind"
	case SourcePassingShip:
		return "passing-ship"
	case SourceCurrent:
		return "current"
	}
	panic(fmt.Errorf("unknown force source %d", uint8(s)))
}

// ForceTimeSeries is a uniformly sampled force/moment history, starting at t=0.
// Series are immutable once generated: a new realization needs a new generator seed.
type ForceTimeSeries struct {
	Source  Source
	Dt      float64
	Samples [][6]float64
}

// NewForceTimeSeries returns a zeroed series of n samples.
func NewForceTimeSeries(src Source, dt float64, n int) *ForceTimeSeries {
	return &ForceTimeSeries{src, dt, make([][6]float64, n)}
}

// Len returns the number of samples.
func (s *ForceTimeSeries) Len() int {
	return len(s.Samples)
}

// Duration returns the time of the last sample.
func (s *ForceTimeSeries) Duration() float64 {
	return float64(len(s.Samples)-1) * s.Dt
}

// At returns the linearly interpolated force at time t.
func (s *ForceTimeSeries) At(t float64) (f [6]float64, err error) {
	n := len(s.Samples)
	idx := t / s.Dt
	if n == 0 || idx < -1e-9 || idx > float64(n-1)+1e-6 {
		return f, fmt.Errorf("%w: %s series covers [0, %.3f]s, sampled at %.3fs", ErrMissingForceSample, s.Source, s.Duration(), t)
	}
	i := int(math.Floor(idx))
	if i >= n-1 {
		return s.Samples[n-1], nil
	}
	if i < 0 {
		return s.Samples[0], nil
	}
	w := idx - float64(i)
	for j := 0; j < 6; j++ {
		f[j] = s.Samples[i][j]*(1-w) + s.Samples[i+1][j]*w
	}
	return
}

// Component returns the history of one degree of freedom.
func (s *ForceTimeSeries) Component(dof int) []float64 {
	c := make([]float64, len(s.Samples))
	for i, f := range s.Samples {
		c[i] = f[dof]
	}
	return c
}

// ScalarSeries is a uniformly sampled scalar process (wave elevation, wind speed or direction).
type ScalarSeries struct {
	Dt     float64
	Values []float64
}

// Time returns the time of sample i.
func (s ScalarSeries) Time(i int) float64 {
	return float64(i) * s.Dt
}
