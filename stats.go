package moorsim

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Statistics is the statistics record of one output channel.
type Statistics struct {
	Channel     string
	Samples     int
	Max         float64 // Largest |x|
	Mean        float64
	Std         float64
	Significant float64 // Mean of the highest third of the peaks
	Tenth       float64 // Mean of the highest tenth of the peaks
	Peaks       int
	Spectral    *WaveDiagnostics // Welch moments, when requested
}

// ResultsPostProcessor computes the statistics of every channel of a simulation result.
// It only reads the result, so processing the same result twice gives identical records.
type ResultsPostProcessor struct {
	Skip     float64 // Samples before this time are discarded, e.g. the start-up transient (s)
	Spectral bool    // Also compute the Welch spectral moments of each channel
	Window   float64 // Welch segment duration, DefaultWelchWindow when zero
}

// Process returns one record per channel, in the order of SimulationResult.Channels.
func (p ResultsPostProcessor) Process(r *SimulationResult) ([]Statistics, error) {
	if r == nil || r.Len() == 0 {
		return nil, invalidf("no samples to process")
	}
	first := 0
	for first < r.Len() && r.Time[first] < p.Skip-1e-9 {
		first++
	}
	if first == r.Len() {
		return nil, invalidf("all %d samples are before %fs", r.Len(), p.Skip)
	}
	channels := r.Channels()
	records := make([]Statistics, len(channels))
	for i, c := range channels {
		x := c.Series.Values[first:]
		records[i] = ChannelStatistics(c.Name, x)
		if p.Spectral && len(x) >= 64 {
			d, err := SpectralMoments(ScalarSeries{Dt: c.Series.Dt, Values: x}, p.Window)
			if err != nil {
				return nil, err
			}
			records[i].Spectral = &d
		}
	}
	return records, nil
}

// ChannelStatistics computes the statistics of one series.
func ChannelStatistics(name string, x []float64) Statistics {
	s := Statistics{Channel: name, Samples: len(x)}
	if len(x) == 0 {
		return s
	}
	s.Mean, s.Std = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		s.Std = 0
	}
	for _, v := range x {
		s.Max = math.Max(s.Max, math.Abs(v))
	}
	pk := Peaks(x, s.Mean)
	sort.Sort(sort.Reverse(sort.Float64Slice(pk)))
	s.Peaks = len(pk)
	s.Significant = stat.Mean(pk[:max(len(pk)/3, 1)], nil)
	s.Tenth = stat.Mean(pk[:max(len(pk)/10, 1)], nil)
	return s
}

// Peaks returns the signed crest of every cycle, a cycle running from one up-crossing of the level
// to the next. The stretch before the first up-crossing counts only when it reaches the level. A
// series which never up-crosses it has a single peak.
func Peaks(x []float64, level float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	var peaks []float64
	crest, crossed := x[0], false
	for i := 1; i < len(x); i++ {
		if x[i-1] < level && x[i] >= level {
			if crossed || crest >= level {
				peaks = append(peaks, crest)
			}
			crest, crossed = x[i], true
			continue
		}
		crest = math.Max(crest, x[i])
	}
	return append(peaks, crest)
}

// SpectralMoments returns the Welch based moments, significant height and peak period of any
// channel. A zero window selects DefaultWelchWindow.
func SpectralMoments(s ScalarSeries, window float64) (WaveDiagnostics, error) {
	psd, err := WelchPSD(s.Values, s.Dt, welchSegment(len(s.Values), s.Dt, window))
	if err != nil {
		return WaveDiagnostics{}, err
	}
	return spectralDiagnostics(psd), nil
}

// Lookup returns the record of the named channel.
func Lookup(records []Statistics, channel string) (Statistics, bool) {
	for _, r := range records {
		if r.Channel == channel {
			return r, true
		}
	}
	return Statistics{}, false
}
