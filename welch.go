package moorsim

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

// DefaultWelchWindow is the default Welch segment duration in seconds.
const DefaultWelchWindow = 256.

// PSD is a one sided spectral density estimate over angular frequency.
type PSD struct {
	Omega   []float64 // rad/s
	Density []float64 // unit²·s/rad
}

// Moment returns the n-th spectral moment ∫ωⁿS(ω)dω.
func (p PSD) Moment(n int) float64 {
	ys := make([]float64, len(p.Omega))
	for i, ω := range p.Omega {
		ys[i] = math.Pow(ω, float64(n)) * p.Density[i]
	}
	return trapz(p.Omega, ys)
}

// Peak returns the frequency of the spectral maximum. The search runs on the estimate smoothed by a
// three point Hanning filter and is refined by parabolic interpolation within half a bin.
func (p PSD) Peak() float64 {
	n := len(p.Density)
	if n < 3 {
		return 0
	}
	s := make([]float64, n)
	for k := range s {
		lo, hi := p.Density[max(k-1, 0)], p.Density[min(k+1, n-1)]
		s[k] = 0.25*lo + 0.5*p.Density[k] + 0.25*hi
	}
	k := 1
	for i := 2; i < n-1; i++ {
		if s[i] > s[k] {
			k = i
		}
	}
	δ := 0.
	if den := s[k-1] - 2*s[k] + s[k+1]; den < 0 {
		δ = clamp(0.5*(s[k-1]-s[k+1])/den, -0.5, 0.5)
	}
	return p.Omega[k] + δ*(p.Omega[1]-p.Omega[0])
}

// welchSegment returns the power of two segment length closest to the requested duration, limited
// so that at least four segments fit in n samples.
func welchSegment(n int, dt, duration float64) int {
	if duration <= 0 {
		duration = DefaultWelchWindow
	}
	l := nextPow2(int(math.Round(duration / dt)))
	for l > 16 && l > n/4 {
		l /= 2
	}
	return l
}

// WelchPSD estimates the one sided spectral density of x sampled every dt using Hann windowed segments
// of the given length with 50% overlap. Each segment is detrended by its mean.
func WelchPSD(x []float64, dt float64, segment int) (PSD, error) {
	if !(dt > 0) {
		return PSD{}, invalidf("Welch sample interval %f", dt)
	}
	if segment < 8 || segment > len(x) {
		return PSD{}, invalidf("Welch segment of %d samples for a %d sample record", segment, len(x))
	}
	w := make([]float64, segment)
	for i := range w {
		w[i] = 1
	}
	window.Hann(w)
	u := 0.
	for _, v := range w {
		u += v * v
	}
	u /= float64(segment)

	fft := fourier.NewFFT(segment)
	acc := make([]float64, segment/2+1)
	seg := make([]float64, segment)
	var coeff []complex128
	count := 0
	for start := 0; start+segment <= len(x); start += segment / 2 {
		mean := stat.Mean(x[start:start+segment], nil)
		for i := range seg {
			seg[i] = (x[start+i] - mean) * w[i]
		}
		coeff = fft.Coefficients(coeff, seg)
		for k, c := range coeff {
			acc[k] += real(c)*real(c) + imag(c)*imag(c)
		}
		count++
	}
	scale := dt / (float64(segment) * u * float64(count) * twoPi)
	psd := PSD{Omega: make([]float64, len(acc)), Density: make([]float64, len(acc))}
	for k, a := range acc {
		d := a * scale
		if k > 0 && !(segment%2 == 0 && k == segment/2) {
			d *= 2
		}
		psd.Density[k] = d
		psd.Omega[k] = twoPi * float64(k) / (float64(segment) * dt)
	}
	return psd, nil
}

// WaveDiagnostics describes a realized elevation record.
type WaveDiagnostics struct {
	M0, M1, M2 float64
	Hs         float64 // 4√m0 (m)
	Tp         float64 // Peak period (s)
	Tz         float64 // Zero crossing period 2π√(m0/m2) (s)
	Tm01       float64 // Mean period 2π·m0/m1 (s)
	Hmax       float64 // Largest zero-upcrossing wave height (m)
}

// DiagnoseElevation computes the realized diagnostics of an elevation record from its Welch estimate.
// A zero window selects DefaultWelchWindow.
func DiagnoseElevation(eta ScalarSeries, window float64) (d WaveDiagnostics, err error) {
	if d, err = SpectralMoments(eta, window); err != nil {
		return d, err
	}
	d.Hmax = maxUpcrossingHeight(eta.Values)
	return d, nil
}

func spectralDiagnostics(psd PSD) (d WaveDiagnostics) {
	d.M0, d.M1, d.M2 = psd.Moment(0), psd.Moment(1), psd.Moment(2)
	d.Hs = 4 * math.Sqrt(d.M0)
	if ωp := psd.Peak(); ωp > 0 {
		d.Tp = twoPi / ωp
	}
	if d.M2 > 0 {
		d.Tz = twoPi * math.Sqrt(d.M0/d.M2)
	}
	if d.M1 > 0 {
		d.Tm01 = twoPi * d.M0 / d.M1
	}
	return
}

// maxUpcrossingHeight returns the largest crest to trough height between successive upcrossings of the mean.
func maxUpcrossingHeight(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	mean := stat.Mean(x, nil)
	hmax := 0.
	started := false
	hi, lo := math.Inf(-1), math.Inf(1)
	for i := 1; i < len(x); i++ {
		if x[i-1]-mean < 0 && x[i]-mean >= 0 {
			if started {
				hmax = math.Max(hmax, hi-lo)
			}
			started = true
			hi, lo = math.Inf(-1), math.Inf(1)
		}
		hi = math.Max(hi, x[i])
		lo = math.Min(lo, x[i])
	}
	return hmax
}
