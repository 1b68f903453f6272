package moorsim

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"strings"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/dsp/fourier"
)

// SynthesisMethod selects how an irregular sea is synthesized.
type SynthesisMethod uint8

const (
	// RandomPhase sums harmonics at jittered frequencies with uniform random phases.
	RandomPhase SynthesisMethod = iota + 1
	// FFTSynthesis fills the Fourier bins of the record with random phases and inverts them.
	FFTSynthesis
)

func (m SynthesisMethod) String() string {
	switch m {
	case RandomPhase:
		return "random-phase"
	case FFTSynthesis:
		return "fft"
	}
	panic(fmt.Errorf("unknown synthesis method %d", uint8(m)))
}

// ParseSynthesisMethod returns the synthesis method of the given name.
func ParseSynthesisMethod(name string) (SynthesisMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random-phase", "random":
		return RandomPhase, nil
	case "fft", "fast":
		return FFTSynthesis, nil
	}
	return 0, invalidf("unknown synthesis method %q", name)
}

// DriftPolicy selects the wave drift force model.
type DriftPolicy uint8

const (
	// NoDrift ignores drift forces.
	NoDrift DriftPolicy = iota
	// MeanDrift applies the constant mean drift force.
	MeanDrift
	// SecondOrderDrift applies the slowly varying drift force (Newman), optionally with sum frequency terms.
	SecondOrderDrift
)

func (d DriftPolicy) String() string {
	switch d {
	case NoDrift:
		return "none"
	case MeanDrift:
		return "mean"
	case SecondOrderDrift:
		return "second-order"
	}
	panic(fmt.Errorf("unknown drift policy %d", uint8(d)))
}

// ParseDriftPolicy returns the drift policy of the given name.
func ParseDriftPolicy(name string) (DriftPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return NoDrift, nil
	case "mean":
		return MeanDrift, nil
	case "second-order", "newman", "molin", "enhanced":
		return SecondOrderDrift, nil
	}
	return 0, invalidf("unknown drift policy %q", name)
}

// RegularWave is a single harmonic wave.
type RegularWave struct {
	Height float64 // Crest to trough (m)
	Period float64 // s
	Phase  float64 // rad
}

// WaveConfig configures a WaveProcessGenerator. Exactly one of Sea, Regular or External drives the process:
// Regular and External take precedence over Sea when set.
type WaveConfig struct {
	Sea          SeaState
	Method       SynthesisMethod
	Drift        DriftPolicy
	SumFrequency bool          // Include sum frequency terms in the second order drift
	Heading      float64       // Wave heading in the table convention (rad)
	Components   int           // Random phase harmonics, 200 when zero
	LowCut       float64       // Lowest synthesized frequency as a fraction of ωp, 0.25 when zero
	HighCut      float64       // Highest synthesized frequency as a fraction of ωp, 6 when zero
	Regular      *RegularWave  // Regular wave input
	External     *ScalarSeries // External elevation record
	WelchWindow  float64       // Welch segment duration for diagnostics, DefaultWelchWindow when zero
}

// WaveRealization is one generated wave process.
type WaveRealization struct {
	Seed        int64
	Elevation   ScalarSeries
	Excitation  *ForceTimeSeries
	Drift       *ForceTimeSeries // nil with NoDrift
	Diagnostics WaveDiagnostics
}

// WaveProcessGenerator synthesizes wave elevation and the associated wave forces.
// It holds no mutable state and may be shared between goroutines.
type WaveProcessGenerator struct {
	table    *HydrodynamicTable
	conf     WaveConfig
	spectrum Spectrum
	logger   kitlog.Logger
}

// NewWaveProcessGenerator validates the configuration. The table may be nil, in which case only the
// elevation is synthesized and all forces are zero.
func NewWaveProcessGenerator(table *HydrodynamicTable, conf WaveConfig, logger kitlog.Logger) (*WaveProcessGenerator, error) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	g := &WaveProcessGenerator{table: table, conf: conf, logger: kitlog.With(logger, "subsys", "waves")}
	if g.conf.Components == 0 {
		g.conf.Components = 200
	}
	if g.conf.LowCut == 0 {
		g.conf.LowCut = 0.25
	}
	if g.conf.HighCut == 0 {
		g.conf.HighCut = 6
	}
	switch {
	case conf.Drift > SecondOrderDrift:
		return nil, invalidf("drift policy %d", uint8(conf.Drift))
	case conf.External != nil:
		if len(conf.External.Values) < 2 || !allFinite(conf.External.Values...) {
			return nil, invalidf("external wave record must hold at least two finite samples")
		}
	case conf.Regular != nil:
		r := conf.Regular
		if !(r.Height >= 0) || !(r.Period > 0) || math.IsInf(r.Height, 0) || math.IsInf(r.Period, 0) {
			return nil, fmt.Errorf("%w: regular wave H=%f T=%f", ErrInvalidSpectralParameters, r.Height, r.Period)
		}
	default:
		if conf.Method != RandomPhase && conf.Method != FFTSynthesis {
			return nil, invalidf("synthesis method %d", uint8(conf.Method))
		}
		if g.conf.Components < 1 || !(g.conf.LowCut > 0) || !(g.conf.HighCut > g.conf.LowCut) {
			return nil, invalidf("%d components over [%f, %f]ωp", g.conf.Components, g.conf.LowCut, g.conf.HighCut)
		}
		spec, err := NewSpectrum(conf.Sea)
		if err != nil {
			return nil, err
		}
		g.spectrum = spec
	}
	return g, nil
}

// Spectrum returns the target spectrum, nil for regular and external inputs.
func (g *WaveProcessGenerator) Spectrum() Spectrum {
	return g.spectrum
}

// Generate synthesizes n samples every dt seconds. The same seed always yields the same realization.
func (g *WaveProcessGenerator) Generate(seed int64, dt float64, n int) (*WaveRealization, error) {
	if !(dt > 0) || n < 1 {
		return nil, invalidf("wave process of %d samples every %fs", n, dt)
	}
	var (
		r   *WaveRealization
		err error
	)
	switch {
	case g.conf.External != nil:
		r, err = g.replay(dt, n)
	case g.conf.Regular != nil:
		w := g.conf.Regular
		r = g.sum([]harmonic{{ω: twoPi / w.Period, a: w.Height / 2, φ: w.Phase}}, dt, n)
	case g.conf.Method == RandomPhase:
		r = g.sum(g.harmonics(rand.New(rand.NewSource(seed))), dt, n)
	default:
		r = g.fft(rand.New(rand.NewSource(seed)), dt, n)
	}
	if err != nil {
		return nil, err
	}
	r.Seed = seed
	if len(r.Elevation.Values) >= 64 {
		if r.Diagnostics, err = DiagnoseElevation(r.Elevation, g.conf.WelchWindow); err != nil {
			return nil, err
		}
	}
	g.logger.Log("level", "info", "seed", seed, "samples", n, "Hs", r.Diagnostics.Hs, "Tp", r.Diagnostics.Tp, "drift", g.conf.Drift)
	return r, nil
}

type harmonic struct {
	ω, a, φ float64
}

// harmonics draws the random phase components: one per frequency bin, jittered within the bin.
func (g *WaveProcessGenerator) harmonics(rng *rand.Rand) []harmonic {
	ωp := g.spectrum.PeakFrequency()
	lo, hi := g.conf.LowCut*ωp, g.conf.HighCut*ωp
	n := g.conf.Components
	dω := (hi - lo) / float64(n)
	comps := make([]harmonic, n)
	for i := range comps {
		ω := lo + (float64(i)+rng.Float64())*dω
		comps[i] = harmonic{ω: ω, a: math.Sqrt(2 * g.spectrum.Density(ω) * dω), φ: twoPi * rng.Float64()}
	}
	return comps
}

// sum evaluates the harmonics on the time grid.
func (g *WaveProcessGenerator) sum(comps []harmonic, dt float64, n int) *WaveRealization {
	r := g.newRealization(dt, n)
	χ := make([][6]complex128, len(comps))
	amp := make([][6]float64, len(comps)) // a√|D|
	var mean [6]float64
	for i, c := range comps {
		χ[i] = g.excitation(c.ω)
		d := g.drift(c.ω)
		for j := 0; j < 6; j++ {
			amp[i][j] = c.a * math.Sqrt(math.Abs(d[j]))
			mean[j] += c.a * c.a * d[j]
		}
	}
	for k := 0; k < n; k++ {
		t := float64(k) * dt
		var x, xh [6]float64
		f := &r.Excitation.Samples[k]
		for i, c := range comps {
			sin, cos := math.Sincos(c.ω*t + c.φ)
			r.Elevation.Values[k] += c.a * cos
			for j := 0; j < 6; j++ {
				f[j] += c.a * (real(χ[i][j])*cos - imag(χ[i][j])*sin)
				x[j] += amp[i][j] * cos
				xh[j] += amp[i][j] * sin
			}
		}
		g.applyDrift(r, k, mean, x, xh)
	}
	return r
}

// fft fills every Fourier bin of the record inside the synthesis band.
// Bin k carries S(kΔω) exactly: sampling the spectrum anywhere else in the bin shifts the realized peak.
func (g *WaveProcessGenerator) fft(rng *rand.Rand, dt float64, n int) *WaveRealization {
	nfft := nextPow2(n)
	dω := twoPi / (float64(nfft) * dt)
	ωp := g.spectrum.PeakFrequency()
	lo, hi := g.conf.LowCut*ωp, g.conf.HighCut*ωp
	coeffs := make([]complex128, nfft/2+1)
	for k := 1; k < nfft/2; k++ {
		φ := twoPi * rng.Float64()
		ω := float64(k) * dω
		if ω < lo || ω > hi {
			continue
		}
		a := math.Sqrt(2 * g.spectrum.Density(ω) * dω)
		coeffs[k] = cmplx.Rect(a/2, φ)
	}
	return g.filter(coeffs, dω, nfft, dt, n)
}

// replay filters an external elevation record through the transfer functions.
func (g *WaveProcessGenerator) replay(dt float64, n int) (*WaveRealization, error) {
	ext := g.conf.External
	if math.Abs(ext.Dt-dt) > 1e-9*dt {
		return nil, fmt.Errorf("%w: record interval %gs, solver step %gs", ErrExternalWaveFileMismatch, ext.Dt, dt)
	}
	m := min(n, len(ext.Values))
	if m < n {
		g.logger.Log("level", "warning", "msg", "external record shorter than requested", "samples", m, "requested", n)
	}
	nfft := nextPow2(m)
	padded := make([]float64, nfft)
	copy(padded, ext.Values[:m])
	coeffs := fourier.NewFFT(nfft).Coefficients(nil, padded)
	for k := range coeffs {
		coeffs[k] /= complex(float64(nfft), 0)
	}
	// The mean level carries no wave energy.
	coeffs[0] = 0
	coeffs[nfft/2] = 0
	r := g.filter(coeffs, twoPi/(float64(nfft)*dt), nfft, dt, m)
	return r, nil
}

// filter synthesizes the elevation and forces from the half spectrum coefficients (a/2)e^{iφ}.
func (g *WaveProcessGenerator) filter(coeffs []complex128, dω float64, nfft int, dt float64, n int) *WaveRealization {
	r := g.newRealization(dt, n)
	fft := fourier.NewFFT(nfft)
	seq := make([]float64, nfft)
	work := make([]complex128, len(coeffs))

	seq = fft.Sequence(seq, coeffs)
	copy(r.Elevation.Values, seq[:n])

	χ := make([][6]complex128, len(coeffs))
	d := make([][6]float64, len(coeffs))
	var mean [6]float64
	for k, c := range coeffs {
		if c == 0 {
			continue
		}
		ω := float64(k) * dω
		χ[k], d[k] = g.excitation(ω), g.drift(ω)
		a2 := 4 * real(c*cmplx.Conj(c))
		for j := 0; j < 6; j++ {
			mean[j] += a2 * d[k][j]
		}
	}
	x := make([][]float64, 6)
	xh := make([][]float64, 6)
	for j := 0; j < 6; j++ {
		for k, c := range coeffs {
			work[k] = c * χ[k][j]
		}
		seq = fft.Sequence(seq, work)
		for i := 0; i < n; i++ {
			r.Excitation.Samples[i][j] = seq[i]
		}
		if g.conf.Drift != SecondOrderDrift {
			continue
		}
		x[j], xh[j] = make([]float64, n), make([]float64, n)
		for k, c := range coeffs {
			work[k] = c * complex(math.Sqrt(math.Abs(d[k][j])), 0)
		}
		seq = fft.Sequence(seq, work)
		copy(x[j], seq[:n])
		for k := range work {
			work[k] *= -1i
		}
		seq = fft.Sequence(seq, work)
		copy(xh[j], seq[:n])
	}
	for i := 0; i < n; i++ {
		var xi, xhi [6]float64
		if g.conf.Drift == SecondOrderDrift {
			for j := 0; j < 6; j++ {
				xi[j], xhi[j] = x[j][i], xh[j][i]
			}
		}
		g.applyDrift(r, i, mean, xi, xhi)
	}
	return r
}

func (g *WaveProcessGenerator) newRealization(dt float64, n int) *WaveRealization {
	r := &WaveRealization{
		Elevation:  ScalarSeries{Dt: dt, Values: make([]float64, n)},
		Excitation: NewForceTimeSeries(SourceWave, dt, n),
	}
	if g.conf.Drift != NoDrift {
		r.Drift = NewForceTimeSeries(SourceDrift, dt, n)
	}
	return r
}

// applyDrift writes the drift force of sample k. mean is Σa²D, x and xh are the in phase and quadrature
// sums of a√|D|.
func (g *WaveProcessGenerator) applyDrift(r *WaveRealization, k int, mean, x, xh [6]float64) {
	switch g.conf.Drift {
	case MeanDrift:
		r.Drift.Samples[k] = mean
	case SecondOrderDrift:
		for j := 0; j < 6; j++ {
			s := sign(mean[j])
			if g.conf.SumFrequency {
				r.Drift.Samples[k][j] = s * 2 * x[j] * x[j]
			} else {
				r.Drift.Samples[k][j] = s * (x[j]*x[j] + xh[j]*xh[j])
			}
		}
	}
}

func (g *WaveProcessGenerator) excitation(ω float64) [6]complex128 {
	if g.table == nil {
		return [6]complex128{}
	}
	return g.table.ExcitationAt(ω, g.conf.Heading)
}

func (g *WaveProcessGenerator) drift(ω float64) [6]float64 {
	if g.table == nil || g.conf.Drift == NoDrift {
		return [6]float64{}
	}
	return g.table.DriftAt(ω, g.conf.Heading)
}
