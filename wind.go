package moorsim

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	kitlog "github.com/go-kit/log"
)

// WindSpectrumModel identifies a gust spectrum.
type WindSpectrumModel uint8

const (
	// Davenport is the Davenport (1961) gust spectrum.
	Davenport WindSpectrumModel = iota + 1
	// Harris is the Harris (1971) gust spectrum.
	Harris
	// NPD is the Frøya spectrum recommended by NPD and ISO 19901-1.
	NPD
)

func (m WindSpectrumModel) String() string {
	switch m {
	case Davenport:
		return "davenport"
	case Harris:
		return "harris"
	case NPD:
		return "npd"
	}
	panic(fmt.Errorf("unknown wind spectrum model %d", uint8(m)))
}

// ParseWindSpectrumModel returns the wind spectrum of the given name.
func ParseWindSpectrumModel(name string) (WindSpectrumModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "davenport":
		return Davenport, nil
	case "harris":
		return Harris, nil
	case "npd", "froya", "frøya":
		return NPD, nil
	}
	return 0, fmt.Errorf("%w: wind spectrum %q", ErrUnsupportedSpectrumModel, name)
}

// WindConfig configures a WindProcessGenerator.
type WindConfig struct {
	Mean         float64 // Mean speed at the reference height (m/s)
	Direction    float64 // Mean direction the wind blows to, relative to the vessel x axis (rad)
	Model        WindSpectrumModel
	Drag         float64 // Surface drag coefficient, 0.002 when zero
	Height       float64 // Reference height (m), 10 when zero
	Components   int     // Harmonics, 300 when zero
	MinFrequency float64 // Hz, 1/3600 when zero
	MaxFrequency float64 // Hz, 0.5 when zero and limited to the Nyquist frequency
	DirectionStd float64 // Standard deviation of the direction (rad), zero for a steady direction
}

// WindRealization is one generated wind process.
type WindRealization struct {
	Seed      int64
	Speed     ScalarSeries
	Direction ScalarSeries
	Force     *ForceTimeSeries // nil without a coefficient table
}

// WindProcessGenerator synthesizes gusty wind by random phase summation.
type WindProcessGenerator struct {
	conf   WindConfig
	coeffs *CoefficientTable
	logger kitlog.Logger
}

// NewWindProcessGenerator validates the configuration. The coefficient table may be nil.
func NewWindProcessGenerator(conf WindConfig, coeffs *CoefficientTable, logger kitlog.Logger) (*WindProcessGenerator, error) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	if conf.Drag == 0 {
		conf.Drag = 0.002
	}
	if conf.Height == 0 {
		conf.Height = 10
	}
	if conf.Components == 0 {
		conf.Components = 300
	}
	if conf.MinFrequency == 0 {
		conf.MinFrequency = 1. / 3600
	}
	if conf.MaxFrequency == 0 {
		conf.MaxFrequency = 0.5
	}
	switch {
	case conf.Model < Davenport || conf.Model > NPD:
		return nil, fmt.Errorf("%w: wind spectrum id %d", ErrUnsupportedSpectrumModel, uint8(conf.Model))
	case !(conf.Mean > 0) || math.IsInf(conf.Mean, 0):
		return nil, fmt.Errorf("%w: mean wind speed %f", ErrInvalidSpectralParameters, conf.Mean)
	case !(conf.Drag > 0) || !(conf.Height > 0) || conf.DirectionStd < 0:
		return nil, fmt.Errorf("%w: drag=%f height=%f direction std=%f", ErrInvalidSpectralParameters, conf.Drag, conf.Height, conf.DirectionStd)
	case conf.Components < 1 || !(conf.MinFrequency > 0) || !(conf.MaxFrequency > conf.MinFrequency):
		return nil, invalidf("%d wind components over [%f, %f]Hz", conf.Components, conf.MinFrequency, conf.MaxFrequency)
	}
	if coeffs != nil {
		if err := coeffs.Validate(); err != nil {
			return nil, err
		}
	}
	return &WindProcessGenerator{conf, coeffs, kitlog.With(logger, "subsys", "wind")}, nil
}

// Spectrum returns the one sided gust spectrum in m²/s² per Hz.
func (g *WindProcessGenerator) Spectrum(f float64) float64 {
	if f <= 0 {
		return 0
	}
	u, κ := g.conf.Mean, g.conf.Drag
	switch g.conf.Model {
	case Davenport:
		x := 1200 * f / u
		return 4 * κ * u * u * x * x / (f * math.Pow(1+x*x, 4./3))
	case Harris:
		x := 1800 * f / u
		return 4 * κ * u * u * x / (f * math.Pow(2+x*x, 5./6))
	}
	const n = 0.468
	zr := g.conf.Height / 10
	fr := 172 * f * math.Pow(zr, 2./3) * math.Pow(u/10, -0.75)
	return 320 * (u / 10) * (u / 10) * math.Pow(zr, 0.45) / math.Pow(1+math.Pow(fr, n), 5/(3*n))
}

// Generate synthesizes n samples every dt seconds. The same seed always yields the same realization.
func (g *WindProcessGenerator) Generate(seed int64, dt float64, n int) (*WindRealization, error) {
	if !(dt > 0) || n < 1 {
		return nil, invalidf("wind process of %d samples every %fs", n, dt)
	}
	fmax := g.conf.MaxFrequency
	if nyquist := 0.5 / dt; fmax > nyquist {
		fmax = nyquist
	}
	if fmax <= g.conf.MinFrequency {
		return nil, invalidf("wind band [%f, %f]Hz is empty at a %fs step", g.conf.MinFrequency, fmax, dt)
	}
	rng := rand.New(rand.NewSource(seed))
	speed := g.harmonics(rng, fmax)
	var dir []harmonic
	if g.conf.DirectionStd > 0 {
		dir = g.harmonics(rng, fmax)
		variance := 0.
		for _, c := range dir {
			variance += c.a * c.a / 2
		}
		scale := g.conf.DirectionStd / math.Sqrt(variance)
		for i := range dir {
			dir[i].a *= scale
		}
	}

	r := &WindRealization{
		Seed:      seed,
		Speed:     ScalarSeries{Dt: dt, Values: make([]float64, n)},
		Direction: ScalarSeries{Dt: dt, Values: make([]float64, n)},
	}
	if g.coeffs != nil {
		r.Force = NewForceTimeSeries(SourceWind, dt, n)
	}
	for k := 0; k < n; k++ {
		t := float64(k) * dt
		u, θ := g.conf.Mean, g.conf.Direction
		for _, c := range speed {
			u += c.a * math.Cos(c.ω*t+c.φ)
		}
		for _, c := range dir {
			θ += c.a * math.Cos(c.ω*t+c.φ)
		}
		// Gusts never reverse the flow.
		u = math.Max(u, 0)
		r.Speed.Values[k], r.Direction.Values[k] = u, θ
		if r.Force != nil {
			r.Force.Samples[k] = g.coeffs.Force(u, θ)
		}
	}
	g.logger.Log("level", "info", "seed", seed, "samples", n, "model", g.conf.Model, "mean", g.conf.Mean)
	return r, nil
}

// harmonics draws one component per logarithmic frequency bin, jittered within the bin.
// Frequencies are returned in rad/s.
func (g *WindProcessGenerator) harmonics(rng *rand.Rand, fmax float64) []harmonic {
	n := g.conf.Components
	ratio := math.Log(fmax / g.conf.MinFrequency)
	comps := make([]harmonic, n)
	for i := range comps {
		lo := g.conf.MinFrequency * math.Exp(ratio*float64(i)/float64(n))
		hi := g.conf.MinFrequency * math.Exp(ratio*float64(i+1)/float64(n))
		f := lo + rng.Float64()*(hi-lo)
		comps[i] = harmonic{ω: twoPi * f, a: math.Sqrt(2 * g.Spectrum(f) * (hi - lo)), φ: twoPi * rng.Float64()}
	}
	return comps
}

// CoefficientTable holds wind or current force coefficients per relative direction: the force is
// ½ρV²C(θ), so C carries the projected area (m²) for forces and area times lever arm (m³) for moments.
type CoefficientTable struct {
	Directions   []float64    // Direction the flow goes to, relative to the vessel x axis (rad) in [0, 2π)
	Coefficients [][6]float64 // One row per direction
	Density      float64      // Fluid density (kg/m³)
}

// Validate checks the direction axis and the coefficients.
func (c *CoefficientTable) Validate() error {
	n := len(c.Directions)
	switch {
	case n == 0:
		return invalidf("coefficient table has no direction")
	case len(c.Coefficients) != n:
		return invalidf("%d directions but %d coefficient rows", n, len(c.Coefficients))
	case !strictlyIncreasing(c.Directions) || c.Directions[0] < 0 || c.Directions[n-1] >= twoPi:
		return invalidf("coefficient directions must be strictly increasing in [0, 2π)")
	case !(c.Density > 0):
		return invalidf("coefficient table density %f", c.Density)
	}
	for i, row := range c.Coefficients {
		if !allFinite(row[:]...) {
			return invalidf("non finite coefficient at direction %f", c.Directions[i])
		}
	}
	return nil
}

// At returns the coefficients interpolated at the relative direction θ, wrapping over 2π.
func (c *CoefficientTable) At(θ float64) (coeff [6]float64) {
	i0, i1, w := periodicWeights(c.Directions, θ)
	for j := 0; j < 6; j++ {
		coeff[j] = c.Coefficients[i0][j]*(1-w) + c.Coefficients[i1][j]*w
	}
	return
}

// Force returns ½ρV²C(θ).
func (c *CoefficientTable) Force(speed, θ float64) (f [6]float64) {
	q := 0.5 * c.Density * speed * speed
	coeff := c.At(θ)
	for j := range f {
		f[j] = q * coeff[j]
	}
	return
}

// CurrentForce returns the steady force series of a uniform current.
func CurrentForce(coeffs *CoefficientTable, speed, θ, dt float64, n int) (*ForceTimeSeries, error) {
	if err := coeffs.Validate(); err != nil {
		return nil, err
	}
	if speed < 0 || !(dt > 0) || n < 1 {
		return nil, invalidf("current of %f m/s over %d samples every %fs", speed, n, dt)
	}
	s := NewForceTimeSeries(SourceCurrent, dt, n)
	f := coeffs.Force(speed, θ)
	for k := range s.Samples {
		s.Samples[k] = f
	}
	return s, nil
}
