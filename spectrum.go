package moorsim

import (
	"fmt"
	"math"
	"strings"
)

// SpectrumModel identifies a wave spectral density model.
type SpectrumModel uint8

const (
	// Jonswap is the peak enhanced North Sea spectrum.
	Jonswap SpectrumModel = iota + 1
	// Bretschneider is the two parameter Pierson-Moskowitz spectrum.
	Bretschneider
	// Torsethaugen is the two peaked wind sea and swell spectrum.
	Torsethaugen
	// McCormick is the generalized gamma spectrum.
	McCormick
	// OchiHubble is the three parameter (optionally six with swell) spectrum.
	OchiHubble
	// Wallop is the steepness dependent spectrum.
	Wallop
)

var spectrumNames = map[SpectrumModel]string{
	Jonswap:       "jonswap",
	Bretschneider: "bretschneider",
	Torsethaugen:  "torsethaugen",
	McCormick:     "mccormick",
	OchiHubble:    "ochi-hubble",
	Wallop:        "wallop",
}

func (m SpectrumModel) String() string {
	if name, ok := spectrumNames[m]; ok {
		return name
	}
	panic(fmt.Errorf("unknown spectrum model %d", uint8(m)))
}

// ParseSpectrumModel returns the model of the given name (case insensitive).
func ParseSpectrumModel(name string) (SpectrumModel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for m, n := range spectrumNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedSpectrumModel, name)
}

// SeaState defines a target irregular sea.
type SeaState struct {
	Hs      float64 // Significant wave height (m)
	Tp      float64 // Peak period (s)
	Model   SpectrumModel
	Gamma   float64 // JONSWAP peak enhancement, 3.3 when zero
	Shape   float64 // McCormick m, Ochi-Hubble λ or Wallop m; model default when zero
	SwellHs float64 // Ochi-Hubble swell component height (m), none when zero
	SwellTp float64 // Ochi-Hubble swell component peak period (s)
}

// Spectrum is a one sided wave spectral density in m²s/rad over ω in rad/s.
type Spectrum interface {
	Density(ω float64) float64
	PeakFrequency() float64
}

// NewSpectrum returns the spectrum of the sea state.
func NewSpectrum(s SeaState) (Spectrum, error) {
	if !(s.Hs > 0) || !(s.Tp > 0) || math.IsInf(s.Hs, 0) || math.IsInf(s.Tp, 0) {
		return nil, fmt.Errorf("%w: Hs=%f Tp=%f", ErrInvalidSpectralParameters, s.Hs, s.Tp)
	}
	ωp := twoPi / s.Tp
	switch s.Model {
	case Jonswap:
		γ := s.Gamma
		if γ == 0 {
			γ = 3.3
		}
		if γ < 1 {
			return nil, fmt.Errorf("%w: JONSWAP γ=%f below one", ErrInvalidSpectralParameters, γ)
		}
		return newJonswap(s.Hs, ωp, γ), nil
	case Bretschneider:
		return pmSpectrum{s.Hs, ωp}, nil
	case Torsethaugen:
		return newTorsethaugen(s.Hs, s.Tp), nil
	case McCormick:
		m := s.Shape
		if m == 0 {
			m = 5
		}
		if m <= 1 {
			return nil, fmt.Errorf("%w: McCormick shape %f must exceed one", ErrInvalidSpectralParameters, m)
		}
		return mcCormickSpectrum{s.Hs, ωp, m}, nil
	case OchiHubble:
		λ := s.Shape
		if λ == 0 {
			λ = 1.5
		}
		if λ <= 0 {
			return nil, fmt.Errorf("%w: Ochi-Hubble λ=%f", ErrInvalidSpectralParameters, λ)
		}
		if s.SwellHs == 0 {
			return ochiHubbleSpectrum{s.Hs, ωp, λ}, nil
		}
		if s.SwellHs < 0 || s.SwellHs >= s.Hs || !(s.SwellTp > 0) {
			return nil, fmt.Errorf("%w: swell Hs=%f Tp=%f for total Hs=%f", ErrInvalidSpectralParameters, s.SwellHs, s.SwellTp, s.Hs)
		}
		wind := ochiHubbleSpectrum{math.Sqrt(s.Hs*s.Hs - s.SwellHs*s.SwellHs), ωp, λ}
		swell := ochiHubbleSpectrum{s.SwellHs, twoPi / s.SwellTp, 3}
		return compositeSpectrum{parts: []Spectrum{wind, swell}, peak: ωp}, nil
	case Wallop:
		m := s.Shape
		if m == 0 {
			m = math.Abs(math.Log(math.Sqrt2*math.Pi*s.Hs/(Gravity*s.Tp*s.Tp))) / math.Ln2
		}
		if m < 2 {
			m = 2
		}
		return newWallop(s.Hs, ωp, m), nil
	}
	return nil, fmt.Errorf("%w: model id %d", ErrUnsupportedSpectrumModel, uint8(s.Model))
}

// pmSpectrum is the Pierson-Moskowitz (Bretschneider) spectrum.
type pmSpectrum struct{ hs, ωp float64 }

func (s pmSpectrum) Density(ω float64) float64 {
	if ω <= 0 {
		return 0
	}
	r := s.ωp / ω
	r4 := r * r * r * r
	return 5. / 16 * s.hs * s.hs * r4 / ω * math.Exp(-1.25*r4)
}

func (s pmSpectrum) PeakFrequency() float64 { return s.ωp }

// jonswapSpectrum is normalized numerically so that it integrates to Hs²/16.
type jonswapSpectrum struct {
	pm    pmSpectrum
	γ     float64
	scale float64
}

func newJonswap(hs, ωp, γ float64) jonswapSpectrum {
	s := jonswapSpectrum{pm: pmSpectrum{hs, ωp}, γ: γ, scale: 1}
	// Integrate on [0.2ωp, 10ωp] and add the Pierson-Moskowitz tail beyond, where γ^r ≈ 1.
	const n = 8000
	lo, hi := 0.2*ωp, 10*ωp
	dω := (hi - lo) / n
	m0 := 0.
	for i := 0; i <= n; i++ {
		w := dω
		if i == 0 || i == n {
			w = dω / 2
		}
		m0 += w * s.Density(lo+float64(i)*dω)
	}
	m0 += hs * hs / 16 * (1 - math.Exp(-1.25*math.Pow(ωp/hi, 4)))
	s.scale = hs * hs / 16 / m0
	return s
}

func (s jonswapSpectrum) Density(ω float64) float64 {
	if ω <= 0 {
		return 0
	}
	σ := 0.07
	if ω > s.pm.ωp {
		σ = 0.09
	}
	d := (ω - s.pm.ωp) / (σ * s.pm.ωp)
	return s.scale * s.pm.Density(ω) * math.Pow(s.γ, math.Exp(-0.5*d*d))
}

func (s jonswapSpectrum) PeakFrequency() float64 { return s.pm.ωp }

// mcCormickSpectrum is α ω^-(m+1) exp(-β ω^-m), which peaks at ωp and integrates to Hs²/16.
type mcCormickSpectrum struct{ hs, ωp, m float64 }

func (s mcCormickSpectrum) Density(ω float64) float64 {
	if ω <= 0 {
		return 0
	}
	r := math.Pow(s.ωp/ω, s.m)
	return (s.m + 1) / 16 * s.hs * s.hs * r / ω * math.Exp(-(s.m+1)/s.m*r)
}

func (s mcCormickSpectrum) PeakFrequency() float64 { return s.ωp }

// ochiHubbleSpectrum is a single Ochi-Hubble component.
type ochiHubbleSpectrum struct{ hs, ωp, λ float64 }

func (s ochiHubbleSpectrum) Density(ω float64) float64 {
	if ω <= 0 {
		return 0
	}
	c := (4*s.λ + 1) / 4
	r4 := math.Pow(s.ωp/ω, 4)
	lnNorm := s.λ*math.Log(c) - lgamma(s.λ)
	return 0.25 * s.hs * s.hs / ω * math.Exp(lnNorm+s.λ*math.Log(r4)-c*r4)
}

func (s ochiHubbleSpectrum) PeakFrequency() float64 { return s.ωp }

// wallopSpectrum is α ω^-m exp(-(m/4)(ωp/ω)^4).
type wallopSpectrum struct{ hs, ωp, m, α float64 }

func newWallop(hs, ωp, m float64) wallopSpectrum {
	c := m / 4 * math.Pow(ωp, 4)
	integral := 0.25 * math.Exp((1-m)/4*math.Log(c)+lgamma((m-1)/4))
	return wallopSpectrum{hs, ωp, m, hs * hs / 16 / integral}
}

func (s wallopSpectrum) Density(ω float64) float64 {
	if ω <= 0 {
		return 0
	}
	return s.α * math.Pow(ω, -s.m) * math.Exp(-s.m/4*math.Pow(s.ωp/ω, 4))
}

func (s wallopSpectrum) PeakFrequency() float64 { return s.ωp }

// compositeSpectrum sums several components. Peak is the frequency of the primary component.
type compositeSpectrum struct {
	parts []Spectrum
	peak  float64
}

func (s compositeSpectrum) Density(ω float64) (d float64) {
	for _, p := range s.parts {
		d += p.Density(ω)
	}
	return
}

func (s compositeSpectrum) PeakFrequency() float64 { return s.peak }

// newTorsethaugen splits the sea into wind sea and swell around the fully developed peak period,
// each part being a JONSWAP spectrum.
func newTorsethaugen(hs, tp float64) compositeSpectrum {
	tf := 6.6 * math.Cbrt(hs)
	var primary, secondary struct{ hs, tp, γ float64 }
	if tp <= tf {
		// Wind dominated
		tl := 2 * math.Sqrt(hs)
		εl := clamp((tf-tp)/(tf-tl), 0, 1)
		rpw := 0.7 + 0.3*math.Exp(-4*εl*εl)
		primary.hs, primary.tp = rpw*hs, tp
		primary.γ = 35 * math.Pow(twoPi*primary.hs/(Gravity*tp*tp), 0.857)
		secondary.hs, secondary.tp, secondary.γ = math.Sqrt(1-rpw*rpw)*hs, tf+2, 1
	} else {
		// Swell dominated
		εu := clamp((tp-tf)/(25-tf), 0, 1)
		rps := 0.6 + 0.4*math.Exp(-εu*εu/0.09)
		primary.hs, primary.tp = rps*hs, tp
		primary.γ = 35 * math.Pow(twoPi*hs/(Gravity*tf*tf), 0.857) * (1 + 6*εu)
		secondary.hs = math.Sqrt(1-rps*rps) * hs
		secondary.tp, secondary.γ = 6.6*math.Cbrt(secondary.hs), 1
	}
	parts := []Spectrum{newJonswap(primary.hs, twoPi/primary.tp, math.Max(primary.γ, 1))}
	if secondary.hs > 1e-6*hs {
		parts = append(parts, newJonswap(secondary.hs, twoPi/secondary.tp, math.Max(secondary.γ, 1)))
	}
	return compositeSpectrum{parts: parts, peak: twoPi / tp}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
