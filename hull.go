package moorsim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Hull describes the main particulars of a vessel.
type Hull struct {
	Length       float64 // Length between perpendiculars (m)
	Beam         float64 // (m)
	DraughtBow   float64 // (m)
	DraughtStern float64 // (m)
	Displacement float64 // Displaced mass (kg)
	Waterplane   float64 // Waterplane coefficient, estimated from the block coefficient when zero
	Midship      float64 // Midship section coefficient, estimated from the block coefficient when zero
	Propellers   int
	BulbousBow   bool
	TransomStern bool
	Density      float64 // Water density (kg/m^3), sea water when zero
}

// Validate checks that the particulars are physical.
func (h Hull) Validate() error {
	if !(h.Length > 0 && h.Beam > 0 && h.DraughtBow > 0 && h.DraughtStern > 0 && h.Displacement > 0) {
		return invalidf("hull particulars must be positive: %+v", h)
	}
	if cb := h.BlockCoefficient(); cb > 1 {
		return invalidf("block coefficient %f exceeds one", cb)
	}
	return nil
}

func (h Hull) density() float64 {
	if h.Density > 0 {
		return h.Density
	}
	return SeaWaterDensity
}

// MeanDraught returns the average of the bow and stern draughts.
func (h Hull) MeanDraught() float64 {
	return (h.DraughtBow + h.DraughtStern) / 2
}

// Volume returns the displaced volume.
func (h Hull) Volume() float64 {
	return h.Displacement / h.density()
}

// BlockCoefficient returns C_B.
func (h Hull) BlockCoefficient() float64 {
	return h.Volume() / (h.Length * h.Beam * h.MeanDraught())
}

// WaterplaneCoefficient returns C_WP.
func (h Hull) WaterplaneCoefficient() float64 {
	if h.Waterplane > 0 {
		return h.Waterplane
	}
	return (1 + 2*h.BlockCoefficient()) / 3
}

// MidshipCoefficient returns C_M.
func (h Hull) MidshipCoefficient() float64 {
	if h.Midship > 0 {
		return h.Midship
	}
	return 1.006 - 0.0056*math.Pow(h.BlockCoefficient(), -3.56)
}

// MidshipArea returns the immersed midship section.
func (h Hull) MidshipArea() float64 {
	return h.MidshipCoefficient() * h.Beam * h.MeanDraught()
}

// EffectiveWidth returns the channel width beyond which the channel acts as unrestricted.
func (h Hull) EffectiveWidth() float64 {
	return 7.04 * h.Beam / math.Pow(h.BlockCoefficient(), 0.85)
}

// SectionalArea returns the parabolic sectional area at x from midship (positive forward), with the
// volume of the hull.
func (h Hull) SectionalArea(x float64) float64 {
	ξ := 2 * x / h.Length
	if math.Abs(ξ) > 1 {
		return 0
	}
	return 1.5 * h.BlockCoefficient() * h.Beam * h.MeanDraught() * (1 - ξ*ξ)
}

// SectionalAreaSlope returns dS/dx.
func (h Hull) SectionalAreaSlope(x float64) float64 {
	ξ := 2 * x / h.Length
	if math.Abs(ξ) > 1 {
		return 0
	}
	return -1.5 * h.BlockCoefficient() * h.Beam * h.MeanDraught() * 8 * x / (h.Length * h.Length)
}

// Restoring estimates the hydrostatic restoring coefficients from the waterplane and the metacentric heights.
// Couplings are neglected.
func (h Hull) Restoring(gmT, gmL float64) RestoringMatrix {
	ρg := h.density() * Gravity
	return RestoringMatrix{
		C33: ρg * h.WaterplaneCoefficient() * h.Length * h.Beam,
		C44: Gravity * h.Displacement * gmT,
		C55: Gravity * h.Displacement * gmL,
	}
}

// Mass returns the rigid body mass matrix for the radii of gyration about the motion reference point.
func (h Hull) Mass(kxx, kyy, kzz float64) *mat.SymDense {
	m := h.Displacement
	return diagonalSym([6]float64{m, m, m, m * kxx * kxx, m * kyy * kyy, m * kzz * kzz})
}

func diagonalSym(d [6]float64) *mat.SymDense {
	s := mat.NewSymDense(6, nil)
	for i, v := range d {
		s.SetSym(i, i, v)
	}
	return s
}

// Channel describes the waterway cross section.
// Unrestricted: no trench and no bank slope with a width beyond the effective width.
// Restricted: narrower than the effective width with a trench lower than the water depth.
// Canal: the trench height equals the water depth.
type Channel struct {
	Depth        float64 // h0 (m)
	WaterLevel   float64 // Design water level above the reference (m)
	TrenchHeight float64 // hT (m)
	Width        float64 // W (m)
	BankSlope    float64 // Inverse bank slope Nb (m/m)
}

// WaterDepth returns h0 + Dwl.
func (c Channel) WaterDepth() float64 {
	return c.Depth + c.WaterLevel
}

type channelKind uint8

const (
	unrestricted channelKind = iota + 1
	restricted
	canal
)

// section holds the derived channel quantities for one hull.
type section struct {
	kind     channelKind
	depth    float64 // h0 + Dwl
	trench   float64
	area     float64 // Ach
	hmT      float64
	ukc      float64
	critical float64
}

func (c Channel) section(h Hull) (s section, err error) {
	if err = h.Validate(); err != nil {
		return
	}
	s.depth = c.WaterDepth()
	if !(s.depth > 0) || !(c.Width > 0) {
		return s, invalidf("channel depth %f and width %f must be positive", s.depth, c.Width)
	}
	s.trench = math.Min(c.TrenchHeight, s.depth)
	tm := h.MeanDraught()
	s.ukc = s.depth / tm
	weff := h.EffectiveWidth()
	var hm float64
	if c.Width <= weff {
		if !(s.trench > 0) || c.BankSlope < 0 {
			return s, invalidf("a channel narrower than %.1fm needs a positive trench and a non-negative bank slope", weff)
		}
		s.area = (c.Width + c.BankSlope*s.depth) * s.depth
		hm = s.area / (c.Width + 2*c.BankSlope*s.depth)
	} else {
		if s.trench != 0 || c.BankSlope != 0 {
			return s, invalidf("a channel wider than %.1fm cannot have a trench or a bank slope", weff)
		}
		s.area = weff * s.depth
		hm = s.area / weff
	}
	s.hmT = s.depth - s.trench*(1-hm/s.depth)

	kch := 0.58 * math.Pow(s.depth*h.Length/h.Beam/tm, 0.125)
	kc := math.Pow(2*math.Cos((math.Pi+math.Acos(1-h.MidshipArea()/s.area))/3), 1.5)
	switch {
	case s.trench == 0:
		s.kind = unrestricted
		s.critical = kch * math.Sqrt(Gravity*s.depth)
	case s.trench < s.depth:
		s.kind = restricted
		r := s.trench / s.depth
		s.critical = (kch*(1-r) + kc*r) * math.Sqrt(Gravity*s.hmT)
	default:
		s.kind = canal
		s.critical = kc * math.Sqrt(Gravity*s.hmT)
	}
	return
}

// CriticalSpeed returns the limit speed of the hull in this channel.
func (c Channel) CriticalSpeed(h Hull) (float64, error) {
	s, err := c.section(h)
	return s.critical, err
}

// GroundingSpeed returns the speed at which the squat leaves only the margin of under keel clearance,
// h0 + Dwl - Tm - squat(V) = margin. The critical speed is returned when the hull never sinks that far.
func (c Channel) GroundingSpeed(h Hull, margin float64) (float64, error) {
	s, err := c.section(h)
	if err != nil {
		return 0, err
	}
	allowed := s.depth - h.MeanDraught() - margin
	if margin < 0 || allowed < 0 {
		return 0, invalidf("under keel clearance %.2fm at rest leaves no margin of %.2fm", s.depth-h.MeanDraught(), margin)
	}
	lo, hi := 0.0, math.Nextafter(s.critical, 0)
	sq, err := c.Squat(h, hi)
	if err != nil {
		return 0, err
	}
	if sq <= allowed {
		return s.critical, nil
	}
	for hi-lo > 1e-9 {
		mid := (lo + hi) / 2
		if sq, err = c.Squat(h, mid); err != nil {
			return 0, err
		}
		if sq <= allowed {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// Squat returns the maximum sinkage of the hull sailing at the given speed, using Hooft in unrestricted
// waters, Ankudinov in restricted channels and the largest of Römisch and Ankudinov in canals.
func (c Channel) Squat(h Hull, speed float64) (float64, error) {
	s, err := c.section(h)
	if err != nil || speed <= 0 {
		return 0, err
	}
	if speed >= s.critical {
		return 0, invalidf("speed %.2fm/s is beyond the critical speed %.2fm/s", speed, s.critical)
	}
	cb := h.BlockCoefficient()
	tm := h.MeanDraught()
	fnh := speed / math.Sqrt(Gravity*s.depth)

	// Römisch
	kdt := 0.155 * math.Sqrt(s.depth/tm)
	cf := math.Pow(10*h.Beam*cb/h.Length, 2)
	vr := speed / s.critical
	cv := 8 * vr * vr * (0.0625 + math.Pow(vr-0.5, 4))
	srb := cv * cf * kdt * tm
	knots := speed * 3600 / 1852

	switch s.kind {
	case unrestricted:
		shb := 2 * cb * h.Beam * tm * fnh * fnh / h.Length / math.Sqrt(1-fnh*fnh)
		if s.ukc < 1.2 && cb >= 0.8 {
			shb = 0
		}
		if s.ukc < 1.2 && cb < 0.8 {
			srb = 0
		}
		return math.Max(shb, math.Max(srb, srb/cf)), nil
	case restricted:
		sab, sas := c.ankudinov(h, s, fnh)
		return math.Max(sab, sas), nil
	default:
		sab, sas := c.ankudinov(h, s, fnh)
		if s.ukc < 1.2 && cb > 0.8 {
			if knots < 7 {
				srb = 0
			} else if knots > 7 {
				sab, sas = 0, 0
			}
		}
		return math.Max(math.Max(sab, sas), math.Max(srb, srb/cf)), nil
	}
}

// ankudinov returns the bow and stern squat in restricted channels and canals.
func (c Channel) ankudinov(h Hull, s section, fnh float64) (bow, stern float64) {
	cb := h.BlockCoefficient()
	tm := h.MeanDraught()
	kps, kpt := 0.15, 0.15
	if h.Propellers > 1 {
		kps, kpt = 0.13, 0.20
	}
	phu := 1.7*cb*(h.Beam*tm/(h.Length*h.Length)) + 0.004*cb*cb
	pfnh := math.Pow(fnh, 1.8+0.4*fnh)
	pht := 1 + 0.35/(s.ukc*s.ukc)
	sh := cb * tm * s.trench * h.MidshipArea() / s.area / (s.depth * s.depth)
	pch1 := 1 + 10*sh - 1.5*(1+sh)*math.Sqrt(sh)
	sab := h.Length * (1 + kps) * phu * pfnh * pht * pch1

	var kbt, ktrt float64
	if h.BulbousBow {
		kbt = 0.1
	}
	if h.TransomStern {
		ktrt = 0.04
	}
	kt1t := (h.DraughtStern - h.DraughtBow) / (h.DraughtStern + h.DraughtBow)
	ktr := math.Pow(cb, 2+0.8*pch1/cb) - (0.15*kps + kpt) - (kbt + ktrt + kt1t)
	phtm := 1 - math.Exp(2.5*(1-s.ukc)/fnh)
	pch2 := 1 - 5*sh
	trim := -1.7 * h.Length * phu * pfnh * phtm * ktr * pch2
	return sab - 0.5*trim, sab + 0.5*trim
}
