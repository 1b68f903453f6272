package moorsim

import (
	"math"

	kitlog "github.com/go-kit/log"
)

// PassingShipConfig describes a passing event. Both ships sail parallel tracks; positions are measured
// in the moored vessel frame from its midship.
type PassingShipConfig struct {
	Moored     Hull
	Passing    Hull
	Speed      float64  // Passing speed through the water (m/s)
	Course     float64  // 0 sails towards +x, π towards -x (rad)
	Separation float64  // Distance between centerlines, the passing ship being at +y (m)
	Stagger    float64  // Initial longitudinal position of the passing midship (m)
	Depth      float64  // Water depth (m), deep water when zero unless a channel is set
	Channel    *Channel // Limits the speed to the grounding speed and adds the passing ship squat
	Margin     float64  // Under keel clearance the passing ship keeps in the channel (m)
	Sections   int      // Sections per ship, 40 when zero
	Density    float64  // Water density (kg/m³), sea water when zero
}

// PassingShipForceModel computes the slender body interaction force of a passing vessel on the moored one.
// The passing ship is a line of sources of strength U·dS/dx and the moored ship responds through its
// sectional areas. It is deterministic.
type PassingShipForceModel struct {
	conf     PassingShipConfig
	x1, s1   []float64 // moored section positions and areas
	x2, ds2  []float64 // passing section positions and area slopes
	dx1, dx2 float64
	factor   float64 // ρU²/2π with the shallow water correction
	squat    float64
	logger   kitlog.Logger
}

// NewPassingShipForceModel validates the event.
func NewPassingShipForceModel(conf PassingShipConfig, logger kitlog.Logger) (*PassingShipForceModel, error) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	if conf.Sections == 0 {
		conf.Sections = 40
	}
	if conf.Density == 0 {
		conf.Density = SeaWaterDensity
	}
	if err := conf.Moored.Validate(); err != nil {
		return nil, err
	}
	if err := conf.Passing.Validate(); err != nil {
		return nil, err
	}
	course := wrapAngle(conf.Course)
	switch {
	case !(conf.Speed > 0) || math.IsInf(conf.Speed, 0):
		return nil, invalidf("passing speed %f", conf.Speed)
	case math.Abs(course) > 1e-9 && math.Abs(course-math.Pi) > 1e-9 && math.Abs(course-twoPi) > 1e-9:
		return nil, invalidf("passing course %.1f° must be parallel to the moored vessel", Rad2deg(conf.Course))
	case !(conf.Separation > (conf.Moored.Beam+conf.Passing.Beam)/2):
		return nil, invalidf("separation %.1fm lets the hulls overlap", conf.Separation)
	case conf.Sections < 4:
		return nil, invalidf("%d sections per ship", conf.Sections)
	case conf.Depth < 0 || !(conf.Density > 0):
		return nil, invalidf("depth %f and density %f", conf.Depth, conf.Density)
	}
	m := &PassingShipForceModel{conf: conf, logger: kitlog.With(logger, "subsys", "passing")}

	passing := conf.Passing
	depth := conf.Depth
	if ch := conf.Channel; ch != nil {
		if depth == 0 {
			depth = ch.WaterDepth()
		}
		grounding, err := ch.GroundingSpeed(passing, conf.Margin)
		if err != nil {
			return nil, err
		}
		if conf.Speed > grounding {
			return nil, invalidf("passing speed %.2fm/s grounds the ship, the limit is %.2fm/s", conf.Speed, grounding)
		}
		sq, err := ch.Squat(passing, conf.Speed)
		if err != nil {
			return nil, err
		}
		// Sinkage deepens the sections at constant block coefficient.
		t := passing.MeanDraught()
		passing.Displacement *= (t + sq) / t
		passing.DraughtBow += sq
		passing.DraughtStern += sq
		m.squat = sq
	}
	m.factor = conf.Density * conf.Speed * conf.Speed / twoPi
	if depth > 0 {
		fnh := conf.Speed / math.Sqrt(Gravity*depth)
		if fnh >= 1 {
			return nil, invalidf("depth Froude number %.3f is not subcritical", fnh)
		}
		m.factor /= math.Sqrt(1 - fnh*fnh)
	}

	n := conf.Sections
	m.x1, m.s1 = make([]float64, n), make([]float64, n)
	m.x2, m.ds2 = make([]float64, n), make([]float64, n)
	m.dx1, m.dx2 = conf.Moored.Length/float64(n), passing.Length/float64(n)
	for i := 0; i < n; i++ {
		m.x1[i] = -conf.Moored.Length/2 + (float64(i)+0.5)*m.dx1
		m.s1[i] = conf.Moored.SectionalArea(m.x1[i])
		m.x2[i] = -passing.Length/2 + (float64(i)+0.5)*m.dx2
		m.ds2[i] = passing.SectionalAreaSlope(m.x2[i])
	}
	m.logger.Log("level", "info", "speed", conf.Speed, "separation", conf.Separation, "depth", depth, "squat", m.squat)
	return m, nil
}

// Squat returns the sinkage applied to the passing ship.
func (m *PassingShipForceModel) Squat() float64 {
	return m.squat
}

// ForceAt returns the surge and sway forces and the yaw moment on the moored vessel when the passing
// midship is at the given stagger. Surge and yaw are odd in stagger and sway is even for symmetric hulls.
func (m *PassingShipForceModel) ForceAt(stagger float64) (f [6]float64) {
	η := m.conf.Separation
	η2 := η * η
	var fx, fy, mz float64
	for i, x1 := range m.x1 {
		var px, py float64
		for k, s := range m.x2 {
			dx := x1 - stagger - s
			r2 := dx*dx + η2
			r5 := r2 * r2 * math.Sqrt(r2)
			q := m.ds2[k] / r5
			px += q * (2*dx*dx - η2)
			py += q * 3 * dx * η
		}
		w := m.s1[i] * m.dx1 * m.dx2
		fx += w * px
		fy += 2 * w * py
		mz += 2 * w * py * x1
	}
	f[Surge], f[Sway], f[Yaw] = m.factor*fx, m.factor*fy, m.factor*mz
	return
}

// Stagger returns the passing midship position at time t.
func (m *PassingShipForceModel) Stagger(t float64) float64 {
	return m.conf.Stagger + m.conf.Speed*t*math.Cos(m.conf.Course)
}

// Generate returns the force history of n samples every dt seconds.
func (m *PassingShipForceModel) Generate(dt float64, n int) (*ForceTimeSeries, error) {
	if !(dt > 0) || n < 1 {
		return nil, invalidf("passing ship series of %d samples every %fs", n, dt)
	}
	s := NewForceTimeSeries(SourcePassingShip, dt, n)
	for k := range s.Samples {
		s.Samples[k] = m.ForceAt(m.Stagger(float64(k) * dt))
	}
	return s, nil
}
