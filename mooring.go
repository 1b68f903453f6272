package moorsim

import (
	"fmt"
	"math"
)

// ElementStatus is the condition of a mooring element.
type ElementStatus uint8

const (
	// Slack elements carry no load.
	Slack ElementStatus = iota
	// Taut elements carry a load within their limits.
	Taut
	// AtLimit elements slip or are fully compressed.
	AtLimit
	// Broken lines carry no load for the rest of the run.
	Broken
)

func (s ElementStatus) String() string {
	switch s {
	case Slack:
		return "slack"
	case Taut:
		return "taut"
	case AtLimit:
		return "at-limit"
	case Broken:
		return "broken"
	}
	panic(fmt.Errorf("unknown element status %d", uint8(s)))
}

// ElementState is the history carried by an element between accepted solver steps.
type ElementState struct {
	Deflection float64 // Elongation of lines and links, compression of fenders (m)
	Peak       float64 // Largest fender compression since the last contact
	Offset     float64 // Accumulated slip of a rigid link (m)
	Broken     bool
}

// Load is the instantaneous response of an element.
type Load struct {
	Force      [6]float64 // Generalized force on the vessel about the motion reference point
	Tension    float64    // Axial load: line tension, fender reaction or link force (N)
	Deflection float64
	Status     ElementStatus
}

// MooringElement is a line, fender or rigid link between the vessel and a fixed structure.
// Step is pure: it returns the state the element would have at the pose, without retaining it.
type MooringElement interface {
	Name() string
	Step(state ElementState, pose Pose) (ElementState, Load)
	Validate() error
}

// Attachment holds the end points of an element.
type Attachment struct {
	Vessel [3]float64 // Vessel point in the vessel frame, relative to the motion reference point (m)
	Fixed  [3]float64 // Fixed point in the earth frame (m)
}

// span returns the vector from the vessel point to the fixed point, its length and the lever arm.
func (a Attachment) span(pose Pose) (d []float64, length float64, arm []float64) {
	p, arm := pose.Locate(a.Vessel[:])
	d = []float64{a.Fixed[0] - p[0], a.Fixed[1] - p[1], a.Fixed[2] - p[2]}
	return d, norm(d), arm
}

// axial returns the load of an axial force pulling the vessel point towards the fixed point.
func axial(tension float64, d []float64, length float64, arm []float64) (f [6]float64) {
	if length == 0 || tension == 0 {
		return
	}
	s := tension / length
	return generalized([]float64{s * d[0], s * d[1], s * d[2]}, arm)
}

// LinearLine is an elastic line of constant stiffness, slack when shorter than its unstretched length.
type LinearLine struct {
	Attachment
	Label        string
	Length       float64 // Unstretched length (m)
	Stiffness    float64 // N/m
	BreakingLoad float64 // N, unbreakable when zero
}

func (l *LinearLine) Name() string { return l.Label }

func (l *LinearLine) Validate() error {
	if !(l.Length > 0) || !(l.Stiffness > 0) || l.BreakingLoad < 0 {
		return invalidf("line %q: length %f, stiffness %f and breaking load %f", l.Label, l.Length, l.Stiffness, l.BreakingLoad)
	}
	return nil
}

func (l *LinearLine) Step(state ElementState, pose Pose) (ElementState, Load) {
	return stepLine(state, pose, l.Attachment, l.Length, l.BreakingLoad, func(e float64) float64 { return l.Stiffness * e })
}

// CurveLine is an elastic line following a piecewise linear tension curve, extrapolated past its last point.
type CurveLine struct {
	Attachment
	Label        string
	Length       float64   // Unstretched length (m)
	Elongation   []float64 // Strictly increasing, starting at zero (m)
	Tension      []float64 // N
	BreakingLoad float64   // N, unbreakable when zero
}

func (l *CurveLine) Name() string { return l.Label }

func (l *CurveLine) Validate() error {
	if !(l.Length > 0) || l.BreakingLoad < 0 {
		return invalidf("line %q: length %f and breaking load %f", l.Label, l.Length, l.BreakingLoad)
	}
	return validCurve(l.Label, l.Elongation, l.Tension)
}

func (l *CurveLine) Step(state ElementState, pose Pose) (ElementState, Load) {
	return stepLine(state, pose, l.Attachment, l.Length, l.BreakingLoad, func(e float64) float64 { return curveAt(l.Elongation, l.Tension, e) })
}

func stepLine(state ElementState, pose Pose, at Attachment, length, breaking float64, law func(float64) float64) (ElementState, Load) {
	d, ℓ, arm := at.span(pose)
	e := ℓ - length
	state.Deflection = e
	load := Load{Deflection: e}
	if state.Broken {
		load.Status = Broken
		return state, load
	}
	if e <= 0 {
		load.Status = Slack
		return state, load
	}
	tension := law(e)
	if breaking > 0 && tension > breaking {
		state.Broken = true
		load.Status = Broken
		return state, load
	}
	load.Tension, load.Status = tension, Taut
	load.Force = axial(tension, d, ℓ, arm)
	return state, load
}

// Fender is a compressive element against a quay, whose fixed point lies on the uncompressed fender face.
// Loading follows the reaction curve; after a reversal the reaction is the curve scaled by Unloading until
// the peak compression is exceeded again.
type Fender struct {
	Attachment
	Label      string
	Normal     [3]float64 // Unit normal of the quay, pointing towards the vessel
	Deflection []float64  // Strictly increasing, starting at zero (m)
	Reaction   []float64  // N
	Unloading  float64    // Ratio of the unloading to the loading reaction in (0, 1], 1 when zero
}

func (f *Fender) Name() string { return f.Label }

func (f *Fender) Validate() error {
	if math.Abs(norm(f.Normal[:])-1) > 1e-6 {
		return invalidf("fender %q: normal %v is not a unit vector", f.Label, f.Normal)
	}
	if f.Unloading < 0 || f.Unloading > 1 {
		return invalidf("fender %q: unloading ratio %f", f.Label, f.Unloading)
	}
	return validCurve(f.Label, f.Deflection, f.Reaction)
}

func (f *Fender) Step(state ElementState, pose Pose) (ElementState, Load) {
	p, arm := pose.Locate(f.Vessel[:])
	δ := (f.Fixed[0]-p[0])*f.Normal[0] + (f.Fixed[1]-p[1])*f.Normal[1] + (f.Fixed[2]-p[2])*f.Normal[2]
	load := Load{Deflection: δ}
	if δ <= 0 {
		// Contact lost.
		return ElementState{Deflection: δ}, load
	}
	reaction := curveAt(f.Deflection, f.Reaction, δ)
	if δ >= state.Peak {
		state.Peak = δ
	} else {
		r := f.Unloading
		if r == 0 {
			r = 1
		}
		reaction *= r
	}
	state.Deflection = δ
	load.Tension, load.Status = reaction, Taut
	if δ >= f.Deflection[len(f.Deflection)-1] {
		load.Status = AtLimit
	}
	load.Force = generalized([]float64{reaction * f.Normal[0], reaction * f.Normal[1], reaction * f.Normal[2]}, arm)
	return state, load
}

// RigidLink is a bilateral connection modeled by a penalty stiffness, which slips once its axial force
// reaches Limit (elastic perfectly plastic).
type RigidLink struct {
	Attachment
	Label     string
	Length    float64 // Nominal length (m)
	Stiffness float64 // Penalty stiffness (N/m)
	Limit     float64 // Slip force (N), never slips when zero
}

func (r *RigidLink) Name() string { return r.Label }

func (r *RigidLink) Validate() error {
	if !(r.Length > 0) || !(r.Stiffness > 0) || r.Limit < 0 {
		return invalidf("link %q: length %f, stiffness %f and limit %f", r.Label, r.Length, r.Stiffness, r.Limit)
	}
	return nil
}

func (r *RigidLink) Step(state ElementState, pose Pose) (ElementState, Load) {
	d, ℓ, arm := r.span(pose)
	e := ℓ - r.Length
	state.Deflection = e
	// Return mapping from the committed slip.
	force := r.Stiffness * (e - state.Offset)
	status := Taut
	if r.Limit > 0 && math.Abs(force) > r.Limit {
		Δγ := (math.Abs(force) - r.Limit) / r.Stiffness
		state.Offset += Δγ * sign(force)
		force = r.Limit * sign(force)
		status = AtLimit
	}
	if force == 0 {
		status = Slack
	}
	return state, Load{Force: axial(force, d, ℓ, arm), Tension: force, Deflection: e, Status: status}
}

func validCurve(label string, xs, ys []float64) error {
	switch {
	case len(xs) < 2 || len(xs) != len(ys):
		return invalidf("element %q: curve needs at least two points, got %d and %d values", label, len(xs), len(ys))
	case xs[0] != 0 || ys[0] != 0:
		return invalidf("element %q: curve must start at the origin", label)
	case !strictlyIncreasing(xs) || !allFinite(ys...):
		return invalidf("element %q: curve deflections must be strictly increasing", label)
	}
	for _, y := range ys {
		if y < 0 {
			return invalidf("element %q: negative load %f on the curve", label, y)
		}
	}
	return nil
}

// curveAt interpolates the curve linearly and extrapolates it with its last segment.
func curveAt(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if x > xs[n-1] {
		slope := (ys[n-1] - ys[n-2]) / (xs[n-1] - xs[n-2])
		return ys[n-1] + slope*(x-xs[n-1])
	}
	return interp1(xs, ys, x)
}

// MooringSystem is the set of elements restraining one vessel with their committed states.
// It is owned by a single solver run; use Clone for another realization.
type MooringSystem struct {
	elements []MooringElement
	states   []ElementState
}

// NewMooringSystem validates the elements, whose names must be unique.
func NewMooringSystem(elements ...MooringElement) (*MooringSystem, error) {
	names := make(map[string]bool, len(elements))
	for _, e := range elements {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if e.Name() == "" || names[e.Name()] {
			return nil, invalidf("mooring element name %q is empty or duplicated", e.Name())
		}
		names[e.Name()] = true
	}
	return &MooringSystem{elements: elements, states: make([]ElementState, len(elements))}, nil
}

// Len returns the number of elements.
func (s *MooringSystem) Len() int {
	if s == nil {
		return 0
	}
	return len(s.elements)
}

// Names returns the element names.
func (s *MooringSystem) Names() []string {
	names := make([]string, s.Len())
	for i := range names {
		names[i] = s.elements[i].Name()
	}
	return names
}

// States returns a copy of the committed states.
func (s *MooringSystem) States() []ElementState {
	return append([]ElementState(nil), s.states...)
}

// Evaluate fills loads and next with each element's response at the pose from its committed state and
// returns the total force. The system is left untouched.
func (s *MooringSystem) Evaluate(pose Pose, loads []Load, next []ElementState) (total [6]float64) {
	for i, e := range s.elements {
		next[i], loads[i] = e.Step(s.states[i], pose)
		for j := 0; j < 6; j++ {
			total[j] += loads[i].Force[j]
		}
	}
	return
}

// Commit makes next the committed states.
func (s *MooringSystem) Commit(next []ElementState) {
	if s == nil {
		return
	}
	copy(s.states, next)
}

// Clone returns a system sharing the element definitions with fresh copies of the states.
func (s *MooringSystem) Clone() *MooringSystem {
	if s == nil {
		return nil
	}
	return &MooringSystem{elements: s.elements, states: s.States()}
}
