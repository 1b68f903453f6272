package moorsim

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ChristopherRabotin/ode"
	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/mat"
)

// SolverStatus is the state of a TimeDomainSolver.
type SolverStatus uint8

const (
	// Initializing solvers have been validated but not run.
	Initializing SolverStatus = iota
	// Stepping solvers are integrating.
	Stepping
	// Completed runs reached the configured duration.
	Completed
	// Failed runs stopped on a sampling error or a diverging state.
	Failed
	// Canceled runs were stopped by their context or StopSimulation.
	Canceled
)

func (s SolverStatus) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Stepping:
		return "stepping"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	}
	panic(fmt.Errorf("unknown solver status %d", uint8(s)))
}

// MonitorPoint is a vessel point whose acceleration is recorded.
type MonitorPoint struct {
	Name     string
	Position [3]float64 // In the vessel frame, relative to the motion reference point (m)
}

// SolverConfig configures a TimeDomainSolver.
type SolverConfig struct {
	RunID             string
	TimeStep          float64
	Duration          float64
	InitialPose       Pose
	InitialVelocity   [6]float64
	LinearDamping     [6]float64 // Additional diagonal viscous damping
	QuadraticDamping  [6]float64 // Diagonal drag-type damping, applied as B|v|v
	DisplacementBound float64    // Largest admissible |surge|, |sway| and |heave| (m)
	AngleBound        float64    // Largest admissible |roll|, |pitch| and |yaw| (rad)
	VelocityBound     float64    // Largest admissible velocity component
	Monitors          []MonitorPoint
	Export            ExportConfig
}

// DefaultSolverConfig returns a configuration with loose divergence bounds.
func DefaultSolverConfig(dt, duration float64) SolverConfig {
	return SolverConfig{TimeStep: dt, Duration: duration, DisplacementBound: 1e3, AngleBound: math.Pi, VelocityBound: 1e3}
}

// SolverInput gathers the data shared by the realizations of a study. None of it is modified
// except the mooring system, which must not be shared between running solvers.
type SolverInput struct {
	Store   *CoefficientStore
	Kernel  *MemoryKernel // A nil kernel means no radiation memory and no infinite-frequency added mass
	Forces  []*ForceTimeSeries
	Mooring *MooringSystem
}

// SimulationResult is the output of a run. It is consistent up to the last committed step, even
// when the run failed or was canceled.
type SimulationResult struct {
	RunID             string
	Status            SolverStatus
	Dt                float64
	Time              []float64
	Position          []Pose
	Velocity          [][6]float64
	Acceleration      [][6]float64
	Monitors          []string
	PointAcceleration [][][3]float64 // [monitor][sample]
	Elements          []string
	Loads             [][]Load // [element][sample]
}

// Len returns the number of committed samples.
func (r *SimulationResult) Len() int {
	return len(r.Time)
}

// OutputChannel is a named scalar output of a simulation.
type OutputChannel struct {
	Name   string
	Series ScalarSeries
}

// Channels returns every output channel: position/<dof>, velocity/<dof>, acceleration/<dof>,
// monitor/<name>/<x|y|z> and load/<element>.
func (r *SimulationResult) Channels() []OutputChannel {
	var chans []OutputChannel
	add := func(name string, value func(i int) float64) {
		values := make([]float64, r.Len())
		for i := range values {
			values[i] = value(i)
		}
		chans = append(chans, OutputChannel{name, ScalarSeries{Dt: r.Dt, Values: values}})
	}
	for j, dof := range dofNames {
		add("position/"+dof, func(i int) float64 { return r.Position[i][j] })
	}
	for j, dof := range dofNames {
		add("velocity/"+dof, func(i int) float64 { return r.Velocity[i][j] })
	}
	for j, dof := range dofNames {
		add("acceleration/"+dof, func(i int) float64 { return r.Acceleration[i][j] })
	}
	for m, name := range r.Monitors {
		for j, axis := range []string{"x", "y", "z"} {
			add("monitor/"+name+"/"+axis, func(i int) float64 { return r.PointAcceleration[m][i][j] })
		}
	}
	for e, name := range r.Elements {
		add("load/"+name, func(i int) float64 { return r.Loads[e][i].Tension })
	}
	return chans
}

// Channel returns the named channel.
func (r *SimulationResult) Channel(name string) (ScalarSeries, bool) {
	for _, c := range r.Channels() {
		if c.Name == name {
			return c.Series, true
		}
	}
	return ScalarSeries{}, false
}

// TimeDomainSolver integrates the Cummins equation
//
//	(M + A∞) a = -C x - B_lin v - B_q |v| v + F_memory + F_external(t) + F_mooring(x)
//
// with a fixed step RK4. It is an ode.Integrable: the vessel state is committed in SetState only.
type TimeDomainSolver struct {
	conf    SolverConfig
	store   *CoefficientStore
	forces  []*ForceTimeSeries
	mooring *MooringSystem
	logger  kitlog.Logger

	restoring [6][6]float64
	kernel    [][36]float64 // Flattened K_m
	inertia   mat.Cholesky  // M + A∞
	history   *velocityHistory
	histForce [6]float64 // Memory force of the committed velocities for the current step
	nSteps    int

	status  SolverStatus
	err     error
	pending error // First sampling error of the current step
	step    int
	x       Pose
	v       [6]float64
	loads   []Load
	next    []ElementState
	result  *SimulationResult

	ctx      context.Context
	stopChan chan bool
	histChan chan<- Sample
	wg       sync.WaitGroup
}

// NewTimeDomainSolver validates the inputs and returns a solver ready to run. A nil logger
// discards all logs.
func NewTimeDomainSolver(conf SolverConfig, in SolverInput, logger kitlog.Logger) (*TimeDomainSolver, error) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	dt := conf.TimeStep
	if !(dt > 0) || !(conf.Duration > 0) || math.IsInf(conf.Duration, 0) {
		return nil, invalidf("time step %f and duration %f must be positive", dt, conf.Duration)
	}
	if !(conf.DisplacementBound > 0) || !(conf.AngleBound > 0) || !(conf.VelocityBound > 0) {
		return nil, invalidf("divergence bounds must be positive")
	}
	if in.Store == nil {
		return nil, invalidf("no coefficient store")
	}
	for i := 0; i < 6; i++ {
		if conf.LinearDamping[i] < 0 || conf.QuadraticDamping[i] < 0 {
			return nil, invalidf("%s damping cannot be negative", dofNames[i])
		}
	}
	if !allFinite(conf.InitialPose[:]...) || !allFinite(conf.InitialVelocity[:]...) {
		return nil, invalidf("non finite initial state")
	}
	for i, s := range in.Forces {
		if s == nil {
			return nil, invalidf("force series %d is nil", i)
		}
		if !sameStep(s.Dt, dt) {
			return nil, invalidf("%s series sampled at %fs, solver step is %fs", s.Source, s.Dt, dt)
		}
	}
	names := make(map[string]bool, len(conf.Monitors))
	for _, m := range conf.Monitors {
		if m.Name == "" || names[m.Name] {
			return nil, invalidf("monitor points need unique names, got %q", m.Name)
		}
		names[m.Name] = true
	}

	s := &TimeDomainSolver{
		conf:     conf,
		store:    in.Store,
		forces:   in.Forces,
		mooring:  in.Mooring,
		logger:   kitlog.With(logger, "subsys", "solver", "run", conf.RunID),
		nSteps:   int(math.Ceil(conf.Duration/dt - 1e-9)),
		x:        conf.InitialPose,
		v:        conf.InitialVelocity,
		stopChan: make(chan bool, 1),
	}
	c := in.Store.Restoring.Dense()
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			s.restoring[i][j] = c.At(i, j)
		}
	}

	inertia := mat.NewSymDense(6, nil)
	inertia.CopySym(in.Store.Mass)
	if k := in.Kernel; k != nil {
		if !sameStep(k.Dt, dt) {
			return nil, invalidf("kernel sampled at %fs, solver step is %fs", k.Dt, dt)
		}
		if k.AInf == nil || k.AInf.SymmetricDim() != 6 {
			return nil, invalidf("kernel has no 6x6 infinite-frequency added mass")
		}
		inertia.AddSym(inertia, k.AInf)
		if k.Len() > 1 {
			s.kernel = make([][36]float64, k.Len())
			for m, km := range k.K {
				for p := 0; p < 36; p++ {
					s.kernel[m][p] = km.At(p/6, p%6)
				}
			}
		}
	}
	if ok := s.inertia.Factorize(inertia); !ok {
		return nil, invalidf("M + A∞ is not positive definite")
	}
	s.history = newVelocityHistory(len(s.kernel) - 1)

	elements := s.mooring.Names()
	s.loads = make([]Load, len(elements))
	s.next = make([]ElementState, len(elements))
	s.result = &SimulationResult{
		RunID:             conf.RunID,
		Dt:                dt,
		Elements:          elements,
		Loads:             make([][]Load, len(elements)),
		PointAcceleration: make([][][3]float64, len(conf.Monitors)),
	}
	for _, m := range conf.Monitors {
		s.result.Monitors = append(s.result.Monitors, m.Name)
	}
	return s, nil
}

// sameStep returns whether two sampling intervals are equal up to rounding.
func sameStep(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

// Status returns the current status of the solver.
func (s *TimeDomainSolver) Status() SolverStatus {
	return s.status
}

// Steps returns the number of steps of a complete run.
func (s *TimeDomainSolver) Steps() int {
	return s.nSteps
}

// Run integrates until the configured duration, a failure or a cancellation. The returned result
// holds every committed step in all cases.
func (s *TimeDomainSolver) Run(ctx context.Context) (*SimulationResult, error) {
	if s.status != Initializing {
		return nil, invalidf("solver already ran")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	if !s.conf.Export.IsUseless() {
		histChan := make(chan Sample, 1000) // a 1k entry buffer
		s.histChan = histChan
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			StreamSamples(s.conf.Export, StreamHeader{s.conf.RunID, s.result.Elements}, histChan, s.logger)
		}()
	}
	s.logger.Log("level", "info", "steps", s.nSteps, "dt", s.conf.TimeStep, "memory(s)", float64(max(len(s.kernel)-1, 0))*s.conf.TimeStep, "elements", len(s.result.Elements), "forces", len(s.forces))
	s.status = Stepping
	s.commit()
	if s.status == Stepping {
		ode.NewRK4(0, s.conf.TimeStep, s).Solve() // Blocking.
	}
	if s.histChan != nil {
		close(s.histChan)
		s.wg.Wait()
	}
	s.result.Status = s.status
	s.logger.Log("level", "notice", "status", s.status, "t(s)", s.time(), "samples", s.result.Len())
	return s.result, s.err
}

// StopSimulation requests a cooperative stop before the next step.
func (s *TimeDomainSolver) StopSimulation() {
	select {
	case s.stopChan <- true:
	default:
	}
}

// time returns the time of the committed state.
func (s *TimeDomainSolver) time() float64 {
	return float64(s.step) * s.conf.TimeStep
}

// Stop implements the ode.Integrable interface.
func (s *TimeDomainSolver) Stop(_ float64) bool {
	if s.status != Stepping {
		return true
	}
	select {
	case <-s.stopChan:
		s.status = Canceled
		s.logger.Log("level", "notice", "message", "stop requested", "step", s.step)
		return true
	case <-s.ctx.Done():
		s.status = Canceled
		s.err = &SimulationError{Step: s.step, Time: s.time(), Wrapped: s.ctx.Err()}
		return true
	default:
	}
	if s.step >= s.nSteps {
		s.status = Completed
		return true
	}
	return false
}

// GetState implements the ode.Integrable interface.
func (s *TimeDomainSolver) GetState() []float64 {
	state := make([]float64, 12)
	copy(state[:6], s.x[:])
	copy(state[6:], s.v[:])
	return state
}

// SetState implements the ode.Integrable interface. It is the only place where the vessel state,
// the velocity history and the mooring states change.
func (s *TimeDomainSolver) SetState(_ float64, state []float64) {
	step := s.step + 1
	t := float64(step) * s.conf.TimeStep
	if s.pending != nil {
		s.fail(step, t, s.pending)
		return
	}
	var x Pose
	var v [6]float64
	copy(x[:], state[:6])
	copy(v[:], state[6:])
	if err := s.checkBounds(x, v); err != nil {
		s.fail(step, t, err)
		return
	}
	s.history.Push(s.v)
	s.x, s.v, s.step = x, v, step
	s.updateHistoryForce()
	s.commit()
}

// Func implements the ode.Integrable interface. The stage offset from the committed time is snapped
// to the half step, so the accumulated integrator time never drifts off the force series grid.
func (s *TimeDomainSolver) Func(t float64, state []float64) []float64 {
	h := s.conf.TimeStep
	t = s.time() + math.Round(2*(t-s.time())/h)*h/2
	var x Pose
	var v [6]float64
	copy(x[:], state[:6])
	copy(v[:], state[6:])
	a, err := s.acceleration(t, x, v)
	if err != nil && s.pending == nil {
		s.pending = err
	}
	fDot := make([]float64, 12)
	copy(fDot[:6], v[:])
	copy(fDot[6:], a[:])
	return fDot
}

// acceleration solves the equation of motion at time t. The mooring loads of the pose are left in
// s.loads and their tentative states in s.next.
func (s *TimeDomainSolver) acceleration(t float64, x Pose, v [6]float64) (a [6]float64, err error) {
	var f [6]float64
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			f[i] -= s.restoring[i][j] * x[j]
		}
		f[i] -= s.conf.LinearDamping[i]*v[i] + s.conf.QuadraticDamping[i]*math.Abs(v[i])*v[i]
	}
	mem := s.memory(v)
	for i := range f {
		f[i] += mem[i]
	}
	for _, series := range s.forces {
		fs, serr := series.At(t)
		if serr != nil {
			if err == nil {
				err = serr
			}
			continue
		}
		for i := range f {
			f[i] += fs[i]
		}
	}
	if s.mooring.Len() > 0 {
		fm := s.mooring.Evaluate(x, s.loads, s.next)
		for i := range f {
			f[i] += fm[i]
		}
	}
	var sol mat.VecDense
	if serr := s.inertia.SolveVecTo(&sol, mat.NewVecDense(6, f[:])); serr != nil && err == nil {
		err = fmt.Errorf("%w: %s", ErrNumericalDivergence, serr)
	}
	for i := range a {
		a[i] = sol.AtVec(i)
	}
	return
}

// memory returns the radiation memory force, with the trapezoidal weight on the stage velocity.
func (s *TimeDomainSolver) memory(v [6]float64) (f [6]float64) {
	if len(s.kernel) < 2 {
		return
	}
	w := 0.5 * s.conf.TimeStep
	k0 := &s.kernel[0]
	for i := 0; i < 6; i++ {
		f[i] = s.histForce[i]
		for j := 0; j < 6; j++ {
			f[i] -= w * k0[6*i+j] * v[j]
		}
	}
	return
}

// updateHistoryForce sums the kernel against the committed velocities once per step. Velocities
// before the start of the run are zero.
func (s *TimeDomainSolver) updateHistoryForce() {
	s.histForce = [6]float64{}
	last := len(s.kernel) - 1
	for m := 1; m <= last; m++ {
		vm, ok := s.history.At(m)
		if !ok {
			break
		}
		w := s.conf.TimeStep
		if m == last {
			w *= 0.5
		}
		km := &s.kernel[m]
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				s.histForce[i] -= w * km[6*i+j] * vm[j]
			}
		}
	}
}

// checkBounds flags non finite and out of bounds states.
func (s *TimeDomainSolver) checkBounds(x Pose, v [6]float64) error {
	for i := 0; i < 6; i++ {
		bound := s.conf.DisplacementBound
		if i >= Roll {
			bound = s.conf.AngleBound
		}
		if !allFinite(x[i], v[i]) || math.Abs(x[i]) > bound || math.Abs(v[i]) > s.conf.VelocityBound {
			return fmt.Errorf("%w: %s displacement %g, velocity %g", ErrNumericalDivergence, dofNames[i], x[i], v[i])
		}
	}
	return nil
}

// fail marks the run failed, keeping the last valid state.
func (s *TimeDomainSolver) fail(step int, t float64, err error) {
	s.status = Failed
	s.err = &SimulationError{Step: step, Time: t, Wrapped: err}
	s.logger.Log("level", "critical", "step", step, "t(s)", t, "err", err)
}

// commit evaluates the committed state, commits the mooring states and records the sample.
func (s *TimeDomainSolver) commit() {
	t := s.time()
	a, err := s.acceleration(t, s.x, s.v)
	if err != nil {
		s.fail(s.step, t, err)
		return
	}
	s.pending = nil
	s.mooring.Commit(s.next)

	r := s.result
	r.Time = append(r.Time, t)
	r.Position = append(r.Position, s.x)
	r.Velocity = append(r.Velocity, s.v)
	r.Acceleration = append(r.Acceleration, a)
	if len(s.conf.Monitors) > 0 {
		α := a[Roll:]
		for m, point := range s.conf.Monitors {
			_, arm := s.x.Locate(point.Position[:])
			rot := cross(α, arm)
			r.PointAcceleration[m] = append(r.PointAcceleration[m], [3]float64{a[0] + rot[0], a[1] + rot[1], a[2] + rot[2]})
		}
	}
	var tensions []float64
	if s.histChan != nil {
		tensions = make([]float64, len(s.loads))
	}
	for e, l := range s.loads {
		r.Loads[e] = append(r.Loads[e], l)
		if tensions != nil {
			tensions[e] = l.Tension
		}
	}
	if s.histChan != nil {
		s.histChan <- Sample{Step: s.step, Time: t, Position: s.x, Velocity: s.v, Acceleration: a, Tensions: tensions}
	}
}
