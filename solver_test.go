package moorsim

import (
	"bufio"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

var vesselMass = [6]float64{1e7, 1e7, 1e7, 1e9, 1e9, 1e9}

// surgeLines returns a pair of opposed pretensioned lines along x, whose total stiffness is 2k.
func surgeLines(t *testing.T, k float64) *MooringSystem {
	bow := &LinearLine{Attachment: Attachment{Fixed: [3]float64{100, 0, 0}}, Label: "bow", Length: 90, Stiffness: k}
	stern := &LinearLine{Attachment: Attachment{Fixed: [3]float64{-100, 0, 0}}, Label: "stern", Length: 90, Stiffness: k}
	sys, err := NewMooringSystem(bow, stern)
	if err != nil {
		t.Fatalf("mooring: %s", err)
	}
	return sys
}

// constantForce returns a series of n samples of f.
func constantForce(src Source, dt float64, n int, f [6]float64) *ForceTimeSeries {
	s := NewForceTimeSeries(src, dt, n)
	for i := range s.Samples {
		s.Samples[i] = f
	}
	return s
}

func mustSolver(t *testing.T, conf SolverConfig, in SolverInput) *TimeDomainSolver {
	s, err := NewTimeDomainSolver(conf, in, nil)
	if err != nil {
		t.Fatalf("could not create solver: %s", err)
	}
	return s
}

// checkConsistent ensures every output has one entry per committed sample.
func checkConsistent(t *testing.T, r *SimulationResult) {
	n := r.Len()
	if len(r.Position) != n || len(r.Velocity) != n || len(r.Acceleration) != n {
		t.Fatalf("inconsistent result: %d times, %d positions, %d velocities, %d accelerations", n, len(r.Position), len(r.Velocity), len(r.Acceleration))
	}
	for e, loads := range r.Loads {
		if len(loads) != n {
			t.Fatalf("element %s has %d loads for %d samples", r.Elements[e], len(loads), n)
		}
	}
	for m, acc := range r.PointAcceleration {
		if len(acc) != n {
			t.Fatalf("monitor %s has %d samples for %d", r.Monitors[m], len(acc), n)
		}
	}
}

func TestSolverEquilibrium(t *testing.T) {
	// Scenario A: no excitation, lines at their unstretched length.
	k := dampedKernel{c: 1000, α: 0.5, β: 1, aInf: 5000}
	store := mustStore(t, k.table(frequencyAxis(0.04, 8, 0.04)), unitMass, RestoringMatrix{C33: 2e4, C44: 1e5, C55: 1e5})
	kconf := DefaultKernelConfig(0.05)
	kconf.Cutoff = 1e-2
	kernel, err := NewMemoryKernelBuilder(kconf, nil).Build(store)
	if err != nil {
		t.Fatalf("kernel: %s", err)
	}
	line := &LinearLine{Attachment: Attachment{Vessel: [3]float64{5, 2, 1}, Fixed: [3]float64{5, 32, 1}}, Label: "breast", Length: 30, Stiffness: 1e4}
	mooring, err := NewMooringSystem(line)
	if err != nil {
		t.Fatal(err)
	}
	conf := DefaultSolverConfig(0.05, 60)
	conf.Monitors = []MonitorPoint{{"bridge", [3]float64{-20, 0, 15}}}
	res, err := mustSolver(t, conf, SolverInput{Store: store, Kernel: kernel, Mooring: mooring}).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %s", err)
	}
	if res.Status != Completed {
		t.Fatalf("status got %s exp %s", res.Status, Completed)
	}
	if res.Len() != 1201 {
		t.Fatalf("samples got %d exp 1201", res.Len())
	}
	checkConsistent(t, res)
	for i := range res.Time {
		if res.Position[i] != (Pose{}) || res.Velocity[i] != [6]float64{} {
			t.Fatalf("t=%f: vessel moved to %v", res.Time[i], res.Position[i])
		}
		if l := res.Loads[0][i]; l.Tension != 0 || l.Status != Slack {
			t.Fatalf("t=%f: line load %v", res.Time[i], l)
		}
		if res.PointAcceleration[0][i] != [3]float64{} {
			t.Fatalf("t=%f: bridge acceleration %v", res.Time[i], res.PointAcceleration[0][i])
		}
	}
	if !scalar.EqualWithinAbs(res.Time[res.Len()-1], 60, 1e-9) {
		t.Fatalf("last time got %f exp 60", res.Time[res.Len()-1])
	}
}

func TestSolverRegularWaveResponse(t *testing.T) {
	// Scenario B: linear mooring, regular wave away from resonance.
	const (
		dt     = 0.1
		period = 10.
		k      = 2e5
		b      = 3e5
		added  = 1e6
	)
	tbl := withTransfer(constantTable(frequencyAxis(0.05, 4, 0.05), added), func(float64) [6]complex128 {
		return [6]complex128{1e5}
	}, func(float64) [6]float64 { return [6]float64{} })
	store := mustStore(t, tbl, vesselMass, RestoringMatrix{})
	kernel, err := NewMemoryKernelBuilder(DefaultKernelConfig(dt), nil).Build(store)
	if err != nil {
		t.Fatalf("kernel: %s", err)
	}
	waves, err := NewWaveProcessGenerator(tbl, WaveConfig{Regular: &RegularWave{Height: 2, Period: period}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := waves.Generate(1, dt, 8001)
	if err != nil {
		t.Fatal(err)
	}
	conf := DefaultSolverConfig(dt, 800)
	conf.LinearDamping[Surge] = b
	in := SolverInput{Store: store, Kernel: kernel, Forces: []*ForceTimeSeries{w.Excitation}, Mooring: surgeLines(t, k/2)}
	res, err := mustSolver(t, conf, in).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %s", err)
	}

	ω := twoPi / period
	m := vesselMass[Surge] + added
	exp := 1e5 / math.Hypot(k-m*ω*ω, b*ω)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, tm := range res.Time {
		if tm < 600 {
			continue
		}
		lo = math.Min(lo, res.Position[i][Surge])
		hi = math.Max(hi, res.Position[i][Surge])
	}
	if got := (hi - lo) / 2; !scalar.EqualWithinRel(got, exp, 0.05) {
		t.Fatalf("surge amplitude got %f exp %f", got, exp)
	}
	for i := range res.Time {
		for _, dof := range []int{Sway, Heave, Roll, Pitch, Yaw} {
			if res.Position[i][dof] != 0 {
				t.Fatalf("t=%f: %s moved to %g", res.Time[i], dofNames[dof], res.Position[i][dof])
			}
		}
	}
	if tension, ok := res.Channel("load/bow"); !ok || !scalar.EqualWithinRel(tension.Values[0], 1e6, 1e-9) {
		t.Fatalf("bow pretension got %v", tension.Values[:1])
	}
}

// diag6 returns a 6x6 diagonal matrix.
func diag6(v float64) *mat.Dense {
	return mat.NewDense(6, 6, []float64{
		v, 0, 0, 0, 0, 0,
		0, v, 0, 0, 0, 0,
		0, 0, v, 0, 0, 0,
		0, 0, 0, v, 0, 0,
		0, 0, 0, 0, v, 0,
		0, 0, 0, 0, 0, v,
	})
}

func TestSolverMemoryConvolution(t *testing.T) {
	kernel := &MemoryKernel{Dt: 0.5, K: []*mat.Dense{diag6(2), diag6(4), diag6(6)}, AInf: mat.NewSymDense(6, nil)}
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	s := mustSolver(t, DefaultSolverConfig(0.5, 10), SolverInput{Store: store, Kernel: kernel})
	v := [6]float64{1, 0, 0, 0, 0, -1}

	// Cold start: no history.
	s.updateHistoryForce()
	if got := s.memory(v); got[Surge] != -0.5 || got[Yaw] != 0.5 {
		t.Fatalf("cold start memory got %v", got)
	}
	s.history.Push([6]float64{100})
	s.updateHistoryForce()
	if got := s.memory(v); !scalar.EqualWithinAbs(got[Surge], -0.5*(1+4*100), 1e-12) {
		t.Fatalf("one step memory got %f exp %f", got[Surge], -0.5*(1+4*100))
	}
	s.history.Push([6]float64{10})
	s.updateHistoryForce()
	exp := -0.5 * (0.5*2*1 + 4*10 + 0.5*6*100)
	if got := s.memory(v); !scalar.EqualWithinAbs(got[Surge], exp, 1e-12) || got[Sway] != 0 {
		t.Fatalf("full window memory got %v exp %f", got, exp)
	}
	// The oldest velocity leaves the window.
	s.history.Push([6]float64{1000})
	s.updateHistoryForce()
	exp = -0.5 * (0.5*2*1 + 4*1000 + 0.5*6*10)
	if got := s.memory(v); !scalar.EqualWithinAbs(got[Surge], exp, 1e-12) {
		t.Fatalf("sliding window memory got %f exp %f", got[Surge], exp)
	}
}

func TestSolverStageTime(t *testing.T) {
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	// A surge ramp of 1e4 N/s gives an acceleration equal to the sampling time.
	ramp := NewForceTimeSeries(SourceWind, 0.1, 21)
	for i := range ramp.Samples {
		ramp.Samples[i][Surge] = 1e4 * 0.1 * float64(i)
	}
	s := mustSolver(t, DefaultSolverConfig(0.1, 2), SolverInput{Store: store, Forces: []*ForceTimeSeries{ramp}})
	state := make([]float64, 12)
	for _, stage := range []float64{0.1, 0.05, 0, 0.05, 0.05 + 1e-12} {
		if a := s.Func(stage, state)[6+Surge]; !scalar.EqualWithinAbs(a, math.Round(stage*20)/20, 1e-12) {
			t.Fatalf("stage at %gs got acceleration %f", stage, a)
		}
	}
}

func TestSolverWithoutContext(t *testing.T) {
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	var ctx context.Context
	res, err := mustSolver(t, DefaultSolverConfig(0.1, 1), SolverInput{Store: store}).Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %s", err)
	}
	if res.Status != Completed || res.Len() != 11 {
		t.Fatalf("status %s with %d samples", res.Status, res.Len())
	}
}

func TestSolverMonitorAcceleration(t *testing.T) {
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	conf := DefaultSolverConfig(0.1, 1)
	conf.Monitors = []MonitorPoint{{"bow", [3]float64{10, 0, 0}}, {"mast", [3]float64{0, 0, 20}}}
	yaw := constantForce(SourceWind, 0.1, 11, [6]float64{Yaw: 1e5})
	res, err := mustSolver(t, conf, SolverInput{Store: store, Forces: []*ForceTimeSeries{yaw}}).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %s", err)
	}
	if !scalar.EqualWithinAbs(res.Acceleration[0][Yaw], 1, 1e-12) {
		t.Fatalf("yaw acceleration got %f exp 1", res.Acceleration[0][Yaw])
	}
	if got := res.PointAcceleration[0][0]; !vectorsEqual(got[:], []float64{0, 10, 0}) {
		t.Fatalf("bow acceleration got %v exp [0 10 0]", got)
	}
	if got := res.PointAcceleration[1][0]; !vectorsEqual(got[:], []float64{0, 0, 0}) {
		t.Fatalf("mast acceleration got %v exp [0 0 0]", got)
	}
	if x, ok := res.Channel("monitor/bow/y"); !ok || !scalar.EqualWithinAbs(x.Values[0], 10, 1e-9) {
		t.Fatalf("monitor channel got %v", x.Values)
	}
	if exp := 18 + 6; len(res.Channels()) != exp {
		t.Fatalf("channels got %d exp %d", len(res.Channels()), exp)
	}
}

func TestSolverDivergence(t *testing.T) {
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	conf := DefaultSolverConfig(0.1, 10)
	conf.VelocityBound = 15
	push := constantForce(SourceCurrent, 0.1, 101, [6]float64{Surge: 1e6})
	res, err := mustSolver(t, conf, SolverInput{Store: store, Forces: []*ForceTimeSeries{push}}).Run(context.Background())
	if !errors.Is(err, ErrNumericalDivergence) {
		t.Fatalf("expected a divergence, got %v", err)
	}
	var simErr *SimulationError
	if !errors.As(err, &simErr) || simErr.Step != 2 || !scalar.EqualWithinAbs(simErr.Time, 0.2, 1e-12) {
		t.Fatalf("unexpected error %v", err)
	}
	if res.Status != Failed {
		t.Fatalf("status got %s exp %s", res.Status, Failed)
	}
	if res.Len() != 2 || !scalar.EqualWithinAbs(res.Velocity[1][Surge], 10, 1e-9) {
		t.Fatalf("last valid state not kept: %d samples, v=%v", res.Len(), res.Velocity)
	}
	checkConsistent(t, res)
}

func TestSolverMissingForceSample(t *testing.T) {
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	short := constantForce(SourceWave, 0.1, 11, [6]float64{Heave: 1})
	res, err := mustSolver(t, DefaultSolverConfig(0.1, 2), SolverInput{Store: store, Forces: []*ForceTimeSeries{short}}).Run(context.Background())
	if !errors.Is(err, ErrMissingForceSample) {
		t.Fatalf("expected a missing sample, got %v", err)
	}
	var simErr *SimulationError
	if !errors.As(err, &simErr) || simErr.Step != 11 {
		t.Fatalf("unexpected error %v", err)
	}
	if res.Status != Failed || res.Len() != 11 {
		t.Fatalf("got %s with %d samples", res.Status, res.Len())
	}
	checkConsistent(t, res)

	// An empty series fails before the first step.
	empty := NewForceTimeSeries(SourceWave, 0.1, 0)
	res, err = mustSolver(t, DefaultSolverConfig(0.1, 2), SolverInput{Store: store, Forces: []*ForceTimeSeries{empty}}).Run(context.Background())
	if !errors.Is(err, ErrMissingForceSample) || res.Len() != 0 || res.Status != Failed {
		t.Fatalf("empty series: got %v with %d samples", err, res.Len())
	}
}

// countdownContext is canceled after a number of polls.
type countdownContext struct {
	context.Context
	polls int
}

func (c *countdownContext) Done() <-chan struct{} {
	c.polls--
	if c.polls > 0 {
		return nil
	}
	done := make(chan struct{})
	close(done)
	return done
}

func (c *countdownContext) Err() error {
	if c.polls > 0 {
		return nil
	}
	return context.Canceled
}

func TestSolverCancellation(t *testing.T) {
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	surge := constantForce(SourceWind, 0.1, 1001, [6]float64{Surge: 1e3})
	in := func() SolverInput {
		return SolverInput{Store: store, Forces: []*ForceTimeSeries{surge}, Mooring: surgeLines(t, 1e4)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := mustSolver(t, DefaultSolverConfig(0.1, 100), in()).Run(ctx)
	if !errors.Is(err, context.Canceled) || res.Status != Canceled || res.Len() != 1 {
		t.Fatalf("canceled context: got %v, %s, %d samples", err, res.Status, res.Len())
	}

	res, err = mustSolver(t, DefaultSolverConfig(0.1, 100), in()).Run(&countdownContext{context.Background(), 51})
	if !errors.Is(err, context.Canceled) || res.Status != Canceled {
		t.Fatalf("countdown: got %v, %s", err, res.Status)
	}
	if res.Len() != 51 || !scalar.EqualWithinAbs(res.Time[50], 5, 1e-9) {
		t.Fatalf("countdown: %d samples", res.Len())
	}
	checkConsistent(t, res)

	solver := mustSolver(t, DefaultSolverConfig(0.1, 100), in())
	solver.StopSimulation()
	solver.StopSimulation()
	res, err = solver.Run(context.Background())
	if err != nil || res.Status != Canceled || res.Len() != 1 {
		t.Fatalf("stop request: got %v, %s, %d samples", err, res.Status, res.Len())
	}
	if _, err := solver.Run(context.Background()); !errors.Is(err, ErrInputValidation) {
		t.Fatalf("second run: got %v", err)
	}
}

func TestSolverIndependentMooring(t *testing.T) {
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), vesselMass, RestoringMatrix{})
	breaking := &LinearLine{Attachment: Attachment{Fixed: [3]float64{-50, 0, 0}}, Label: "spring", Length: 49, Stiffness: 1e6, BreakingLoad: 1.5e6}
	template, err := NewMooringSystem(breaking)
	if err != nil {
		t.Fatal(err)
	}
	push := constantForce(SourceWind, 0.1, 601, [6]float64{Surge: 2e6})
	conf := DefaultSolverConfig(0.1, 60)
	first, err := mustSolver(t, conf, SolverInput{Store: store, Forces: []*ForceTimeSeries{push}, Mooring: template.Clone()}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if last := first.Loads[0][first.Len()-1]; last.Status != Broken {
		t.Fatalf("spring should have broken, got %s", last.Status)
	}
	if template.States()[0].Broken {
		t.Fatal("template state was modified by the run")
	}
	second, err := mustSolver(t, conf, SolverInput{Store: store, Forces: []*ForceTimeSeries{push}, Mooring: template.Clone()}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.Loads[0][0] != second.Loads[0][0] || second.Loads[0][0].Status != Taut {
		t.Fatalf("realizations differ at t=0: %v vs %v", first.Loads[0][0], second.Loads[0][0])
	}
}

func TestSolverValidation(t *testing.T) {
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	kernel := &MemoryKernel{Dt: 0.2, K: []*mat.Dense{diag6(1), diag6(0)}, AInf: mat.NewSymDense(6, nil)}
	negative := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		negative.SetSym(i, i, -2e5)
	}
	damping := DefaultSolverConfig(0.1, 1)
	damping.QuadraticDamping[Roll] = -1
	monitors := DefaultSolverConfig(0.1, 1)
	monitors.Monitors = []MonitorPoint{{"a", [3]float64{}}, {"a", [3]float64{1, 0, 0}}}
	for name, c := range map[string]struct {
		conf SolverConfig
		in   SolverInput
	}{
		"no step":           {DefaultSolverConfig(0, 1), SolverInput{Store: store}},
		"no duration":       {DefaultSolverConfig(0.1, 0), SolverInput{Store: store}},
		"no store":          {DefaultSolverConfig(0.1, 1), SolverInput{}},
		"kernel step":       {DefaultSolverConfig(0.1, 1), SolverInput{Store: store, Kernel: kernel}},
		"series step":       {DefaultSolverConfig(0.1, 1), SolverInput{Store: store, Forces: []*ForceTimeSeries{NewForceTimeSeries(SourceWind, 0.2, 10)}}},
		"nil series":        {DefaultSolverConfig(0.1, 1), SolverInput{Store: store, Forces: []*ForceTimeSeries{nil}}},
		"negative damping":  {damping, SolverInput{Store: store}},
		"duplicate monitor": {monitors, SolverInput{Store: store}},
		"indefinite mass":   {DefaultSolverConfig(0.1, 1), SolverInput{Store: store, Kernel: &MemoryKernel{Dt: 0.1, K: []*mat.Dense{diag6(0)}, AInf: negative}}},
	} {
		if _, err := NewTimeDomainSolver(c.conf, c.in, nil); !errors.Is(err, ErrInputValidation) {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}

func TestSolverStreamsCSV(t *testing.T) {
	dir := t.TempDir()
	store := mustStore(t, constantTable(frequencyAxis(0.1, 1, 0.1), 0), unitMass, RestoringMatrix{})
	conf := DefaultSolverConfig(0.1, 10)
	conf.RunID = "csv-test"
	conf.Export = ExportConfig{Filename: "stream", OutputDir: dir, AsCSV: true, Every: 10, Epoch: time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)}
	push := constantForce(SourceWind, 0.1, 101, [6]float64{Surge: 1e3})
	if _, err := mustSolver(t, conf, SolverInput{Store: store, Forces: []*ForceTimeSeries{push}, Mooring: surgeLines(t, 1e4)}).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %s", err)
	}
	f, err := os.Open(filepath.Join(dir, "motions-stream.csv"))
	if err != nil {
		t.Fatalf("no export: %s", err)
	}
	defer f.Close()
	var rows [][]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); !strings.HasPrefix(line, "#") {
			rows = append(rows, strings.Split(line, ","))
		}
	}
	if len(rows) != 12 {
		t.Fatalf("rows got %d exp 12 (header and 11 samples)", len(rows))
	}
	if hdr := rows[0]; len(hdr) != 22 || hdr[0] != "time" || hdr[1] != "jd" || hdr[2] != "x_surge" || hdr[20] != "load_bow" {
		t.Fatalf("unexpected header %v", hdr)
	}
	if rows[1][0] != "0.0000" || rows[1][1] != "2451545.00000000" {
		t.Fatalf("first sample time %s jd %s", rows[1][0], rows[1][1])
	}
	if rows[11][0] != "10.0000" {
		t.Fatalf("last sample time %s", rows[11][0])
	}
}

func TestVelocityHistory(t *testing.T) {
	h := newVelocityHistory(3)
	if _, ok := h.At(1); ok {
		t.Fatal("empty history returned a velocity")
	}
	for i := 1; i <= 5; i++ {
		h.Push([6]float64{float64(i)})
	}
	if h.Len() != 3 {
		t.Fatalf("length got %d exp 3", h.Len())
	}
	for m, exp := range map[int]float64{1: 5, 2: 4, 3: 3} {
		if v, ok := h.At(m); !ok || v[0] != exp {
			t.Fatalf("At(%d) got %v exp %f", m, v, exp)
		}
	}
	if _, ok := h.At(4); ok {
		t.Fatal("velocity beyond the capacity")
	}
}
