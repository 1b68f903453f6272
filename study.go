package moorsim

import (
	"context"
	"fmt"
	"math"
	"runtime"

	kitlog "github.com/go-kit/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CurrentConfig describes a steady uniform current.
type CurrentConfig struct {
	Speed        float64 // m/s
	Direction    float64 // Direction the current flows to, relative to the vessel x axis (rad)
	Coefficients *CoefficientTable
}

// Study is a set of independent realizations of one mooring case, one per seed.
type Study struct {
	Name             string
	Store            *CoefficientStore
	Kernel           KernelConfig // The time step is always the solver's
	Waves            *WaveConfig
	Wind             *WindConfig
	WindCoefficients *CoefficientTable
	Current          *CurrentConfig
	Passing          []PassingShipConfig
	Mooring          *MooringSystem // Template, each realization runs on a clone
	Solver           SolverConfig
	PostProcessor    ResultsPostProcessor
	Seeds            []int64
	Parallelism      int // Concurrent realizations, from the environment configuration when zero
}

// Realization is the outcome of one seed. Err holds the failure or cancellation of the run, whose
// partial result is still available.
type Realization struct {
	Seed   int64
	RunID  string
	Result *SimulationResult
	Stats  []Statistics
	Waves  *WaveRealization
	Wind   *WindRealization
	Err    error
}

// studyInputs are built once and shared read-only by the realizations.
type studyInputs struct {
	kernel        *MemoryKernel
	waves         *WaveProcessGenerator
	wind          *WindProcessGenerator
	deterministic []*ForceTimeSeries
	samples       int
}

// Run builds the kernel, then generates the forces and runs the realizations in parallel. The
// realizations are returned in seed order. The error only reports invalid inputs: a diverging or
// canceled run is reported in its Realization.
func (s *Study) Run(ctx context.Context, logger kitlog.Logger) ([]Realization, error) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	logger = kitlog.With(logger, "study", s.Name)
	if len(s.Seeds) == 0 {
		return nil, invalidf("study %q has no seeds", s.Name)
	}
	if s.Store == nil {
		return nil, invalidf("study %q has no coefficient store", s.Name)
	}
	in, err := s.prepare(logger)
	if err != nil {
		return nil, err
	}
	parallelism := s.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
		if env, err := envConfig(); err == nil {
			parallelism = env.Parallelism
		}
	}
	logger.Log("level", "info", "subsys", "study", "realizations", len(s.Seeds), "parallelism", parallelism, "samples", in.samples)

	realizations := make([]Realization, len(s.Seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, seed := range s.Seeds {
		i, seed := i, seed
		g.Go(func() error {
			r, err := s.realize(gctx, in, seed, logger)
			realizations[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return realizations, err
	}
	return realizations, nil
}

// prepare builds the shared kernel, generators and deterministic forces.
func (s *Study) prepare(logger kitlog.Logger) (*studyInputs, error) {
	dt := s.Solver.TimeStep
	if !(dt > 0) || !(s.Solver.Duration > 0) {
		return nil, invalidf("time step %f and duration %f must be positive", dt, s.Solver.Duration)
	}
	in := &studyInputs{samples: int(math.Ceil(s.Solver.Duration/dt-1e-9)) + 1}
	kconf := s.Kernel
	kconf.TimeStep = dt
	kernel, err := NewMemoryKernelBuilder(kconf, logger).Build(s.Store)
	if err != nil {
		return nil, err
	}
	in.kernel = kernel
	if s.Waves != nil {
		if in.waves, err = NewWaveProcessGenerator(s.Store.Table, *s.Waves, logger); err != nil {
			return nil, err
		}
	}
	if s.Wind != nil {
		if in.wind, err = NewWindProcessGenerator(*s.Wind, s.WindCoefficients, logger); err != nil {
			return nil, err
		}
	}
	if c := s.Current; c != nil {
		series, err := CurrentForce(c.Coefficients, c.Speed, c.Direction, dt, in.samples)
		if err != nil {
			return nil, err
		}
		in.deterministic = append(in.deterministic, series)
	}
	for i, conf := range s.Passing {
		model, err := NewPassingShipForceModel(conf, logger)
		if err != nil {
			return nil, fmt.Errorf("passing ship %d: %w", i, err)
		}
		series, err := model.Generate(dt, in.samples)
		if err != nil {
			return nil, err
		}
		in.deterministic = append(in.deterministic, series)
	}
	return in, nil
}

// realize generates the stochastic forces of a seed concurrently and runs its solver.
func (s *Study) realize(ctx context.Context, in *studyInputs, seed int64, logger kitlog.Logger) (Realization, error) {
	r := Realization{Seed: seed, RunID: uuid.NewString()}
	dt := s.Solver.TimeStep
	var g errgroup.Group
	if in.waves != nil {
		g.Go(func() (err error) {
			r.Waves, err = in.waves.Generate(seed, dt, in.samples)
			return
		})
	}
	if in.wind != nil {
		g.Go(func() (err error) {
			r.Wind, err = in.wind.Generate(seed, dt, in.samples)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return r, fmt.Errorf("seed %d: %w", seed, err)
	}
	forces := append([]*ForceTimeSeries(nil), in.deterministic...)
	if r.Waves != nil {
		forces = append(forces, r.Waves.Excitation)
		if r.Waves.Drift != nil {
			forces = append(forces, r.Waves.Drift)
		}
	}
	if r.Wind != nil && r.Wind.Force != nil {
		forces = append(forces, r.Wind.Force)
	}

	conf := s.Solver
	conf.RunID = r.RunID
	if conf.Export.Filename != "" {
		conf.Export.Filename = fmt.Sprintf("%s-%d", conf.Export.Filename, seed)
	}
	solver, err := NewTimeDomainSolver(conf, SolverInput{Store: s.Store, Kernel: in.kernel, Forces: forces, Mooring: s.Mooring.Clone()}, kitlog.With(logger, "seed", seed))
	if err != nil {
		return r, err
	}
	r.Result, r.Err = solver.Run(ctx)
	if r.Result.Len() > 0 {
		stats, err := s.PostProcessor.Process(r.Result)
		if err != nil && r.Err == nil {
			r.Err = err
		}
		r.Stats = stats
	}
	return r, nil
}
