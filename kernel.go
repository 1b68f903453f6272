package moorsim

import (
	"fmt"
	"math"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// KernelConfig configures the construction of the radiation memory kernel.
type KernelConfig struct {
	TimeStep              float64 // Sampling interval of the kernel, must match the solver step (s)
	MaxDuration           float64 // Longest admissible memory window (s)
	Cutoff                float64 // Relative envelope under which the kernel is truncated
	AddedMassFloor        float64 // Minimum diagonal infinite-frequency added mass
	DampingFloor          float64 // Minimum diagonal radiation damping
	HighFrequencyFraction float64 // Share of the upper frequency axis used to average A∞
	ConvergenceTolerance  float64 // Maximum relative spread of the A∞ estimates in that band
}

// DefaultKernelConfig returns the usual kernel configuration for the provided time step.
func DefaultKernelConfig(dt float64) KernelConfig {
	return KernelConfig{TimeStep: dt, MaxDuration: 60, Cutoff: 1e-3, HighFrequencyFraction: 0.25, ConvergenceTolerance: 0.05}
}

func (c KernelConfig) validate() error {
	if !(c.TimeStep > 0) || !(c.MaxDuration > c.TimeStep) {
		return invalidf("kernel time step %f and duration %f must be positive with duration > step", c.TimeStep, c.MaxDuration)
	}
	if !(c.Cutoff > 0 && c.Cutoff < 1) {
		return invalidf("kernel cutoff must be in (0, 1), got %f", c.Cutoff)
	}
	if !(c.HighFrequencyFraction > 0 && c.HighFrequencyFraction <= 1) {
		return invalidf("high frequency fraction must be in (0, 1], got %f", c.HighFrequencyFraction)
	}
	if !(c.ConvergenceTolerance > 0) {
		return invalidf("convergence tolerance must be positive")
	}
	if c.AddedMassFloor < 0 || c.DampingFloor < 0 {
		return invalidf("floors cannot be negative")
	}
	return nil
}

// MemoryKernel is the radiation impulse response K(t) sampled at t_k = k*Dt, k=0…M, along with the
// infinite-frequency added mass.
type MemoryKernel struct {
	Dt   float64
	K    []*mat.Dense
	AInf *mat.SymDense
}

// Len returns the number of kernel samples, including t=0.
func (k *MemoryKernel) Len() int {
	return len(k.K)
}

// Duration returns T_memory, i.e. the convolution window.
func (k *MemoryKernel) Duration() float64 {
	return float64(len(k.K)-1) * k.Dt
}

// Envelope returns max_ij |K_ij| for sample n.
func (k *MemoryKernel) Envelope(n int) (e float64) {
	for _, v := range k.K[n].RawMatrix().Data {
		e = math.Max(e, math.Abs(v))
	}
	return
}

// MemoryKernelBuilder converts frequency domain radiation coefficients into a MemoryKernel.
type MemoryKernelBuilder struct {
	conf   KernelConfig
	logger kitlog.Logger
}

// NewMemoryKernelBuilder returns a new builder. A nil logger discards all logs.
func NewMemoryKernelBuilder(conf KernelConfig, logger kitlog.Logger) *MemoryKernelBuilder {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &MemoryKernelBuilder{conf, kitlog.With(logger, "subsys", "kernel")}
}

// Build computes the memory kernel and A∞ of the provided store.
func (b *MemoryKernelBuilder) Build(store *CoefficientStore) (*MemoryKernel, error) {
	if err := b.conf.validate(); err != nil {
		return nil, err
	}
	tbl := store.Table
	if err := b.checkNaturalPeriods(store); err != nil {
		return nil, err
	}

	// Quadrature grid starts at ω=0 where the damping vanishes.
	nω := len(tbl.Frequencies)
	ω := make([]float64, nω+1)
	copy(ω[1:], tbl.Frequencies)
	weights := make([]float64, nω+1)
	maxSpacing := 0.
	for k := 0; k <= nω; k++ {
		if k > 0 {
			weights[k] += 0.5 * (ω[k] - ω[k-1])
			if k > 1 {
				maxSpacing = math.Max(maxSpacing, ω[k]-ω[k-1])
			}
		}
		if k < nω {
			weights[k] += 0.5 * (ω[k+1] - ω[k])
		}
	}
	damping := make([][36]float64, nω+1)
	for k := 1; k <= nω; k++ {
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				v := tbl.Damping[k-1].At(i, j)
				if i == j && v < b.conf.DampingFloor {
					v = b.conf.DampingFloor
				}
				damping[k][6*i+j] = v
			}
		}
	}

	// Beyond π/Δω the cosine transform of a sampled curve repeats itself.
	window := b.conf.MaxDuration
	if alias := math.Pi / maxSpacing; alias < window {
		window = alias
	}
	nT := int(window/b.conf.TimeStep) + 1
	samples := make([][36]float64, nT)
	envelope := make([]float64, nT)
	kMax := 0.
	cosines := make([]float64, nω+1)
	for n := 0; n < nT; n++ {
		t := float64(n) * b.conf.TimeStep
		for k := range ω {
			cosines[k] = weights[k] * math.Cos(ω[k]*t)
		}
		for p := 0; p < 36; p++ {
			s := 0.
			for k := 1; k <= nω; k++ {
				s += damping[k][p] * cosines[k]
			}
			samples[n][p] = 2 / math.Pi * s
			envelope[n] = math.Max(envelope[n], math.Abs(samples[n][p]))
		}
		kMax = math.Max(kMax, envelope[n])
	}

	last := -1
	for n := nT - 1; n >= 0; n-- {
		if kMax > 0 && envelope[n] >= b.conf.Cutoff*kMax {
			last = n
			break
		}
	}
	if last == nT-1 {
		return nil, fmt.Errorf("%w: kernel envelope is still %.3g of its maximum after %.1fs (frequency spacing %.4f rad/s)", ErrInsufficientFrequencyCoverage, envelope[last]/kMax, window, maxSpacing)
	}
	kernel := &MemoryKernel{Dt: b.conf.TimeStep, K: make([]*mat.Dense, last+2)}
	for n := range kernel.K {
		kernel.K[n] = mat.NewDense(6, 6, nil)
		copy(kernel.K[n].RawMatrix().Data, samples[n][:])
	}

	aInf, err := b.infiniteAddedMass(tbl, samples[:last+2])
	if err != nil {
		return nil, err
	}
	kernel.AInf = aInf
	var chol mat.Cholesky
	if ok := chol.Factorize(aInf); !ok {
		return nil, invalidf("infinite-frequency added mass is not positive definite")
	}
	b.logger.Log("level", "info", "samples", kernel.Len(), "T_memory(s)", kernel.Duration(), "K_max", kMax)
	return kernel, nil
}

// infiniteAddedMass recovers A∞ at every frequency of the upper band and averages it.
func (b *MemoryKernelBuilder) infiniteAddedMass(tbl *HydrodynamicTable, samples [][36]float64) (*mat.SymDense, error) {
	nω := len(tbl.Frequencies)
	first := int(math.Floor(float64(nω) * (1 - b.conf.HighFrequencyFraction)))
	if first > nω-2 {
		first = nω - 2
	}
	if first < 0 {
		first = 0
	}
	band := nω - first
	estimates := make([][]float64, 36)
	for p := range estimates {
		estimates[p] = make([]float64, band)
	}
	sines := make([]float64, len(samples))
	dt := b.conf.TimeStep
	for e, k := 0, first; k < nω; e, k = e+1, k+1 {
		ωk := tbl.Frequencies[k]
		for n := range samples {
			w := dt
			if n == 0 || n == len(samples)-1 {
				w = 0.5 * dt
			}
			sines[n] = w * math.Sin(ωk*float64(n)*dt)
		}
		for p := 0; p < 36; p++ {
			s := 0.
			for n := range samples {
				s += samples[n][p] * sines[n]
			}
			estimates[p][e] = tbl.AddedMass[k].At(p/6, p%6) + s/ωk
		}
	}

	aInf := mat.NewSymDense(6, nil)
	means := make([]float64, 36)
	for p := range estimates {
		mean, std := stat.MeanStdDev(estimates[p], nil)
		means[p] = mean
		if i, j := p/6, p%6; i == j && std > b.conf.ConvergenceTolerance*math.Abs(mean) && std > 1e-12 {
			return nil, fmt.Errorf("%w: %s A∞ estimates spread %.3g around %.6g over [%.3f, %.3f] rad/s", ErrNonConvergentExtrapolation, dofNames[i], std, mean, tbl.Frequencies[first], tbl.Frequencies[nω-1])
		}
	}
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			v := 0.5 * (means[6*i+j] + means[6*j+i])
			if i == j && v < b.conf.AddedMassFloor {
				b.logger.Log("level", "warning", "dof", dofNames[i], "A_inf", v, "floor", b.conf.AddedMassFloor)
				v = b.conf.AddedMassFloor
			}
			aInf.SetSym(i, j, v)
		}
	}
	return aInf, nil
}

// checkNaturalPeriods ensures that the undamped natural frequency of each hydrostatically restored
// mode lies within the tabulated frequencies.
func (b *MemoryKernelBuilder) checkNaturalPeriods(store *CoefficientStore) error {
	tbl := store.Table
	c := store.Restoring.Dense()
	ωMin, ωMax := tbl.Frequencies[0], tbl.Frequencies[len(tbl.Frequencies)-1]
	for _, i := range []int{Heave, Roll, Pitch} {
		cii := c.At(i, i)
		if cii <= 0 {
			continue
		}
		ωn := 0.5 * (ωMin + ωMax)
		for iter := 0; iter < 50; iter++ {
			next := math.Sqrt(cii / (store.Mass.At(i, i) + math.Max(tbl.AddedMassAt(ωn, i, i), 0)))
			if math.Abs(next-ωn) < 1e-9 {
				ωn = next
				break
			}
			ωn = next
		}
		if ωn < ωMin || ωn > ωMax {
			return fmt.Errorf("%w: %s natural period %.2fs outside of the tabulated [%.2f, %.2f]s", ErrInsufficientFrequencyCoverage, dofNames[i], twoPi/ωn, twoPi/ωMax, twoPi/ωMin)
		}
	}
	return nil
}
