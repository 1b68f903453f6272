package moorsim

import (
	"errors"
	"fmt"
)

// Error categories. Use errors.Is to test for them; details are wrapped with %w.
var (
	// ErrInputValidation flags malformed or inconsistent inputs (tables, time steps, layout).
	ErrInputValidation = errors.New("moorsim: input validation error")
	// ErrNumericalDivergence flags a state exceeding the configured sanity bounds.
	ErrNumericalDivergence = errors.New("moorsim: numerical divergence")
	// ErrInsufficientFrequencyCoverage flags a frequency axis which cannot resolve the kernel or the natural periods.
	ErrInsufficientFrequencyCoverage = errors.New("moorsim: insufficient frequency coverage")
	// ErrNonConvergentExtrapolation flags an infinite-frequency added mass estimate which does not stabilize.
	ErrNonConvergentExtrapolation = errors.New("moorsim: non-convergent added mass extrapolation")
	// ErrExternalWaveFileMismatch flags an external wave record sampled at another interval than the solver.
	ErrExternalWaveFileMismatch = errors.New("moorsim: external wave record mismatch")
	// ErrMissingForceSample flags a force series exhausted before the end of the simulation.
	ErrMissingForceSample = errors.New("moorsim: missing force sample")
	// ErrUnsupportedSpectrumModel flags an unknown spectral model identifier.
	ErrUnsupportedSpectrumModel = errors.New("moorsim: unsupported spectrum model")
	// ErrInvalidSpectralParameters flags non-positive Hs or Tp (or other spectral parameters).
	ErrInvalidSpectralParameters = errors.New("moorsim: invalid spectral parameters")
)

// SimulationError wraps an error raised while stepping with the step and time at which it occurred.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.3fs): %s", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

// invalidf returns an input validation error with the provided detail.
func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInputValidation, fmt.Sprintf(format, args...))
}
