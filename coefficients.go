package moorsim

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// DOF indices.
const (
	Surge = iota
	Sway
	Heave
	Roll
	Pitch
	Yaw
)

// dofNames are used for channel names and logs.
var dofNames = [6]string{"surge", "sway", "heave", "roll", "pitch", "yaw"}

// HydrodynamicTable holds the frequency domain coefficients computed by the strip-theory solver.
// Frequencies are in rad/s and headings in rad (direction the waves travel to, relative to the vessel x axis).
type HydrodynamicTable struct {
	Frequencies []float64
	Headings    []float64
	AddedMass   []*mat.Dense      // one 6x6 matrix per frequency
	Damping     []*mat.Dense      // one 6x6 matrix per frequency
	Excitation  [][][6]complex128 // [heading][frequency], force per unit wave amplitude
	Drift       [][][6]float64    // [heading][frequency], mean drift force per unit amplitude squared
}

// Validate checks the axes and the dimensions of the tables.
func (t *HydrodynamicTable) Validate() error {
	nω := len(t.Frequencies)
	if nω < 2 {
		return invalidf("at least two frequencies are required, got %d", nω)
	}
	if !strictlyIncreasing(t.Frequencies) {
		return invalidf("frequency axis is not strictly increasing")
	}
	if t.Frequencies[0] <= 0 {
		return invalidf("frequencies must be positive, first is %f", t.Frequencies[0])
	}
	if len(t.Headings) == 0 {
		return invalidf("heading axis is empty")
	}
	if !strictlyIncreasing(t.Headings) {
		return invalidf("heading axis is not strictly increasing")
	}
	if t.Headings[0] < 0 || t.Headings[len(t.Headings)-1] >= twoPi {
		return invalidf("headings must be in [0, 2π)")
	}
	if len(t.AddedMass) != nω || len(t.Damping) != nω {
		return invalidf("%d frequencies but %d added mass and %d damping matrices", nω, len(t.AddedMass), len(t.Damping))
	}
	for k := 0; k < nω; k++ {
		for _, m := range []*mat.Dense{t.AddedMass[k], t.Damping[k]} {
			if m == nil {
				return invalidf("missing matrix at frequency %f", t.Frequencies[k])
			}
			if r, c := m.Dims(); r != 6 || c != 6 {
				return invalidf("matrix at frequency %f is %dx%d", t.Frequencies[k], r, c)
			}
			if !allFinite(m.RawMatrix().Data...) {
				return invalidf("non finite coefficient at frequency %f", t.Frequencies[k])
			}
		}
	}
	if t.Excitation != nil {
		if len(t.Excitation) != len(t.Headings) {
			return invalidf("excitation has %d headings, axis has %d", len(t.Excitation), len(t.Headings))
		}
		for h, row := range t.Excitation {
			if len(row) != nω {
				return invalidf("excitation at heading %d has %d frequencies", h, len(row))
			}
			for _, x := range row {
				for _, v := range x {
					if cmplx.IsNaN(v) || cmplx.IsInf(v) {
						return invalidf("non finite excitation at heading %d", h)
					}
				}
			}
		}
	}
	if t.Drift != nil {
		if len(t.Drift) != len(t.Headings) {
			return invalidf("drift has %d headings, axis has %d", len(t.Drift), len(t.Headings))
		}
		for h, row := range t.Drift {
			if len(row) != nω {
				return invalidf("drift at heading %d has %d frequencies", h, len(row))
			}
			for _, x := range row {
				if !allFinite(x[:]...) {
					return invalidf("non finite drift at heading %d", h)
				}
			}
		}
	}
	return nil
}

// headingWeights returns the two bracketing heading indices and the weight of the second one.
func (t *HydrodynamicTable) headingWeights(heading float64) (int, int, float64) {
	return periodicWeights(t.Headings, heading)
}

// frequencyWeights returns the bracketing frequency index and weight, and false outside of the table.
func (t *HydrodynamicTable) frequencyWeights(omega float64) (int, float64, bool) {
	n := len(t.Frequencies)
	if omega < t.Frequencies[0] || omega > t.Frequencies[n-1] {
		return 0, 0, false
	}
	i, w := bracket(t.Frequencies, omega)
	return i, w, true
}

// ExcitationAt returns the wave excitation transfer function at the given frequency and heading.
// It is zero outside of the tabulated frequencies.
func (t *HydrodynamicTable) ExcitationAt(omega, heading float64) (x [6]complex128) {
	if t.Excitation == nil {
		return
	}
	k, wk, ok := t.frequencyWeights(omega)
	if !ok {
		return
	}
	h0, h1, wh := t.headingWeights(heading)
	for j := 0; j < 6; j++ {
		a := t.Excitation[h0][k][j]*complex(1-wk, 0) + t.Excitation[h0][k+1][j]*complex(wk, 0)
		b := t.Excitation[h1][k][j]*complex(1-wk, 0) + t.Excitation[h1][k+1][j]*complex(wk, 0)
		x[j] = a*complex(1-wh, 0) + b*complex(wh, 0)
	}
	return
}

// DriftAt returns the mean drift transfer function at the given frequency and heading.
func (t *HydrodynamicTable) DriftAt(omega, heading float64) (d [6]float64) {
	if t.Drift == nil {
		return
	}
	k, wk, ok := t.frequencyWeights(omega)
	if !ok {
		return
	}
	h0, h1, wh := t.headingWeights(heading)
	for j := 0; j < 6; j++ {
		a := t.Drift[h0][k][j]*(1-wk) + t.Drift[h0][k+1][j]*wk
		b := t.Drift[h1][k][j]*(1-wk) + t.Drift[h1][k+1][j]*wk
		d[j] = a*(1-wh) + b*wh
	}
	return
}

// AddedMassAt returns the interpolated A_ij(ω).
func (t *HydrodynamicTable) AddedMassAt(omega float64, i, j int) float64 {
	k, w := bracket(t.Frequencies, omega)
	return t.AddedMass[k].At(i, j)*(1-w) + t.AddedMass[k+1].At(i, j)*w
}

// RestoringMatrix holds the hydrostatic restoring coefficients. Only these eleven couplings exist:
// the vessel has no hydrostatic restoring in surge, sway or yaw.
type RestoringMatrix struct {
	C33, C34, C35      float64
	C43, C44, C45, C46 float64
	C53, C54, C55, C56 float64
}

// Dense returns the 6x6 restoring matrix; every other entry is zero.
func (r RestoringMatrix) Dense() *mat.Dense {
	c := mat.NewDense(6, 6, nil)
	c.Set(2, 2, r.C33)
	c.Set(2, 3, r.C34)
	c.Set(2, 4, r.C35)
	c.Set(3, 2, r.C43)
	c.Set(3, 3, r.C44)
	c.Set(3, 4, r.C45)
	c.Set(3, 5, r.C46)
	c.Set(4, 2, r.C53)
	c.Set(4, 3, r.C54)
	c.Set(4, 4, r.C55)
	c.Set(4, 5, r.C56)
	return c
}

func (r RestoringMatrix) valid() bool {
	return allFinite(r.C33, r.C34, r.C35, r.C43, r.C44, r.C45, r.C46, r.C53, r.C54, r.C55, r.C56)
}

// CoefficientStore gathers the vessel's hydrodynamic, hydrostatic and inertia data.
type CoefficientStore struct {
	Table     *HydrodynamicTable
	Mass      *mat.SymDense
	Restoring RestoringMatrix
}

// NewCoefficientStore validates and returns a new CoefficientStore.
func NewCoefficientStore(table *HydrodynamicTable, mass mat.Symmetric, restoring RestoringMatrix) (*CoefficientStore, error) {
	if table == nil {
		return nil, invalidf("no hydrodynamic table")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if mass == nil || mass.SymmetricDim() != 6 {
		return nil, invalidf("mass matrix must be 6x6")
	}
	m := mat.NewSymDense(6, nil)
	m.CopySym(mass)
	for i := 0; i < 6; i++ {
		if v := m.At(i, i); !(v > 0) || math.IsInf(v, 0) {
			return nil, invalidf("mass matrix diagonal %d (%s) must be positive, got %f", i, dofNames[i], v)
		}
	}
	if !restoring.valid() {
		return nil, invalidf("non finite restoring coefficient")
	}
	return &CoefficientStore{Table: table, Mass: m, Restoring: restoring}, nil
}
