package moorsim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// frequencyAxis returns lo, lo+step, … up to hi included.
func frequencyAxis(lo, hi, step float64) []float64 {
	n := int(math.Round((hi-lo)/step)) + 1
	ω := make([]float64, n)
	for i := range ω {
		ω[i] = lo + float64(i)*step
	}
	return ω
}

// coefficientTable builds a single-heading table from coefficient functions.
func coefficientTable(ω []float64, addedMass, damping func(ω float64, i, j int) float64) *HydrodynamicTable {
	tbl := &HydrodynamicTable{Frequencies: ω, Headings: []float64{0}}
	for _, w := range ω {
		a := mat.NewDense(6, 6, nil)
		b := mat.NewDense(6, 6, nil)
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				a.Set(i, j, addedMass(w, i, j))
				b.Set(i, j, damping(w, i, j))
			}
		}
		tbl.AddedMass = append(tbl.AddedMass, a)
		tbl.Damping = append(tbl.Damping, b)
	}
	return tbl
}

// constantTable has constant diagonal added mass and no damping.
func constantTable(ω []float64, added float64) *HydrodynamicTable {
	return coefficientTable(ω, func(_ float64, i, j int) float64 {
		if i == j {
			return added
		}
		return 0
	}, func(float64, int, int) float64 { return 0 })
}

// dampedKernel is K(t) = c exp(-αt)(cos βt - α/β sin βt), whose damping vanishes at ω=0.
type dampedKernel struct{ c, α, β, aInf float64 }

func (k dampedKernel) K(t float64) float64 {
	s, c := math.Sincos(k.β * t)
	return k.c * math.Exp(-k.α*t) * (c - k.α/k.β*s)
}

func (k dampedKernel) B(ω float64) float64 {
	α, β := k.α, k.β
	fc := 0.5 * (α/(α*α+(ω-β)*(ω-β)) + α/(α*α+(ω+β)*(ω+β)))
	fs := 0.5 * ((β+ω)/(α*α+(β+ω)*(β+ω)) + (β-ω)/(α*α+(β-ω)*(β-ω)))
	return k.c * (fc - α/β*fs)
}

func (k dampedKernel) A(ω float64) float64 {
	α, β := k.α, k.β
	gc := 0.5 * ((ω+β)/(α*α+(ω+β)*(ω+β)) + (ω-β)/(α*α+(ω-β)*(ω-β)))
	gs := 0.5 * (α/(α*α+(ω-β)*(ω-β)) - α/(α*α+(ω+β)*(ω+β)))
	return k.aInf - k.c/ω*(gc-α/β*gs)
}

func (k dampedKernel) table(ω []float64) *HydrodynamicTable {
	return coefficientTable(ω, func(w float64, i, j int) float64 {
		if i == j {
			return k.A(w)
		}
		return 0
	}, func(w float64, i, j int) float64 {
		if i == j {
			return k.B(w)
		}
		return 0
	})
}

// diagonalMass returns a diagonal mass/inertia matrix.
func diagonalMass(m [6]float64) *mat.SymDense {
	return diagonalSym(m)
}

func mustStore(t *testing.T, tbl *HydrodynamicTable, mass [6]float64, r RestoringMatrix) *CoefficientStore {
	store, err := NewCoefficientStore(tbl, diagonalMass(mass), r)
	if err != nil {
		t.Fatalf("could not create store: %s", err)
	}
	return store
}

// withTransfer fills the single heading excitation and drift tables of tbl.
func withTransfer(tbl *HydrodynamicTable, χ func(ω float64) [6]complex128, d func(ω float64) [6]float64) *HydrodynamicTable {
	tbl.Excitation = [][][6]complex128{make([][6]complex128, len(tbl.Frequencies))}
	tbl.Drift = [][][6]float64{make([][6]float64, len(tbl.Frequencies))}
	for k, w := range tbl.Frequencies {
		tbl.Excitation[0][k] = χ(w)
		tbl.Drift[0][k] = d(w)
	}
	return tbl
}
