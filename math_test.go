package moorsim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestCross(t *testing.T) {
	i := []float64{1, 0, 0}
	j := []float64{0, 1, 0}
	k := []float64{0, 0, 1}
	if !vectorsEqual(cross(i, j), k) {
		t.Fatal("i x j != k")
	}
	if !vectorsEqual(cross(j, k), i) {
		t.Fatal("j x k != i")
	}
	if !vectorsEqual(cross([]float64{2, 3, 4}, []float64{5, 6, 7}), []float64{-3, 6, -3}) {
		t.Fatal("cross fail")
	}
}

func TestAngles(t *testing.T) {
	if !scalar.EqualWithinAbs(Deg2rad(90), math.Pi/2, 1e-12) {
		t.Fatalf("90 deg got %f rad", Deg2rad(90))
	}
	if !scalar.EqualWithinAbs(Deg2rad(-90), 3*math.Pi/2, 1e-12) {
		t.Fatalf("-90 deg got %f rad", Deg2rad(-90))
	}
	if !scalar.EqualWithinAbs(Rad2deg(Deg2rad(123.5)), 123.5, 1e-9) {
		t.Fatal("incorrect round trip for 123.5 deg")
	}
	if !scalar.EqualWithinAbs(wrapAngle(-math.Pi/2), 3*math.Pi/2, 1e-12) {
		t.Fatalf("wrapAngle got %f", wrapAngle(-math.Pi/2))
	}
}

func TestInterp1(t *testing.T) {
	xs := []float64{0, 1, 3}
	ys := []float64{0, 10, 30}
	for _, c := range []struct{ x, exp float64 }{
		{-1, 0}, {0, 0}, {0.5, 5}, {1, 10}, {2, 20}, {3, 30}, {4, 30},
	} {
		if got := interp1(xs, ys, c.x); !scalar.EqualWithinAbs(got, c.exp, 1e-12) {
			t.Fatalf("interp1(%f) got %f exp %f", c.x, got, c.exp)
		}
	}
	if strictlyIncreasing([]float64{0, 1, 1}) {
		t.Fatal("duplicate accepted as strictly increasing")
	}
	if !scalar.EqualWithinAbs(trapz(xs, ys), 45, 1e-12) {
		t.Fatalf("trapz got %f", trapz(xs, ys))
	}
	if nextPow2(1000) != 1024 || nextPow2(1024) != 1024 {
		t.Fatal("nextPow2 fail")
	}
}
