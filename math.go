package moorsim

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"
)

const (
	deg2rad = math.Pi / 180
	// Gravity is the standard gravitational acceleration in m/s^2.
	Gravity = 9.80665
	// SeaWaterDensity in kg/m^3.
	SeaWaterDensity = 1025.0
	// AirDensity in kg/m^3.
	AirDensity = 1.225
	twoPi      = 2 * math.Pi
)

// norm returns the norm of a given vector which is supposed to be 3x1.
func norm(v []float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// sign returns the sign of a given number.
func sign(v float64) float64 {
	if scalar.EqualWithinAbs(v, 0, 1e-12) {
		return 1
	}
	return v / math.Abs(v)
}

// cross performs the cross product.
func cross(a, b []float64) []float64 {
	return []float64{a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0]}
}

// Deg2rad converts degrees to radians, and enforced only positive numbers.
func Deg2rad(a float64) float64 {
	if a < 0 {
		a += 360
	}
	return math.Mod(a*deg2rad, twoPi)
}

// Rad2deg converts radians to degrees, and enforced only positive numbers.
func Rad2deg(a float64) float64 {
	if a < 0 {
		a += twoPi
	}
	return math.Mod(a/deg2rad, 360)
}

// wrapAngle returns the angle in [0, 2π).
func wrapAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}

// bracket returns the index i such that xs[i] <= x < xs[i+1] and the interpolation weight of xs[i+1].
// The axis must be strictly increasing; x outside of the axis is clamped to its ends.
func bracket(xs []float64, x float64) (int, float64) {
	n := len(xs)
	if n == 1 || x <= xs[0] {
		return 0, 0
	}
	if x >= xs[n-1] {
		return n - 2, 1
	}
	i := sort.SearchFloat64s(xs, x)
	if xs[i] == x {
		if i == n-1 {
			return n - 2, 1
		}
		return i, 0
	}
	i--
	return i, (x - xs[i]) / (xs[i+1] - xs[i])
}

// interp1 linearly interpolates ys over the increasing axis xs, clamping at the ends.
func interp1(xs, ys []float64, x float64) float64 {
	if len(xs) == 1 {
		return ys[0]
	}
	i, w := bracket(xs, x)
	return ys[i]*(1-w) + ys[i+1]*w
}

// strictlyIncreasing returns whether the axis is sorted and free of duplicates.
func strictlyIncreasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return false
		}
	}
	return true
}

// allFinite returns whether no value is NaN or infinite.
func allFinite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// trapz integrates ys sampled on xs with the trapezoidal rule.
func trapz(xs, ys []float64) (s float64) {
	for i := 1; i < len(xs); i++ {
		s += 0.5 * (ys[i] + ys[i-1]) * (xs[i] - xs[i-1])
	}
	return
}

// nextPow2 returns the smallest power of two greater or equal to n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// periodicWeights returns the two indices of the periodic axis (over 2π) bracketing x and the weight
// of the second one.
func periodicWeights(axis []float64, x float64) (int, int, float64) {
	n := len(axis)
	if n == 1 {
		return 0, 0, 0
	}
	h := wrapAngle(x)
	if h >= axis[0] && h <= axis[n-1] {
		i, w := bracket(axis, h)
		return i, i + 1, w
	}
	// Wrap between the last and the first point.
	span := axis[0] + twoPi - axis[n-1]
	d := h - axis[n-1]
	if d < 0 {
		d += twoPi
	}
	return n - 1, 0, d / span
}
