package moorsim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// R1 rotation about the 1st axis.
func R1(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, c, s, 0, -s, c})
}

// R2 rotation about the 2nd axis.
func R2(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, 0, -s, 0, 1, 0, s, 0, c})
}

// R3 rotation about the 3rd axis.
func R3(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// BodyToEarth returns the rotation from the vessel frame to the earth frame for the roll, pitch and yaw
// angles, applied in the yaw-pitch-roll (3-2-1) sequence.
// R1, R2 and R3 are frame rotations, hence the negated angles.
func BodyToEarth(roll, pitch, yaw float64) *mat.Dense {
	var tmp, r mat.Dense
	tmp.Mul(R3(-yaw), R2(-pitch))
	r.Mul(&tmp, R1(-roll))
	return &r
}

// MxV33 multiplies a matrix with a vector. Note that there is no dimension check!
func MxV33(m mat.Matrix, v []float64) (o []float64) {
	vVec := mat.NewVecDense(len(v), v)
	var rVec mat.VecDense
	rVec.MulVec(m, vVec)
	return []float64{rVec.AtVec(0), rVec.AtVec(1), rVec.AtVec(2)}
}

// Pose is the displacement of the vessel from its equilibrium: surge, sway, heave (m), roll, pitch, yaw (rad).
type Pose [6]float64

// rotation returns the body-to-earth rotation of this pose.
func (p Pose) rotation() *mat.Dense {
	return BodyToEarth(p[3], p[4], p[5])
}

// Locate returns the earth-frame position of a point given in the vessel frame, relative to the
// motion reference point whose equilibrium position is the origin, together with the rotated lever arm.
func (p Pose) Locate(body []float64) (position, arm []float64) {
	arm = MxV33(p.rotation(), body)
	position = []float64{p[0] + arm[0], p[1] + arm[1], p[2] + arm[2]}
	return
}

// generalized returns the 6-component force/moment about the reference point from a force applied at the arm.
func generalized(force, arm []float64) (f [6]float64) {
	m := cross(arm, force)
	f[0], f[1], f[2] = force[0], force[1], force[2]
	f[3], f[4], f[5] = m[0], m[1], m[2]
	return
}
