package moorsim

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestLineSlackAndLinear(t *testing.T) {
	line := &LinearLine{Label: "bow", Attachment: Attachment{Vessel: [3]float64{0, 10, 0}, Fixed: [3]float64{110, 10, 0}}, Length: 100, Stiffness: 2e5}
	st, load := line.Step(ElementState{}, Pose{})
	if exp := 2e5 * 10.; load.Tension != exp || load.Status != Taut {
		t.Fatalf("tension got %f (%s) exp %f", load.Tension, load.Status, exp)
	}
	// The line pulls towards +x at 10m to port of the reference point.
	if exp := [6]float64{2e6, 0, 0, 0, 0, -2e7}; !floats.EqualApprox(load.Force[:], exp[:], 1e-12) {
		t.Fatalf("force got %v exp %v", load.Force, exp)
	}
	if st.Deflection != 10 {
		t.Fatalf("elongation got %f", st.Deflection)
	}
	// Surging towards the bollard slackens the line.
	_, load = line.Step(st, Pose{15, 0, 0, 0, 0, 0})
	if load.Status != Slack || load.Tension != 0 || load.Force != ([6]float64{}) {
		t.Fatalf("slack line got %+v", load)
	}
	// Yawing moves the vessel point.
	_, load = line.Step(ElementState{}, Pose{0, 0, 0, 0, 0, 0.1})
	if !(load.Tension > 0) || load.Force[Yaw] >= 0 {
		t.Fatalf("yawed line got %+v", load)
	}
}

func TestLineBreaking(t *testing.T) {
	line := &LinearLine{Label: "spring", Attachment: Attachment{Fixed: [3]float64{50, 0, 0}}, Length: 49, Stiffness: 1e6, BreakingLoad: 5e5}
	st, load := line.Step(ElementState{}, Pose{})
	if !st.Broken || load.Status != Broken || load.Tension != 0 {
		t.Fatalf("overloaded line got %+v %+v", st, load)
	}
	// Broken lines stay broken, even once slack.
	st, load = line.Step(st, Pose{5, 0, 0, 0, 0, 0})
	if !st.Broken || load.Status != Broken {
		t.Fatalf("broken line recovered: %+v", load)
	}
}

func TestCurveLine(t *testing.T) {
	line := &CurveLine{Label: "hawser", Attachment: Attachment{Fixed: [3]float64{0, -40, 0}}, Length: 30,
		Elongation: []float64{0, 2, 6}, Tension: []float64{0, 1e5, 9e5}}
	if err := line.Validate(); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct{ sway, exp float64 }{{0, 9e5 + 4*2e5}, {-5, 7e5}, {-9, 5e4}, {-12, 0}} {
		_, load := line.Step(ElementState{}, Pose{0, tc.sway, 0, 0, 0, 0})
		if math.Abs(load.Tension-tc.exp) > 1e-6 {
			t.Fatalf("sway %f: tension got %f exp %f", tc.sway, load.Tension, tc.exp)
		}
		if tc.exp > 0 && math.Abs(load.Force[Sway]+tc.exp) > 1e-6 {
			t.Fatalf("sway %f: force got %v", tc.sway, load.Force)
		}
	}
	bad := *line
	bad.Elongation = []float64{1, 2, 6}
	if err := bad.Validate(); !errors.Is(err, ErrInputValidation) {
		t.Fatalf("curve not starting at zero: got %v", err)
	}
}

func TestFenderHysteresis(t *testing.T) {
	fender := &Fender{Label: "F1", Attachment: Attachment{Vessel: [3]float64{0, -16, 0}, Fixed: [3]float64{0, -16.5, 0}},
		Normal: [3]float64{0, 1, 0}, Deflection: []float64{0, 1, 2}, Reaction: []float64{0, 1e6, 4e6}, Unloading: 0.6}
	if err := fender.Validate(); err != nil {
		t.Fatal(err)
	}
	at := func(sway float64) Pose { return Pose{0, sway, 0, 0, 0, 0} }
	st, load := fender.Step(ElementState{}, at(0))
	if load.Status != Slack || load.Tension != 0 {
		t.Fatalf("gap got %+v", load)
	}
	// Loading up to 1.5m of compression.
	for _, sway := range []float64{-1, -1.5, -2} {
		st, load = fender.Step(st, at(sway))
	}
	if exp := 2.5e6; math.Abs(load.Tension-exp) > 1e-6 || math.Abs(st.Peak-1.5) > 1e-12 {
		t.Fatalf("loading got %f exp %f, peak %f", load.Tension, exp, st.Peak)
	}
	if load.Force[Sway] <= 0 {
		t.Fatalf("fender must push the vessel off the quay: %v", load.Force)
	}
	// Unloading to 1m gives less than the loading curve.
	st, load = fender.Step(st, at(-1.5))
	if exp := 0.6e6; math.Abs(load.Tension-exp) > 1e-6 {
		t.Fatalf("unloading got %f exp %f", load.Tension, exp)
	}
	// Reloading past the peak follows the loading curve again.
	_, load = fender.Step(st, at(-2.25))
	if exp := 3.25e6; math.Abs(load.Tension-exp) > 1e-6 {
		t.Fatalf("reloading got %f exp %f", load.Tension, exp)
	}
	// Losing contact resets the history.
	st, _ = fender.Step(st, at(0.5))
	if st.Peak != 0 {
		t.Fatalf("peak after contact loss %f", st.Peak)
	}
	if _, load = fender.Step(st, at(-1.5)); math.Abs(load.Tension-1e6) > 1e-6 {
		t.Fatalf("loading after contact loss got %f", load.Tension)
	}
	if _, load = fender.Step(ElementState{}, at(-3)); load.Status != AtLimit || math.Abs(load.Tension-5.5e6) > 1e-6 {
		t.Fatalf("bottomed out fender got %+v", load)
	}
}

func TestRigidLinkSlip(t *testing.T) {
	link := &RigidLink{Label: "gangway", Attachment: Attachment{Fixed: [3]float64{20, 0, 0}}, Length: 20, Stiffness: 1e7, Limit: 2e5}
	st, load := link.Step(ElementState{}, Pose{})
	if load.Status != Slack || load.Tension != 0 {
		t.Fatalf("nominal link got %+v", load)
	}
	// 1cm of extension stays elastic.
	st, load = link.Step(st, Pose{-0.01, 0, 0, 0, 0, 0})
	if load.Status != Taut || math.Abs(load.Tension-1e5) > 1e-6 || st.Offset != 0 {
		t.Fatalf("elastic link got %+v %+v", load, st)
	}
	// 5cm slips past the limit.
	st, load = link.Step(st, Pose{-0.05, 0, 0, 0, 0, 0})
	if load.Status != AtLimit || math.Abs(load.Tension-2e5) > 1e-6 || math.Abs(st.Offset-0.03) > 1e-12 {
		t.Fatalf("slipping link got %+v %+v", load, st)
	}
	if math.Abs(load.Force[Surge]-2e5) > 1e-6 {
		t.Fatalf("link force got %v", load.Force)
	}
	// Back at the nominal position, the slip leaves the link in compression.
	_, load = link.Step(st, Pose{})
	if load.Status != AtLimit || math.Abs(load.Tension+2e5) > 1e-6 {
		t.Fatalf("returning link got %+v", load)
	}
	_, load = link.Step(st, Pose{-0.025, 0, 0, 0, 0, 0})
	if load.Status != Taut || math.Abs(load.Tension+5e4) > 1e-6 {
		t.Fatalf("unloaded link got %+v", load)
	}
}

func TestMooringSystemCommit(t *testing.T) {
	fender := &Fender{Label: "F1", Attachment: Attachment{Fixed: [3]float64{0, -0.5, 0}},
		Normal: [3]float64{0, 1, 0}, Deflection: []float64{0, 1}, Reaction: []float64{0, 1e6}, Unloading: 0.5}
	line := &LinearLine{Label: "L1", Attachment: Attachment{Fixed: [3]float64{0, 60, 0}}, Length: 59, Stiffness: 1e5}
	sys, err := NewMooringSystem(fender, line)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewMooringSystem(fender, fender); !errors.Is(err, ErrInputValidation) {
		t.Fatalf("duplicate names: got %v", err)
	}
	loads, next := make([]Load, 2), make([]ElementState, 2)
	total := sys.Evaluate(Pose{0, -1.5, 0, 0, 0, 0}, loads, next)
	if exp := 1e6 + 1e5*2.5; math.Abs(total[Sway]-exp) > 1e-6 {
		t.Fatalf("total sway got %f exp %f", total[Sway], exp)
	}
	if sys.States()[0] != (ElementState{}) {
		t.Fatal("evaluate mutated the committed states")
	}
	clone := sys.Clone()
	sys.Commit(next)
	if sys.States()[0].Peak != 1 || clone.States()[0].Peak != 0 {
		t.Fatalf("commit got %+v, clone %+v", sys.States()[0], clone.States()[0])
	}
	sys.Evaluate(Pose{0, -1, 0, 0, 0, 0}, loads, next)
	if math.Abs(loads[0].Tension-0.25e6) > 1e-6 {
		t.Fatalf("committed history ignored: %f", loads[0].Tension)
	}
	clone.Evaluate(Pose{0, -1, 0, 0, 0, 0}, loads, next)
	if math.Abs(loads[0].Tension-0.5e6) > 1e-6 {
		t.Fatalf("clone shares history: %f", loads[0].Tension)
	}
	if names := sys.Names(); names[0] != "F1" || names[1] != "L1" || sys.Len() != 2 {
		t.Fatalf("names %v", names)
	}
	assertPanic(t, func() { _ = ElementStatus(7).String() })
}
