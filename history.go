package moorsim

// velocityHistory is a fixed capacity ring of committed velocities, newest first.
type velocityHistory struct {
	ring  [][6]float64
	head  int // index of the newest velocity
	count int
}

func newVelocityHistory(capacity int) *velocityHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &velocityHistory{ring: make([][6]float64, capacity), head: -1}
}

// Push stores v as the newest velocity, overwriting the oldest one when full.
func (h *velocityHistory) Push(v [6]float64) {
	h.head = (h.head + 1) % len(h.ring)
	h.ring[h.head] = v
	if h.count < len(h.ring) {
		h.count++
	}
}

// At returns the velocity pushed m pushes ago (m=1 is the newest). Velocities before the start of
// the run are zero and reported as missing.
func (h *velocityHistory) At(m int) ([6]float64, bool) {
	if m < 1 || m > h.count {
		return [6]float64{}, false
	}
	i := (h.head - (m - 1)) % len(h.ring)
	if i < 0 {
		i += len(h.ring)
	}
	return h.ring[i], true
}

// Len returns the number of stored velocities.
func (h *velocityHistory) Len() int {
	return h.count
}
