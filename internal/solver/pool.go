package solver

// Pool is the shrinking multiset of costs not yet assigned to any target.
// It is an index-tracked arena: values keep their input order and are marked
// consumed rather than spliced out, so removing one instance of a duplicated
// value can never touch its twins.
type Pool struct {
	values   []float64
	consumed []bool
	left     int
}

// NewPool copies the input costs into a fresh pool.
func NewPool(costs []float64) *Pool {
	vals := make([]float64, len(costs))
	copy(vals, costs)
	return &Pool{
		values:   vals,
		consumed: make([]bool, len(vals)),
		left:     len(vals),
	}
}

// Len returns the number of costs still available.
func (p *Pool) Len() int {
	return p.left
}

// Values returns the remaining costs in their original input order.
// The returned slice is a fresh copy owned by the caller.
func (p *Pool) Values() []float64 {
	out := make([]float64, 0, p.left)
	for i, v := range p.values {
		if !p.consumed[i] {
			out = append(out, v)
		}
	}
	return out
}

// Remove consumes the first available instance of v. It reports whether an
// instance was found.
func (p *Pool) Remove(v float64) bool {
	for i, val := range p.values {
		if !p.consumed[i] && val == v {
			p.consumed[i] = true
			p.left--
			return true
		}
	}
	return false
}

// RemoveAll consumes one instance of every value in vs.
func (p *Pool) RemoveAll(vs []float64) {
	for _, v := range vs {
		p.Remove(v)
	}
}

// Sum returns the total of the remaining costs.
func (p *Pool) Sum() float64 {
	var sum float64
	for i, v := range p.values {
		if !p.consumed[i] {
			sum += v
		}
	}
	return sum
}

// Min returns the smallest remaining cost, or 0 when the pool is empty.
func (p *Pool) Min() float64 {
	min, found := 0.0, false
	for i, v := range p.values {
		if p.consumed[i] {
			continue
		}
		if !found || v < min {
			min, found = v, true
		}
	}
	return min
}

// Max returns the largest remaining cost, or 0 when the pool is empty.
func (p *Pool) Max() float64 {
	max := 0.0
	for i, v := range p.values {
		if !p.consumed[i] && v > max {
			max = v
		}
	}
	return max
}

// Mean returns the average of the remaining costs, or 0 when the pool is empty.
func (p *Pool) Mean() float64 {
	if p.left == 0 {
		return 0
	}
	return p.Sum() / float64(p.left)
}
