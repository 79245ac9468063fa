package queue

// ring does the index bookkeeping for a fixed number of slots.
// Invariant: tail() == (head + count) % size and 0 <= count <= size.
type ring struct {
	head  int
	count int
	size  int
}

func newRing(size int) ring {
	return ring{size: size}
}

func (r *ring) full() bool {
	return r.count == r.size
}

func (r *ring) empty() bool {
	return r.count == 0
}

func (r *ring) tail() int {
	return (r.head + r.count) % r.size
}

// push reserves the tail slot and returns its index. The caller must check full first.
func (r *ring) push() int {
	idx := r.tail()
	r.count++

	return idx
}

// pop releases the head slot and returns its index. The caller must check empty first.
func (r *ring) pop() int {
	idx := r.head
	r.head = (r.head + 1) % r.size
	r.count--

	return idx
}

// at returns the slot index of the i-th pending entry, counting from head.
func (r *ring) at(i int) int {
	return (r.head + i) % r.size
}
