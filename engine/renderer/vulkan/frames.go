package vulkan

/**
 * @brief Counts the frames handed to the GPU. Frame n may only start after
 * the fence of frame n-inFlight has signaled, so once frame n has begun every
 * frame up to n-inFlight is known to be complete.
 */
type frameClock struct {
	current  uint64
	inFlight uint64
	inFrame  bool
}

func newFrameClock(inFlight uint32) frameClock {
	return frameClock{inFlight: uint64(max(inFlight, 1))}
}

func (c *frameClock) begin() {
	c.current++
	c.inFrame = true
}

func (c *frameClock) end() {
	c.inFrame = false
}

// slot is the index of the per frame resources used by the current frame.
func (c frameClock) slot() uint32 {
	return uint32(c.current % c.inFlight)
}

// stamp is the frame that will read what is bound now. Between frames that
// is the next one.
func (c frameClock) stamp() uint64 {
	if c.inFrame {
		return c.current
	}
	return c.current + 1
}

func (c frameClock) completed(stamp uint64) bool {
	return stamp+c.inFlight <= c.current
}

type version[T any] struct {
	value T
	stamp uint64
	used  bool
}

func (v version[T]) idle(c frameClock) bool {
	return !v.used || c.completed(v.stamp)
}

/**
 * @brief The copies of one logical buffer. The CPU only writes the current
 * copy and rotates to another one while the GPU may still read it.
 */
type versions[T any] struct {
	list    []version[T]
	current int
}

func newVersions[T any](first T) *versions[T] {
	return &versions[T]{list: []version[T]{{value: first}}}
}

func (v *versions[T]) Current() T {
	return v.list[v.current].value
}

// use records that the current copy is read by the frame with the stamp.
func (v *versions[T]) use(stamp uint64) {
	v.list[v.current].stamp = stamp
	v.list[v.current].used = true
}

// writable returns a copy the CPU may write, the current one first, or -1
// when every copy may still be read by a frame in flight.
func (v *versions[T]) writable(c frameClock) int {
	if v.list[v.current].idle(c) {
		return v.current
	}
	for i := range v.list {
		if v.list[i].idle(c) {
			return i
		}
	}
	return -1
}

func (v *versions[T]) add(value T) int {
	v.list = append(v.list, version[T]{value: value})
	return len(v.list) - 1
}

func (v *versions[T]) setCurrent(i int) {
	v.current = i
}

func (v *versions[T]) all() []version[T] {
	return v.list
}

/**
 * @brief Values waiting for the frames that read them to complete before
 * they are destroyed.
 */
type retired[T any] struct {
	pending []version[T]
}

func (r *retired[T]) add(v version[T]) {
	r.pending = append(r.pending, v)
}

// release returns the values no frame in flight can read anymore.
func (r *retired[T]) release(c frameClock) []T {
	var out []T
	keep := r.pending[:0]
	for _, v := range r.pending {
		if v.idle(c) {
			out = append(out, v.value)
			continue
		}
		keep = append(keep, v)
	}
	clear(r.pending[len(keep):])
	r.pending = keep
	return out
}

// drain returns every pending value. Only call it once the device is idle.
func (r *retired[T]) drain() []T {
	out := make([]T, 0, len(r.pending))
	for _, v := range r.pending {
		out = append(out, v.value)
	}
	r.pending = nil
	return out
}

func (r *retired[T]) count() int {
	return len(r.pending)
}
