package planner

import (
	"github.com/synthetos/g2motion/motion"
)

// Ring is the planner buffer pool (spec.md §3, C7): a fixed-size,
// doubly-linked circular array of move buffers with three mobile cursors.
// w is the next EMPTY slot (the writer's cursor), r is the buffer
// currently executing (the runtime's cursor), p is the next buffer the
// forward planning pass has yet to consider. No buffer is ever allocated
// after NewRing returns.
type Ring struct {
	buf   []motion.MoveBuffer
	w, r, p *motion.MoveBuffer
	count int
}

// NewRing allocates a ring of n move buffers, linked circularly. n should
// be at least PlannerRingMinSize+PlannerBufferHeadroom to give the
// look-ahead planner room to work; NewRing does not enforce this, callers
// size the ring from config.
func NewRing(n int) *Ring {
	if n < 3 {
		n = 3
	}
	rg := &Ring{buf: make([]motion.MoveBuffer, n)}
	for i := range rg.buf {
		rg.buf[i].SetLinks(&rg.buf[(i+n-1)%n], &rg.buf[(i+1)%n])
	}
	rg.w = &rg.buf[0]
	rg.r = &rg.buf[0]
	rg.p = &rg.buf[0]
	return rg
}

// Len returns the number of slots in the ring.
func (rg *Ring) Len() int { return len(rg.buf) }

// Count returns the number of buffers currently committed (not EMPTY).
func (rg *Ring) Count() int { return rg.count }

// Full reports whether the ring has no EMPTY slot to write into.
func (rg *Ring) Full() bool { return rg.w.State != motion.BufferEmpty }

// GetWriteBuffer reserves the next EMPTY slot for the writer (aline,
// dwell, queue_command). It is a fault for the caller to request a write
// buffer when the ring is full: the gating contract (spec.md §4.1 step 4)
// places that check upstream.
func (rg *Ring) GetWriteBuffer(fault motion.FaultCode) *motion.MoveBuffer {
	if rg.Full() {
		motion.Panic(fault, "no EMPTY buffer available")
	}
	bf := rg.w
	bf.State = motion.BufferInitializing
	return bf
}

// QueueWriteBuffer commits a reserved buffer: its state advances to
// PREPPED and the writer cursor moves on. Called once aline/dwell/command
// have finished populating the buffer.
func (rg *Ring) QueueWriteBuffer(bf *motion.MoveBuffer) {
	bf.State = motion.BufferPrepped
	rg.w = bf.Next()
	rg.count++
}

// GetRunBuffer returns the buffer the runtime should be executing, or nil
// if there is nothing to run. A PLANNED buffer transitions to RUNNING on
// first access.
func (rg *Ring) GetRunBuffer() *motion.MoveBuffer {
	if rg.r.State == motion.BufferEmpty {
		return nil
	}
	if rg.r.State == motion.BufferPlanned {
		rg.r.State = motion.BufferRunning
	}
	if rg.r.State != motion.BufferRunning {
		return nil
	}
	return rg.r
}

// EndRunBuffer frees the currently-running buffer back to EMPTY and
// advances the runtime cursor. Called by the loader once a move's final
// segment has been consumed.
func (rg *Ring) EndRunBuffer() {
	if rg.r.State == motion.BufferEmpty {
		return
	}
	done := rg.r
	rg.r = done.Next()
	done.Reset()
	rg.count--
	if rg.p == done {
		rg.p = rg.r
	}
}

// Newest returns the most recently committed buffer (the one just behind
// the writer cursor), or nil if the ring is empty.
func (rg *Ring) Newest() *motion.MoveBuffer {
	if rg.count == 0 {
		return nil
	}
	return rg.w.Prev()
}

// Runtime returns the buffer the runtime cursor currently points at
// (EMPTY if the ring has drained), used by the look-ahead passes as the
// backward-planning terminus.
func (rg *Ring) Runtime() *motion.MoveBuffer { return rg.r }

// Walk calls fn for every committed buffer starting at r and moving
// forward (toward w) until fn returns false or the writer cursor is
// reached.
func (rg *Ring) Walk(fn func(bf *motion.MoveBuffer) bool) {
	if rg.count == 0 {
		return
	}
	bf := rg.r
	for i := 0; i < rg.count; i++ {
		if !fn(bf) {
			return
		}
		bf = bf.Next()
	}
}

// WalkReverse calls fn for every committed buffer starting at the newest
// and moving backward (toward r) until fn returns false or r is passed.
func (rg *Ring) WalkReverse(fn func(bf *motion.MoveBuffer) bool) {
	if rg.count == 0 {
		return
	}
	bf := rg.Newest()
	for i := 0; i < rg.count; i++ {
		if !fn(bf) {
			return
		}
		bf = bf.Prev()
	}
}

// Flush empties every buffer that is not currently RUNNING, returning the
// ring to an IDLE-equivalent state. Grounded on g2core's
// mp_flush_planner (request_queue_flush, spec.md §6).
func (rg *Ring) Flush() {
	if rg.count == 0 {
		return
	}
	bf := rg.r
	if bf.State == motion.BufferRunning {
		bf = bf.Next()
	}
	first := bf
	for bf.State != motion.BufferEmpty && bf.State != motion.BufferRunning {
		next := bf.Next()
		bf.Reset()
		rg.count--
		bf = next
	}
	rg.w = first
	rg.p = rg.r
}
