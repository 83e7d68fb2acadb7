// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package pipeline

import (
	"context"
	"sync"
)

// DefaultRingCapacity is the complex-sample I/Q ring size from spec.md §4.8.
const DefaultRingCapacity = 65536

// Ring is the single-producer/single-consumer complex-sample queue between
// the network ingress goroutine and the demodulator goroutine. The
// producer (Push) never blocks: on overrun it silently drops the oldest
// unread samples. The consumer (FillBuf) blocks on underrun via a condition
// variable signalling non-empty, per spec.md §4.8 and §5.
type Ring struct {
	mu    sync.Mutex
	cond  *sync.Cond
	buf   []complex64
	head  int // next slot to write
	tail  int // next slot to read
	count int
}

// NewRing allocates a ring of the given capacity (complex samples).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	r := &Ring{buf: make([]complex64, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Push writes samples into the ring. If the ring is full, the oldest
// unread samples are overwritten — overrun is tolerated silently, per
// spec.md §4.8, since the producer must never block.
func (r *Ring) Push(samples []complex64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.buf)
	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % n
		if r.count == n {
			r.tail = (r.tail + 1) % n // drop oldest
		} else {
			r.count++
		}
	}
	r.cond.Broadcast()
}

// FillBuf blocks until it can fill dst completely with samples read in
// order, or ctx is cancelled, in which case it returns ctx.Err() having
// filled as much of dst as was available.
func (r *Ring) FillBuf(ctx context.Context, dst []complex64) error {
	filled := 0
	for filled < len(dst) {
		r.mu.Lock()
		for r.count == 0 {
			if ctx.Err() != nil {
				r.mu.Unlock()
				return ctx.Err()
			}
			r.cond.Wait()
		}
		n := len(r.buf)
		avail := r.count
		need := len(dst) - filled
		take := avail
		if take > need {
			take = need
		}
		for i := 0; i < take; i++ {
			dst[filled+i] = r.buf[r.tail]
			r.tail = (r.tail + 1) % n
			r.count--
		}
		filled += take
		r.mu.Unlock()
	}
	return nil
}

// Len reports how many unread samples are currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// WakeAll wakes every goroutine blocked in FillBuf, used on shutdown so a
// cancelled context is observed promptly instead of waiting for more
// data that will never arrive.
func (r *Ring) WakeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cond.Broadcast()
}
