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

// Package monitor gives the audio playout collaborator described in
// spec.md §3 a concrete, testable session-table shape: sessions keyed by
// sender socket and SSRC, each holding a bounded PCM ring and an activity
// age used for eviction. It intentionally stops at the data model — no
// codec, no host audio device, no playback loop; those stay outside this
// daemon's process per spec.md §1.
package monitor

import (
	"sync"
	"time"
)

// SessionKey identifies one playout session the same way the radio's
// egress RTP stream identifies it on the wire: the datagram's sender
// address and the RTP SSRC within it.
type SessionKey struct {
	SenderAddr string
	SSRC       uint32
}

// Session is one entry of the table: a bounded ring of recently-received
// PCM samples plus the bookkeeping a playout client needs to decide
// whether the session is still live.
type Session struct {
	Key         SessionKey
	LastActive  time.Time
	PacketsSeen uint64

	mu   sync.Mutex
	ring []float32
	head int
	tail int
	full bool
}

func newSession(key SessionKey, ringCapacity int) *Session {
	return &Session{Key: key, ring: make([]float32, ringCapacity)}
}

// Write appends PCM samples to the session's ring, overwriting the oldest
// unread samples on overrun — the same never-block discipline the I/Q ring
// uses (pipeline.Ring), since here too the writer is the network ingress
// path and must not stall behind a slow reader.
func (s *Session) Write(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ring)
	if n == 0 {
		return
	}
	for _, v := range samples {
		s.ring[s.head] = v
		s.head = (s.head + 1) % n
		if s.full {
			s.tail = (s.tail + 1) % n
		}
		if s.head == s.tail {
			s.full = true
		}
	}
}

// Drain copies out and removes every buffered sample, oldest first.
func (s *Session) Drain() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ring)
	if n == 0 || (!s.full && s.head == s.tail) {
		return nil
	}
	count := n
	if !s.full {
		count = (s.head - s.tail + n) % n
	}
	out := make([]float32, count)
	for i := 0; i < count; i++ {
		out[i] = s.ring[(s.tail+i)%n]
	}
	s.tail = s.head
	s.full = false
	return out
}

// DefaultRingCapacity buffers half a second of mono audio at 48kHz, enough
// for a playout client to ride out a scheduling hiccup without the ring
// wrapping underneath it.
const DefaultRingCapacity = 24000

// DefaultMaxAge is how long a session may go without a packet before
// Table.Evict reclaims it.
const DefaultMaxAge = 30 * time.Second

// Table is the session table itself: a single mutex guarding lookup,
// insert, and evict, exactly as spec.md §5 specifies ("guarded by a single
// mutex held only for table lookup/insert/evict"); the PCM ring inside
// each Session uses its own lock so a slow reader on one session never
// blocks ingress for another.
type Table struct {
	mu           sync.Mutex
	sessions     map[SessionKey]*Session
	ringCapacity int
	maxAge       time.Duration
}

// NewTable returns an empty table. A ringCapacity or maxAge of zero uses
// the package defaults.
func NewTable(ringCapacity int, maxAge time.Duration) *Table {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingCapacity
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Table{
		sessions:     make(map[SessionKey]*Session),
		ringCapacity: ringCapacity,
		maxAge:       maxAge,
	}
}

// Ingest records samples for the session identified by key, creating it if
// this is the first packet seen for that sender/SSRC pair, and returns the
// session so the caller (e.g. a playout client) can hand it to a codec.
func (t *Table) Ingest(key SessionKey, samples []float32, now time.Time) *Session {
	t.mu.Lock()
	s, ok := t.sessions[key]
	if !ok {
		s = newSession(key, t.ringCapacity)
		t.sessions[key] = s
	}
	t.mu.Unlock()

	s.Write(samples)
	s.mu.Lock()
	s.PacketsSeen++
	s.LastActive = now
	s.mu.Unlock()
	return s
}

// Lookup returns the session for key, if any.
func (t *Table) Lookup(key SessionKey) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[key]
	return s, ok
}

// Evict removes every session whose LastActive is older than maxAge as of
// now, returning the keys it removed.
func (t *Table) Evict(now time.Time) []SessionKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []SessionKey
	for key, s := range t.sessions {
		s.mu.Lock()
		age := now.Sub(s.LastActive)
		s.mu.Unlock()
		if age > t.maxAge {
			delete(t.sessions, key)
			evicted = append(evicted, key)
		}
	}
	return evicted
}

// Len reports the number of live sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
