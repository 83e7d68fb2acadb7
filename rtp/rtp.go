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

// Package rtp implements the minimal slice of RFC 3550 this system needs:
// parsing/emitting the 12-byte fixed header plus optional CSRCs, and
// tracking sequence/timestamp continuity (drops, dupes) for one session.
package rtp

import (
	"encoding/binary"
	"fmt"
)

// Payload type tags recognized by downstream demodulators.
const (
	PayloadStereoPCM = 10
	PayloadMonoPCM   = 11
	PayloadOpus      = 20
)

const headerLen = 12

// Header is a decoded fixed RTP header.
type Header struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CSRCCount      uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
}

// Parse decodes a fixed RTP header (and any CSRC list) from the front of
// buf, returning the header and the number of bytes consumed.
func Parse(buf []byte) (Header, int, error) {
	if len(buf) < headerLen {
		return Header{}, 0, fmt.Errorf("rtp: short datagram (%d bytes < %d byte header)", len(buf), headerLen)
	}
	h := Header{
		Version:        buf[0] >> 6,
		Padding:        buf[0]&0x20 != 0,
		Extension:      buf[0]&0x10 != 0,
		CSRCCount:      buf[0] & 0x0f,
		Marker:         buf[1]&0x80 != 0,
		PayloadType:    buf[1] & 0x7f,
		SequenceNumber: binary.BigEndian.Uint16(buf[2:4]),
		Timestamp:      binary.BigEndian.Uint32(buf[4:8]),
		SSRC:           binary.BigEndian.Uint32(buf[8:12]),
	}
	n := headerLen
	if h.CSRCCount > 15 {
		return Header{}, 0, fmt.Errorf("rtp: invalid CSRC count %d", h.CSRCCount)
	}
	need := n + 4*int(h.CSRCCount)
	if len(buf) < need {
		return Header{}, 0, fmt.Errorf("rtp: short datagram for %d CSRCs", h.CSRCCount)
	}
	h.CSRC = make([]uint32, h.CSRCCount)
	for i := range h.CSRC {
		h.CSRC[i] = binary.BigEndian.Uint32(buf[n : n+4])
		n += 4
	}
	return h, n, nil
}

// Marshal encodes h into a new byte slice, fixed header plus CSRCs.
func Marshal(h Header) []byte {
	buf := make([]byte, headerLen+4*len(h.CSRC))
	buf[0] = (h.Version << 6) | byte(len(h.CSRC)&0x0f)
	if h.Padding {
		buf[0] |= 0x20
	}
	if h.Extension {
		buf[0] |= 0x10
	}
	buf[1] = h.PayloadType & 0x7f
	if h.Marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint16(buf[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], h.SSRC)
	n := headerLen
	for _, csrc := range h.CSRC {
		binary.BigEndian.PutUint32(buf[n:n+4], csrc)
		n += 4
	}
	return buf
}

// dupeWindow is the width, in sequence numbers, of the "recent past"
// treated as a duplicate rather than a reorder-with-loss; spec.md calls
// this N≈10.
const dupeWindow = 10

// SessionState tracks one RTP receive session's sequence/timestamp
// continuity.
type SessionState struct {
	SSRC        uint32
	HaveSSRC    bool
	ExpectedSeq uint16
	ExpectedTS  uint32
	Packets     uint64
	Drops       uint64
	Dupes       uint64
}

// Ingest applies one received packet's header to the session state. It
// returns true if the payload should be processed, false if it was judged
// a duplicate and should be discarded.
//
// If ssrc differs from the stored one, a new session is assumed: counters
// reset and the new ssrc is adopted, matching spec.md §4.4's "callers may
// rotate" language.
func (s *SessionState) Ingest(h Header) (accept bool) {
	if !s.HaveSSRC || h.SSRC != s.SSRC {
		*s = SessionState{SSRC: h.SSRC, HaveSSRC: true}
	}

	diff := int16(h.SequenceNumber - s.ExpectedSeq)
	if s.Packets == 0 {
		// First packet of the session: nothing to compare against yet.
		s.ExpectedSeq = h.SequenceNumber + 1
		s.ExpectedTS = h.Timestamp
		s.Packets++
		return true
	}

	if diff < 0 && int(diff) >= -dupeWindow {
		s.Dupes++
		return false
	}

	if diff > 0 {
		s.Drops += uint64(diff)
	}
	s.ExpectedSeq = h.SequenceNumber + 1
	s.ExpectedTS = h.Timestamp
	s.Packets++
	return true
}
