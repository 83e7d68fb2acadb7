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

package main

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"

	"github.com/charmbracelet/log"

	"hz.tools/radiod/multicast"
	"hz.tools/radiod/radiostate"
	"hz.tools/radiod/rtp"
)

// samplesPerPacket is the PCM framing size: 20ms of mono audio at the
// 48kHz output sample rate.
const samplesPerPacket = 960

// rtpSink is the demod.Sink implementation that frames recovered PCM audio
// into RTP/mono-PCM packets and writes them to the output multicast
// socket, tracking the egress session in radiostate.State.Output.
type rtpSink struct {
	socket *multicast.Socket
	state  *radiostate.State
	logger *log.Logger

	mu        sync.Mutex
	ssrc      uint32
	seq       uint16
	timestamp uint32
	pending   []float32
}

func newRTPSink(socket *multicast.Socket, state *radiostate.State, logger *log.Logger) *rtpSink {
	var ssrcBytes [4]byte
	rand.Read(ssrcBytes[:])
	ssrc := binary.BigEndian.Uint32(ssrcBytes[:])

	state.Mu.Lock()
	state.Output.Session = rtp.SessionState{SSRC: ssrc, HaveSSRC: true}
	state.Output.DestAddr = socket.Addr
	if local, ok := socket.Conn.LocalAddr().(*net.UDPAddr); ok {
		state.Output.SourceAddr = local
	}
	state.Mu.Unlock()

	return &rtpSink{socket: socket, state: state, logger: logger, ssrc: ssrc}
}

// Write implements demod.Sink, buffering recovered PCM samples and
// flushing complete samplesPerPacket-sized RTP packets as they fill.
func (s *rtpSink) Write(samples []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, samples...)
	for len(s.pending) >= samplesPerPacket {
		if err := s.flushLocked(s.pending[:samplesPerPacket]); err != nil {
			return 0, err
		}
		s.pending = s.pending[samplesPerPacket:]
	}
	return len(samples), nil
}

func (s *rtpSink) flushLocked(samples []float32) error {
	payload := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.BigEndian.PutUint32(payload[i*4:i*4+4], math.Float32bits(v))
	}

	h := rtp.Header{
		Version:        2,
		PayloadType:    rtp.PayloadMonoPCM,
		SequenceNumber: s.seq,
		Timestamp:      s.timestamp,
		SSRC:           s.ssrc,
	}
	packet := append(rtp.Marshal(h), payload...)
	if _, err := s.socket.Conn.Write(packet); err != nil {
		return fmt.Errorf("radiod: egress write: %w", err)
	}

	s.seq++
	s.timestamp += uint32(len(samples))

	s.state.Mu.Lock()
	s.state.Output.Session.Packets++
	s.state.Output.SampleCount += uint64(len(samples))
	s.state.Mu.Unlock()

	return nil
}
