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
	"context"
	"encoding/binary"
	"math"
	"net"

	"github.com/charmbracelet/log"

	"hz.tools/radiod/multicast"
	"hz.tools/radiod/pipeline"
	"hz.tools/radiod/radiostate"
	"hz.tools/radiod/rtp"
	"hz.tools/sdr"
)

// iqSampleBytes is the wire size of one interleaved-float32 I/Q sample in
// an RTP payload.
const iqSampleBytes = 8

// rtpIngress reads I/Q datagrams off the input multicast socket, tracks
// session continuity, and pushes accepted samples onto the pipeline ring.
type rtpIngress struct {
	socket *multicast.Socket
	ring   *pipeline.Ring
	state  *radiostate.State
	logger *log.Logger
}

func newRTPIngress(socket *multicast.Socket, ring *pipeline.Ring, state *radiostate.State, logger *log.Logger) *rtpIngress {
	state.Mu.Lock()
	state.Input.DestAddr = socket.Addr
	state.Mu.Unlock()
	return &rtpIngress{socket: socket, ring: ring, state: state, logger: logger}
}

// run reads datagrams until ctx is cancelled, decoding each one's RTP
// header and complex-sample payload and pushing accepted samples to the
// ring (spec.md §4.4's ingress side of the fillbuf/ring handoff).
func (g *rtpIngress) run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		g.socket.Conn.Close()
		g.ring.WakeAll()
	}()

	buf := make([]byte, 65536)
	for {
		n, addr, err := g.socket.Conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Warn("read error", "err", err)
			continue
		}
		g.handleDatagram(buf[:n], addr)
	}
}

func (g *rtpIngress) handleDatagram(datagram []byte, addr *net.UDPAddr) {
	h, n, err := rtp.Parse(datagram)
	if err != nil {
		g.logger.Warn("malformed RTP datagram, dropping", "err", err)
		return
	}

	g.state.Mu.Lock()
	accept := g.state.Input.Session.Ingest(h)
	g.state.Input.SourceAddr = addr
	g.state.Mu.Unlock()
	if !accept {
		return
	}

	payload := datagram[n:]
	// sdr.SamplesC64 is the canonical IQ sample container the rest of the
	// hz.tools family passes between readers and writers; decoding straight
	// into it here keeps the ring's producer side speaking the same sample
	// type a real sdr.Reader would hand a convolution stage.
	samples := make(sdr.SamplesC64, len(payload)/iqSampleBytes)
	for i := range samples {
		off := i * iqSampleBytes
		re := math.Float32frombits(binary.BigEndian.Uint32(payload[off : off+4]))
		im := math.Float32frombits(binary.BigEndian.Uint32(payload[off+4 : off+8]))
		samples[i] = complex(re, im)
	}
	g.ring.Push(samples)
}
