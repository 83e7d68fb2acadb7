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

// Package demod implements the AM envelope, FM discriminator, and
// coherent linear demodulators, sharing the channelizer output and the
// signal-measurement/AGC fields of radiostate.State.
package demod

// Sink is where a demodulator writes its PCM output; RTP framing (package
// rtp) and the multicast egress socket sit behind it.
type Sink interface {
	Write(samples []float32) (int, error)
}

// Demodulator is the common shape every kind implements; package
// pipeline only needs ProcessBlock, but Reset lets the mode-switch state
// machine (spec.md §4.9) tear one down cleanly before starting the next.
type Demodulator interface {
	ProcessBlock(filtered []complex128) error
	Reset()
}

// clampN0 applies spec.md §7's DSP anomaly rule: n0==0 or a negative SNR
// estimate is clamped to 0 before it's ever logged in dB.
func clampN0(n0 float64) float64 {
	if n0 < 0 {
		return 0
	}
	return n0
}

// snrFromPowers derives the signal-to-noise ratio (linear, not dB) from a
// signal power estimate and a noise-density floor, clamping to 0 per
// spec.md §7.
func snrFromPowers(signalPower, n0 float64) float64 {
	n0 = clampN0(n0)
	if n0 == 0 {
		return 0
	}
	snr := signalPower/n0 - 1
	if snr < 0 {
		return 0
	}
	return snr
}
