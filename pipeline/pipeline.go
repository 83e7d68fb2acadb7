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

// Package pipeline runs the per-block loop that turns ring-buffered I/Q
// samples into channelizer output ready for a demodulator: fillbuf,
// spindown, power measurement, channel filtering, and the noise-density
// running average (spec.md §4.8).
package pipeline

import (
	"context"
	"fmt"

	"hz.tools/radiod/channelizer"
	"hz.tools/radiod/radiostate"
)

// n0Smoothing is the exponential moving average weight for the N0 update,
// spec.md §4.8: "smoothing 0.01 per block".
const n0Smoothing = 0.01

// Demodulator is the narrow interface the pipeline hands channelizer
// output to; package demod implements it for AM, FM, and Linear.
type Demodulator interface {
	ProcessBlock(filtered []complex128) error
}

// EngineSource is implemented by a Demodulator that owns its own
// channelizer engine and may swap it out from under the pipeline, as
// demod.Supervisor does on a mode-change command (spec.md §4.9). When Demod
// implements this, RunBlock asks it for the engine to use each block
// instead of relying on the fixed Pipeline.Engine field.
type EngineSource interface {
	Engine() *channelizer.Engine
}

// Pipeline wires a ring, a channelizer engine, and a demodulator together
// for one run of the per-block loop against a shared radio state.
type Pipeline struct {
	Ring     *Ring
	Engine   *channelizer.Engine
	Demod    Demodulator
	State    *radiostate.State
}

// RunBlock executes exactly one iteration of the per-block loop described
// in spec.md §4.8, blocking in fillbuf until L new samples are available
// or ctx is cancelled.
func (p *Pipeline) RunBlock(ctx context.Context) error {
	l := p.State.Filter.L
	raw := make([]complex64, l)
	if err := p.Ring.FillBuf(ctx, raw); err != nil {
		return err
	}

	samples := make([]complex128, l)
	for i, s := range raw {
		samples[i] = complex128(s)
	}

	p.spindown(samples)

	ifPower := meanSquaredMagnitude(samples)

	engine := p.Engine
	if es, ok := p.Demod.(EngineSource); ok {
		engine = es.Engine()
	}
	filtered, err := engine.Execute(samples)
	if err != nil {
		return fmt.Errorf("pipeline: channelizer execute: %w", err)
	}

	n0 := computeN0(filtered)

	p.State.Mu.Lock()
	p.State.Sig.IFPower = ifPower
	p.State.Sig.N0 = p.State.Sig.N0*(1-n0Smoothing) + n0*n0Smoothing
	p.State.Mu.Unlock()

	if err := p.Demod.ProcessBlock(filtered); err != nil {
		return fmt.Errorf("pipeline: demod: %w", err)
	}
	return nil
}

// Run repeatedly calls RunBlock until ctx is cancelled or a block fails;
// fatal I/O errors are returned to the caller to log and terminate the
// process, per spec.md §4.9 "state machine for mode change".
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := p.RunBlock(ctx); err != nil {
			return err
		}
	}
}

// spindown multiplies each sample by the second-LO oscillator (and the
// Doppler oscillator, when its frequency is nonzero), updating the
// oscillators' running phasors, and renormalizes both exactly once per
// block regardless of sample count, per spec.md §4.1's unconditional
// renormalization guidance.
func (p *Pipeline) spindown(samples []complex128) {
	p.State.Mu.Lock()
	lo2 := p.State.SecondLO.NCO
	doppler := p.State.Doppler.NCO
	dopplerActive := p.State.Doppler.Freq != 0
	p.State.Mu.Unlock()

	for i := range samples {
		samples[i] *= lo2.Step()
		if dopplerActive {
			samples[i] *= doppler.Step()
		}
	}
	lo2.Renormalize()
	if dopplerActive {
		doppler.Renormalize()
	}
}

func meanSquaredMagnitude(samples []complex128) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += real(s)*real(s) + imag(s)*imag(s)
	}
	return sum / float64(len(samples))
}

// computeN0 estimates the one-sided noise power spectral density from a
// block of channelizer output, by taking the mean power across the block
// as a (noisy) floor estimate. Clamped to zero, per spec.md §7 "n0==0,
// sn0 computed negative -> clamp to 0 before logging in dB".
func computeN0(filtered []complex128) float64 {
	n0 := meanSquaredMagnitude(filtered)
	if n0 < 0 {
		return 0
	}
	return n0
}
