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

// Package oscillator implements a numerically-controlled oscillator (NCO):
// a unit-modulus complex phase stepped once per sample, used for the
// software second LO, the Doppler correction oscillator, and the
// post-detection shift oscillator.
package oscillator

import "math/cmplx"

// NCO is a phase accumulator producing a complex sinusoid one sample at a
// time. The zero value is not ready to use (its phase is 0, which Set does
// not change); construct one with New, then call Set.
type NCO struct {
	phase     complex128
	step      complex128
	rate      complex128 // secondary step applied to step each tick; 1 if unused
	hasRate   bool
	sinceNorm int
}

// New returns an NCO at phase 1+0i (i.e. cos(0)+j*sin(0)) with no step.
func New() *NCO {
	return &NCO{phase: complex(1, 0), step: complex(1, 0), rate: complex(1, 0)}
}

// Set assigns the oscillator's frequency in cycles/sample and, optionally,
// a quadratic rate term in cycles/sample^2. A rate of 0 makes the
// oscillator strictly linear: Step performs a single complex multiply per
// sample with no update to step itself.
func (o *NCO) Set(freqCyclesPerSample, rateCyclesPerSample2 float64) {
	o.step = cmplx.Exp(complex(0, 2*pi*freqCyclesPerSample))
	if rateCyclesPerSample2 != 0 {
		o.rate = cmplx.Exp(complex(0, 2*pi*rateCyclesPerSample2))
		o.hasRate = true
	} else {
		o.rate = complex(1, 0)
		o.hasRate = false
	}
}

const pi = 3.14159265358979323846

// Step multiplies the phase by the current step and returns the new
// phase. If a non-zero rate was set, the step itself is advanced by the
// rate on every tick, producing a linear chirp.
func (o *NCO) Step() complex128 {
	o.phase *= o.step
	if o.hasRate {
		o.step *= o.rate
	}
	o.sinceNorm++
	return o.phase
}

// Phase returns the current phase without advancing the oscillator.
func (o *NCO) Phase() complex128 {
	return o.phase
}

// Renormalize divides the phase by its own magnitude to arrest the
// numerical drift that accumulates from repeated complex multiplication.
// Callers must invoke this at least once per processed block; relying on
// "occasional" renormalization is unsound, per the design guidance that
// motivated making this an explicit, unconditional call rather than a
// probabilistic one buried inside Step.
func (o *NCO) Renormalize() {
	m := cmplx.Abs(o.phase)
	if m == 0 {
		o.phase = complex(1, 0)
		return
	}
	o.phase /= complex(m, 0)
	o.sinceNorm = 0
}

// Reset returns the oscillator to phase 1+0i without touching its step or
// rate, used when a session restarts but tuning should be preserved.
func (o *NCO) Reset() {
	o.phase = complex(1, 0)
	o.sinceNorm = 0
}
