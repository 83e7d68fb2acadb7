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

// Package kaiser synthesizes band-limited FIR responses from a desired
// frequency response using a Kaiser window, for use by the channelizer
// (package channelizer) when it builds its frequency-domain filter taps.
package kaiser

import (
	"math"
	"math/cmplx"

	"hz.tools/fftw"
)

// besselI0 evaluates the modified Bessel function of the first kind, order
// zero, via its power series, stopping once the relative contribution of
// the next term falls below 1e-12.
func besselI0(x float64) float64 {
	term := 1.0
	sum := 1.0
	halfX := x / 2
	for k := 1; k < 1000; k++ {
		term *= (halfX * halfX) / float64(k*k)
		sum += term
		if term/sum < 1e-12 {
			break
		}
	}
	return sum
}

// Window returns the M samples of a Kaiser window of shape parameter beta.
func Window(m int, beta float64) []float64 {
	w := make([]float64, m)
	if m == 1 {
		w[0] = 1
		return w
	}
	denom := besselI0(beta)
	alpha := float64(m-1) / 2
	for n := 0; n < m; n++ {
		ratio := (float64(n) - alpha) / alpha
		arg := beta * math.Sqrt(math.Max(0, 1-ratio*ratio))
		w[n] = besselI0(arg) / denom
	}
	return w
}

// Synthesize inverse-transforms a desired complex frequency response of
// length n into a length-m time-domain impulse response, windowed by a
// Kaiser window of shape beta, then forward-transforms it back into a
// length-n frequency response ready to hand to the channelizer.
//
// Per spec: the time-domain response is circularly shifted so "time zero"
// lands at index M/2, multiplied by the window, scaled by 1/N^2, and
// zero-padded past index M before the forward transform.
func Synthesize(response []complex128, m int, beta float64) ([]complex128, error) {
	n := len(response)
	time, err := fftw.InverseComplex(response)
	if err != nil {
		return nil, err
	}

	shifted := make([]complex128, n)
	half := m / 2
	for i := range shifted {
		shifted[(i+half)%n] = time[i]
	}

	win := Window(m, beta)
	scale := 1.0 / float64(n*n)
	td := make([]complex128, n)
	for i := 0; i < m; i++ {
		td[i] = shifted[i] * complex(win[i]*scale, 0)
	}
	// indices [m, n) are left zero: the window is shorter than the block.

	return fftw.ForwardComplex(td)
}

// SynthesizeReal is the real-output variant: it operates on the
// half-spectrum (n/2+1 bins) of a Hermitian-symmetric response, otherwise
// identical to Synthesize.
func SynthesizeReal(halfResponse []complex128, n, m int, beta float64) ([]complex128, error) {
	full := make([]complex128, n)
	copy(full, halfResponse)
	for k := 1; k < n-len(halfResponse)+1; k++ {
		full[n-k] = cmplx.Conj(halfResponse[k])
	}
	return Synthesize(full, m, beta)
}
