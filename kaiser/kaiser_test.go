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

package kaiser

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowSingleSample(t *testing.T) {
	require.Equal(t, []float64{1}, Window(1, 9))
}

func TestWindowSymmetric(t *testing.T) {
	w := Window(33, 9)
	require.Len(t, w, 33)
	for i := range w {
		require.InDelta(t, w[i], w[len(w)-1-i], 1e-9)
	}
	// The center tap of an odd-length window sees ratio==0, so it's the
	// unscaled besselI0(beta)/besselI0(beta) peak.
	require.InDelta(t, 1.0, w[16], 1e-9)
}

func TestWindowEndpointsTaperBelowCenter(t *testing.T) {
	w := Window(65, 11)
	center := w[32]
	require.Less(t, w[0], center*0.01)
	require.InDelta(t, w[0], w[len(w)-1], 1e-9)
}

// bandpassResponse returns a length-n complex response that is 1 in the
// passband [lowBin, highBin] and 0 elsewhere, used as a stand-in for the
// per-bin desired response buildEngine assembles from filter edges.
func bandpassResponse(n, lowBin, highBin int) []complex128 {
	resp := make([]complex128, n)
	for k := lowBin; k <= highBin; k++ {
		resp[k] = 1
	}
	return resp
}

func TestSynthesizeReturnsFullLengthResponse(t *testing.T) {
	const n, m = 64, 33
	resp, err := Synthesize(bandpassResponse(n, 0, 8), m, 9)
	require.NoError(t, err)
	require.Len(t, resp, n)
}

// hermitianResponse builds a length-n complex response that is conjugate
// symmetric about bin 0, as a real-valued time-domain filter's spectrum
// must be, and returns both the full spectrum and its half-spectrum
// (n/2+1 bins) representation.
func hermitianResponse(n int, mag func(k int) float64) (full []complex128, half []complex128) {
	full = make([]complex128, n)
	for k := 0; k <= n/2; k++ {
		full[k] = complex(mag(k), 0)
	}
	for k := 1; k < n/2; k++ {
		full[n-k] = cmplx.Conj(full[k])
	}
	half = append([]complex128(nil), full[:n/2+1]...)
	return full, half
}

// TestSynthesizeRealMatchesSynthesizeOnHermitianInput exercises property 6:
// for a Hermitian-symmetric desired response, the real-output half-spectrum
// path must reproduce the same impulse response as running the full complex
// path on the expanded spectrum.
func TestSynthesizeRealMatchesSynthesizeOnHermitianInput(t *testing.T) {
	const n, m = 64, 33
	full, half := hermitianResponse(n, func(k int) float64 {
		if k <= n/8 {
			return 1
		}
		return 0
	})

	want, err := Synthesize(full, m, 9)
	require.NoError(t, err)

	got, err := SynthesizeReal(half, n, m, 9)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		require.InDelta(t, real(want[i]), real(got[i]), 1e-9)
		require.InDelta(t, imag(want[i]), imag(got[i]), 1e-9)
	}
}

func TestSynthesizeRealHandlesShortBlock(t *testing.T) {
	// A block shorter than the transform length is the common case: the
	// window only ever spans a fraction of the FFT size.
	const n, m = 16, 8
	_, half := hermitianResponse(n, func(k int) float64 { return 1 })
	_, err := SynthesizeReal(half, n, m, 9)
	require.NoError(t, err)
}
