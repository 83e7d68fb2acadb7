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

// Package channelizer implements an overlap-save fast-convolution channel
// filter: a block FFT FIR with integer decimation and a choice of three
// output transfer functions (complex, real, and cross-conjugate for
// independent sideband).
package channelizer

import (
	"fmt"
	"log"

	"hz.tools/fftw"
)

// Mode selects the channelizer's output transfer function.
type Mode int

const (
	// Complex copies both positive and negative frequency bins through
	// the response unmodified; the output is a complex baseband signal.
	Complex Mode = iota
	// Real folds both sidebands onto a single real output via a
	// Hermitian-symmetric spectrum and an inverse c2r transform.
	Real
	// CrossConj implements independent sideband: the mirrored output
	// carries the cross term H_n*X_n - conj(H_p*X_p), the direct output
	// carries H_p*X_p + conj(H_n*X_n).
	CrossConj
)

// Config describes one channelizer instance.
type Config struct {
	L         int  // new input samples consumed per block
	M         int  // filter impulse response length
	Decimate  int  // integer decimation ratio D
	Mode      Mode // output transfer function
	Response  []complex128
}

// N returns the overlap-save block size L+M-1.
func (c Config) N() int { return c.L + c.M - 1 }

// Validate checks the soft invariants from spec.md §3 and logs warnings
// (never errors) when they're violated, matching the "warnings, not
// errors" language of the filter block sizing invariant.
func (c Config) Validate(logger *log.Logger) error {
	if c.L <= 0 || c.M <= 0 || c.Decimate <= 0 {
		return fmt.Errorf("channelizer: L, M and Decimate must be positive")
	}
	if len(c.Response) != c.N() {
		return fmt.Errorf("channelizer: response length %d does not match N=%d", len(c.Response), c.N())
	}
	n := c.N()
	if logger != nil {
		if n%c.Decimate != 0 {
			logger.Printf("warning: N=%d is not divisible by decimate=%d", n, c.Decimate)
		}
		if (c.M-1)%c.Decimate != 0 {
			logger.Printf("warning: M-1=%d is not divisible by decimate=%d", c.M-1, c.Decimate)
		}
	}
	return nil
}

// Engine is a stateful overlap-save filter: it owns the M-1 sample tail
// carried between calls and the response used to multiply each block's
// spectrum.
type Engine struct {
	cfg      Config
	input    []complex128 // length N; [0:M-1) is the carried tail
	nd       int          // decimated block size N/D
	outBuf   []complex128 // length nd, holds the inverse-FFT result
}

// New allocates an Engine ready to filter. The response must already be
// the Kaiser-windowed frequency response of length N (see package
// kaiser) for every Mode, Real included: kaiser.SynthesizeReal expands a
// half-spectrum to this full length, and mixReal reads both the positive
// bins and their mirrored negative bins.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(nil); err != nil {
		return nil, err
	}
	n := cfg.N()
	if n%cfg.Decimate != 0 {
		return nil, fmt.Errorf("channelizer: N=%d must be divisible by decimate=%d", n, cfg.Decimate)
	}
	return &Engine{
		cfg:   cfg,
		input: make([]complex128, n),
		nd:    n / cfg.Decimate,
	}, nil
}

// Execute consumes exactly cfg.L new complex samples, appending them after
// the carried M-1 sample tail, and returns a view of length L/D into the
// decimated, filtered output starting at offset (M-1)/D — the
// overlap-save "valid" region.
func (e *Engine) Execute(newSamples []complex128) ([]complex128, error) {
	cfg := e.cfg
	if len(newSamples) != cfg.L {
		return nil, fmt.Errorf("channelizer: expected %d new samples, got %d", cfg.L, len(newSamples))
	}
	n := cfg.N()
	copy(e.input[cfg.M-1:], newSamples)

	spectrum, err := fftw.ForwardComplex(e.input)
	if err != nil {
		return nil, fmt.Errorf("channelizer: forward fft: %w", err)
	}

	// Shift the last M-1 samples to the front for the next call before we
	// touch input again.
	copy(e.input[:cfg.M-1], e.input[n-(cfg.M-1):])

	var timeDomain []complex128
	switch cfg.Mode {
	case Complex:
		dec := e.mixComplex(spectrum)
		timeDomain, err = fftw.InverseComplex(dec)
	case Real:
		dec := e.mixReal(spectrum)
		timeDomain, err = fftw.InverseComplexToReal(dec)
	case CrossConj:
		dec := e.mixCrossConj(spectrum)
		timeDomain, err = fftw.InverseComplex(dec)
	default:
		return nil, fmt.Errorf("channelizer: unknown mode %v", cfg.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("channelizer: inverse fft: %w", err)
	}
	e.outBuf = timeDomain

	start := (cfg.M - 1) / cfg.Decimate
	length := cfg.L / cfg.Decimate
	if start+length > len(e.outBuf) {
		return nil, fmt.Errorf("channelizer: output view [%d:%d) exceeds buffer of length %d", start, start+length, len(e.outBuf))
	}
	return e.outBuf[start : start+length], nil
}

// mixComplex implements the COMPLEX transfer function of spec.md §4.3:
// positive bins [1, Nd/2) and negative bins [N-1, N-Nd/2) pass through the
// response, DC and decimated Nyquist are scalars.
func (e *Engine) mixComplex(x []complex128) []complex128 {
	n := e.cfg.N()
	nd := e.nd
	h := e.cfg.Response
	out := make([]complex128, nd)
	out[0] = h[0] * x[0]
	for k := 1; k < nd/2; k++ {
		out[k] = h[k] * x[k]
		out[nd-k] = h[n-k] * x[n-k]
	}
	if nd%2 == 0 {
		out[nd/2] = h[nd/2] * x[nd/2]
	}
	return out
}

// mixReal implements the REAL transfer function: positive-frequency bins
// carry H_p*X_p + conj(H_n*X_n) so that decimation aliasing folds both
// sidebands onto a real output; negative bins are left unwritten (the c2r
// transform assumes Hermitian symmetry).
func (e *Engine) mixReal(x []complex128) []complex128 {
	n := e.cfg.N()
	nd := e.nd
	h := e.cfg.Response
	out := make([]complex128, nd/2+1)
	out[0] = complex(real(h[0]*x[0]), 0)
	for k := 1; k < len(out); k++ {
		hp := h[k]
		xp := x[k]
		var hn, xn complex128
		if n-k < n {
			hn = h[n-k]
			xn = x[n-k]
		}
		out[k] = hp*xp + cmplxConj(hn*xn)
	}
	return out
}

// mixCrossConj implements the ISB transfer function: the direct output
// carries H_p*X_p + conj(H_n*X_n); the mirrored output carries
// H_n*X_n - conj(H_p*X_p). After the inverse FFT, I carries LSB-like
// content and Q carries USB-like content.
func (e *Engine) mixCrossConj(x []complex128) []complex128 {
	n := e.cfg.N()
	nd := e.nd
	h := e.cfg.Response
	out := make([]complex128, nd)
	out[0] = h[0] * x[0]
	for k := 1; k < nd/2; k++ {
		hp, xp := h[k], x[k]
		hn, xn := h[n-k], x[n-k]
		out[k] = hp*xp + cmplxConj(hn*xn)
		out[nd-k] = hn*xn - cmplxConj(hp*xp)
	}
	if nd%2 == 0 {
		out[nd/2] = h[nd/2] * x[nd/2]
	}
	return out
}

func cmplxConj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}
