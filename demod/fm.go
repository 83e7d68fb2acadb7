package demod

import (
	"math"
	"math/cmplx"

	"hz.tools/radiod/radiostate"
)

// FM is the differential-phase FM discriminator.
type FM struct {
	State    *radiostate.State
	Sink     Sink
	SampleRate float64

	last      complex128
	havelast  bool
	deemph    float64 // one-pole de-emphasis state
}

// NewFM returns a ready-to-use FM demodulator.
func NewFM(state *radiostate.State, sink Sink, sampleRate float64) *FM {
	return &FM{State: state, Sink: sink, SampleRate: sampleRate}
}

// ProcessBlock implements pipeline.Demodulator. Per spec.md §4.9: per
// output sample, delta-phi = arg(x_n * conj(x_{n-1})); peak deviation is
// the maximum |delta-phi| over the block scaled to Hz; "flat" mode skips
// de-emphasis; snr is derived from the ratio of carrier energy to noise
// floor over the block.
func (d *FM) ProcessBlock(filtered []complex128) error {
	out := make([]float32, len(filtered))
	var (
		bbPower   float64
		peakDev   float64
		prevPhase = d.last
	)

	d.State.Mu.Lock()
	flat := d.State.Opt.Flat
	n0 := d.State.Sig.N0
	d.State.Mu.Unlock()

	for i, x := range filtered {
		if !d.havelast {
			prevPhase = x
			d.havelast = true
		}
		dphi := cmplx.Phase(x * cmplx.Conj(prevPhase))
		prevPhase = x

		if math.Abs(dphi) > peakDev {
			peakDev = math.Abs(dphi)
		}

		sample := dphi
		if !flat {
			// One-pole de-emphasis, 50us-style time constant expressed
			// as a fixed smoothing coefficient on the discriminator
			// output.
			const alpha = 0.9
			d.deemph = d.deemph*alpha + sample*(1-alpha)
			sample = d.deemph
		}
		out[i] = float32(sample)

		a := cmplx.Abs(x)
		bbPower += a * a
	}
	d.last = prevPhase

	if len(filtered) > 0 {
		bbPower /= float64(len(filtered))
	}
	pdeviationHz := peakDev / (2 * math.Pi) * d.SampleRate

	d.State.Mu.Lock()
	d.State.Sig.BBPower = bbPower
	d.State.Sig.PDeviation = pdeviationHz
	d.State.Sig.SNR = snrFromPowers(bbPower, n0)
	d.State.Sig.FOffset = 0 // FM has no carrier-offset estimate in this demod
	d.State.Mu.Unlock()

	_, err := d.Sink.Write(out)
	return err
}

// Reset clears the discriminator's running phase and de-emphasis state.
func (d *FM) Reset() {
	d.havelast = false
	d.deemph = 0
}
