package demod

import (
	"math/cmplx"

	"hz.tools/radiod/radiostate"
)

// AM is the envelope detector: carrier-driven AGC by design, per
// spec.md §4.9. foffset is undefined for AM and always published as 0.
type AM struct {
	State   *radiostate.State
	Sink    Sink
	average float64
	primed  bool
}

// NewAM returns a ready-to-use AM demodulator bound to state and sink.
func NewAM(state *radiostate.State, sink Sink) *AM {
	return &AM{State: state, Sink: sink}
}

// ProcessBlock implements pipeline.Demodulator.
func (d *AM) ProcessBlock(filtered []complex128) error {
	out := make([]float32, len(filtered))
	var bbPower float64

	for i, x := range filtered {
		a := cmplx.Abs(x)
		bbPower += a * a
		if !d.primed {
			d.average = a
			d.primed = true
		} else {
			// Simple first-order smoothing of the carrier envelope.
			d.average += (a - d.average) * 0.01
		}
		// The output audio is the envelope's fractional deviation from the
		// running carrier average, i.e. the recovered modulation index
		// directly; gain (reported to the status service as agc.gain)
		// tracks the carrier level separately rather than scaling the
		// audio itself.
		if d.average > 0 {
			out[i] = float32((a - d.average) / d.average)
		}
	}
	if len(filtered) > 0 {
		bbPower /= float64(len(filtered))
	}

	gain := 0.0
	if d.average > 0 {
		gain = 0.5 / d.average
	}

	d.State.Mu.Lock()
	d.State.AGC.Gain = gain
	d.State.Sig.BBPower = bbPower
	d.State.Sig.FOffset = 0
	d.State.Mu.Unlock()

	_, err := d.Sink.Write(out)
	return err
}

// Reset clears the running carrier average so a fresh AM session doesn't
// inherit the previous one's DC estimate.
func (d *AM) Reset() {
	d.average = 0
	d.primed = false
}
