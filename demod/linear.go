package demod

import (
	"math"
	"math/cmplx"

	"hz.tools/radiod/oscillator"
	"hz.tools/radiod/radiostate"
)

// Linear is the coherent linear demodulator: plain I/Q-to-mono downconversion
// by default, or carrier tracking via a Costas-style PLL when Opt.PLL is
// set. Opt.Square enables squaring the input ahead of the phase detector so
// a BPSK carrier (which carries no energy at its own frequency) can still be
// tracked, per spec.md §4.9.
type Linear struct {
	State      *radiostate.State
	Sink       Sink
	SampleRate float64

	shift *oscillator.NCO

	// PLL loop state.
	pllFreq    float64 // cycles/sample, current VCO frequency estimate
	pllPhase   complex128
	lockAccum  float64
	locked     bool
}

// NewLinear returns a ready-to-use coherent linear demodulator.
func NewLinear(state *radiostate.State, sink Sink, sampleRate float64) *Linear {
	return &Linear{
		State:      state,
		Sink:       sink,
		SampleRate: sampleRate,
		shift:      oscillator.New(),
		pllPhase:   complex(1, 0),
	}
}

// ProcessBlock implements pipeline.Demodulator.
func (d *Linear) ProcessBlock(filtered []complex128) error {
	d.State.Mu.Lock()
	shiftHz := d.State.Tune.Shift
	pll := d.State.Opt.PLL
	square := d.State.Opt.Square
	agcOn := d.State.Opt.AGC
	n0 := d.State.Sig.N0
	d.State.Mu.Unlock()

	d.shift.Set(float64(shiftHz)/d.SampleRate, 0)

	out := make([]float32, len(filtered))
	var ifPower, bbPower float64
	var cphaseSum float64

	for i, x := range filtered {
		ifPower += real(x)*real(x) + imag(x)*imag(x)

		shifted := x * d.shift.Step()

		var mono complex128
		if pll {
			mono, cphaseSum = d.trackAndMix(shifted, square, cphaseSum)
		} else {
			mono = shifted
		}

		// ISB channels arrive already separated into independent
		// sidebands by the channelizer's CrossConj mode (package
		// channelizer), so mono-izing here is just the real part.
		sample := real(mono)

		if agcOn {
			env := math.Abs(sample)
			gain := d.State.AGC.Update(env)
			sample *= gain
		}

		bbPower += sample * sample
		out[i] = float32(sample)
	}
	d.shift.Renormalize()

	n := len(filtered)
	if n > 0 {
		ifPower /= float64(n)
		bbPower /= float64(n)
	}

	d.State.Mu.Lock()
	d.State.Sig.IFPower = ifPower
	d.State.Sig.BBPower = bbPower
	d.State.Sig.SNR = snrFromPowers(bbPower, n0)
	if pll {
		d.State.Sig.CPhase = d.phaseDegrees()
		d.State.Sig.PLFreq = d.pllFreq * d.SampleRate
		d.State.Sig.PLLLock = d.locked
		d.State.Sig.FOffset = d.pllFreq * d.SampleRate
	} else {
		d.State.Sig.FOffset = float64(shiftHz)
		d.State.Sig.PLLLock = false
	}
	d.State.Mu.Unlock()

	_, err := d.Sink.Write(out)
	return err
}

// trackAndMix runs one Costas-loop iteration: mix the input down by the
// loop's current phase estimate, derive a phase-error term (squaring the
// error signal itself when Square is set, which doubles a BPSK carrier's
// apparent rate and cancels its 180-degree data modulation), and nudge the
// VCO frequency/phase accordingly. It returns the phase-corrected sample and
// cphaseSum plus this sample's phase error; lock detection does not use that
// sum, it uses the separate lockAccum moving average.
func (d *Linear) trackAndMix(x complex128, square bool, cphaseSum float64) (complex128, float64) {
	const (
		loopGainFreq  = 1e-4
		loopGainPhase = 1e-2
		lockThreshold = 0.02
		lockDecay     = 0.98
	)

	mixed := x * cmplx.Conj(d.pllPhase)

	errSignal := mixed
	if square {
		errSignal = errSignal * errSignal
	}

	phaseErr := imag(errSignal) * sign(real(errSignal))
	if mag := cmplx.Abs(errSignal); mag > 0 {
		phaseErr /= mag
	}

	d.pllFreq += loopGainFreq * phaseErr
	phaseStep := d.pllFreq + loopGainPhase*phaseErr
	d.pllPhase *= cmplx.Exp(complex(0, 2*math.Pi*phaseStep))
	if m := cmplx.Abs(d.pllPhase); m > 0 {
		d.pllPhase /= complex(m, 0)
	}

	d.lockAccum = d.lockAccum*lockDecay + math.Abs(phaseErr)*(1-lockDecay)
	d.locked = d.lockAccum < lockThreshold

	return mixed, cphaseSum + phaseErr
}

func (d *Linear) phaseDegrees() float64 {
	return cmplx.Phase(d.pllPhase) * 180 / math.Pi
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// Reset clears the shift oscillator and PLL tracking state, used by the
// mode-switch state machine before starting a fresh linear session.
func (d *Linear) Reset() {
	d.shift.Reset()
	d.pllFreq = 0
	d.pllPhase = complex(1, 0)
	d.lockAccum = 0
	d.locked = false
}
