package radiostate

import (
	"fmt"

	"hz.tools/rf"
)

// SetFreq applies the frequency identity from spec.md §3:
//
//	freq = first_LO*(1+calibration) + second_LO + doppler - shift_contribution
//
// If lo2 is non-nil, the second LO is pinned to *lo2 and the first LO is
// recomputed to hold the requested freq; otherwise the first LO is left
// alone and the second LO is recomputed. Callers must hold Mu.
func (s *State) SetFreq(freq rf.Hz, lo2 *rf.Hz) error {
	cal := s.SDR.Calibration
	doppler := s.Doppler.Freq
	shift := s.Tune.Shift

	if lo2 != nil {
		if !s.lo2Admissible(*lo2) {
			return fmt.Errorf("radiostate: second LO %v outside admissible range [%v, %v]", *lo2, s.minIF(), s.maxIF())
		}
		firstLO := rf.Hz((float64(freq) - float64(*lo2) - float64(doppler) + float64(shift)) / (1 + cal))
		s.SDR.FirstLO = firstLO
		s.SecondLO.Freq = *lo2
	} else {
		secondLO := freq - rf.Hz(float64(s.SDR.FirstLO)*(1+cal)) - doppler + shift
		if !s.lo2Admissible(secondLO) {
			return fmt.Errorf("radiostate: derived second LO %v outside admissible range [%v, %v]", secondLO, s.minIF(), s.maxIF())
		}
		s.SecondLO.Freq = secondLO
	}
	s.Tune.Freq = freq
	s.SecondLO.NCO.Set(float64(s.SecondLO.Freq)/float64(s.Input.SampleRate), 0)
	return nil
}

// SetFirstLO requests a first-LO move; per spec.md §4.10, the second LO is
// recomputed once the hardware LO actually settles (callers should invoke
// OnFirstLOSettled when the SDR status channel reports the new value).
func (s *State) SetFirstLO(firstLO rf.Hz) {
	s.SDR.FirstLO = firstLO
}

// OnFirstLOSettled recomputes the second LO (and thus confirms freq) once
// the SDR metadata channel reports the hardware LO has actually moved to
// firstLO, holding the user-visible carrier frequency fixed.
func (s *State) OnFirstLOSettled(firstLO rf.Hz) error {
	s.SDR.FirstLO = firstLO
	cal := s.SDR.Calibration
	secondLO := s.Tune.Freq - rf.Hz(float64(firstLO)*(1+cal)) - s.Doppler.Freq + s.Tune.Shift
	if !s.lo2Admissible(secondLO) {
		return fmt.Errorf("radiostate: first LO settle makes second LO %v inadmissible", secondLO)
	}
	s.SecondLO.Freq = secondLO
	s.SecondLO.NCO.Set(float64(secondLO)/float64(s.Input.SampleRate), 0)
	return nil
}

// minIF and maxIF bound the admissible second-LO range, derived from the
// input sample rate per spec.md §3's "aliasing-safe band". The source
// computes this from the front end's min_IF/max_IF fields; absent a front
// end descriptor this falls back to +/- half the Nyquist rate.
func (s *State) minIF() rf.Hz {
	return -rf.Hz(s.Input.SampleRate) / 2
}

func (s *State) maxIF() rf.Hz {
	return rf.Hz(s.Input.SampleRate) / 2
}

func (s *State) lo2Admissible(f rf.Hz) bool {
	return f >= s.minIF() && f <= s.maxIF()
}

// SetFilter applies new filter edges, normalizing low>high by swap, the
// behavior spec.md §4.7 specifies for preset application.
func (s *State) SetFilter(low, high rf.Hz) {
	if low > high {
		low, high = high, low
	}
	s.Filter.Low = low
	s.Filter.High = high
}

// ValidateFilterEdges enforces the stricter rule spec.md §4.10 uses for
// command-driven edge changes: reject rather than silently swap.
func ValidateFilterEdges(low, high rf.Hz) error {
	if high < low {
		return fmt.Errorf("radiostate: high edge %v is below low edge %v", high, low)
	}
	return nil
}
