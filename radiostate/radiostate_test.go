package radiostate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"hz.tools/radiod/tlv"
	"hz.tools/rf"
)

func newTestState() *State {
	s := New()
	s.Input.SampleRate = 192000
	s.SDR.FirstLO = 14_200_000
	s.SDR.Calibration = 0
	return s
}

func TestSetFreqHoldsLO1MovesLO2(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.SetFreq(14_250_000, nil))
	assert.InDelta(t, 14_250_000, float64(s.Tune.Freq), 1e-6)
	assert.InDelta(t, 50_000, float64(s.SecondLO.Freq), 1e-6)
}

func TestSetFreqWithLO2PinsLO2MovesLO1(t *testing.T) {
	s := newTestState()
	lo2 := rf.Hz(-48000)
	require.NoError(t, s.SetFreq(14_202_000, &lo2))
	assert.InDelta(t, -48000, float64(s.SecondLO.Freq), 1e-6)
	assert.InDelta(t, 14_250_000, float64(s.SDR.FirstLO), 1e-6)
}

// Property 5: after any legal SetFreq, freq == first_LO*(1+cal) + second_LO
// (+ doppler - shift, both zero here) within 1e-6 Hz.
func TestPropertyFrequencyIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sampleRate := rapid.IntRange(48000, 1000000).Draw(t, "sampleRate")
		firstLO := rapid.Float64Range(1e6, 30e6).Draw(t, "firstLO")
		delta := rapid.Float64Range(-float64(sampleRate)/2+1, float64(sampleRate)/2-1).Draw(t, "delta")

		s := New()
		s.Input.SampleRate = uint(sampleRate)
		s.SDR.FirstLO = rf.Hz(firstLO)

		freq := rf.Hz(firstLO) + rf.Hz(delta)
		err := s.SetFreq(freq, nil)
		require.NoError(t, err)

		got := float64(s.SDR.FirstLO)*(1+s.SDR.Calibration) + float64(s.SecondLO.Freq)
		require.InDelta(t, float64(freq), got, 1e-6)
	})
}

func TestSetFreqRejectsInadmissibleLO2(t *testing.T) {
	s := newTestState()
	lo2 := rf.Hz(500000) // way outside +/- sampleRate/2
	err := s.SetFreq(14_202_000, &lo2)
	require.Error(t, err)
}

func TestSetFilterSwapsLowHigh(t *testing.T) {
	s := New()
	s.SetFilter(5000, -5000)
	assert.EqualValues(t, -5000, s.Filter.Low)
	assert.EqualValues(t, 5000, s.Filter.High)
}

func TestValidateFilterEdgesRejectsInverted(t *testing.T) {
	require.Error(t, ValidateFilterEdges(5000, -5000))
	require.NoError(t, ValidateFilterEdges(-5000, 5000))
}

func TestParsePresetsAndApply(t *testing.T) {
	text := `
# a comment
usb linear 100 3000 0 0.5 1.002 90 pll
am-broadcast am -5000 5000 0 0.5 1.002 90
fmn fm -8000 8000 0 0.3 1.01 50 flat mono
isb-test linear -3000 3000 0 0.5 1.002 90 isb
`
	presets, err := ParsePresets(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, presets, 4)

	usb := presets["usb"]
	assert.Equal(t, tlv.DemodLinear, usb.Kind)
	assert.True(t, usb.PLL)

	isb := presets["isb-test"]
	assert.True(t, isb.ISB)

	s := New()
	s.ApplyPreset(presets["fmn"])
	assert.Equal(t, tlv.DemodFM, s.DemodKind)
	assert.True(t, s.Opt.Flat)
	assert.Equal(t, 1, s.Output.Channels)
}

func TestParsePresetsSquareImpliesPLL(t *testing.T) {
	text := "bpsk linear 100 3000 0 0.5 1.002 90 square\n"
	presets, err := ParsePresets(strings.NewReader(text))
	require.NoError(t, err)
	assert.True(t, presets["bpsk"].PLL)
	assert.True(t, presets["bpsk"].Square)
}

func TestParsePresetsRejectsUnknownDemod(t *testing.T) {
	_, err := ParsePresets(strings.NewReader("bad wat 1 2 0 0.5 1.0 10\n"))
	require.Error(t, err)
}

func TestAGCAttackReducesGain(t *testing.T) {
	a := AGC{Gain: 1.0, Headroom: 0.5, AttackRate: 0.9, RecoveryRate: 1.01, Hangtime: 3}
	a.Update(1.0) // envelope above headroom
	assert.InDelta(t, 0.9, a.Gain, 1e-9)
}

func TestAGCRecoveryWaitsForHangExpiry(t *testing.T) {
	a := AGC{Gain: 1.0, Headroom: 0.5, AttackRate: 0.9, RecoveryRate: 1.01, Hangtime: 2}
	a.Update(1.0) // attack, hang=2
	g1 := a.Update(0.1)
	g2 := a.Update(0.1)
	g3 := a.Update(0.1)
	assert.Equal(t, 0.9, g1) // hang=1, no recovery yet
	assert.Equal(t, 0.9, g2) // hang=0, no recovery yet
	assert.Greater(t, g3, 0.9) // hang expired, recovery applied
}

// Property 7: AGC gain cannot grow unboundedly.
func TestPropertyAGCGainBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Float64Range(0.01, 10).Draw(t, "initial")
		recovery := rapid.Float64Range(1.0001, 1.1).Draw(t, "recovery")
		n := rapid.IntRange(1, 500).Draw(t, "n")

		a := AGC{Gain: initial, Headroom: 1000, AttackRate: 0.5, RecoveryRate: recovery, Hangtime: 0, MaxGain: initial * 1e6}
		for i := 0; i < n; i++ {
			a.Update(0) // always below headroom: idle, recovering
		}
		ceiling := initial
		for i := 0; i < n; i++ {
			ceiling *= recovery
		}
		require.LessOrEqual(t, a.Gain, ceiling*(1+1e-9))
		require.LessOrEqual(t, a.Gain, a.MaxGain*(1+1e-9))
	})
}
